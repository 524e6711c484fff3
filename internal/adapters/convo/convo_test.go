package convo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/okian/rally/internal/adapters/convo"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryStore(t *testing.T) {
	Convey("Given a memory store with a one hour TTL", t, func() {
		ctx := context.Background()
		now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
		s := convo.NewMemoryStore(convo.WithTTL(time.Hour), convo.WithClock(func() time.Time { return now }))

		Convey("Missing addresses have no state", func() {
			_, err := s.Get(ctx, "+1")
			So(errors.Is(err, convo.ErrNoState), ShouldBeTrue)
		})

		Convey("State round-trips until it expires", func() {
			So(s.Set(ctx, "+1", convo.State{Name: convo.AwaitingBroaden, MatchID: "m1"}), ShouldBeNil)
			st, err := s.Get(ctx, "+1")
			So(err, ShouldBeNil)
			So(st.MatchID, ShouldEqual, "m1")
			So(st.SetAt, ShouldEqual, now)

			now = now.Add(time.Hour)
			_, err = s.Get(ctx, "+1")
			So(errors.Is(err, convo.ErrNoState), ShouldBeTrue)
		})

		Convey("Clear removes state", func() {
			So(s.Set(ctx, "+1", convo.State{Name: convo.AwaitingBroaden}), ShouldBeNil)
			So(s.Clear(ctx, "+1"), ShouldBeNil)
			_, err := s.Get(ctx, "+1")
			So(errors.Is(err, convo.ErrNoState), ShouldBeTrue)
		})
	})
}

func TestRedisStore(t *testing.T) {
	Convey("Given a redis store", t, func() {
		ctx := context.Background()
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		s := convo.NewRedisStore(client, 30*time.Minute)

		Convey("State round-trips as JSON with an expiry", func() {
			So(s.Set(ctx, "+1", convo.State{Name: convo.AwaitingBroaden, MatchID: "m1"}), ShouldBeNil)
			So(mr.TTL("rally:convo:+1"), ShouldEqual, 30*time.Minute)

			st, err := s.Get(ctx, "+1")
			So(err, ShouldBeNil)
			So(st.Name, ShouldEqual, convo.AwaitingBroaden)
			So(st.MatchID, ShouldEqual, "m1")
		})

		Convey("Expired keys read as no state", func() {
			So(s.Set(ctx, "+1", convo.State{Name: convo.AwaitingBroaden}), ShouldBeNil)
			mr.FastForward(31 * time.Minute)
			_, err := s.Get(ctx, "+1")
			So(errors.Is(err, convo.ErrNoState), ShouldBeTrue)
		})

		Convey("Clear deletes the key", func() {
			So(s.Set(ctx, "+1", convo.State{Name: convo.AwaitingBroaden}), ShouldBeNil)
			So(s.Clear(ctx, "+1"), ShouldBeNil)
			So(mr.Exists("rally:convo:+1"), ShouldBeFalse)
		})

		Convey("Corrupt payloads surface as errors", func() {
			So(mr.Set("rally:convo:+9", "not json"), ShouldBeNil)
			_, err := s.Get(ctx, "+9")
			So(err, ShouldNotBeNil)
			So(errors.Is(err, convo.ErrNoState), ShouldBeFalse)
		})
	})
}
