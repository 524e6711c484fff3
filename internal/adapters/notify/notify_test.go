package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/okian/rally/internal/adapters/notify"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func TestRecorder(t *testing.T) {
	Convey("Given a recorder", t, func() {
		ctx := context.Background()
		r := notify.NewRecorder()
		origin := model.Origin{Address: "+15550001111", Name: "Club"}

		Convey("Sends are kept per address", func() {
			So(r.Send(ctx, "+1", "hello", origin), ShouldBeTrue)
			So(r.Send(ctx, "+2", "other", origin), ShouldBeTrue)
			So(r.To("+1"), ShouldResemble, []string{"hello"})
			So(r.Messages(), ShouldHaveLength, 2)
			So(r.Messages()[0].Origin, ShouldResemble, origin)

			r.Reset()
			So(r.Messages(), ShouldBeEmpty)
		})

		Convey("Failing addresses report false", func() {
			r.Fail("+3")
			So(r.Send(ctx, "+3", "lost", origin), ShouldBeFalse)
			So(r.To("+3"), ShouldBeEmpty)
		})
	})

	Convey("The log sender always delivers", t, func() {
		So(notify.NewLogSender().Send(context.Background(), "+1", "hi", model.Origin{}), ShouldBeTrue)
	})
}

func TestWebhookSender(t *testing.T) {
	Convey("Given a gateway", t, func() {
		bodies := make(chan map[string]string, 1)
		var status atomic.Int32
		status.Store(http.StatusAccepted)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var got map[string]string
			_ = json.NewDecoder(r.Body).Decode(&got)
			select {
			case bodies <- got:
			default:
			}
			w.WriteHeader(int(status.Load()))
		}))
		defer srv.Close()
		s := notify.NewWebhookSender(srv.URL, notify.WithHTTPClient(srv.Client()))
		origin := model.Origin{Address: "+15550001111", Name: "Hudson Padel"}

		Convey("Messages are posted with the origin", func() {
			So(s.Send(context.Background(), "+15550002222", "hi", origin), ShouldBeTrue)
			got := <-bodies
			So(got["to"], ShouldEqual, "+15550002222")
			So(got["from"], ShouldEqual, "+15550001111")
			So(got["from_name"], ShouldEqual, "Hudson Padel")
			So(got["body"], ShouldEqual, "hi")
		})

		Convey("Rejections report false", func() {
			status.Store(http.StatusBadGateway)
			So(s.Send(context.Background(), "+1", "hi", origin), ShouldBeFalse)
		})
	})

	Convey("Unreachable gateways report false", t, func() {
		s := notify.NewWebhookSender("http://127.0.0.1:1/send")
		So(s.Send(context.Background(), "+1", "hi", model.Origin{}), ShouldBeFalse)
	})
}
