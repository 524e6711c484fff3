// Package fixtures seeds clubs, groups and players from a YAML file.
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/okian/rally/internal/adapters/repository"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/pkg/logger"
)

// Seed is the parsed fixture document.
type Seed struct {
	Clubs []Club `koanf:"clubs"`
}

// Club is one club with its players and groups.
type Club struct {
	ID               string        `koanf:"id"`
	Name             string        `koanf:"name"`
	Timezone         string        `koanf:"timezone"`
	BatchSize        int           `koanf:"batch_size"`
	InviteTimeout    time.Duration `koanf:"invite_timeout"`
	QuietStart       string        `koanf:"quiet_start"`
	QuietEnd         string        `koanf:"quiet_end"`
	OriginAddress    string        `koanf:"origin_address"`
	FeedbackDelay    time.Duration `koanf:"feedback_delay"`
	ResultNudgeDelay time.Duration `koanf:"result_nudge_delay"`
	Players          []Player      `koanf:"players"`
	Groups           []Group       `koanf:"groups"`
}

// Player is one seeded club member.
type Player struct {
	ID      string  `koanf:"id"`
	Name    string  `koanf:"name"`
	Address string  `koanf:"address"`
	Gender  string  `koanf:"gender"`
	Level   float64 `koanf:"level"`
	// Active defaults to true.
	Active *bool `koanf:"active"`
}

// Group is a named subset of the club's players.
type Group struct {
	ID      string   `koanf:"id"`
	Name    string   `koanf:"name"`
	Members []string `koanf:"members"`
}

// Summary counts what Apply wrote.
type Summary struct {
	Clubs   int
	Groups  int
	Players int
	Updated int
}

// Load reads and validates a fixture file.
func Load(path string) (*Seed, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadFixtures, path, err)
	}
	var s Seed
	if err := k.UnmarshalWithConf("", &s, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadFixtures, path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks ids, clocks and group membership.
func (s *Seed) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidFixtures}, args...)...))
	}

	clubIDs := pie.Map(s.Clubs, func(c Club) string { return c.ID })
	if len(pie.Unique(clubIDs)) != len(clubIDs) {
		bad("duplicate club id")
	}
	var addresses []string
	for _, c := range s.Clubs {
		if c.ID == "" {
			bad("club without id")
			continue
		}
		for _, clock := range []string{c.QuietStart, c.QuietEnd} {
			if clock == "" {
				continue
			}
			if _, err := model.ParseClock(clock); err != nil {
				bad("club %s: %v", c.ID, err)
			}
		}
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			bad("club %s: %v", c.ID, err)
		}

		playerIDs := pie.Map(c.Players, func(p Player) string { return p.ID })
		if len(pie.Unique(playerIDs)) != len(playerIDs) {
			bad("club %s: duplicate player id", c.ID)
		}
		for _, p := range c.Players {
			switch {
			case p.ID == "":
				bad("club %s: player without id", c.ID)
			case p.Address == "":
				bad("player %s: missing address", p.ID)
			case p.Level <= 0:
				bad("player %s: missing level", p.ID)
			}
			switch p.Gender {
			case "", model.GenderMale, model.GenderFemale:
			default:
				bad("player %s: unknown gender %q", p.ID, p.Gender)
			}
			addresses = append(addresses, p.Address)
		}

		for _, g := range c.Groups {
			if g.ID == "" {
				bad("club %s: group without id", c.ID)
			}
			for _, m := range g.Members {
				if !pie.Contains(playerIDs, m) {
					bad("group %s: unknown member %s", g.ID, m)
				}
			}
		}
	}
	if len(pie.Unique(addresses)) != len(addresses) {
		bad("duplicate player address")
	}
	return errors.Join(errs...)
}

// Apply writes the seed into dir. Players that already exist keep their
// rating and behavioral history; only profile fields are refreshed.
func (s *Seed) Apply(ctx context.Context, dir repository.Directory, now time.Time) (Summary, error) {
	var sum Summary
	for _, c := range s.Clubs {
		if err := dir.SaveClub(ctx, c.model()); err != nil {
			return sum, fmt.Errorf("club %s: %w", c.ID, err)
		}
		sum.Clubs++

		for _, fp := range c.Players {
			p, err := dir.GetPlayer(ctx, fp.ID)
			switch {
			case errors.Is(err, repository.ErrNotFound):
				p = model.Player{
					ID:             fp.ID,
					Responsiveness: model.DefaultResponsiveness,
					Reputation:     model.DefaultReputation,
					CreatedAt:      now,
				}
				sum.Players++
			case err != nil:
				return sum, fmt.Errorf("player %s: %w", fp.ID, err)
			default:
				sum.Updated++
			}
			p.ClubID = c.ID
			p.Name = fp.Name
			p.Address = fp.Address
			p.Gender = fp.Gender
			p.DeclaredLevel = fp.Level
			p.Active = fp.Active == nil || *fp.Active
			if err := dir.SavePlayer(ctx, p); err != nil {
				return sum, fmt.Errorf("player %s: %w", fp.ID, err)
			}
		}

		for _, g := range c.Groups {
			err := dir.SaveGroup(ctx, model.Group{ID: g.ID, ClubID: c.ID, Name: g.Name, MemberIDs: g.Members})
			if err != nil {
				return sum, fmt.Errorf("group %s: %w", g.ID, err)
			}
			sum.Groups++
		}
	}
	logger.Get().Info(ctx, "fixtures applied",
		logger.Int("clubs", sum.Clubs),
		logger.Int("groups", sum.Groups),
		logger.Int("players_new", sum.Players),
		logger.Int("players_updated", sum.Updated))
	return sum, nil
}

func (c Club) model() model.Club {
	return model.Club{
		ID:               c.ID,
		Name:             c.Name,
		Timezone:         c.Timezone,
		BatchSize:        c.BatchSize,
		InviteTimeout:    c.InviteTimeout,
		QuietStart:       c.QuietStart,
		QuietEnd:         c.QuietEnd,
		OriginAddress:    c.OriginAddress,
		FeedbackDelay:    c.FeedbackDelay,
		ResultNudgeDelay: c.ResultNudgeDelay,
	}
}
