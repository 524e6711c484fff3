package rating

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/okian/rally/internal/adapters/repository"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

// Engine applies match outcomes to player ratings. Reporting the same match
// again replaces the earlier outcome instead of stacking on top of it.
type Engine struct {
	ledger repository.RatingLedger
	params Params
	now    func() time.Time
	log    logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithParams overrides the rating parameters.
func WithParams(p Params) Option {
	return func(e *Engine) { e.params = p }
}

// WithClock injects the time source used for history rows.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine builds an Engine on top of ledger.
func NewEngine(ledger repository.RatingLedger, opts ...Option) *Engine {
	e := &Engine{
		ledger: ledger,
		params: DefaultParams(),
		now:    time.Now,
		log:    logger.Get().Named("rating"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Params returns the parameters in use.
func (e *Engine) Params() Params { return e.params }

// Update rates a completed doubles match. Any history previously written for
// matchID is reversed first, all inside one transaction.
func (e *Engine) Update(ctx context.Context, matchID string, team1, team2 [2]string, w model.Winner) ([]Change, error) {
	if !w.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWinner, w)
	}
	if err := validateTeams(team1, team2); err != nil {
		return nil, err
	}

	var (
		changes   []Change
		corrected bool
	)
	err := e.ledger.WithRatingTx(ctx, func(tx repository.RatingTx) error {
		if err := tx.LockMatch(ctx, matchID); err != nil {
			return err
		}
		prior, err := tx.HistoryForMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if err := lockPlayers(ctx, tx, team1, team2, prior); err != nil {
			return err
		}
		if len(prior) > 0 {
			corrected = true
			if err := reverse(ctx, tx, matchID, prior); err != nil {
				return err
			}
		}

		var p1, p2 [2]model.Player
		for i := range team1 {
			if p1[i], err = loadPlayer(ctx, tx, team1[i]); err != nil {
				return err
			}
			if p2[i], err = loadPlayer(ctx, tx, team2[i]); err != nil {
				return err
			}
		}

		changes = e.params.Compute(p1, p2, w)
		at := e.now()
		byID := map[string]model.Player{p1[0].ID: p1[0], p1[1].ID: p1[1], p2[0].ID: p2[0], p2[1].ID: p2[1]}
		for _, c := range changes {
			pl := byID[c.PlayerID]
			pl.Rating = c.New
			pl.AdjustedLevel = c.NewLevel
			pl.RatingConfidence++
			pl.MatchesPlayed++
			if err := tx.SaveRating(ctx, pl); err != nil {
				return err
			}
			if err := tx.InsertHistory(ctx, model.RatingHistory{
				MatchID:          matchID,
				PlayerID:         c.PlayerID,
				OldRating:        c.Old,
				NewRating:        c.New,
				OldAdjustedLevel: c.OldLevel,
				NewAdjustedLevel: c.NewLevel,
				CreatedAt:        at,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		e.log.Error(ctx, "rating update failed", logger.String("match_id", matchID), logger.Error(err))
		return nil, err
	}

	kind := "new"
	if corrected {
		kind = "correction"
	}
	metrics.RecordRatingUpdate(kind)
	e.log.Info(ctx, "ratings updated",
		logger.String("match_id", matchID),
		logger.String("winner", w.String()),
		logger.Bool("correction", corrected))
	return changes, nil
}

// reverse restores every player touched by prior to the values it had before
// the match and removes the history rows.
func reverse(ctx context.Context, tx repository.RatingTx, matchID string, prior []model.RatingHistory) error {
	for _, h := range prior {
		pl, err := loadPlayer(ctx, tx, h.PlayerID)
		if err != nil {
			return err
		}
		pl.Rating = h.OldRating
		pl.AdjustedLevel = h.OldAdjustedLevel
		pl.RatingConfidence = max(0, pl.RatingConfidence-1)
		pl.MatchesPlayed = max(0, pl.MatchesPlayed-1)
		if err := tx.SaveRating(ctx, pl); err != nil {
			return err
		}
	}
	return tx.DeleteHistoryForMatch(ctx, matchID)
}

// lockPlayers reads every player the update touches in id order, so two
// updates sharing players take their row locks in the same sequence.
func lockPlayers(ctx context.Context, tx repository.RatingTx, team1, team2 [2]string, prior []model.RatingHistory) error {
	ids := append(team1[:], team2[:]...)
	ids = append(ids, pie.Map(prior, func(h model.RatingHistory) string { return h.PlayerID })...)
	for _, id := range pie.Sort(pie.Unique(ids)) {
		if _, err := loadPlayer(ctx, tx, id); err != nil {
			return err
		}
	}
	return nil
}

func loadPlayer(ctx context.Context, tx repository.RatingTx, id string) (model.Player, error) {
	pl, err := tx.GetPlayer(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Player{}, fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	return pl, err
}

func validateTeams(team1, team2 [2]string) error {
	seen := make(map[string]struct{}, model.MatchSeats)
	for _, id := range append(team1[:], team2[:]...) {
		if id == "" {
			return fmt.Errorf("%w: empty seat", ErrMalformedTeams)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s appears twice", ErrMalformedTeams, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
