// Package scoring ranks candidate players for an open match.
package scoring

import (
	"math"
	"slices"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/okian/rally/internal/domain/model"
)

// Default weights in percent.
const (
	defaultCompatibilityWeight  = 40
	defaultResponsivenessWeight = 35
	defaultReputationWeight     = 25
	maxSubScore                 = 100
)

// compatibilityBuckets maps an upper bound on skill distance to a score.
// Distances beyond the last bound score zero.
var compatibilityBuckets = []struct {
	maxDiff float64
	score   int
}{
	{0.1, 100},
	{0.25, 90},
	{0.5, 60},
	{0.75, 30},
}

// bucketEpsilon absorbs float noise such as 3.6-3.5 = 0.10000000000000009.
const bucketEpsilon = 1e-9

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithWeights overrides the composite weights (percent, summing to 100).
func WithWeights(compatibility, responsiveness, reputation int) Option {
	return func(s *Scorer) {
		if compatibility+responsiveness+reputation == 100 &&
			compatibility >= 0 && responsiveness >= 0 && reputation >= 0 {
			s.wCompat = compatibility
			s.wResp = responsiveness
			s.wRep = reputation
		}
	}
}

// Criteria is everything about a match the scorer needs.
type Criteria struct {
	Target      float64
	Min         float64
	Max         float64
	Gender      model.GenderFilter
	SkipFilters bool
	// Excluded holds current participants and active invitation holders.
	Excluded map[string]struct{}
	Now      time.Time
}

// Candidate is a scored player.
type Candidate struct {
	Player    model.Player
	Score     int
	Breakdown model.ScoreBreakdown
}

// Scorer ranks players. It holds no state besides its weights.
type Scorer struct {
	wCompat int
	wResp   int
	wRep    int
}

// New creates a Scorer with configuration options.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		wCompat: defaultCompatibilityWeight,
		wResp:   defaultResponsivenessWeight,
		wRep:    defaultReputationWeight,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CriteriaFor derives scoring criteria from a match. fallbackLevel is used as
// the centre when the match has no level window; defaultWindow is the
// half-width applied around it.
func CriteriaFor(m model.Match, invites []model.Invitation, fallbackLevel, defaultWindow float64, now time.Time) Criteria {
	lo, hi := m.Window(fallbackLevel, defaultWindow)
	excluded := make(map[string]struct{}, model.MatchSeats+len(invites))
	for _, id := range m.Participants() {
		excluded[id] = struct{}{}
	}
	for _, inv := range invites {
		if inv.Status.Active() {
			excluded[inv.PlayerID] = struct{}{}
		}
	}
	return Criteria{
		Target:      (lo + hi) / 2,
		Min:         lo,
		Max:         hi,
		Gender:      m.Gender,
		SkipFilters: m.SkipFilters,
		Excluded:    excluded,
		Now:         now,
	}
}

// Eligible applies the pre-scoring filters.
func Eligible(pool []model.Player, c Criteria) []model.Player {
	return pie.Filter(pool, func(p model.Player) bool {
		if !p.Active {
			return false
		}
		if _, ok := c.Excluded[p.ID]; ok {
			return false
		}
		if p.Muted(c.Now) {
			return false
		}
		if c.SkipFilters {
			return true
		}
		lvl := p.Level()
		if lvl < c.Min-bucketEpsilon || lvl > c.Max+bucketEpsilon {
			return false
		}
		return c.Gender.Allows(p.Gender)
	})
}

// Rank filters the pool and orders it by composite score, highest first.
// Ties keep input order.
func (s *Scorer) Rank(pool []model.Player, c Criteria) []Candidate {
	eligible := Eligible(pool, c)
	out := make([]Candidate, 0, len(eligible))
	for _, p := range eligible {
		out = append(out, s.Score(p, c))
	}
	slices.SortStableFunc(out, func(a, b Candidate) int {
		return b.Score - a.Score
	})
	return out
}

// Score computes the composite and sub-scores for one player.
func (s *Scorer) Score(p model.Player, c Criteria) Candidate {
	b := model.ScoreBreakdown{
		Compatibility:  Compatibility(p.Level(), c.Target),
		Responsiveness: clamp(p.Responsiveness),
		Reputation:     clamp(p.Reputation),
	}
	if c.Gender != model.GenderAny && !c.Gender.Allows(p.Gender) {
		b.Compatibility = 0
	}
	composite := (s.wCompat*b.Compatibility + s.wResp*b.Responsiveness + s.wRep*b.Reputation) / 100
	return Candidate{Player: p, Score: composite, Breakdown: b}
}

// Compatibility scores the distance between a level and the target.
func Compatibility(level, target float64) int {
	diff := math.Abs(level - target)
	for _, b := range compatibilityBuckets {
		if diff <= b.maxDiff+bucketEpsilon {
			return b.score
		}
	}
	return 0
}

func clamp(v int) int {
	return max(0, min(maxSubScore, v))
}
