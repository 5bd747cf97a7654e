// Package ranking computes the derived post scores from the
// authoritative counters. Everything here is a pure function of its
// inputs, so recomputation is idempotent and safe to repeat or skip.
package ranking

import (
	"math"

	"github.com/d60-Lab/vote-rewards/config"
)

// Counters is the authoritative input snapshot for one post.
type Counters struct {
	Votes    int64
	Views    int64
	Shares   int64
	Comments int64
}

// Scores are the derived ranking values, rounded to fixed precision so
// repeated recomputation compares and caches stably.
type Scores struct {
	Engagement float64
	Trending   float64
	Hot        float64
}

type Calculator struct {
	cfg config.RankingConfig
}

func NewCalculator(cfg config.RankingConfig) *Calculator {
	return &Calculator{cfg: cfg}
}

// Compute derives all three scores for a post of the given age.
func (c *Calculator) Compute(counters Counters, ageHours float64) Scores {
	return Scores{
		Engagement: round(c.Engagement(counters), 2),
		Trending:   round(c.Trending(counters.Votes, ageHours), 4),
		Hot:        round(c.Hot(counters.Votes, counters.Views), 4),
	}
}

// Engagement is the weighted counter sum.
func (c *Calculator) Engagement(counters Counters) float64 {
	return float64(counters.Votes)*c.cfg.VoteWeight +
		float64(counters.Views)*c.cfg.ViewWeight +
		float64(counters.Shares)*c.cfg.ShareWeight +
		float64(counters.Comments)*c.cfg.CommentWeight
}

// Trending applies gravity decay: (votes-1) / (ageHours+2)^gravity.
// A zero-vote post yields a negative value so it ranks below any post
// with a single vote.
func (c *Calculator) Trending(votes int64, ageHours float64) float64 {
	if ageHours < 0 {
		ageHours = 0
	}
	return float64(votes-1) / math.Pow(ageHours+2, c.cfg.Gravity)
}

// Hot is the Wilson score lower bound over n = votes + views*viewWeight
// positive trials, p̂ = votes/n. The lower bound keeps a post with 2/2
// votes from outranking one with 95/100.
func (c *Calculator) Hot(votes, views int64) float64 {
	n := float64(votes) + float64(views)*c.cfg.ViewWeight
	if n <= 0 {
		return 0
	}
	p := float64(votes) / n
	z := c.cfg.WilsonZ
	z2 := z * z
	denom := 1 + z2/n
	center := p + z2/(2*n)
	spread := z * math.Sqrt((p*(1-p)+z2/(4*n))/n)
	lower := (center - spread) / denom
	if lower < 0 {
		return 0
	}
	return lower
}

func round(v float64, decimals int) float64 {
	shift := math.Pow(10, float64(decimals))
	return math.Round(v*shift) / shift
}
