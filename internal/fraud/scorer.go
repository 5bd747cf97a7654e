// Package fraud scores vote attempts with seven independent abuse
// signals and blends them into one composite in [0,1]. Signal lookups
// fail open: an unreachable counter store must never block a
// legitimate vote, so any lookup error contributes 0 and a log line.
package fraud

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/vote-rewards/config"
	"github.com/d60-Lab/vote-rewards/internal/counter"
	"github.com/d60-Lab/vote-rewards/internal/repository"
)

const (
	ipWindowTTL     = 48 * time.Hour
	deviceWindowTTL = 30 * 24 * time.Hour
	burstWindow     = 60 * time.Second
	recipWindow     = 24 * time.Hour
	newAccountAge   = 24 * time.Hour
	behavioralMax   = 10
)

// Attempt is one vote attempt to score. AccountCreatedAt is passed in
// so the scorer never re-reads the user the intake already loaded.
type Attempt struct {
	VoterID          string
	PostID           string
	PostAuthorID     string
	DeviceID         string
	IPHash           string
	AccountCreatedAt time.Time
}

type Scorer struct {
	cfg      config.FraudConfig
	counters counter.Store
	votes    repository.VoteRepository
	users    repository.UserRepository
	log      *zap.Logger
}

func NewScorer(cfg config.FraudConfig, counters counter.Store, votes repository.VoteRepository, users repository.UserRepository, log *zap.Logger) *Scorer {
	return &Scorer{cfg: cfg, counters: counters, votes: votes, users: users, log: log}
}

// Score computes the weighted composite for an attempt. Side effect:
// a composite above the flag threshold costs the voter a fixed trust
// penalty (floored at 0 by the repository).
func (s *Scorer) Score(ctx context.Context, a Attempt) float64 {
	composite := s.signal(ctx, "velocity", s.velocity, a)*s.cfg.VelocityWeight +
		s.signal(ctx, "ip_cluster", s.ipCluster, a)*s.cfg.IPClusterWeight +
		s.signal(ctx, "device_cluster", s.deviceCluster, a)*s.cfg.DeviceWeight +
		s.signal(ctx, "reciprocal", s.reciprocal, a)*s.cfg.ReciprocalWeight +
		s.signal(ctx, "burst", s.burst, a)*s.cfg.BurstWeight +
		s.accountAge(a)*s.cfg.AccountAgeWeight +
		s.signal(ctx, "behavioral", s.behavioral, a)*s.cfg.BehavioralWeight

	composite = clamp01(composite)

	if composite > s.cfg.FlagThreshold {
		if err := s.users.AdjustTrustScore(ctx, a.VoterID, -s.cfg.TrustPenalty); err != nil {
			s.log.Warn("trust penalty not applied", zap.String("voter", a.VoterID), zap.Error(err))
		}
	}
	return composite
}

// RecordVote feeds the velocity, clustering and burst windows after an
// accepted vote. Errors are logged and swallowed for the same fail-open
// reason as the lookups.
func (s *Scorer) RecordVote(ctx context.Context, a Attempt, now time.Time) {
	if _, err := s.counters.Incr(ctx, minuteKey(a.VoterID), time.Minute); err != nil {
		s.log.Warn("velocity minute counter", zap.Error(err))
	}
	if _, err := s.counters.Incr(ctx, hourKey(a.VoterID), time.Hour); err != nil {
		s.log.Warn("velocity hour counter", zap.Error(err))
	}
	if a.IPHash != "" {
		if err := s.counters.AddToSet(ctx, ipKey(a.IPHash, now), a.VoterID, ipWindowTTL); err != nil {
			s.log.Warn("ip cluster set", zap.Error(err))
		}
	}
	if a.DeviceID != "" {
		if err := s.counters.AddToSet(ctx, deviceKey(a.DeviceID), a.VoterID, deviceWindowTTL); err != nil {
			s.log.Warn("device cluster set", zap.Error(err))
		}
	}
	if _, err := s.counters.Incr(ctx, burstKey(a.PostID), burstWindow); err != nil {
		s.log.Warn("burst counter", zap.Error(err))
	}
}

type signalFn func(ctx context.Context, a Attempt) (float64, error)

func (s *Scorer) signal(ctx context.Context, name string, fn signalFn, a Attempt) float64 {
	v, err := fn(ctx, a)
	if err != nil {
		s.log.Warn("fraud signal failed open", zap.String("signal", name), zap.Error(err))
		return 0
	}
	return clamp01(v)
}

// velocity is the worse of the per-minute and per-hour rates relative
// to their limits.
func (s *Scorer) velocity(ctx context.Context, a Attempt) (float64, error) {
	perMin, err := s.counters.Get(ctx, minuteKey(a.VoterID))
	if err != nil {
		return 0, err
	}
	perHour, err := s.counters.Get(ctx, hourKey(a.VoterID))
	if err != nil {
		return 0, err
	}
	return math.Max(
		float64(perMin)/float64(s.cfg.MinuteVoteLimit),
		float64(perHour)/float64(s.cfg.HourVoteLimit),
	), nil
}

// ipCluster stages on how many distinct voters shared this IP today.
func (s *Scorer) ipCluster(ctx context.Context, a Attempt) (float64, error) {
	if a.IPHash == "" {
		return 0, nil
	}
	n, err := s.counters.SetCard(ctx, ipKey(a.IPHash, time.Now()))
	if err != nil {
		return 0, err
	}
	return staged(n, int64(s.cfg.IPClusterSoftLimit), int64(s.cfg.IPClusterHardLimit)), nil
}

// deviceCluster stages on distinct voters sharing the device over the
// 30-day window.
func (s *Scorer) deviceCluster(ctx context.Context, a Attempt) (float64, error) {
	if a.DeviceID == "" {
		return 0, nil
	}
	n, err := s.counters.SetCard(ctx, deviceKey(a.DeviceID))
	if err != nil {
		return 0, err
	}
	return staged(n, int64(s.cfg.DeviceSoftLimit), int64(s.cfg.DeviceHardLimit)), nil
}

// reciprocal counts the post author's votes back onto the voter's own
// posts within 24h: 0, 0.3, 0.6 then 0.9.
func (s *Scorer) reciprocal(ctx context.Context, a Attempt) (float64, error) {
	n, err := s.votes.CountReciprocal(ctx, a.PostAuthorID, a.VoterID, time.Now().Add(-recipWindow))
	if err != nil {
		return 0, err
	}
	switch {
	case n <= 0:
		return 0, nil
	case n == 1:
		return 0.3, nil
	case n == 2:
		return 0.6, nil
	default:
		return 0.9, nil
	}
}

// burst looks at votes landing on this single post in the last 60s.
func (s *Scorer) burst(ctx context.Context, a Attempt) (float64, error) {
	n, err := s.counters.Get(ctx, burstKey(a.PostID))
	if err != nil {
		return 0, err
	}
	soft, hard := int64(s.cfg.BurstSoftLimit), int64(s.cfg.BurstHardLimit)
	if n <= soft {
		return 0, nil
	}
	return 0.3 + 0.7*float64(n-soft)/float64(hard-soft), nil
}

// accountAge decays linearly over the first 24h: a brand-new account
// scores 0.8, a day-old one 0.
func (s *Scorer) accountAge(a Attempt) float64 {
	age := time.Since(a.AccountCreatedAt)
	if age >= newAccountAge {
		return 0
	}
	if age < 0 {
		age = 0
	}
	return 0.8 * (1 - age.Seconds()/newAccountAge.Seconds())
}

// behavioral flags metronome voting: the coefficient of variation of
// the last inter-vote intervals. Very regular and fast is a bot tell.
// Fewer than 3 intervals is not enough evidence.
func (s *Scorer) behavioral(ctx context.Context, a Attempt) (float64, error) {
	times, err := s.votes.RecentVoteTimes(ctx, a.VoterID, behavioralMax+1)
	if err != nil {
		return 0, err
	}
	if len(times) < 4 {
		return 0, nil
	}
	// times are newest first; intervals between consecutive votes.
	intervals := make([]float64, 0, len(times)-1)
	for i := 0; i < len(times)-1; i++ {
		intervals = append(intervals, times[i].Sub(times[i+1]).Seconds())
	}
	if len(intervals) < 3 {
		return 0, nil
	}

	var sum float64
	for _, iv := range intervals {
		sum += iv
	}
	mean := sum / float64(len(intervals))
	if mean <= 0 {
		return 0.9, nil
	}
	var sq float64
	for _, iv := range intervals {
		sq += (iv - mean) * (iv - mean)
	}
	cv := math.Sqrt(sq/float64(len(intervals))) / mean

	if cv < 0.1 && mean < 5 {
		return 0.9, nil
	}
	return 0, nil
}

// staged maps a distinct-user count to a score: 0 or 1 user is normal,
// up to soft users scores 0.3, beyond that it scales toward 1 at hard.
func staged(n, soft, hard int64) float64 {
	switch {
	case n <= 1:
		return 0
	case n <= soft:
		return 0.3
	default:
		return clamp01(float64(n) / float64(hard))
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minuteKey(voterID string) string { return fmt.Sprintf("fraud:vel:min:%s", voterID) }
func hourKey(voterID string) string   { return fmt.Sprintf("fraud:vel:hr:%s", voterID) }
func burstKey(postID string) string   { return fmt.Sprintf("fraud:burst:%s", postID) }
func deviceKey(deviceID string) string {
	return fmt.Sprintf("fraud:dev:%s", deviceID)
}
func ipKey(ipHash string, now time.Time) string {
	return fmt.Sprintf("fraud:ip:%s:%s", ipHash, now.UTC().Format("2006-01-02"))
}
