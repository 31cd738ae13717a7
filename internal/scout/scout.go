// Package scout drives the bounded-retry peer acquisition loop: fetch
// candidates from a directory, filter them, and accumulate unique
// qualifying peers until enough are found or attempts run out.
package scout

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"peerscout/internal/filter"
)

// Status is the state of an acquisition run.
type Status string

const (
	// StatusRunning is the in-flight state between attempts.
	StatusRunning Status = "running"
	// StatusSatisfied means the desired peer count was reached.
	StatusSatisfied Status = "satisfied"
	// StatusExhausted means all attempts were used with a partial
	// (possibly empty) result.
	StatusExhausted Status = "exhausted"
)

// Config fixes the criteria for one run. It does not change while the
// run is in flight.
type Config struct {
	Network         string
	TargetCountries []string
	MaxLatencyMs    float64
	DesiredCount    uint
	MaxAttempts     uint
}

// Validate rejects configs the loop cannot run with.
func (c Config) Validate() error {
	if c.Network == "" {
		return errors.New("network is required")
	}
	if c.DesiredCount == 0 {
		return errors.New("desired peer count must be positive")
	}
	if c.MaxAttempts == 0 {
		return errors.New("max attempts must be at least 1")
	}
	if c.MaxLatencyMs <= 0 {
		return errors.New("max latency must be positive")
	}
	if len(c.TargetCountries) == 0 {
		return errors.New("at least one target country is required")
	}
	return nil
}

// PeerSource supplies raw candidate endpoints for a network.
// *directory.Client implements it.
type PeerSource interface {
	LivePeers(ctx context.Context, network string) ([]string, error)
}

// Pipeline filters one batch of raw candidates into ranked survivors.
// *filter.Pipeline implements it.
type Pipeline interface {
	Filter(ctx context.Context, raw []string) []filter.Result
}

// Result is the outcome of one acquisition run.
type Result struct {
	// Peers is the ranked qualifying set, ascending by recorded latency,
	// at most DesiredCount entries.
	Peers    []filter.Result
	Status   Status
	Attempts uint
}

// Strings renders the ranked peers in canonical directory form.
func (r Result) Strings() []string {
	out := make([]string, len(r.Peers))
	for i, p := range r.Peers {
		out[i] = p.Endpoint.String()
	}
	return out
}

// Scout runs acquisition against one network with fixed criteria.
type Scout struct {
	cfg      Config
	source   PeerSource
	pipeline Pipeline
	log      *zap.Logger
}

// New builds a Scout. The config must already be validated.
func New(cfg Config, source PeerSource, pipeline Pipeline, log *zap.Logger) *Scout {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scout{
		cfg:      cfg,
		source:   source,
		pipeline: pipeline,
		log: log.With(
			zap.String("run_id", uuid.NewString()),
			zap.String("network", cfg.Network)),
	}
}

// Run performs up to MaxAttempts fetch-and-filter rounds, accumulating
// unique qualifying peers until DesiredCount is reached. Running out of
// attempts is not an error: the partial result comes back with
// StatusExhausted and the caller decides what that means. The context
// bounds the whole run; a cancelled run returns the peers gathered so
// far together with the context's error.
func (s *Scout) Run(ctx context.Context) (Result, error) {
	s.log.Info("starting peer acquisition",
		zap.Uint("desired_count", s.cfg.DesiredCount),
		zap.Uint("max_attempts", s.cfg.MaxAttempts),
		zap.Float64("max_latency_ms", s.cfg.MaxLatencyMs),
		zap.Strings("target_countries", s.cfg.TargetCountries))

	qualified := make([]filter.Result, 0, s.cfg.DesiredCount)
	index := make(map[string]int)
	status := StatusRunning
	var attempts uint

	for attempts < s.cfg.MaxAttempts && status == StatusRunning {
		if err := ctx.Err(); err != nil {
			return s.finish(qualified, StatusExhausted, attempts), err
		}
		attempts++

		candidates, err := s.source.LivePeers(ctx, s.cfg.Network)
		if err != nil {
			// a failed fetch burns the attempt with zero candidates
			s.log.Warn("candidate fetch failed",
				zap.Uint("attempt", attempts), zap.Error(err))
			candidates = nil
		}

		for _, r := range s.pipeline.Filter(ctx, candidates) {
			key := r.Endpoint.String()
			if at, dup := index[key]; dup {
				qualified[at] = r // re-confirmed: newest measurement wins
				continue
			}
			index[key] = len(qualified)
			qualified = append(qualified, r)
		}

		if uint(len(qualified)) >= s.cfg.DesiredCount {
			status = StatusSatisfied
			break
		}
		s.log.Info("still short of desired count",
			zap.Uint("attempt", attempts),
			zap.Int("qualified", len(qualified)),
			zap.Uint("desired_count", s.cfg.DesiredCount))
	}

	if status != StatusSatisfied {
		status = StatusExhausted
	}
	return s.finish(qualified, status, attempts), nil
}

// finish ranks the accumulated peers, trims to the desired count, and
// logs a latency summary of what the run produced.
func (s *Scout) finish(qualified []filter.Result, status Status, attempts uint) Result {
	sort.SliceStable(qualified, func(i, j int) bool {
		return qualified[i].LatencyMs < qualified[j].LatencyMs
	})
	if uint(len(qualified)) > s.cfg.DesiredCount {
		qualified = qualified[:s.cfg.DesiredCount]
	}

	fields := []zap.Field{
		zap.String("status", string(status)),
		zap.Uint("attempts", attempts),
		zap.Int("peers", len(qualified)),
	}
	if sum := Summarize(qualified); sum.Count > 0 {
		fields = append(fields,
			zap.Float64("min_latency_ms", sum.MinMs),
			zap.Float64("avg_latency_ms", sum.AvgMs),
			zap.Float64("p95_latency_ms", sum.P95Ms))
	}
	s.log.Info("peer acquisition finished", fields...)

	return Result{Peers: qualified, Status: status, Attempts: attempts}
}
