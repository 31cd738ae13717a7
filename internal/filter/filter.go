// Package filter runs peer candidates through the validity, geography,
// and latency stages and ranks the survivors.
package filter

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"peerscout/internal/endpoint"
	"peerscout/internal/probe"
)

// Prober measures peer reachability. *probe.Pinger implements it.
type Prober interface {
	Latency(ctx context.Context, host string, timeout time.Duration) (time.Duration, bool, error)
	TCPReachable(ctx context.Context, host string, port uint16) bool
}

// GeoResolver maps addresses to ISO country codes in one batched call.
// *geo.Client implements it.
type GeoResolver interface {
	Countries(ctx context.Context, addrs []string) (map[string]string, error)
}

// Options fix one pipeline's filtering criteria.
type Options struct {
	// TargetCountries are ISO 3166-1 alpha-2 codes; matching is
	// case-insensitive.
	TargetCountries []string
	// MaxLatencyMs is the ranking ceiling. It doubles as the ICMP probe
	// timeout, so a reply slower than the ceiling can never qualify.
	MaxLatencyMs float64
	// MaxPeers caps the ranked result of one pass. Zero means no cap.
	MaxPeers uint
	// ProbeParallelism bounds concurrent latency probes; values below 1
	// probe sequentially.
	ProbeParallelism int
}

// Result is one qualifying peer with its recorded latency.
type Result struct {
	Endpoint  endpoint.Endpoint
	LatencyMs float64
	Method    probe.Method
}

// Pipeline applies the three stages in order. A Pipeline is stateless
// across passes and safe for repeated use.
type Pipeline struct {
	prober    Prober
	geo       GeoResolver
	opts      Options
	countries map[string]struct{}
	log       *zap.Logger
}

// NewPipeline builds a pipeline over the given prober and resolver.
func NewPipeline(prober Prober, geo GeoResolver, log *zap.Logger, opts Options) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	countries := make(map[string]struct{}, len(opts.TargetCountries))
	for _, c := range opts.TargetCountries {
		countries[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	return &Pipeline{prober: prober, geo: geo, opts: opts, countries: countries, log: log}
}

// Filter parses raw candidates and pushes them through the stages,
// returning survivors ranked ascending by recorded latency and truncated
// to MaxPeers. Malformed candidates are dropped individually and never
// abort the batch.
func (p *Pipeline) Filter(ctx context.Context, raw []string) []Result {
	parsed := p.parse(raw)
	valid := p.validityStage(parsed)
	located := p.geographyStage(ctx, valid)
	return p.latencyStage(ctx, located)
}

// FilterPeers is Filter with survivors rendered back to canonical
// directory strings.
func (p *Pipeline) FilterPeers(ctx context.Context, raw []string) []string {
	results := p.Filter(ctx, raw)
	peers := make([]string, len(results))
	for i, r := range results {
		peers[i] = r.Endpoint.String()
	}
	return peers
}

func (p *Pipeline) parse(raw []string) []endpoint.Endpoint {
	out := make([]endpoint.Endpoint, 0, len(raw))
	for _, s := range raw {
		e, err := endpoint.Parse(s)
		if err != nil {
			p.log.Debug("dropping malformed candidate", zap.String("candidate", s), zap.Error(err))
			continue
		}
		out = append(out, e)
	}
	return out
}

// loopbackHosts are the self-referential forms the validity stage rejects.
// Matching is exact: addresses that merely contain a loopback form, such
// as 10.127.0.0.1 lookalikes or 2::1, must pass.
var loopbackHosts = map[string]struct{}{
	"127.0.0.1": {},
	"localhost": {},
	"::1":       {},
}

func (p *Pipeline) validityStage(in []endpoint.Endpoint) []endpoint.Endpoint {
	out := make([]endpoint.Endpoint, 0, len(in))
	for _, e := range in {
		if _, bad := loopbackHosts[e.Host]; bad {
			p.log.Debug("dropping loopback endpoint", zap.String("peer", e.String()))
			continue
		}
		out = append(out, e)
	}
	if removed := len(in) - len(out); removed > 0 {
		p.log.Info("validity stage removed loopback endpoints", zap.Int("removed", removed))
	}
	return out
}

// geographyStage keeps endpoints located in a target country. All hosts
// of a pass are resolved in one batched call; if that call fails, the
// whole pass is dropped rather than passed through unverified.
func (p *Pipeline) geographyStage(ctx context.Context, in []endpoint.Endpoint) []endpoint.Endpoint {
	if len(in) == 0 {
		return nil
	}
	addrs := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, e := range in {
		if _, dup := seen[e.Host]; dup {
			continue
		}
		seen[e.Host] = struct{}{}
		addrs = append(addrs, e.Host)
	}

	countries, err := p.geo.Countries(ctx, addrs)
	if err != nil {
		p.log.Warn("geolocation failed, dropping all candidates this pass", zap.Error(err))
		return nil
	}

	out := make([]endpoint.Endpoint, 0, len(in))
	for _, e := range in {
		country, located := countries[e.Host]
		if !located {
			p.log.Debug("no geolocation for peer", zap.String("peer", e.String()))
			continue
		}
		if _, want := p.countries[strings.ToUpper(country)]; !want {
			p.log.Debug("peer outside target countries",
				zap.String("peer", e.String()), zap.String("country", country))
			continue
		}
		out = append(out, e)
	}
	p.log.Info("geography stage", zap.Int("in", len(in)), zap.Int("kept", len(out)))
	return out
}

type probeOutcome struct {
	keep      bool
	latencyMs float64
	method    probe.Method
}

// latencyStage probes every endpoint, keeps those at or under the
// ceiling, and ranks them ascending by recorded latency. Outcomes are
// collected per input slot, so the ranking is independent of probe
// completion order.
func (p *Pipeline) latencyStage(ctx context.Context, in []endpoint.Endpoint) []Result {
	if len(in) == 0 {
		return nil
	}
	timeout := time.Duration(p.opts.MaxLatencyMs * float64(time.Millisecond))
	outcomes := make([]probeOutcome, len(in))

	g, gctx := errgroup.WithContext(ctx)
	limit := p.opts.ProbeParallelism
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, e := range in {
		i, e := i, e
		g.Go(func() error {
			outcomes[i] = p.probeOne(gctx, e, timeout)
			return nil
		})
	}
	_ = g.Wait() // probeOne never returns an error

	results := make([]Result, 0, len(in))
	for i, o := range outcomes {
		if !o.keep {
			continue
		}
		results = append(results, Result{Endpoint: in[i], LatencyMs: o.latencyMs, Method: o.method})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].LatencyMs < results[j].LatencyMs
	})
	if p.opts.MaxPeers > 0 && uint(len(results)) > p.opts.MaxPeers {
		results = results[:p.opts.MaxPeers]
	}
	p.log.Info("latency stage", zap.Int("in", len(in)), zap.Int("kept", len(results)))
	return results
}

func (p *Pipeline) probeOne(ctx context.Context, e endpoint.Endpoint, timeout time.Duration) probeOutcome {
	rtt, ok, err := p.prober.Latency(ctx, e.Host, timeout)
	switch {
	case err != nil:
		p.log.Debug("dropping peer: probe error", zap.String("peer", e.String()), zap.Error(err))
		return probeOutcome{}
	case ok:
		ms := float64(rtt) / float64(time.Millisecond)
		if ms > p.opts.MaxLatencyMs {
			p.log.Debug("dropping peer: over latency ceiling",
				zap.String("peer", e.String()), zap.Float64("latency_ms", ms))
			return probeOutcome{}
		}
		return probeOutcome{keep: true, latencyMs: ms, method: probe.MethodICMP}
	default:
		if p.prober.TCPReachable(ctx, e.Host, e.Port) {
			// No RTT comes out of the fallback; record exactly the
			// ceiling so any real sub-ceiling measurement ranks first.
			return probeOutcome{keep: true, latencyMs: p.opts.MaxLatencyMs, method: probe.MethodTCPFallback}
		}
		p.log.Debug("dropping peer: no icmp reply and port closed", zap.String("peer", e.String()))
		return probeOutcome{}
	}
}
