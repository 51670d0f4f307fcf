package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"flowattr-lab/internal/attribution"
	"flowattr-lab/internal/config"
	"flowattr-lab/internal/domain/models"
	"flowattr-lab/internal/metrics"
	"flowattr-lab/pkg/logger"
)

// SessionTrace holds the chains reconstructed for one session
type SessionTrace struct {
	Session models.Session           `json:"session"`
	Chains  [][]attribution.FlowPart `json:"chains"`
}

// ActorTrace holds every chain attributed to one actor over a timeframe
type ActorTrace struct {
	Actor      models.Actor        `json:"actor"`
	Timeframe  models.Timeframe    `json:"timeframe"`
	Sessions   []SessionTrace      `json:"sessions"`
	Summary    models.SummaryGraph `json:"summary"`
	ChainCount int                 `json:"chain_count"`
}

// FlowTracer reconstructs the multi-hop flows an actor opened through the
// root host during each of its VPN sessions
type FlowTracer struct {
	config    config.AttributionConfig
	records   FlowRecordStore
	conntrack ConntrackStore
	actors    ActorStore
	sessions  *SessionBuilder
	filter    *RecordFilter
	exclude   func(string) bool
	metrics   *metrics.Registry
	logger    *logger.Logger

	cache     RunCache
	publisher EventPublisher
}

// NewFlowTracer creates a new FlowTracer
func NewFlowTracer(
	cfg config.AttributionConfig,
	records FlowRecordStore,
	conntrack ConntrackStore,
	actors ActorStore,
	sessions *SessionBuilder,
	filter *RecordFilter,
	reg *metrics.Registry,
	log *logger.Logger,
) *FlowTracer {
	return &FlowTracer{
		config:    cfg,
		records:   records,
		conntrack: conntrack,
		actors:    actors,
		sessions:  sessions,
		filter:    filter,
		exclude:   attribution.ParseExclusions(cfg.ExcludePrefixes),
		metrics:   reg,
		logger:    log.WithComponent("tracer"),
	}
}

// SetRunCache sets the cache for finished traces
func (t *FlowTracer) SetRunCache(cache RunCache) {
	t.cache = cache
}

// SetEventPublisher sets the publisher notified for every chain
func (t *FlowTracer) SetEventPublisher(publisher EventPublisher) {
	t.publisher = publisher
}

func traceKey(actor string, tf models.Timeframe) string {
	return fmt.Sprintf("%s:%d:%d", actor, tf.Start.Unix(), tf.End.Unix())
}

// TraceActor reconstructs the chains of every session of the named actor
// lying inside timeframe
func (t *FlowTracer) TraceActor(ctx context.Context, name string, timeframe models.Timeframe) (*ActorTrace, error) {
	key := traceKey(name, timeframe)
	if t.cache != nil {
		var cached ActorTrace
		found, err := t.cache.GetTrace(ctx, key, &cached)
		if err != nil {
			t.logger.Warn().Err(err).Str("key", key).Msg("failed to read cached trace")
		} else if found {
			return &cached, nil
		}
	}

	start := time.Now()
	trace, err := t.trace(ctx, name, timeframe)
	chains := 0
	if trace != nil {
		chains = trace.ChainCount
	}
	t.metrics.RecordTrace(err != nil, time.Since(start), chains)
	if err != nil {
		return nil, err
	}

	if t.cache != nil {
		if err := t.cache.SetTrace(ctx, key, trace); err != nil {
			t.logger.Warn().Err(err).Str("key", key).Msg("failed to cache trace")
		}
	}
	return trace, nil
}

func (t *FlowTracer) trace(ctx context.Context, name string, timeframe models.Timeframe) (*ActorTrace, error) {
	actor, err := t.actors.GetActor(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get actor: %w", err)
	}
	if actor == nil {
		return nil, fmt.Errorf("%w: %s", ErrActorNotFound, name)
	}
	log := t.logger.WithActor(actor.Name)

	sessions, err := t.sessions.Sessions(ctx, actor, timeframe)
	if err != nil {
		return nil, err
	}
	if err := t.sessions.WithCoactors(ctx, actor, sessions); err != nil {
		return nil, err
	}

	trace := &ActorTrace{
		Actor:     *actor,
		Timeframe: timeframe,
		Sessions:  make([]SessionTrace, 0, len(sessions)),
	}
	var all [][]attribution.FlowPart
	for i, session := range sessions {
		log.Debug().Int("session", i+1).Int("of", len(sessions)).Stringer("timeframe", session.Timeframe).Msg("tracing session")

		chains, err := t.TraceSession(ctx, actor, session.Timeframe)
		if err != nil {
			return nil, err
		}
		trace.Sessions = append(trace.Sessions, SessionTrace{Session: session, Chains: chains})
		all = append(all, chains...)

		if t.publisher != nil {
			for _, chain := range chains {
				if err := t.publisher.PublishChainReconstructed(ctx, actor.Name, session.Timeframe, chain); err != nil {
					log.Warn().Err(err).Msg("failed to publish chain")
				}
			}
		}
	}

	trace.ChainCount = len(all)
	trace.Summary = BuildSummary(actor.VPNIP, all, t.config.ServicePorts)

	log.Info().
		Int("sessions", len(sessions)).
		Int("chains", trace.ChainCount).
		Msg("actor traced")
	return trace, nil
}

// TraceSession reconstructs the chains the actor opened during one session.
// Every pivot tracked at the gateway and every hop candidate is used by at
// most one chain.
func (t *FlowTracer) TraceSession(ctx context.Context, actor *models.Actor, session models.Timeframe) ([][]attribution.FlowPart, error) {
	log := t.logger.WithActor(actor.Name)
	root := t.config.RootHost

	records, err := t.records.RecordsInWindow(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to read session records: %w", err)
	}
	kept, _ := t.filter.Apply(records)
	g, _ := attribution.BuildGraph(kept, attribution.BuildOptions{})
	if !g.HasHost(root) {
		log.Debug().Str("root", root).Msg("root host absent from session graph")
		return nil, nil
	}

	gateway := t.config.VPNHostname
	if gateway == "" {
		gateway = actor.GatewayHostname()
	}

	targets, err := t.conntrack.TargetHosts(ctx, gateway, actor.VPNIP, root, session)
	if err != nil {
		return nil, fmt.Errorf("failed to get target hosts: %w", err)
	}

	var (
		chains [][]attribution.FlowPart
		pivots []attribution.FlowPart
		loaded bool
	)
	for i, target := range targets {
		paths := attribution.FindAllPaths(g, root, target, attribution.PathOptions{
			Exclude:   t.exclude,
			MaxLength: t.config.MaxPathLength,
			MaxPaths:  t.config.MaxPaths,
		})
		log.Debug().Int("target", i+1).Int("of", len(targets)).Str("host", target).Int("paths", len(paths)).Msg("checking target")
		if len(paths) == 0 {
			log.Warn().Str("root", root).Str("target", target).Msg("no network paths to target")
			continue
		}

		for _, path := range paths {
			if len(path) < 2 {
				continue
			}
			hops, reason, err := t.hopCandidates(ctx, path, session)
			if err != nil {
				return nil, err
			}
			if reason != "" {
				log.Debug().Strs("path", path).Str("reason", reason).Msg("skipping path")
				t.metrics.RecordPathSkipped(reason)
				continue
			}

			if !loaded {
				pivots, err = t.loadPivots(ctx, gateway, actor, session)
				if err != nil {
					return nil, err
				}
				loaded = true
				log.Debug().Int("pivots", len(pivots)).Msg("pivots loaded")
			}

			for p := 0; p < len(pivots); {
				chain, picked := attribution.ReconstructChain(pivots[p], hops)
				if chain == nil || len(chain) != len(path) {
					p++
					continue
				}
				chains = append(chains, chain)
				pivots = slices.Delete(pivots, p, p+1)
				for h, idx := range picked {
					hops[h] = slices.Delete(hops[h], idx, idx+1)
				}
			}
		}
	}

	return chains, nil
}

// hopCandidates loads the flow parts between each consecutive pair of path
// hosts. A non-empty reason means the path cannot yield a chain.
func (t *FlowTracer) hopCandidates(ctx context.Context, path []string, session models.Timeframe) ([][]attribution.FlowPart, string, error) {
	hops := make([][]attribution.FlowPart, 0, len(path)-1)
	for i := 0; i+1 < len(path); i++ {
		records, err := t.records.RecordsBetween(ctx, path[i], path[i+1], session)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read records %s -> %s: %w", path[i], path[i+1], err)
		}
		kept, _ := t.filter.Apply(records)

		parts := make([]attribution.FlowPart, 0, len(kept))
		for j := range kept {
			if err := models.ValidateFlowRecord(&kept[j]); err != nil {
				continue
			}
			parts = append(parts, partFromRecord(&kept[j]))
		}
		if len(parts) == 0 {
			return nil, "no_candidates", nil
		}
		if t.config.MaxHopCandidates > 0 && len(parts) > t.config.MaxHopCandidates {
			return nil, "too_many_candidates", nil
		}
		hops = append(hops, parts)
	}
	return hops, "", nil
}

func (t *FlowTracer) loadPivots(ctx context.Context, gateway string, actor *models.Actor, session models.Timeframe) ([]attribution.FlowPart, error) {
	records, err := t.conntrack.Pivots(ctx, gateway, actor.VPNIP, t.config.RootHost, session)
	if err != nil {
		return nil, fmt.Errorf("failed to get pivots: %w", err)
	}
	pivots := make([]attribution.FlowPart, 0, len(records))
	for _, r := range records {
		dst := r.Destination
		if dst == "" {
			dst = t.config.RootHost
		}
		pivots = append(pivots, attribution.FlowPart{
			Source:          actor.VPNIP,
			Destination:     dst,
			Start:           r.Timestamp,
			Transport:       attribution.ParseTransport(r.Transport),
			SourcePort:      r.SourcePort,
			DestinationPort: r.DestinationPort,
		})
	}
	return pivots, nil
}

func partFromRecord(rec *models.FlowRecord) attribution.FlowPart {
	return attribution.FlowPart{
		Source:          rec.SourceIP,
		Destination:     rec.DestinationIP,
		Start:           rec.Start,
		End:             rec.End,
		Transport:       attribution.ParseTransport(rec.Transport),
		SourcePort:      rec.SourcePort,
		DestinationPort: rec.DestinationPort,
		Process:         rec.ProcessName,
	}
}
