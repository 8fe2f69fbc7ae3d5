package relay

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"livebridge/internal/core/domain"
	"livebridge/internal/core/ports"
	"livebridge/pkg/cache"
	"livebridge/pkg/circuitbreaker"
	"livebridge/pkg/retry"
	"livebridge/pkg/tracing"

	"github.com/nbd-wtf/go-nostr"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type Config struct {
	DefaultRelays  []string
	PublishTimeout time.Duration
	ProbeTimeout   time.Duration
	// ProbeCacheTTL keeps probe results this long; 0 probes every time.
	ProbeCacheTTL  time.Duration
	DialRetry      retry.Config
	Breaker        circuitbreaker.Config
}

// Publisher signs live events and fans them out to relays. A publish
// succeeds when at least one relay accepts the event.
type Publisher struct {
	cfg       Config
	connector Connector
	breakers  *circuitbreaker.Registry
	metrics   ports.MetricsRecorder
	logger    *zap.SugaredLogger

	probes     singleflight.Group
	probeCache *cache.Cache[[]domain.RelayState]
	now        func() nostr.Timestamp
}

func NewPublisher(cfg Config, connector Connector, metrics ports.MetricsRecorder, logger *zap.SugaredLogger) *Publisher {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	if cfg.Breaker.FailureThreshold <= 0 {
		cfg.Breaker = circuitbreaker.DefaultConfig()
	}

	logger = logger.With("component", "relay_publisher")
	breakers := circuitbreaker.NewRegistry(cfg.Breaker)

	return &Publisher{
		cfg:        cfg,
		connector:  connector,
		breakers:   breakers,
		metrics:    metrics,
		logger:     logger,
		probeCache: cache.New[[]domain.RelayState](cfg.ProbeCacheTTL),
		now:        nostr.Now,
	}
}

func (p *Publisher) PublicKey(privateKey string) (string, error) {
	return PublicKey(privateKey)
}

func (p *Publisher) PublishLive(ctx context.Context, privateKey string, cfg *domain.StreamConfig, status domain.Status) (domain.PublishResult, error) {
	sk, err := NormalizePrivateKey(privateKey)
	if err != nil {
		return domain.PublishResult{}, err
	}

	ev := BuildLiveEvent(cfg, status, p.now())
	return p.signAndSend(ctx, sk, ev, cfg.Relays, status)
}

func (p *Publisher) PublishNowPlaying(ctx context.Context, np domain.NowPlaying, privateKey string, cfg *domain.StreamConfig) (domain.PublishResult, error) {
	sk, err := NormalizePrivateKey(privateKey)
	if err != nil {
		return domain.PublishResult{}, err
	}
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return domain.PublishResult{}, fmt.Errorf("%w: %v", domain.ErrInvalidKey, err)
	}

	ev := BuildNowPlayingEvent(np, pk, cfg, p.now())
	return p.signAndSend(ctx, sk, ev, cfg.Relays, "")
}

func (p *Publisher) signAndSend(ctx context.Context, sk string, ev nostr.Event, relays []string, status domain.Status) (domain.PublishResult, error) {
	if err := ev.Sign(sk); err != nil {
		return domain.PublishResult{}, fmt.Errorf("%w: %v", domain.ErrInvalidKey, err)
	}

	targets := p.resolveRelays(relays)
	if len(targets) == 0 {
		return domain.PublishResult{}, domain.ErrNoRelays
	}

	ctx, span := tracing.TracePublish(ctx, ev.Kind, string(status), len(targets))
	defer span.End()
	tracing.AddSpanAttributes(ctx, tracing.EventIDKey.String(ev.ID))

	start := time.Now()
	results := make([]domain.RelayResult, len(targets))

	// Goroutines never return errors, so one relay cannot cancel the others.
	var g errgroup.Group
	for i, url := range targets {
		i, url := i, url
		g.Go(func() error {
			results[i] = p.sendOne(ctx, url, ev)
			return nil
		})
	}
	g.Wait()

	result := domain.PublishResult{
		EventID:     ev.ID,
		Kind:        ev.Kind,
		Status:      status,
		PublishedAt: ev.CreatedAt.Time(),
		Relays:      results,
	}

	accepted := result.Accepted()
	p.metrics.RecordPublish(ev.Kind, string(status), accepted, time.Since(start))
	tracing.AddSpanAttributes(ctx, tracing.AcceptedKey.Bool(accepted))

	if !accepted {
		result.Error = domain.ErrNoRelayAccepted.Error()
		tracing.RecordError(ctx, domain.ErrNoRelayAccepted)
		p.logger.Errorw("event rejected by every relay",
			"event_id", ev.ID,
			"kind", ev.Kind,
			"relays", len(targets),
		)
		return result, domain.ErrNoRelayAccepted
	}

	p.logger.Infow("event published",
		"event_id", ev.ID,
		"kind", ev.Kind,
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (p *Publisher) sendOne(ctx context.Context, url string, ev nostr.Event) domain.RelayResult {
	ctx, span := tracing.TraceRelaySend(ctx, url)
	defer span.End()

	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
	defer cancel()

	err := p.breakers.Get(url).Execute(func() error {
		conn, err := retry.RetryWithResult(sendCtx, p.cfg.DialRetry, func() (Connection, error) {
			return p.connector.Connect(sendCtx, url)
		})
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		defer conn.Close()

		return conn.Publish(sendCtx, ev)
	})

	p.metrics.RecordRelayResult(url, err == nil)
	if err != nil {
		tracing.RecordError(ctx, err)
		level := p.logger.Warnw
		if errors.Is(err, circuitbreaker.ErrOpen) {
			level = p.logger.Debugw
		}
		level("relay rejected event", "relay", url, "event_id", ev.ID, "error", err)
		return domain.RelayResult{URL: url, OK: false, Error: err.Error()}
	}
	return domain.RelayResult{URL: url, OK: true}
}

// resolveRelays falls back to the defaults and drops duplicates.
func (p *Publisher) resolveRelays(relays []string) []string {
	if len(relays) == 0 {
		relays = p.cfg.DefaultRelays
	}
	out := make([]string, 0, len(relays))
	for _, r := range relays {
		r = strings.TrimSpace(r)
		if r != "" && !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}

// ProbeRelays dials every relay and reports which ones answered. Concurrent
// probes of the same list share one round of dials. The dials are bounded by
// ProbeTimeout only; a caller going away does not cut the shared round short.
func (p *Publisher) ProbeRelays(ctx context.Context, relays []string) []domain.RelayState {
	targets := p.resolveRelays(relays)
	key := strings.Join(targets, ",")
	if states, ok := p.probeCache.Get(key); ok {
		return slices.Clone(states)
	}

	v, _, _ := p.probes.Do(key, func() (any, error) {
		dialCtx := context.WithoutCancel(ctx)
		states := make([]domain.RelayState, len(targets))

		var g errgroup.Group
		for i, url := range targets {
			i, url := i, url
			g.Go(func() error {
				probeCtx, cancel := context.WithTimeout(dialCtx, p.cfg.ProbeTimeout)
				defer cancel()

				conn, err := p.connector.Connect(probeCtx, url)
				if err == nil {
					conn.Close()
				}
				states[i] = domain.RelayState{URL: url, Connected: err == nil}
				return nil
			})
		}
		g.Wait()

		tracing.AddSpanAttributes(ctx, attribute.Int("relay.probe.count", len(targets)))
		p.probeCache.Set(key, states)
		return states, nil
	})

	return slices.Clone(v.([]domain.RelayState))
}

// BreakerStates exposes per-relay breaker state for diagnostics.
func (p *Publisher) BreakerStates() map[string]string {
	out := make(map[string]string)
	for url, state := range p.breakers.States() {
		out[url] = state.String()
	}
	return out
}
