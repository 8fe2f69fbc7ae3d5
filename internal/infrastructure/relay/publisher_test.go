package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"livebridge/internal/core/domain"
	"livebridge/internal/infrastructure/monitoring"
	"livebridge/pkg/circuitbreaker"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errRefused = errors.New("connection refused")

type fakeConnection struct {
	relay *fakeConnector
	url   string
}

func (c *fakeConnection) Publish(ctx context.Context, ev nostr.Event) error {
	c.relay.mu.Lock()
	defer c.relay.mu.Unlock()
	if err := c.relay.rejects[c.url]; err != nil {
		return err
	}
	c.relay.received[c.url] = append(c.relay.received[c.url], ev)
	return nil
}

func (c *fakeConnection) Close() error { return nil }

type fakeConnector struct {
	mu       sync.Mutex
	down     map[string]bool
	rejects  map[string]error
	dials    map[string]int
	received map[string][]nostr.Event
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		down:     make(map[string]bool),
		rejects:  make(map[string]error),
		dials:    make(map[string]int),
		received: make(map[string][]nostr.Event),
	}
}

func (f *fakeConnector) Connect(ctx context.Context, url string) (Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials[url]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.down[url] {
		return nil, errRefused
	}
	return &fakeConnection{relay: f, url: url}, nil
}

func (f *fakeConnector) events(url string) []nostr.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.received[url]
}

func (f *fakeConnector) totalReceived() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, evs := range f.received {
		n += len(evs)
	}
	return n
}

func newTestPublisher(conn Connector) *Publisher {
	p := NewPublisher(Config{
		DefaultRelays:  []string{"wss://default.example"},
		PublishTimeout: time.Second,
		ProbeTimeout:   time.Second,
		Breaker:        circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Minute},
	}, conn, monitoring.NopRecorder{}, zap.NewNop().Sugar())
	p.now = func() nostr.Timestamp { return 1_700_000_000 }
	return p
}

func testStreamConfig(relays ...string) *domain.StreamConfig {
	cfg := domain.DefaultStreamConfig(relays)
	cfg.D = "friday-set"
	cfg.Title = "Friday set"
	cfg.Summary = "vinyl only"
	cfg.Image = "https://example.com/thumb.png"
	cfg.Streaming = "https://example.com/live.m3u8"
	return cfg
}

func TestPublishLive_SignsAndSendsToEveryRelay(t *testing.T) {
	conn := newFakeConnector()
	p := newTestPublisher(conn)
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)

	cfg := testStreamConfig("wss://a.example", "wss://b.example")
	cfg.P = []string{"participant"}

	res, err := p.PublishLive(context.Background(), sk, cfg, domain.StatusLive)
	require.NoError(t, err)
	assert.True(t, res.Accepted())
	assert.Equal(t, domain.KindLiveEvent, res.Kind)
	assert.Equal(t, domain.StatusLive, res.Status)
	assert.Len(t, res.Relays, 2)

	for _, url := range cfg.Relays {
		evs := conn.events(url)
		require.Len(t, evs, 1, url)
		ev := evs[0]
		assert.Equal(t, res.EventID, ev.ID)
		assert.Equal(t, pk, ev.PubKey)
		ok, err := ev.CheckSignature()
		require.NoError(t, err)
		assert.True(t, ok)

		assert.Equal(t, "friday-set", ev.Tags.GetFirst([]string{"d"}).Value())
		assert.Equal(t, "live", ev.Tags.GetFirst([]string{"status"}).Value())
		assert.Equal(t, "participant", ev.Tags.GetFirst([]string{"p"}).Value())
		assert.NotNil(t, ev.Tags.GetFirst([]string{"starts"}))
	}
}

func TestPublishLive_OneRelayDownStillSucceeds(t *testing.T) {
	conn := newFakeConnector()
	conn.down["wss://dead.example"] = true
	p := newTestPublisher(conn)

	res, err := p.PublishLive(context.Background(), nostr.GeneratePrivateKey(), testStreamConfig("wss://dead.example", "wss://ok.example"), domain.StatusEnded)
	require.NoError(t, err)

	byURL := map[string]domain.RelayResult{}
	for _, r := range res.Relays {
		byURL[r.URL] = r
	}
	assert.False(t, byURL["wss://dead.example"].OK)
	assert.Contains(t, byURL["wss://dead.example"].Error, "connection refused")
	assert.True(t, byURL["wss://ok.example"].OK)
}

func TestPublishLive_NoRelayAccepted(t *testing.T) {
	conn := newFakeConnector()
	conn.rejects["wss://a.example"] = errors.New("blocked: not on whitelist")
	conn.down["wss://b.example"] = true
	p := newTestPublisher(conn)

	res, err := p.PublishLive(context.Background(), nostr.GeneratePrivateKey(), testStreamConfig("wss://a.example", "wss://b.example"), domain.StatusLive)
	assert.ErrorIs(t, err, domain.ErrNoRelayAccepted)
	assert.Len(t, res.Relays, 2)
	assert.NotEmpty(t, res.EventID)
	assert.Equal(t, domain.ErrNoRelayAccepted.Error(), res.Error)
}

func TestPublishLive_MalformedKeySendsNothing(t *testing.T) {
	conn := newFakeConnector()
	p := newTestPublisher(conn)

	for _, key := range []string{"", "abcd", strings.Repeat("zz", 32), "nsec1garbage"} {
		_, err := p.PublishLive(context.Background(), key, testStreamConfig("wss://a.example"), domain.StatusLive)
		assert.ErrorIs(t, err, domain.ErrInvalidKey, key)
	}
	assert.Zero(t, conn.totalReceived())
	assert.Empty(t, conn.dials)
}

func TestPublishLive_FallsBackToDefaultRelays(t *testing.T) {
	conn := newFakeConnector()
	p := newTestPublisher(conn)

	cfg := testStreamConfig()
	res, err := p.PublishLive(context.Background(), nostr.GeneratePrivateKey(), cfg, domain.StatusLive)
	require.NoError(t, err)
	require.Len(t, res.Relays, 1)
	assert.Equal(t, "wss://default.example", res.Relays[0].URL)
}

func TestPublishLive_BreakerSkipsDeadRelay(t *testing.T) {
	conn := newFakeConnector()
	conn.down["wss://dead.example"] = true
	p := newTestPublisher(conn)
	cfg := testStreamConfig("wss://dead.example", "wss://ok.example")
	sk := nostr.GeneratePrivateKey()

	for i := 0; i < 3; i++ {
		_, err := p.PublishLive(context.Background(), sk, cfg, domain.StatusLive)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, conn.dials["wss://dead.example"], "breaker should stop dialing after the threshold")
	assert.Equal(t, "open", p.BreakerStates()["wss://dead.example"])
}

func TestPublishNowPlaying(t *testing.T) {
	conn := newFakeConnector()
	p := newTestPublisher(conn)
	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)

	np := domain.NowPlaying{Creator: "Artist", Title: "Song", Link: "https://wavlake.com/track/1"}
	res, err := p.PublishNowPlaying(context.Background(), np, sk, testStreamConfig("wss://a.example"))
	require.NoError(t, err)
	assert.Equal(t, domain.KindLiveMessage, res.Kind)

	evs := conn.events("wss://a.example")
	require.Len(t, evs, 1)
	assert.Equal(t, "Now playing: Song by Artist https://wavlake.com/track/1", evs[0].Content)
	assert.Equal(t, "30311:"+pk+":friday-set", evs[0].Tags.GetFirst([]string{"a"}).Value())
	assert.Equal(t, np.Link, evs[0].Tags.GetFirst([]string{"r"}).Value())
}

func TestProbeRelays(t *testing.T) {
	conn := newFakeConnector()
	conn.down["wss://b.example"] = true
	p := newTestPublisher(conn)

	states := p.ProbeRelays(context.Background(), []string{"wss://a.example", "wss://b.example"})
	assert.Equal(t, []domain.RelayState{
		{URL: "wss://a.example", Connected: true},
		{URL: "wss://b.example", Connected: false},
	}, states)
}

func TestProbeRelays_CachesResults(t *testing.T) {
	conn := newFakeConnector()
	p := NewPublisher(Config{
		ProbeTimeout:  time.Second,
		ProbeCacheTTL: time.Minute,
		Breaker:       circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Minute},
	}, conn, monitoring.NopRecorder{}, zap.NewNop().Sugar())

	relays := []string{"wss://a.example"}
	p.ProbeRelays(context.Background(), relays)
	p.ProbeRelays(context.Background(), relays)
	assert.Equal(t, 1, conn.dials["wss://a.example"])

	p.ProbeRelays(context.Background(), []string{"wss://a.example", "wss://b.example"})
	assert.Equal(t, 2, conn.dials["wss://a.example"], "a different relay list is probed afresh")
}

func TestProbeRelays_CancelledCallerDoesNotPoisonCache(t *testing.T) {
	conn := newFakeConnector()
	p := NewPublisher(Config{
		ProbeTimeout:  time.Second,
		ProbeCacheTTL: time.Minute,
		Breaker:       circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Minute},
	}, conn, monitoring.NopRecorder{}, zap.NewNop().Sugar())

	relays := []string{"wss://a.example"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	want := []domain.RelayState{{URL: "wss://a.example", Connected: true}}
	assert.Equal(t, want, p.ProbeRelays(ctx, relays))
	assert.Equal(t, want, p.ProbeRelays(context.Background(), relays))
	assert.Equal(t, 1, conn.dials["wss://a.example"])
}
