package obsws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"livebridge/internal/core/ports"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeOBS speaks just enough obs-websocket v5 to identify a client and push
// events down the connection.
type fakeOBS struct {
	server   *httptest.Server
	password string
	auth     *Authentication
	identify chan Identify
	conns    chan *websocket.Conn
}

func newFakeOBS(t *testing.T, password string) *fakeOBS {
	t.Helper()

	f := &fakeOBS{
		password: password,
		identify: make(chan Identify, 1),
		conns:    make(chan *websocket.Conn, 1),
	}
	if password != "" {
		f.auth = &Authentication{Challenge: "+IxH4CnCiqpX1rM9scsNynZzbOe4KhDeYcTNS3PDaeY=", Salt: "lM1GncleQOaCu9lT1yeUZhFYnqhsLLP1G5lAGo3ixaI="}
	}

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		hello, _ := encode(OpHello, Hello{ObsWebSocketVersion: "5.0.1", RPCVersion: 1, Authentication: f.auth})
		if err := conn.WriteJSON(hello); err != nil {
			conn.Close()
			return
		}

		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			conn.Close()
			return
		}
		var id Identify
		json.Unmarshal(msg.D, &id)
		f.identify <- id

		if f.auth != nil && id.Authentication != AuthResponse(f.password, *f.auth) {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(4009, "Authentication failed."),
				time.Now().Add(time.Second))
			conn.Close()
			return
		}

		identified, _ := encode(OpIdentified, Identified{NegotiatedRPCVersion: 1})
		conn.WriteJSON(identified)
		f.conns <- conn
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeOBS) url() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

func (f *fakeOBS) sendStreamState(t *testing.T, conn *websocket.Conn, state string) {
	t.Helper()
	data, _ := json.Marshal(StreamStateChanged{OutputActive: state == OutputStarted, OutputState: state})
	msg, _ := encode(OpEvent, Event{EventType: EventStreamStateChanged, EventIntent: EventSubscriptionOutputs, EventData: data})
	require.NoError(t, conn.WriteJSON(msg))
}

func newTestClient(address, password string) *Client {
	return NewClient(Config{Address: address, Password: password, DialTimeout: 2 * time.Second}, zap.NewNop().Sugar())
}

func TestClient_ConnectAndReceiveOutputEvents(t *testing.T) {
	obs := newFakeOBS(t, "")
	client := newTestClient(obs.url(), "")

	var connectedCalls atomic.Int32
	started := make(chan struct{}, 1)
	stopped := make(chan struct{}, 1)
	client.SetHandlers(ports.ControlPlaneHandlers{
		OnConnected:     func() { connectedCalls.Add(1) },
		OnOutputStarted: func() { started <- struct{}{} },
		OnOutputStopped: func() { stopped <- struct{}{} },
	})

	require.NoError(t, client.Connect(context.Background()))
	assert.True(t, client.Connected())
	assert.Equal(t, int32(1), connectedCalls.Load())

	id := <-obs.identify
	assert.Equal(t, RPCVersion, id.RPCVersion)
	assert.Equal(t, EventSubscriptionOutputs, id.EventSubscriptions)
	assert.Empty(t, id.Authentication)

	conn := <-obs.conns

	// ignored states must not reach the handlers
	obs.sendStreamState(t, conn, "OBS_WEBSOCKET_OUTPUT_STARTING")
	obs.sendStreamState(t, conn, OutputStarted)
	obs.sendStreamState(t, conn, OutputStopped)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("output started not delivered")
	}
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("output stopped not delivered")
	}
	assert.Len(t, started, 0)

	// a second Connect on a live session is a no-op
	require.NoError(t, client.Connect(context.Background()))
	assert.Equal(t, int32(1), connectedCalls.Load())

	require.NoError(t, client.Close())
	assert.False(t, client.Connected())
}

func TestClient_Authentication(t *testing.T) {
	obs := newFakeOBS(t, "supersecret")

	client := newTestClient(obs.url(), "supersecret")
	require.NoError(t, client.Connect(context.Background()))
	id := <-obs.identify
	assert.Equal(t, AuthResponse("supersecret", *obs.auth), id.Authentication)
	require.NoError(t, client.Close())

	wrong := newTestClient(obs.url(), "nope")
	err := wrong.Connect(context.Background())
	assert.ErrorIs(t, err, ErrHandshake)
	assert.False(t, wrong.Connected())
}

func TestClient_AuthRequiredWithoutPassword(t *testing.T) {
	obs := newFakeOBS(t, "supersecret")
	client := newTestClient(obs.url(), "")

	err := client.Connect(context.Background())
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.False(t, client.Connected())
}

func TestClient_ConnectFailureLeavesDisconnected(t *testing.T) {
	client := newTestClient("ws://127.0.0.1:1", "")

	err := client.Connect(context.Background())
	assert.Error(t, err)
	assert.False(t, client.Connected())
	assert.NoError(t, client.Close())
}

func TestClient_ServerDropFiresDisconnected(t *testing.T) {
	obs := newFakeOBS(t, "")
	client := newTestClient(obs.url(), "")

	disconnected := make(chan error, 1)
	client.SetHandlers(ports.ControlPlaneHandlers{
		OnDisconnected: func(err error) { disconnected <- err },
	})

	require.NoError(t, client.Connect(context.Background()))
	conn := <-obs.conns
	conn.Close()

	select {
	case err := <-disconnected:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not reported")
	}
	assert.False(t, client.Connected())
}

func TestAuthResponse(t *testing.T) {
	auth := Authentication{
		Challenge: "+IxH4CnCiqpX1rM9scsNynZzbOe4KhDeYcTNS3PDaeY=",
		Salt:      "lM1GncleQOaCu9lT1yeUZhFYnqhsLLP1G5lAGo3ixaI=",
	}
	got := AuthResponse("supersecretpassword", auth)
	assert.NotEmpty(t, got)
	assert.Equal(t, got, AuthResponse("supersecretpassword", auth))
	assert.NotEqual(t, got, AuthResponse("other", auth))
}
