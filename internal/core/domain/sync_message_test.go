package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncMessage_ConfigRoundTrip(t *testing.T) {
	cfg := DefaultStreamConfig([]string{"wss://relay.damus.io"})
	cfg.Status = StatusLive
	cfg.Title = "Friday set"

	data, err := EncodeSyncMessage(ConfigSnapshot{Config: cfg})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"config"`)

	msg, err := DecodeSyncMessage(ConfigChannel, data)
	require.NoError(t, err)

	snap, ok := msg.(ConfigSnapshot)
	require.True(t, ok)
	assert.True(t, cfg.Equal(snap.Config))
}

func TestSyncMessage_TrackAnnouncement(t *testing.T) {
	raw := []byte(`{"type":"track","value":{"pubkey":"npubhex","content":"{\"creator\":\"A\",\"title\":\"B\",\"link\":\"https://x\"}"}}`)

	msg, err := DecodeSyncMessage(ConfigChannel, raw)
	require.NoError(t, err)

	ta, ok := msg.(TrackAnnouncement)
	require.True(t, ok)
	assert.Equal(t, "npubhex", ta.Pubkey)
	assert.Equal(t, NowPlaying{Creator: "A", Title: "B", Link: "https://x"}, ta.NowPlaying)
}

func TestSyncMessage_NowPlaying(t *testing.T) {
	data, err := EncodeSyncMessage(NowPlayingUpdate{NowPlaying: NowPlaying{Creator: "A", Title: "B"}})
	require.NoError(t, err)

	msg, err := DecodeSyncMessage(NowPlayingChannel, data)
	require.NoError(t, err)
	assert.Equal(t, NowPlayingUpdate{NowPlaying: NowPlaying{Creator: "A", Title: "B"}}, msg)
}

func TestSyncMessage_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		channel SyncChannel
		data    string
		wantErr error
	}{
		{"unknown type", ConfigChannel, `{"type":"wavman2","value":{}}`, ErrUnknownMessageType},
		{"now playing on config channel", ConfigChannel, `{"type":"now_playing","value":{"title":"x"}}`, ErrWrongChannel},
		{"config on now playing channel", NowPlayingChannel, `{"type":"config","value":{"status":"live"}}`, ErrWrongChannel},
		{"missing value", ConfigChannel, `{"type":"config"}`, nil},
		{"malformed envelope", ConfigChannel, `{`, nil},
		{"track without pubkey", ConfigChannel, `{"type":"track","value":{"content":"{\"title\":\"x\"}"}}`, nil},
		{"track with bad content", ConfigChannel, `{"type":"track","value":{"pubkey":"a","content":"oops"}}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeSyncMessage(tt.channel, []byte(tt.data))
			require.Error(t, err)
			assert.Nil(t, msg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestParseSyncChannel(t *testing.T) {
	ch, err := ParseSyncChannel("streamManagerConfig")
	require.NoError(t, err)
	assert.Equal(t, ConfigChannel, ch)

	_, err = ParseSyncChannel("nope")
	assert.ErrorIs(t, err, ErrUnknownChannel)
}
