package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

type SyncChannel string

const (
	ConfigChannel     SyncChannel = "streamManagerConfig"
	NowPlayingChannel SyncChannel = "eventManager-nowPlaying"
)

func ParseSyncChannel(name string) (SyncChannel, error) {
	switch ch := SyncChannel(name); ch {
	case ConfigChannel, NowPlayingChannel:
		return ch, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}
}

const (
	MessageTypeConfig     = "config"
	MessageTypeTrack      = "track"
	MessageTypePublish    = "publish"
	MessageTypeNowPlaying = "now_playing"
)

// SyncMessage is one of ConfigSnapshot, TrackAnnouncement, PublishNotice or
// NowPlayingUpdate.
type SyncMessage interface {
	Type() string
	Channel() SyncChannel
	syncMessage()
}

// ConfigSnapshot carries the full StreamConfig; receivers overwrite their copy.
type ConfigSnapshot struct {
	Config *StreamConfig
}

// TrackAnnouncement is a participant announcing the track it is playing.
// Content holds the NowPlaying JSON as sent by the participant.
type TrackAnnouncement struct {
	Pubkey     string     `json:"pubkey"`
	Content    string     `json:"content"`
	NowPlaying NowPlaying `json:"-"`
}

// PublishNotice tells views how a publish went.
type PublishNotice struct {
	Result PublishResult
}

type NowPlayingUpdate struct {
	NowPlaying NowPlaying
}

func (ConfigSnapshot) Type() string    { return MessageTypeConfig }
func (TrackAnnouncement) Type() string { return MessageTypeTrack }
func (PublishNotice) Type() string     { return MessageTypePublish }
func (NowPlayingUpdate) Type() string  { return MessageTypeNowPlaying }

func (ConfigSnapshot) Channel() SyncChannel    { return ConfigChannel }
func (TrackAnnouncement) Channel() SyncChannel { return ConfigChannel }
func (PublishNotice) Channel() SyncChannel     { return ConfigChannel }
func (NowPlayingUpdate) Channel() SyncChannel  { return NowPlayingChannel }

func (ConfigSnapshot) syncMessage()    {}
func (TrackAnnouncement) syncMessage() {}
func (PublishNotice) syncMessage()     {}
func (NowPlayingUpdate) syncMessage()  {}

type envelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// EncodeSyncMessage produces the {type, value} wire form.
func EncodeSyncMessage(msg SyncMessage) ([]byte, error) {
	var value any
	switch m := msg.(type) {
	case ConfigSnapshot:
		value = m.Config
	case TrackAnnouncement:
		value = m
	case PublishNotice:
		value = m.Result
	case NowPlayingUpdate:
		value = m.NowPlaying
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessageType, msg)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s value: %w", msg.Type(), err)
	}
	return json.Marshal(envelope{Type: msg.Type(), Value: raw})
}

// DecodeSyncMessage parses and validates a message received on channel.
func DecodeSyncMessage(channel SyncChannel, data []byte) (SyncMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if len(env.Value) == 0 || string(env.Value) == "null" {
		return nil, fmt.Errorf("decode %s: missing value", env.Type)
	}

	var msg SyncMessage
	switch env.Type {
	case MessageTypeConfig:
		var cfg StreamConfig
		if err := json.Unmarshal(env.Value, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		cfg.Normalize()
		msg = ConfigSnapshot{Config: &cfg}
	case MessageTypeTrack:
		var ta TrackAnnouncement
		if err := json.Unmarshal(env.Value, &ta); err != nil {
			return nil, fmt.Errorf("decode track: %w", err)
		}
		if strings.TrimSpace(ta.Pubkey) == "" {
			return nil, fmt.Errorf("decode track: missing pubkey")
		}
		np, err := ParseNowPlaying(ta.Content)
		if err != nil {
			return nil, err
		}
		ta.NowPlaying = np
		msg = ta
	case MessageTypePublish:
		var res PublishResult
		if err := json.Unmarshal(env.Value, &res); err != nil {
			return nil, fmt.Errorf("decode publish: %w", err)
		}
		msg = PublishNotice{Result: res}
	case MessageTypeNowPlaying:
		var np NowPlaying
		if err := json.Unmarshal(env.Value, &np); err != nil {
			return nil, fmt.Errorf("decode now playing: %w", err)
		}
		msg = NowPlayingUpdate{NowPlaying: np}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}

	if msg.Channel() != channel {
		return nil, fmt.Errorf("%w: %s on %s", ErrWrongChannel, env.Type, channel)
	}
	return msg, nil
}

// SyncDelivery is a message together with the id of whoever posted it.
type SyncDelivery struct {
	Origin  string
	Message SyncMessage
}
