package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Nostr event kinds.
const (
	KindLiveEvent   = 30311
	KindLiveMessage = 1311
)

// NowPlaying is the track currently being played by a participant.
type NowPlaying struct {
	Creator string `json:"creator"`
	Title   string `json:"title"`
	Link    string `json:"link"`
}

// ParseNowPlaying decodes the JSON content of a track announcement.
func ParseNowPlaying(content string) (NowPlaying, error) {
	var np NowPlaying
	if err := json.Unmarshal([]byte(content), &np); err != nil {
		return NowPlaying{}, fmt.Errorf("decode now playing: %w", err)
	}
	if np.Title == "" {
		return NowPlaying{}, fmt.Errorf("decode now playing: missing title")
	}
	return np, nil
}

type RelayResult struct {
	URL   string `json:"url"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// PublishResult reports one signed event and what each relay did with it.
type PublishResult struct {
	EventID     string        `json:"event_id"`
	Kind        int           `json:"kind"`
	Status      Status        `json:"status,omitempty"`
	PublishedAt time.Time     `json:"published_at"`
	Relays      []RelayResult `json:"relays"`
	Error       string        `json:"error,omitempty"`
}

// Accepted is true when at least one relay took the event.
func (r PublishResult) Accepted() bool {
	for _, rr := range r.Relays {
		if rr.OK {
			return true
		}
	}
	return false
}

// RelayState is the connectivity mark shown next to each relay.
type RelayState struct {
	URL       string `json:"url"`
	Connected bool   `json:"connected"`
}
