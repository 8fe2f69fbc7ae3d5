package relay

import (
	"fmt"
	"strconv"

	"livebridge/internal/core/domain"

	"github.com/nbd-wtf/go-nostr"
)

// BuildLiveEvent composes the unsigned NIP-53 live event for cfg.
func BuildLiveEvent(cfg *domain.StreamConfig, status domain.Status, now nostr.Timestamp) nostr.Event {
	tags := nostr.Tags{
		nostr.Tag{"d", cfg.D},
		nostr.Tag{"title", cfg.Title},
		nostr.Tag{"summary", cfg.Summary},
		nostr.Tag{"image", cfg.Image},
		nostr.Tag{"streaming", cfg.Streaming},
		nostr.Tag{"status", string(status)},
	}
	for _, p := range cfg.P {
		tags = append(tags, nostr.Tag{"p", p})
	}
	if len(cfg.Relays) > 0 {
		tags = append(tags, append(nostr.Tag{"relays"}, cfg.Relays...))
	}
	if status == domain.StatusLive {
		tags = append(tags, nostr.Tag{"starts", strconv.FormatInt(int64(now), 10)})
	}

	return nostr.Event{
		CreatedAt: now,
		Kind:      domain.KindLiveEvent,
		Tags:      tags,
		Content:   "",
	}
}

// LiveEventAddress is the "a" tag value pointing at the live event.
func LiveEventAddress(pubkey, d string) string {
	return fmt.Sprintf("%d:%s:%s", domain.KindLiveEvent, pubkey, d)
}

// BuildNowPlayingEvent composes the unsigned live chat message announcing np.
func BuildNowPlayingEvent(np domain.NowPlaying, pubkey string, cfg *domain.StreamConfig, now nostr.Timestamp) nostr.Event {
	tags := nostr.Tags{
		nostr.Tag{"a", LiveEventAddress(pubkey, cfg.D)},
	}
	if np.Link != "" {
		tags = append(tags, nostr.Tag{"r", np.Link})
	}

	return nostr.Event{
		CreatedAt: now,
		Kind:      domain.KindLiveMessage,
		Tags:      tags,
		Content:   NowPlayingContent(np),
	}
}

func NowPlayingContent(np domain.NowPlaying) string {
	content := "Now playing: " + np.Title
	if np.Creator != "" {
		content += " by " + np.Creator
	}
	if np.Link != "" {
		content += " " + np.Link
	}
	return content
}
