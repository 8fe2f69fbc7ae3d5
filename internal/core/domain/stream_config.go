package domain

import (
	"slices"

	"github.com/google/uuid"
)

type Status string

const (
	StatusLive  Status = "live"
	StatusEnded Status = "ended"
)

func (s Status) Valid() bool {
	return s == StatusLive || s == StatusEnded
}

// EventConfig is the metadata used to compose a live event.
type EventConfig struct {
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	D         string `json:"d"`
	Image     string `json:"image"`
	Streaming string `json:"streaming"`
}

// StreamConfig is the Stream Manager's state. Only the orchestrator mutates it.
type StreamConfig struct {
	Pubkey     string   `json:"pubkey"`
	Status     Status   `json:"status"`
	PrevStatus Status   `json:"prevStatus"`
	P          []string `json:"p"`
	EventConfig
	Relays []string `json:"relays"`
}

// DefaultEventConfig returns an empty config with a fresh identifier.
func DefaultEventConfig() EventConfig {
	return EventConfig{D: uuid.NewString()}
}

// DefaultStreamConfig is used when nothing has been persisted yet.
func DefaultStreamConfig(relays []string) *StreamConfig {
	return &StreamConfig{
		Status:      StatusEnded,
		PrevStatus:  StatusEnded,
		P:           []string{},
		EventConfig: DefaultEventConfig(),
		Relays:      slices.Clone(relays),
	}
}

// Clone returns a deep copy.
func (c *StreamConfig) Clone() *StreamConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.P = cloneNonNil(c.P)
	out.Relays = cloneNonNil(c.Relays)
	return &out
}

// Equal reports whether two configs hold the same values. Nil and empty
// slices compare equal.
func (c *StreamConfig) Equal(other *StreamConfig) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Pubkey == other.Pubkey &&
		c.Status == other.Status &&
		c.PrevStatus == other.PrevStatus &&
		c.EventConfig == other.EventConfig &&
		slices.Equal(c.P, other.P) &&
		slices.Equal(c.Relays, other.Relays)
}

// Normalize fills the fields a persisted or received config may omit.
func (c *StreamConfig) Normalize() {
	if !c.Status.Valid() {
		c.Status = StatusEnded
	}
	if !c.PrevStatus.Valid() {
		c.PrevStatus = StatusEnded
	}
	if c.P == nil {
		c.P = []string{}
	}
	if c.Relays == nil {
		c.Relays = []string{}
	}
}

func cloneNonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}
