package domain

// StreamView is what the Stream Manager dashboard renders.
type StreamView struct {
	Config            *StreamConfig  `json:"config"`
	SessionActive     bool           `json:"session_active"`
	Connected         bool           `json:"connected"`
	ControlPlaneError string         `json:"control_plane_error,omitempty"`
	LastPublish       *PublishResult `json:"last_publish,omitempty"`
}

type EventView struct {
	Config            *EventConfig   `json:"config"`
	Pubkey            string         `json:"pubkey,omitempty"`
	SessionActive     bool           `json:"session_active"`
	Connected         bool           `json:"connected"`
	ControlPlaneError string         `json:"control_plane_error,omitempty"`
	LastPublish       *PublishResult `json:"last_publish,omitempty"`
}
