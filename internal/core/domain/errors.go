package domain

import "errors"

var (
	ErrConfigNotFound     = errors.New("config not found")
	ErrInvalidKey         = errors.New("invalid private key")
	ErrNoRelays           = errors.New("no relays configured")
	ErrNoRelayAccepted    = errors.New("no relay accepted the event")
	ErrNoSession          = errors.New("no active session")
	ErrNotConnected       = errors.New("control plane not connected")
	ErrUnknownMessageType = errors.New("unknown sync message type")
	ErrWrongChannel       = errors.New("message type does not belong to channel")
	ErrUnknownChannel     = errors.New("unknown sync channel")
	ErrInvalidRelayURL    = errors.New("invalid relay url")
	ErrRelayExists        = errors.New("relay already exists")
	ErrRelayNotFound      = errors.New("relay not found")
)
