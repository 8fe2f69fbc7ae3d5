package obsws

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
)

// Opcodes of the obs-websocket v5 protocol.
const (
	OpHello      = 0
	OpIdentify   = 1
	OpIdentified = 2
	OpEvent      = 5
)

const (
	RPCVersion = 1

	// EventSubscriptionOutputs selects StreamStateChanged and the other
	// output events.
	EventSubscriptionOutputs = 1 << 6
)

const (
	EventStreamStateChanged = "StreamStateChanged"

	OutputStarted = "OBS_WEBSOCKET_OUTPUT_STARTED"
	OutputStopped = "OBS_WEBSOCKET_OUTPUT_STOPPED"
)

// Message is the envelope of every frame.
type Message struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type Hello struct {
	ObsWebSocketVersion string          `json:"obsWebSocketVersion"`
	RPCVersion          int             `json:"rpcVersion"`
	Authentication      *Authentication `json:"authentication,omitempty"`
}

type Authentication struct {
	Challenge string `json:"challenge"`
	Salt      string `json:"salt"`
}

type Identify struct {
	RPCVersion         int    `json:"rpcVersion"`
	Authentication     string `json:"authentication,omitempty"`
	EventSubscriptions int    `json:"eventSubscriptions"`
}

type Identified struct {
	NegotiatedRPCVersion int `json:"negotiatedRpcVersion"`
}

type Event struct {
	EventType   string          `json:"eventType"`
	EventIntent int             `json:"eventIntent"`
	EventData   json.RawMessage `json:"eventData"`
}

type StreamStateChanged struct {
	OutputActive bool   `json:"outputActive"`
	OutputState  string `json:"outputState"`
}

// AuthResponse computes base64(sha256(base64(sha256(password+salt)) + challenge)).
func AuthResponse(password string, auth Authentication) string {
	secret := sha256.Sum256([]byte(password + auth.Salt))
	secretB64 := base64.StdEncoding.EncodeToString(secret[:])

	resp := sha256.Sum256([]byte(secretB64 + auth.Challenge))
	return base64.StdEncoding.EncodeToString(resp[:])
}

func encode(op int, d any) (Message, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return Message{}, err
	}
	return Message{Op: op, D: raw}, nil
}
