package relay

import (
	"encoding/hex"
	"fmt"
	"strings"

	"livebridge/internal/core/domain"
	"livebridge/pkg/validation"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// NormalizePrivateKey accepts a 64 char hex key or an nsec and returns the
// lowercase hex form.
func NormalizePrivateKey(raw string) (string, error) {
	key := strings.TrimSpace(raw)
	if err := validation.ValidatePrivateKey(key); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidKey, err)
	}

	if strings.HasPrefix(key, "nsec1") {
		prefix, value, err := nip19.Decode(key)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrInvalidKey, err)
		}
		sk, ok := value.(string)
		if prefix != "nsec" || !ok {
			return "", fmt.Errorf("%w: not an nsec", domain.ErrInvalidKey)
		}
		key = sk
	}

	key = strings.ToLower(key)
	if len(key) != 64 {
		return "", fmt.Errorf("%w: expected 64 hex characters", domain.ErrInvalidKey)
	}
	if _, err := hex.DecodeString(key); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidKey, err)
	}
	return key, nil
}

// PublicKey derives the hex public key for a private key in either form.
func PublicKey(privateKey string) (string, error) {
	sk, err := NormalizePrivateKey(privateKey)
	if err != nil {
		return "", err
	}
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidKey, err)
	}
	return pk, nil
}

// Npub encodes a hex public key for display.
func Npub(pubkey string) (string, error) {
	return nip19.EncodePublicKey(pubkey)
}
