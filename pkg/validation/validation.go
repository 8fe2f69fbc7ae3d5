package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// RelayScheme is the only scheme accepted for relay addresses.
	RelayScheme = "wss://"

	maxMetadataLength = 1000
)

var (
	// HexKeyRegex matches a 32-byte key in lowercase or uppercase hex.
	HexKeyRegex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

	// IdentifierRegex limits the "d" identifier to characters safe in an
	// address tag (kind:pubkey:d).
	IdentifierRegex = regexp.MustCompile(`^[^:\s]+$`)
)

// ValidateRelayURL checks a relay address as typed. The scheme prefix must be
// at the very start; trailing whitespace is ignored.
func ValidateRelayURL(relay string) error {
	if strings.TrimSpace(relay) == "" {
		return fmt.Errorf("relay url is required")
	}
	if !strings.HasPrefix(relay, RelayScheme) {
		return fmt.Errorf("invalid relay url: must start with %s", RelayScheme)
	}
	u, err := url.Parse(strings.TrimSpace(relay))
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid relay url: missing host")
	}
	return nil
}

// ValidatePrivateKey accepts a 64 character hex key or a bech32 nsec.
func ValidatePrivateKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("private key is required")
	}
	if strings.HasPrefix(key, "nsec1") {
		return nil
	}
	if !HexKeyRegex.MatchString(key) {
		return fmt.Errorf("private key must be 64 hex characters or an nsec")
	}
	return nil
}

// ValidateIdentifier validates the stream identifier ("d" tag).
func ValidateIdentifier(d string) error {
	if strings.TrimSpace(d) == "" {
		return fmt.Errorf("identifier is required")
	}
	if !IdentifierRegex.MatchString(d) {
		return fmt.Errorf("identifier must not contain spaces or ':'")
	}
	return ValidateStringLength(d, 1, 200, "identifier")
}

// ValidateOptionalHTTPURL accepts an empty string or an absolute http(s) url.
func ValidateOptionalHTTPURL(raw, fieldName string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid url format", fieldName)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: url scheme must be http or https", fieldName)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: url must have a host", fieldName)
	}
	return nil
}

// ValidateMetadataText bounds free-form title/summary text.
func ValidateMetadataText(s, fieldName string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}
	return ValidateStringLength(s, 0, maxMetadataLength, fieldName)
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
