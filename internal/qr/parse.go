// Package qr turns raw camera decodes into canonical token identifiers.
// Issuance paths have historically produced several encodings (JSON
// envelopes, verify URLs, bare prefixed tokens), so parsing is an ordered
// heuristic chain rather than a single format.
package qr

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/spec-kit/qr-credential-service/internal/domain"
)

// TokenPrefix is the literal prefix carried by natively minted tokens.
const TokenPrefix = "QR-"

// minRawTokenLength is the floor for accepting an unstructured string as a
// token; anything shorter is treated as garbage input.
const minRawTokenLength = 10

// ParseResult is the tagged outcome of parsing a decoded payload. Parse never
// fails with an error; malformed input yields Valid=false.
type ParseResult struct {
	Token string
	Kind  domain.QRKind
	Valid bool
	Raw   string
}

type jsonEnvelope struct {
	Token string `json:"token"`
	Type  string `json:"type"`
}

// Parse extracts a token from attacker-controlled decode text. First match
// wins: JSON envelope, URL query parameter, literal prefix, then a raw-token
// length heuristic.
func Parse(raw string) ParseResult {
	result := ParseResult{Raw: raw, Kind: domain.QRKindTicket}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return result
	}

	if env, ok := parseJSON(trimmed); ok {
		result.Token = env.Token
		if kind, ok := recognizedKind(env.Type); ok {
			result.Kind = kind
		}
		result.Valid = true
		return result
	}

	if token, ok := parseURLToken(trimmed); ok {
		result.Token = token
		result.Valid = true
		return result
	}

	if strings.HasPrefix(trimmed, TokenPrefix) {
		result.Token = trimmed
		result.Valid = true
		return result
	}

	if len(trimmed) > minRawTokenLength {
		result.Token = trimmed
		result.Valid = true
		return result
	}

	return result
}

func parseJSON(raw string) (jsonEnvelope, bool) {
	var env jsonEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return env, false
	}
	return env, env.Token != ""
}

func parseURLToken(raw string) (string, bool) {
	if !strings.Contains(raw, "token=") {
		return "", false
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	token := parsed.Query().Get("token")
	return token, token != ""
}

func recognizedKind(tag string) (domain.QRKind, bool) {
	switch domain.QRKind(tag) {
	case domain.QRKindPass, domain.QRKindWalletTransfer, domain.QRKindAccessCode, domain.QRKindTicket:
		return domain.QRKind(tag), true
	default:
		return "", false
	}
}
