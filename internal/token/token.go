package token

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"filegate/pkg/fault"
)

// Kind identifies what a minted token refers to.
//
// Usage: construct via ParseKind at trust boundaries; direct casting bypasses
// validation.
type Kind string

const (
	// KindFile references a single archived item.
	KindFile Kind = "file"
	// KindBatch references an ordered group of archived items.
	KindBatch Kind = "batch"
)

// MaxPayloadLen is the safe ceiling for entry-point payloads imposed by the
// transport's deep-link size limit.
const MaxPayloadLen = 64

// idLen is the length of a minted token: a 128-bit value as lowercase hex.
const idLen = 32

var validKinds = map[Kind]bool{
	KindFile:  true,
	KindBatch: true,
}

// ParseKind constructs a Kind from external input.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !validKinds[k] {
		return "", fault.New(fault.CodeMalformedPayload, "invalid token kind")
	}
	return k, nil
}

// Mint produces a collision-resistant opaque identifier. The kind does not
// alter the value space; it is carried separately by Encode.
func Mint() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// Encode embeds kind and id into an entry-point payload of the form
// "<kind>_<id>". The result always fits MaxPayloadLen for minted ids.
func Encode(kind Kind, id string) string {
	return string(kind) + "_" + id
}

// Decode parses an entry-point payload back into (kind, id). It is the
// inverse of Encode for every minted id and rejects everything else with
// CodeMalformedPayload.
func Decode(payload string) (Kind, string, error) {
	if len(payload) > MaxPayloadLen {
		return "", "", fault.New(fault.CodeMalformedPayload, "payload exceeds length limit")
	}
	prefix, id, ok := strings.Cut(payload, "_")
	if !ok {
		return "", "", fault.New(fault.CodeMalformedPayload, "payload missing kind separator")
	}
	kind, err := ParseKind(prefix)
	if err != nil {
		return "", "", err
	}
	if !validID(id) {
		return "", "", fault.New(fault.CodeMalformedPayload, "payload carries invalid id")
	}
	return kind, id, nil
}

// validID accepts exactly the shape Mint produces.
func validID(id string) bool {
	if len(id) != idLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
