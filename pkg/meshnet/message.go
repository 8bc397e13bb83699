package meshnet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// NetworkAppID is the reserved app_id namespace for control messages.
const NetworkAppID = "network"

// Control message types under NetworkAppID.
const (
	TypePresence = "presence"
	TypeOffer    = "offer"
	TypeAnswer   = "answer"
	TypeLog      = "log"
)

// MaxTTL is the maximum hop count a Message may declare (spec §3, §6).
const MaxTTL = 6

// Signature is one hop's signer/signature pair. When signing is disabled,
// Signature is still appended with an empty Signature string so the
// signature chain continues to double as the hop counter (spec §4.3).
type Signature struct {
	Signer    Address `json:"signer"`
	Signature string  `json:"signature"`
}

// Message is the application and control wire type gossiped through the
// mesh (spec §3). Data carries an opaque, already-JSON-encoded payload.
type Message struct {
	ID      string  `json:"id"`
	Address Address `json:"address"`
	AppID   string  `json:"appId"`

	// TTL bounds how many hops this message may travel: a node forwards it
	// only while len(signatures) < TTL (spec §4.3). TTL 0 is valid and not
	// special-cased: the message is still signed and memoized in its
	// originator's SeenMemory, it just never reaches the wire, because the
	// originator's own signature already makes len(signatures) == 1 > 0.
	// MaxTTL is an upper clamp applied on both send and receive, not the
	// only value a message may carry.
	TTL int `json:"ttl"`

	Type        string          `json:"type"`
	Destination Address         `json:"destination"`
	Data        json.RawMessage `json:"data,omitempty"`
	Signatures  []Signature     `json:"signatures"`
}

// Clone returns a deep-enough copy safe to hand to external On handlers by
// value (spec §5, "External On handlers receive data by value").
func (m Message) Clone() Message {
	out := m
	if m.Data != nil {
		out.Data = append(json.RawMessage(nil), m.Data...)
	}
	out.Signatures = append([]Signature(nil), m.Signatures...)
	return out
}

// withSignatures returns a copy of m with Signatures replaced, used when
// building the canonical form for a particular hop of sign/verify.
func (m Message) withSignatures(sigs []Signature) Message {
	out := m
	out.Signatures = sigs
	return out
}

// Canonical returns the deterministic byte form of the message used for
// both Sign and Verify: sorted-key JSON, no whitespace, numeric ttl,
// signatures copied as-is (spec §9 "Signature canonicalization").
func (m Message) Canonical() ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("meshnet: canonicalize message: %w", err)
	}
	return canonicalizeJSON(raw)
}

// canonicalizeJSON re-encodes arbitrary JSON bytes with object keys sorted
// at every nesting level and no insignificant whitespace, so that two
// structurally equal JSON documents produced by different encoders (or by
// re-marshaling after popping a signature) always serialize identically.
func canonicalizeJSON(raw []byte) ([]byte, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("meshnet: decode for canonicalization: %w", err)
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}
