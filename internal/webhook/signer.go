// Package webhook signs and delivers the outbound release payload to the
// downstream release-filter service.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Sign computes the signature header value for body at timestamp (Unix
// seconds) using secret: hex-encoded HMAC-SHA256 of "{timestamp}.{body}",
// prefixed "sha256=".
func Sign(secret string, timestamp int64, body []byte) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, body)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(signedPayload))
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// CanonicalJSON marshals payload with map keys sorted recursively and
// compact separators, so the same logical payload always signs to the same
// bytes regardless of field insertion order.
func CanonicalJSON(payload any) ([]byte, error) {
	normalized, err := normalize(payload)
	if err != nil {
		return nil, err
	}
	var buf []byte
	if err := encodeCanonical(&buf, normalized); err != nil {
		return nil, err
	}
	return buf, nil
}

// normalize round-trips payload through encoding/json so structs, pointers,
// and any other Go value arrive as the plain map[string]any / []any /
// scalar tree that encodeCanonical walks.
func normalize(payload any) (any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return generic, nil
}

func encodeCanonical(buf *[]byte, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		*buf = append(*buf, '{')
		for i, k := range keys {
			if i > 0 {
				*buf = append(*buf, ',')
			}
			keyBytes, err := json.Marshal(k)
			if err != nil {
				return err
			}
			*buf = append(*buf, keyBytes...)
			*buf = append(*buf, ':')
			if err := encodeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		*buf = append(*buf, '}')
		return nil
	case []any:
		*buf = append(*buf, '[')
		for i, item := range val {
			if i > 0 {
				*buf = append(*buf, ',')
			}
			if err := encodeCanonical(buf, item); err != nil {
				return err
			}
		}
		*buf = append(*buf, ']')
		return nil
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return err
		}
		*buf = append(*buf, encoded...)
		return nil
	}
}
