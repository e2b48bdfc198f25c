package security

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
)

// Redacted replaces values of sensitive fields in stored events.
const Redacted = "[REDACTED]"

// maxSerializedBytes caps the serialized size of a sanitized payload.
// Larger payloads are replaced with a marker recording the original size
// so the fact that data existed survives without storing it.
const maxSerializedBytes = 1000

// sensitiveFields are field names whose values are never stored verbatim,
// matched case-insensitively at any nesting depth.
var sensitiveFields = map[string]struct{}{
	"password":      {},
	"token":         {},
	"secret":        {},
	"key":           {},
	"authorization": {},
	"cookie":        {},
}

// sensitiveHeaders extends sensitiveFields for header sanitization.
var sensitiveHeaders = map[string]struct{}{
	"authorization": {},
	"cookie":        {},
	"x-api-key":     {},
	"x-auth-token":  {},
}

// Redact walks a decoded JSON value and replaces the value of every
// sensitive field with the redaction marker. The input is not modified.
func Redact(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			if _, sensitive := sensitiveFields[strings.ToLower(k)]; sensitive {
				out[k] = Redacted
				continue
			}
			out[k] = Redact(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = Redact(inner)
		}
		return out
	default:
		return v
	}
}

// MarshalCapped serializes a sanitized value to JSON text. If the result
// exceeds the size cap it is replaced with an omission marker carrying
// the original serialized size.
func MarshalCapped(v interface{}) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	if len(b) > maxSerializedBytes {
		marker, _ := json.Marshal(map[string]interface{}{
			"_omitted":       true,
			"_original_size": len(b),
		})
		return string(marker)
	}
	return string(b)
}

// SanitizeBody redacts a decoded request body and serializes it with the
// size cap applied.
func SanitizeBody(body interface{}) string {
	if body == nil {
		return ""
	}
	return MarshalCapped(Redact(body))
}

// SanitizeHeaders returns a redacted, size-capped JSON copy of request
// headers. Multi-valued headers keep their first value only.
func SanitizeHeaders(h http.Header) string {
	if len(h) == 0 {
		return ""
	}
	out := make(map[string]interface{}, len(h))
	for k, vals := range h {
		if len(vals) == 0 {
			continue
		}
		lower := strings.ToLower(k)
		if _, sensitive := sensitiveHeaders[lower]; sensitive {
			out[k] = Redacted
			continue
		}
		if _, sensitive := sensitiveFields[lower]; sensitive {
			out[k] = Redacted
			continue
		}
		out[k] = ForLog(vals[0])
	}
	return MarshalCapped(out)
}

// SanitizeQuery redacts query parameters and serializes them with the
// size cap applied.
func SanitizeQuery(q map[string][]string) string {
	if len(q) == 0 {
		return ""
	}
	out := make(map[string]interface{}, len(q))
	for k, vals := range q {
		if len(vals) == 0 {
			continue
		}
		if _, sensitive := sensitiveFields[strings.ToLower(k)]; sensitive {
			out[k] = Redacted
			continue
		}
		out[k] = ForLog(vals[0])
	}
	return MarshalCapped(out)
}

// Fingerprint derives a stable hash of the client-identifying header
// tuple, used to correlate repeat offenders across address rotation.
func Fingerprint(userAgent, acceptLanguage, acceptEncoding, sourceAddress string) string {
	sum := md5.Sum([]byte(strings.Join([]string{userAgent, acceptLanguage, acceptEncoding, sourceAddress}, "|")))
	return hex.EncodeToString(sum[:])
}

var controlChars = regexp.MustCompile(`[\x00-\x1F\x7F]+`)

// ForLog removes control characters and newlines from user content and
// truncates long values before logging or storing.
func ForLog(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = controlChars.ReplaceAllString(s, " ")
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
