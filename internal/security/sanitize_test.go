package security

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact_SensitiveFieldsAtAnyDepth(t *testing.T) {
	body := map[string]interface{}{
		"email":    "user@example.com",
		"Password": "hunter2",
		"profile": map[string]interface{}{
			"TOKEN": "abc123",
			"items": []interface{}{
				map[string]interface{}{"secret": "deep", "name": "ok"},
			},
		},
	}

	out := Redact(body).(map[string]interface{})

	assert.Equal(t, "user@example.com", out["email"])
	assert.Equal(t, Redacted, out["Password"])

	profile := out["profile"].(map[string]interface{})
	assert.Equal(t, Redacted, profile["TOKEN"])

	item := profile["items"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, Redacted, item["secret"])
	assert.Equal(t, "ok", item["name"])

	// Original is untouched.
	assert.Equal(t, "hunter2", body["Password"])
}

func TestRedact_Idempotent(t *testing.T) {
	body := map[string]interface{}{"password": "x", "nested": map[string]interface{}{"key": "y"}}

	once := Redact(body)
	twice := Redact(once)
	assert.Equal(t, once, twice)
}

func TestSanitizeBody_NeverStoresSensitiveVerbatim(t *testing.T) {
	body := map[string]interface{}{
		"password":      "supersecretvalue",
		"authorization": "Bearer tok",
		"q":             "laptops",
	}

	stored := SanitizeBody(body)
	assert.NotContains(t, stored, "supersecretvalue")
	assert.NotContains(t, stored, "Bearer tok")
	assert.Contains(t, stored, "laptops")
}

func TestMarshalCapped_ReplacesOversizedPayload(t *testing.T) {
	big := map[string]interface{}{"data": strings.Repeat("a", 2000)}

	stored := MarshalCapped(big)

	var marker map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stored), &marker))
	assert.Equal(t, true, marker["_omitted"])
	assert.Greater(t, marker["_original_size"].(float64), float64(2000))
	assert.NotContains(t, stored, "aaaa")
}

func TestSanitizeHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("User-Agent", "curl/8.0")
	h.Set("Authorization", "Bearer secret-token")
	h.Set("Cookie", "session=xyz")
	h.Set("X-API-Key", "the-key")
	h.Set("X-Auth-Token", "tok")

	stored := SanitizeHeaders(h)

	var out map[string]string
	require.NoError(t, json.Unmarshal([]byte(stored), &out))
	assert.Equal(t, "curl/8.0", out["User-Agent"])
	assert.Equal(t, Redacted, out["Authorization"])
	assert.Equal(t, Redacted, out["Cookie"])
	assert.Equal(t, Redacted, out["X-Api-Key"])
	assert.Equal(t, Redacted, out["X-Auth-Token"])
}

func TestSanitizeQuery(t *testing.T) {
	stored := SanitizeQuery(map[string][]string{
		"q":     {"shoes"},
		"token": {"leaky"},
	})

	assert.Contains(t, stored, "shoes")
	assert.NotContains(t, stored, "leaky")
}

func TestFingerprint_StableAndDistinct(t *testing.T) {
	a := Fingerprint("Mozilla", "en-US", "gzip", "1.2.3.4")
	b := Fingerprint("Mozilla", "en-US", "gzip", "1.2.3.4")
	c := Fingerprint("Mozilla", "en-US", "gzip", "5.6.7.8")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}

func TestForLog(t *testing.T) {
	assert.Equal(t, "a b", ForLog("a\r\nb"))
	assert.Equal(t, "x y", ForLog("x\x00\x1fy"))
	assert.Len(t, ForLog(strings.Repeat("z", 500)), 200)
	assert.Equal(t, "", ForLog(""))
}
