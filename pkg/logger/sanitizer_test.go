package logger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeLogMessage(t *testing.T) {
	sid := strings.Repeat("ab", 32)

	tests := []struct {
		name    string
		in      string
		hidden  string
		visible string
	}{
		{"admin header", "X-Admin-Pass: hunter2hunter2", "hunter2hunter2", "X-Admin-Pass"},
		{"session cookie", "auth_session=" + sid, sid, "auth_session"},
		{"session key", "get session:" + sid + " failed", sid, "failed"},
		{"plain session message", "session not found or expired", "", "session not found or expired"},
		{"password", "password=letmein", "letmein", "password"},
		{"inline image", "body data:image/png;base64," + strings.Repeat("QUJD", 10), "QUJDQUJD", "data:[TRUNCATED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := SanitizeLogMessage(tt.in)
			if tt.hidden != "" {
				assert.NotContains(t, out, tt.hidden)
			}
			assert.Contains(t, out, tt.visible)
		})
	}
}

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "session:[REDACTED]", SanitizeKey("session:abc"))
	assert.Equal(t, "project:p1", SanitizeKey("project:p1"))
}
