package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureLogger_RedactsSensitiveQuery(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		status   int
		wantPath string
		wantLvl  string
	}{
		{"reset token redacted", "/auth/password-reset/validate?token=abc", http.StatusOK, "/auth/password-reset/validate?[REDACTED]", "INFO"},
		{"oauth callback redacted", "/auth/external/callback?code=x&state=y", http.StatusFound, "/auth/external/callback?[REDACTED]", "INFO"},
		{"plain query kept", "/health?verbose=1", http.StatusOK, "/health?verbose=1", "INFO"},
		{"server errors logged as errors", "/auth/login", http.StatusInternalServerError, "/auth/login", "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			handler := SecureLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", tt.target, nil))

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.wantPath, entry["path"])
			assert.Equal(t, tt.wantLvl, entry["level"])
			assert.EqualValues(t, tt.status, entry["status"])
			assert.NotContains(t, buf.String(), "token=abc")
		})
	}
}
