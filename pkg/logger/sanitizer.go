package logger

import (
	"regexp"
	"strings"
)

// Sensitive field patterns to filter from logs
var (
	adminPassPattern = regexp.MustCompile(`(?i)(x-admin-pass|admin[_-]?pass(word)?)[\s:=]+[^\s]+`)
	sessionPattern   = regexp.MustCompile(`(?i)(auth_session|session)[\s:=]+[^\s]+`)
	secretPattern    = regexp.MustCompile(`(?i)(secret|password|token)[\s:=]+[^\s]+`)
	// session ids are 64 hex characters and may appear bare in store keys
	sessionIDPattern = regexp.MustCompile(`\b[0-9a-f]{64}\b`)
	dataURIPattern   = regexp.MustCompile(`data:[a-z]+/[a-z0-9.+-]+;base64,[A-Za-z0-9+/=]{16,}`)
)

const (
	redactedPlaceholder = "[REDACTED]"
	truncatedDataURI    = "data:[TRUNCATED]"
)

// SanitizeLogMessage removes credentials and inline image payloads from log messages
func SanitizeLogMessage(message string) string {
	message = adminPassPattern.ReplaceAllString(message, "${1}="+redactedPlaceholder)
	message = sessionPattern.ReplaceAllStringFunc(message, redactSessionValue)
	message = secretPattern.ReplaceAllString(message, "${1}="+redactedPlaceholder)
	message = dataURIPattern.ReplaceAllString(message, truncatedDataURI)
	return message
}

// redactSessionValue keeps "session" labels readable ("session not found")
// and only hides values that look like session ids.
func redactSessionValue(match string) string {
	if !sessionIDPattern.MatchString(match) {
		return match
	}
	return sessionIDPattern.ReplaceAllString(match, redactedPlaceholder)
}

// SanitizeKey hides the id part of session store keys.
func SanitizeKey(key string) string {
	if strings.HasPrefix(key, "session:") {
		return "session:" + redactedPlaceholder
	}
	return key
}
