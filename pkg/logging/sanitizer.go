package logging

import (
	"regexp"
	"strings"
)

const (
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Pattern to match potential passwords in connection strings
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Pattern to match connection string credentials (user:pass@host format)
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)

	// Pattern to match email addresses embedded in messages. Customer emails
	// are tracked dimension attributes and must not land in logs verbatim.
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
)

// SanitizeConnectionString removes sensitive data from connection strings.
// Use this before logging any connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// MaskEmail masks the local part of an email address, leaving the first
// character and the domain visible: "carol@example.com" -> "c***@example.com".
// Empty or malformed values are returned unchanged.
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return email
	}
	return email[:1] + "***" + email[at:]
}

// SanitizeRecord redacts email addresses embedded anywhere in a free-form
// message, such as a rejected raw record rendered into a validation reason.
func SanitizeRecord(msg string) string {
	if msg == "" {
		return ""
	}
	return emailPattern.ReplaceAllStringFunc(msg, MaskEmail)
}

// SanitizeError sanitizes error messages that might contain sensitive data.
// Use this before logging any error from warehouse operations.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}
