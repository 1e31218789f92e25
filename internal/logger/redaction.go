package logger

import (
	"io"
	"regexp"
)

// Redactor masks credentials and tokens before they reach a log sink
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor covering LLM keys and the connected SaaS tokens
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// LLM provider keys
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
			regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),
			regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),

			// Bearer tokens
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._~+/-]+=*`),

			// Slack bot, user, app and config tokens
			regexp.MustCompile(`xox[abposr]-[a-zA-Z0-9-]{10,}`),

			// GitHub tokens
			regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{20,}`),
			regexp.MustCompile(`github_pat_[A-Za-z0-9_]{20,}`),

			// Notion integration tokens
			regexp.MustCompile(`(secret|ntn)_[A-Za-z0-9]{20,}`),

			// Linear API keys
			regexp.MustCompile(`lin_api_[A-Za-z0-9]{20,}`),

			// Google OAuth access and refresh tokens
			regexp.MustCompile(`ya29\.[A-Za-z0-9._-]+`),
			regexp.MustCompile(`1//[A-Za-z0-9_-]{20,}`),

			// Passwords and generic secrets in key/value form
			regexp.MustCompile(`password["\s:=]+[^\s"]+`),
			regexp.MustCompile(`(api_key|client_secret|refresh_token|access_token)["\s:=]+[^\s",}]+`),

			// AWS keys
			regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact masks every sensitive match in s
func (r *Redactor) Redact(s string) string {
	result := s
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// Wrap wraps an io.Writer so everything written through it is redacted
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so zerolog does not treat a shorter
// redacted line as a short write.
func (w *redactingWriter) Write(p []byte) (int, error) {
	redacted := w.redactor.Redact(string(p))
	if _, err := w.writer.Write([]byte(redacted)); err != nil {
		return 0, err
	}
	return len(p), nil
}
