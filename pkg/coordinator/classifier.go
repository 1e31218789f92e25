package coordinator

import (
	"strings"

	"github.com/harun/conflux/pkg/agent"
)

// DefaultFailureWindow is how many leading bytes of a tool output are
// searched for "error"
const DefaultFailureWindow = 50

// OutcomeClassifier decides whether a tool invocation failed
type OutcomeClassifier interface {
	Failed(entry agent.TraceEntry) bool
}

// LeadingErrorClassifier fails an invocation when "error" appears,
// case-insensitively, within the first Window bytes of its output. An
// invocation carrying an error always fails.
type LeadingErrorClassifier struct {
	Window int
}

// Failed implements OutcomeClassifier
func (c LeadingErrorClassifier) Failed(entry agent.TraceEntry) bool {
	if entry.Err != nil {
		return true
	}

	window := c.Window
	if window <= 0 {
		window = DefaultFailureWindow
	}

	head := entry.Output
	if len(head) > window {
		head = head[:window]
	}
	return strings.Contains(strings.ToLower(head), "error")
}

// ClassifierFunc adapts a function to OutcomeClassifier
type ClassifierFunc func(entry agent.TraceEntry) bool

// Failed calls f
func (f ClassifierFunc) Failed(entry agent.TraceEntry) bool {
	return f(entry)
}
