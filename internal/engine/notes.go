// Package engine implements the per-trial consent measurement protocol.
package engine

import (
	"fmt"
	"strings"
)

// noteEvent is one absorbed failure or noteworthy step, tagged with the
// protocol stage it happened in.
type noteEvent struct {
	Stage   string
	Message string
}

// noteLog accumulates events during a trial. Probes append here instead of
// failing; the log is flattened into the observation's notes field only when
// the row is built.
type noteLog struct {
	events []noteEvent
}

func (n *noteLog) add(stage, format string, args ...interface{}) {
	n.events = append(n.events, noteEvent{Stage: stage, Message: fmt.Sprintf(format, args...)})
}

func (n *noteLog) addErr(stage, what string, err error) {
	n.add(stage, "%s: %s", what, truncate(err.Error(), 120))
}

// String renders the log as the single free-text notes field.
func (n *noteLog) String() string {
	if len(n.events) == 0 {
		return ""
	}
	parts := make([]string, len(n.events))
	for i, ev := range n.events {
		if ev.Stage != "" {
			parts[i] = ev.Stage + ": " + ev.Message
		} else {
			parts[i] = ev.Message
		}
	}
	return strings.Join(parts, "; ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
