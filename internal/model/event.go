package model

import (
	"fmt"
	"strings"
)

// EventType discriminates the closed set of triggering event variants.
type EventType string

const (
	// EventErratum is an advisory (erratum) change event.
	EventErratum EventType = "erratum"
	// EventCompose is a distribution compose event.
	EventCompose EventType = "compose"
	// EventJira is a tracker-issue event.
	EventJira EventType = "jira"
	// EventRoG is a merge-request ("RoG") event.
	EventRoG EventType = "rog"
)

// ValidEventTypes defines the allowed event type tags.
var ValidEventTypes = map[EventType]bool{
	EventErratum: true,
	EventCompose: true,
	EventJira:    true,
	EventRoG:     true,
}

// ParseEventType converts a string tag into an EventType.
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !ValidEventTypes[t] {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return t, nil
}

// Event is the external trigger a run processes. Immutable once captured.
type Event struct {
	Type EventType `yaml:"type"`
	ID   string    `yaml:"id"`
}

// ShortID returns an identifier suitable for record names. Merge-request
// URLs are shortened to the {COMPONENT}_MR_{NUMBER} form.
func (e Event) ShortID() string {
	if strings.HasPrefix(e.ID, "https://gitlab.com") {
		parts := strings.Split(strings.Trim(e.ID, "/"), "/")
		if len(parts) >= 4 {
			return fmt.Sprintf("%s_MR_%s", parts[len(parts)-4], parts[len(parts)-1])
		}
	}
	return e.ID
}

// InitialEvent is an event as supplied on input, before it is expanded
// into per-release ArtifactJob records.
type InitialEvent struct {
	Event Event `yaml:"event"`
}
