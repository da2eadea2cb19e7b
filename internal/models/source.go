package models

import "fmt"

// Source identifies an external event-hosting service.
type Source string

const (
	SourceMeetup   Source = "meetup"   // Source A, the legacy platform
	SourceSwissRPG Source = "swissrpg" // Source B, the preferred scheduling target
)

// Sources lists every supported source in reconciliation order.
var Sources = []Source{SourceMeetup, SourceSwissRPG}

// ParseSource converts a user supplied name into a Source.
func ParseSource(raw string) (Source, error) {
	switch Source(raw) {
	case SourceMeetup, SourceSwissRPG:
		return Source(raw), nil
	default:
		return "", fmt.Errorf("unknown source %q", raw)
	}
}

// EventRef points at one event on one source by its native identifier.
type EventRef struct {
	Source     Source `json:"source"`
	ExternalID string `json:"external_id"`
}

func (r EventRef) String() string {
	return fmt.Sprintf("%s:%s", r.Source, r.ExternalID)
}
