package models

import "time"

// SourceEvent is one upcoming session as normalized by a source adapter.
// It is the only input the reconciler needs.
type SourceEvent struct {
	Source     Source `json:"source"`
	ExternalID string `json:"external_id"`
	// SeriesExternalID is the source's own series identifier, when the
	// source has one (SwissRPG event UUID). Empty for Meetup.
	SeriesExternalID string    `json:"series_external_id,omitempty"`
	URLName          string    `json:"urlname,omitempty"`
	URL              string    `json:"url"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	StartTime        time.Time `json:"start_time"`
	IsOnline         bool      `json:"is_online"`
	Hosts            []Person  `json:"hosts"`
	Attendees        []Person  `json:"attendees"`
	// LegacyRef names an event whose series this one continues.
	LegacyRef *EventRef `json:"legacy_ref,omitempty"`
	// StartsSeries is set when the event announces a brand-new series.
	StartsSeries bool   `json:"starts_series,omitempty"`
	SeriesType   string `json:"series_type,omitempty"`
	// IndicatedChannelID is the chat channel the event asks to be tied to.
	IndicatedChannelID *uint64 `json:"indicated_channel_id,omitempty"`
	NumFreeSpots       int     `json:"num_free_spots"`
	RSVPsClosed        bool    `json:"rsvps_closed"`
}

// Ref returns the (source, external id) key of the event.
func (e SourceEvent) Ref() EventRef {
	return EventRef{Source: e.Source, ExternalID: e.ExternalID}
}

// Summary projects the event into the shape consumed by the free-spots pass.
func (e SourceEvent) Summary() EventSummary {
	return EventSummary{
		Source:       e.Source,
		ExternalID:   e.ExternalID,
		Title:        e.Title,
		StartTime:    e.StartTime,
		IsOnline:     e.IsOnline,
		NumFreeSpots: e.NumFreeSpots,
		RSVPsClosed:  e.RSVPsClosed,
		URL:          e.URL,
	}
}

// EventSummary is the source-independent view of an upcoming session.
type EventSummary struct {
	Source       Source    `json:"source"`
	ExternalID   string    `json:"external_id"`
	Title        string    `json:"title"`
	StartTime    time.Time `json:"start_time"`
	IsOnline     bool      `json:"is_online"`
	NumFreeSpots int       `json:"num_free_spots"`
	RSVPsClosed  bool      `json:"rsvps_closed"`
	URL          string    `json:"url"`
}

// HasOpenSpots reports whether new players can still join.
func (s EventSummary) HasOpenSpots() bool {
	return s.NumFreeSpots > 0 && !s.RSVPsClosed
}
