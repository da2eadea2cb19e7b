package models

import (
	"time"

	"github.com/google/uuid"
)

// EventSeriesID is the internal identifier of a recurring campaign or adventure.
type EventSeriesID int64

// EventID is the internal identifier of one canonical session.
type EventID int64

// Series types recorded on creation.
const (
	SeriesTypeAdventure = "adventure"
	SeriesTypeCampaign  = "campaign"
)

// EventSeries is the identity shared by successive sessions of a campaign.
type EventSeries struct {
	ID   EventSeriesID `json:"id"`
	Type string        `json:"type"`
	// SwissRPGSeriesID is the legacy cross-source link to the Source B series
	// this series continues on. Nil until migrated or first seen on Source B.
	SwissRPGSeriesID *uuid.UUID `json:"swissrpg_event_series_id,omitempty"`
}

// Event is one canonical occurrence belonging to exactly one series.
type Event struct {
	ID                EventID        `json:"id"`
	SeriesID          EventSeriesID  `json:"event_series_id"`
	StartTime         time.Time      `json:"start_time"`
	Title             string         `json:"title"`
	Description       string         `json:"description"`
	IsOnline          bool           `json:"is_online"`
	DiscordCategoryID *int64         `json:"discord_category_id,omitempty"`
	MeetupEvent       *MeetupEvent   `json:"meetup_event,omitempty"`
	SwissRPGEvent     *SwissRPGEvent `json:"swissrpg_event,omitempty"`
}

// MeetupEvent binds a canonical event to its Meetup representation.
type MeetupEvent struct {
	ID       int64  `json:"id"`
	MeetupID string `json:"meetup_id"`
	URLName  string `json:"urlname"`
	URL      string `json:"url"`
}

// SwissRPGEvent binds a canonical event to its SwissRPG session.
type SwissRPGEvent struct {
	ID         int64     `json:"id"`
	SwissRPGID uuid.UUID `json:"swissrpg_id"`
	URL        string    `json:"url"`
}

// Source reports which external service the event lives on. An event bound
// to both sources reports Meetup, since the SwissRPG binding then came from a
// migration and the Meetup one is the original.
func (e Event) Source() (Source, bool) {
	switch {
	case e.MeetupEvent != nil:
		return SourceMeetup, true
	case e.SwissRPGEvent != nil:
		return SourceSwissRPG, true
	default:
		return "", false
	}
}

// URL returns the public link of whichever binding exists.
func (e Event) URL() string {
	if e.MeetupEvent != nil {
		return e.MeetupEvent.URL
	}
	if e.SwissRPGEvent != nil {
		return e.SwissRPGEvent.URL
	}
	return ""
}
