package swissrpg

import (
	"time"

	"github.com/google/uuid"
)

// TimeLayout is the minute-precision UTC layout the API expects for
// request timestamps.
const TimeLayout = "2006-01-02 15:04"

// User is an organiser or attendee.
type User struct {
	DiscordID string `json:"discordId"`
	Username  string `json:"username"`
}

// Tag classifies an event. Location tags carry tagType "location".
type Tag struct {
	Code    string `json:"code"`
	Value   string `json:"value"`
	TagType string `json:"tagType"`
}

// Session is one scheduled occurrence of an Event.
type Session struct {
	UUID      uuid.UUID `json:"uuid"`
	Number    int       `json:"number"`
	Start     time.Time `json:"start"`
	Attendees []User    `json:"attendees"`
	RSVPOpen  bool      `json:"rsvpOpen"`
	OpenSeats int       `json:"openSeats"`
}

// Event is a SwissRPG event series with its current and upcoming sessions.
type Event struct {
	UUID             uuid.UUID `json:"uuid"`
	Title            string    `json:"title"`
	Organisers       []User    `json:"organisers"`
	Description      *string   `json:"description"`
	CurrentSession   *Session  `json:"currentSession"`
	UpcomingSessions []Session `json:"upcomingSessions"`
	// LegacyID is the Meetup event this series was migrated from.
	LegacyID  *uint64 `json:"legacyId"`
	Tags      []Tag   `json:"tags"`
	PublicURL string  `json:"publicUrl"`
}

// MigrateEventRequest creates a SwissRPG series continuing a Meetup event.
type MigrateEventRequest struct {
	Title       string   `json:"title"`
	Start       string   `json:"start"`
	Organisers  []string `json:"organisers"`
	Attendees   []string `json:"attendees"`
	LegacyID    int64    `json:"legacyId"`
	Description *string  `json:"description,omitempty"`
	End         *string  `json:"end,omitempty"`
}

// ScheduleSessionRequest adds the next session to an existing series.
type ScheduleSessionRequest struct {
	Start          string `json:"start"`
	Duration       int    `json:"duration"`
	IncludePlayers bool   `json:"includePlayers"`
}

// FormatTime renders t in the request layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
