package meetup

import "time"

// RSVP responses.
const (
	ResponseYes      = "yes"
	ResponseNo       = "no"
	ResponseWaitlist = "waitlist"
)

// Member is a Meetup user.
type Member struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// Venue is where an event takes place.
type Venue struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
	City string `json:"city,omitempty"`
}

// Photo is an event's featured photo.
type Photo struct {
	ID int64 `json:"id"`
}

// Group is the Meetup group an event belongs to.
type Group struct {
	URLName string `json:"urlname"`
}

// RSVPRules are the RSVP settings of an event.
type RSVPRules struct {
	GuestLimit int  `json:"guest_limit"`
	Closed     bool `json:"closed"`
}

// Event is a Meetup event.
type Event struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Description           string     `json:"description"`
	SimpleHTMLDescription *string    `json:"simple_html_description,omitempty"`
	Time                  int64      `json:"time"`
	Duration              int64      `json:"duration,omitempty"`
	Link                  string     `json:"link"`
	IsOnlineEvent         bool       `json:"is_online_event"`
	RSVPLimit             *int       `json:"rsvp_limit,omitempty"`
	YesRSVPCount          int        `json:"yes_rsvp_count"`
	RSVPRules             *RSVPRules `json:"rsvp_rules,omitempty"`
	Venue                 *Venue     `json:"venue,omitempty"`
	EventHosts            []Member   `json:"event_hosts"`
	FeaturedPhoto         *Photo     `json:"featured_photo,omitempty"`
	HowToFindUs           *string    `json:"how_to_find_us,omitempty"`
	Group                 Group      `json:"group"`
}

// StartTime converts the millisecond timestamp.
func (e Event) StartTime() time.Time {
	return time.UnixMilli(e.Time).UTC()
}

// NumFreeSpots is the number of open seats. Events without an RSVP limit
// report none, since they are not advertised as having spots.
func (e Event) NumFreeSpots() int {
	if e.RSVPLimit == nil || *e.RSVPLimit <= 0 {
		return 0
	}
	return max(*e.RSVPLimit-e.YesRSVPCount, 0)
}

// RSVPsClosed reports whether RSVPs are closed on Meetup.
func (e Event) RSVPsClosed() bool {
	return e.RSVPRules != nil && e.RSVPRules.Closed
}

// NewEvent is the payload for creating an event.
type NewEvent struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Time            int64    `json:"time"`
	Duration        int64    `json:"duration,omitempty"`
	FeaturedPhotoID *int64   `json:"featured_photo_id,omitempty"`
	Hosts           []uint64 `json:"event_hosts,omitempty"`
	HowToFindUs     *string  `json:"how_to_find_us,omitempty"`
	RSVPLimit       *int     `json:"rsvp_limit,omitempty"`
	GuestLimit      *int     `json:"guest_limit,omitempty"`
	VenueID         int64    `json:"venue_id"`
}

// SetStartTime sets the millisecond timestamp.
func (n *NewEvent) SetStartTime(t time.Time) {
	n.Time = t.UnixMilli()
}

// RSVP is one member's answer to an event.
type RSVP struct {
	Member   Member `json:"member"`
	Response string `json:"response"`
}
