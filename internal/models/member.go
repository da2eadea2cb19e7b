package models

import (
	"errors"
	"fmt"
	"strconv"
)

// MemberID is the internal identifier of a person.
type MemberID int64

// ErrInvalidMemberID marks an external person identifier that cannot be
// mapped to a member. Callers skip the single record and continue.
var ErrInvalidMemberID = errors.New("invalid member identifier")

// PersonKind tells which identity namespace a Person.ExternalID belongs to.
type PersonKind string

const (
	PersonDiscord PersonKind = "discord"
	PersonMeetup  PersonKind = "meetup"
)

// Person is a host or attendee as reported by a source.
type Person struct {
	Kind       PersonKind `json:"kind"`
	ExternalID string     `json:"external_id"`
	Name       string     `json:"name,omitempty"`
}

// NumericID parses the external identifier. Both Discord snowflakes and
// Meetup member ids are positive and fit a signed 64-bit column.
func (p Person) NumericID() (uint64, error) {
	id, err := strconv.ParseInt(p.ExternalID, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s id %q (%s)", ErrInvalidMemberID, p.Kind, p.ExternalID, p.Name)
	}
	return uint64(id), nil
}

// Member is a person known to the system.
type Member struct {
	ID          MemberID `json:"id"`
	DiscordID   *uint64  `json:"discord_id,omitempty"`
	DiscordNick *string  `json:"discord_nick,omitempty"`
	MeetupID    *uint64  `json:"meetup_id,omitempty"`
}
