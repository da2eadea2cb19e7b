// Package rewrite derives the title and description of a follow-up session
// and parses the bracketed shortcodes organisers put into descriptions.
package rewrite

import (
	"regexp"
	"strconv"
)

var (
	newAdventurePattern = regexp.MustCompile(`(?i)[\[\(]\s*new\s*adventure\s*[\]\)]`)
	newCampaignPattern  = regexp.MustCompile(`(?i)[\[\(]\s*new\s*campaign\s*[\]\)]`)
	channelPattern      = regexp.MustCompile(`(?i)[\[\(]\s*channel\s*(?P<channel_id>[0-9]+)\s*[\]\)]`)
	campaignPattern     = regexp.MustCompile(`(?i)[\[\(]\s*campaign\s*(?P<event_id>[0-9a-z]+)\s*[\]\)]`)
	closedPattern       = regexp.MustCompile(`(?i)[\[\(]\s*closed\s*[\]\)]`)
	onlinePattern       = regexp.MustCompile(`(?i)[\[\(]\s*online\s*[\]\)]`)
)

// Shortcodes are the markers found in an event description.
type Shortcodes struct {
	NewAdventure bool
	NewCampaign  bool
	// ChannelID is set by [channel N].
	ChannelID *uint64
	// CampaignEventID is set by [campaign X]; X is the event whose series
	// this event continues.
	CampaignEventID string
	Closed          bool
	Online          bool
}

// StartsSeries reports whether the description announces a new series.
func (s Shortcodes) StartsSeries() bool {
	return s.NewAdventure || s.NewCampaign
}

// ParseShortcodes scans a description. A malformed channel id is ignored.
func ParseShortcodes(description string) Shortcodes {
	s := Shortcodes{
		NewAdventure: newAdventurePattern.MatchString(description),
		NewCampaign:  newCampaignPattern.MatchString(description),
		Closed:       closedPattern.MatchString(description),
		Online:       onlinePattern.MatchString(description),
	}
	if m := channelPattern.FindStringSubmatch(description); m != nil {
		raw := m[channelPattern.SubexpIndex("channel_id")]
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil && id != 0 {
			s.ChannelID = &id
		}
	}
	if m := campaignPattern.FindStringSubmatch(description); m != nil {
		s.CampaignEventID = m[campaignPattern.SubexpIndex("event_id")]
	}
	return s
}
