package rewrite

import (
	"fmt"
	"regexp"
)

// Action is what a rule does with its pattern.
type Action int

const (
	// Strip removes every match.
	Strip Action = iota
	// AppendIfMissing appends the rule's text when nothing matches.
	AppendIfMissing
)

// Context carries the facts rules may depend on.
type Context struct {
	// OriginalEventID is the id of the event being continued.
	OriginalEventID string
	// OpenEvent marks a session anyone may join.
	OpenEvent bool
}

// Rule is one declarative description rewrite.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Action  Action
	// When limits the rule to some contexts. Nil means always.
	When func(Context) bool
	// Text produces what AppendIfMissing appends.
	Text func(Context) string
}

// ContinuationRules turn the description of a session into the description
// of the session that follows it.
var ContinuationRules = []Rule{
	{Name: "new adventure", Pattern: newAdventurePattern, Action: Strip},
	{Name: "new campaign", Pattern: newCampaignPattern, Action: Strip},
	{Name: "channel", Pattern: channelPattern, Action: Strip},
	{
		Name:    "closed",
		Pattern: closedPattern,
		Action:  Strip,
		When:    func(c Context) bool { return c.OpenEvent },
	},
	{
		Name:    "campaign",
		Pattern: campaignPattern,
		Action:  AppendIfMissing,
		Text: func(c Context) string {
			return fmt.Sprintf("\n[campaign %s]", c.OriginalEventID)
		},
	},
}

// Apply runs rules over text in order.
func Apply(rules []Rule, text string, ctx Context) string {
	for _, r := range rules {
		if r.When != nil && !r.When(ctx) {
			continue
		}
		switch r.Action {
		case Strip:
			text = r.Pattern.ReplaceAllString(text, "")
		case AppendIfMissing:
			if !r.Pattern.MatchString(text) && r.Text != nil {
				text += r.Text(ctx)
			}
		}
	}
	return text
}

// ContinuationDescription rewrites the description of event originalID for
// its next session.
func ContinuationDescription(description, originalID string, openEvent bool) string {
	return Apply(ContinuationRules, description, Context{OriginalEventID: originalID, OpenEvent: openEvent})
}
