// Package eventsync mirrors guild scheduled events into a calendar.
// Calendar events are tied to their guild event through the shared extended
// property "discord_id"; no other field is used for matching.
package eventsync

import (
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"
)

const (
	// CorrelationKey is the shared extended property holding the guild event ID.
	CorrelationKey = "discord_id"
	// SummaryTag prefixes the summary of every mirrored event.
	SummaryTag = "[EventSync]"
	// DefaultDuration is used when a guild event has no end time.
	DefaultDuration = time.Hour
)

// GuildEvent is the subset of a guild scheduled event the sync needs.
type GuildEvent struct {
	ID          string
	Name        string
	Description string
	Start       time.Time
	End         *time.Time
	Location    string
	// External events take place outside a voice or stage channel;
	// only those carry a location.
	External bool
}

// CorrelationID returns the guild event ID stored on a calendar event.
func CorrelationID(event *calendar.Event) (string, bool) {
	if event == nil || event.ExtendedProperties == nil || event.ExtendedProperties.Shared == nil {
		return "", false
	}
	id, ok := event.ExtendedProperties.Shared[CorrelationKey]
	return id, ok
}

// FindMatch returns the first calendar event correlated with guildEventID, or nil.
func FindMatch(events []*calendar.Event, guildEventID string) *calendar.Event {
	for _, event := range events {
		if id, ok := CorrelationID(event); ok && id == guildEventID {
			return event
		}
	}
	return nil
}

// PopulateEvent copies the guild event's fields onto event and stamps the
// correlation ID. A nil event starts a new one. The event is returned for chaining.
func PopulateEvent(event *calendar.Event, guildEvent GuildEvent) *calendar.Event {
	if event == nil {
		event = &calendar.Event{}
	}

	end := guildEvent.Start.Add(DefaultDuration)
	if guildEvent.End != nil {
		end = *guildEvent.End
	}

	event.Summary = SummaryTag + " " + guildEvent.Name
	event.Description = guildEvent.Description
	event.Start = &calendar.EventDateTime{DateTime: guildEvent.Start.Format(time.RFC3339)}
	event.End = &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)}
	if guildEvent.External {
		event.Location = guildEvent.Location
	}

	if event.ExtendedProperties == nil {
		event.ExtendedProperties = &calendar.EventExtendedProperties{}
	}
	if event.ExtendedProperties.Shared == nil {
		event.ExtendedProperties.Shared = map[string]string{}
	}
	event.ExtendedProperties.Shared[CorrelationKey] = guildEvent.ID

	return event
}

// DanglingEvents returns the calendar events with no live guild event behind them:
// events whose correlation ID is unknown, and events with no correlation ID at all.
// With requireTag set, only events whose summary carries SummaryTag are considered.
func DanglingEvents(events []*calendar.Event, guildEvents []GuildEvent, requireTag bool) []*calendar.Event {
	live := make(map[string]struct{}, len(guildEvents))
	for _, guildEvent := range guildEvents {
		live[guildEvent.ID] = struct{}{}
	}

	var dangling []*calendar.Event
	for _, event := range events {
		if id, ok := CorrelationID(event); ok {
			if _, exists := live[id]; exists {
				continue
			}
		}
		if requireTag && !strings.HasPrefix(event.Summary, SummaryTag) {
			continue
		}
		dangling = append(dangling, event)
	}

	return dangling
}
