package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/howl-bots/howl/internal/eventsync"

	"github.com/bwmarrin/discordgo"
	"google.golang.org/api/calendar/v3"
)

// fakeChat is an in-memory Chat. No reactions ever arrive.
type fakeChat struct {
	mu          sync.Mutex
	messages    []string
	embeds      []*discordgo.MessageEmbed
	reactions   []string
	unreacted   []string
	guildEvents []eventsync.GuildEvent
	nextID      int
}

func (f *fakeChat) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.messages = append(f.messages, content)
	return fmt.Sprintf("m%d", f.nextID), nil
}

func (f *fakeChat) SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeds = append(f.embeds, embed)
	return nil
}

func (f *fakeChat) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, messageID+" "+emoji)
	return nil
}

func (f *fakeChat) RemoveReactions(ctx context.Context, channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unreacted = append(f.unreacted, messageID+" "+emoji)
	return nil
}

func (f *fakeChat) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return nil
}

func (f *fakeChat) SuppressEmbeds(ctx context.Context, channelID, messageID string) error {
	return nil
}

func (f *fakeChat) WatchReactions(channelID, messageID, userID string) (<-chan string, func()) {
	return make(chan string), func() {}
}

func (f *fakeChat) GuildEvents(ctx context.Context, guildID string) ([]eventsync.GuildEvent, error) {
	return f.guildEvents, nil
}

// memoryCalendar is an in-memory CalendarClient.
type memoryCalendar struct {
	events  []*calendar.Event
	deleted []string
	nextID  int
}

func (m *memoryCalendar) ListEvents(ctx context.Context, calendarID string) ([]*calendar.Event, error) {
	return append([]*calendar.Event(nil), m.events...), nil
}

func (m *memoryCalendar) InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error) {
	m.nextID++
	event.Id = fmt.Sprintf("cal-%d", m.nextID)
	m.events = append(m.events, event)
	return event, nil
}

func (m *memoryCalendar) UpdateEvent(ctx context.Context, calendarID, eventID string, event *calendar.Event) error {
	for i, e := range m.events {
		if e.Id == eventID {
			m.events[i] = event
		}
	}
	return nil
}

func (m *memoryCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	m.deleted = append(m.deleted, eventID)
	for i, e := range m.events {
		if e.Id == eventID {
			m.events = append(m.events[:i], m.events[i+1:]...)
			break
		}
	}
	return nil
}
