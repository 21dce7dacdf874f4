package discord

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/howl-bots/howl/internal/eventsync"
	"github.com/howl-bots/howl/internal/logging"

	"github.com/bwmarrin/discordgo"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// MaxMessageLength is Discord's limit for message content.
const MaxMessageLength = 2000

// CalendarBot mirrors guild scheduled events into the calendar as they
// change, and answers the list/sync/cleanup commands.
type CalendarBot struct {
	chat    Chat
	syncer  *eventsync.Syncer
	router  *CommandRouter
	guildID string
	cron    *cron.Cron
	logger  *zap.Logger
}

// NewCalendarBot creates the bot. A non-empty guildID restricts the
// event handlers to that guild and is the target of scheduled syncs.
func NewCalendarBot(chat Chat, syncer *eventsync.Syncer, prefix, guildID string, logger *zap.Logger) *CalendarBot {
	b := &CalendarBot{
		chat:    chat,
		syncer:  syncer,
		router:  NewCommandRouter(prefix),
		guildID: guildID,
		logger:  logging.OrNop(logger).Named("calendarbot"),
	}

	b.router.Register(Command{Name: "list", Usage: "list", Description: "Lists calendar events", Handler: b.listCommand})
	b.router.Register(Command{Name: "sync", Usage: "sync", Description: "Synchronises guild events to the calendar", Handler: b.syncCommand})
	b.router.Register(Command{Name: "cleanup", Usage: "cleanup", Description: "Removes calendar events with no guild event", Handler: b.cleanupCommand})
	b.router.Register(Command{Name: "help", Usage: "help", Description: "Lists commands", Handler: func(ctx context.Context, req Request) error {
		_, err := b.chat.SendMessage(ctx, req.ChannelID, b.router.Help())
		return err
	}})

	return b
}

// Register subscribes the bot to message and guild scheduled event updates.
func (b *CalendarBot) Register(ctx context.Context, session *discordgo.Session) {
	session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		b.HandleMessage(ctx, m.Message)
	})
	session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildScheduledEventCreate) {
		b.HandleEventChanged(ctx, e.GuildScheduledEvent)
	})
	session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildScheduledEventUpdate) {
		b.HandleEventChanged(ctx, e.GuildScheduledEvent)
	})
	session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildScheduledEventDelete) {
		b.HandleEventDeleted(ctx, e.GuildScheduledEvent)
	})
}

func (b *CalendarBot) watches(guildID string) bool {
	return b.guildID == "" || b.guildID == guildID
}

// HandleEventChanged creates or updates the calendar event for a guild event.
func (b *CalendarBot) HandleEventChanged(ctx context.Context, event *discordgo.GuildScheduledEvent) {
	if event == nil || !b.watches(event.GuildID) {
		return
	}
	if err := b.syncer.CreateOrUpdate(ctx, GuildEventFromDiscord(event)); err != nil {
		b.logger.Error("Failed to mirror guild event",
			zap.String("discord_id", event.ID),
			zap.String("name", event.Name),
			zap.Error(err))
	}
}

// HandleEventDeleted removes the calendar event for a deleted guild event.
func (b *CalendarBot) HandleEventDeleted(ctx context.Context, event *discordgo.GuildScheduledEvent) {
	if event == nil || !b.watches(event.GuildID) {
		return
	}
	if err := b.syncer.Delete(ctx, event.ID); err != nil {
		b.logger.Error("Failed to delete mirrored event", zap.String("discord_id", event.ID), zap.Error(err))
	}
}

// HandleMessage runs a calendar command. Messages outside a guild are ignored.
func (b *CalendarBot) HandleMessage(ctx context.Context, msg *discordgo.Message) {
	if msg == nil || msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return
	}
	logger := b.logger.With(zap.String("message_id", msg.ID), zap.String("guild_id", msg.GuildID))

	req := Request{GuildID: msg.GuildID, ChannelID: msg.ChannelID, AuthorID: msg.Author.ID}
	if _, err := b.router.Dispatch(ctx, msg.Content, req); err != nil {
		replyCommandError(ctx, b.chat, logger, msg.ChannelID, err)
	}
}

func (b *CalendarBot) listCommand(ctx context.Context, req Request) error {
	if _, err := b.chat.SendMessage(ctx, req.ChannelID, "Fetching calendar events..."); err != nil {
		return err
	}

	events, err := b.syncer.ListEvents(ctx)
	if err != nil {
		return err
	}

	summaries := make([]string, 0, len(events))
	for _, event := range events {
		summaries = append(summaries, event.Summary)
	}
	if len(summaries) == 0 {
		summaries = append(summaries, "No calendar events.")
	}

	for _, chunk := range ChunkLines(summaries, MaxMessageLength) {
		if _, err := b.chat.SendMessage(ctx, req.ChannelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (b *CalendarBot) syncCommand(ctx context.Context, req Request) error {
	if _, err := b.chat.SendMessage(ctx, req.ChannelID, "Synchronising events"); err != nil {
		return err
	}

	synced, _, syncErr := b.SyncGuild(ctx, req.GuildID, false)

	if _, err := b.chat.SendMessage(ctx, req.ChannelID, fmt.Sprintf("Finished synchronising %d event(s)", synced)); err != nil {
		return err
	}
	return syncErr
}

func (b *CalendarBot) cleanupCommand(ctx context.Context, req Request) error {
	if _, err := b.chat.SendMessage(ctx, req.ChannelID, "Removing unlinked events"); err != nil {
		return err
	}

	guildEvents, err := b.chat.GuildEvents(ctx, req.GuildID)
	if err != nil {
		return err
	}
	removed, cleanupErr := b.syncer.Cleanup(ctx, guildEvents)

	if _, err := b.chat.SendMessage(ctx, req.ChannelID, fmt.Sprintf("Removed %d unlinked events", removed)); err != nil {
		return err
	}
	return cleanupErr
}

// SyncGuild mirrors every scheduled event of guildID and, with cleanup set,
// then removes unlinked calendar events. Cleanup is skipped when the sync
// had failures, so a partial view never deletes anything.
func (b *CalendarBot) SyncGuild(ctx context.Context, guildID string, cleanup bool) (int, int, error) {
	guildEvents, err := b.chat.GuildEvents(ctx, guildID)
	if err != nil {
		return 0, 0, err
	}

	synced, err := b.syncer.FullSync(ctx, guildEvents)
	if err != nil || !cleanup {
		return synced, 0, err
	}

	removed, err := b.syncer.Cleanup(ctx, guildEvents)
	return synced, removed, err
}

// StartSchedule runs SyncGuild for the configured guild on a cron spec.
// Runs that would overlap a still-running sync are skipped.
func (b *CalendarBot) StartSchedule(ctx context.Context, spec string) error {
	if b.guildID == "" {
		return fmt.Errorf("scheduled sync requires a guild ID")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		synced, _, err := b.SyncGuild(ctx, b.guildID, false)
		if err != nil {
			b.logger.Warn("Scheduled sync finished with errors", zap.Int("synced", synced), zap.Error(err))
			return
		}
		b.logger.Info("Scheduled sync finished", zap.Int("synced", synced))
	})
	if err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", spec, err)
	}

	c.Start()
	b.cron = c
	b.logger.Info("Scheduled sync enabled", zap.String("schedule", spec), zap.String("guild_id", b.guildID))
	return nil
}

// Stop ends the sync schedule and waits for a running sync to finish.
func (b *CalendarBot) Stop() {
	if b.cron == nil {
		return
	}
	<-b.cron.Stop().Done()
}

// ChunkLines joins lines with newlines into messages of at most limit bytes.
// A single line longer than limit is split on a rune boundary.
func ChunkLines(lines []string, limit int) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, line := range lines {
		for len(line) > limit {
			flush()
			cut := limit
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				_, cut = utf8.DecodeRuneInString(line)
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if current.Len() > 0 && current.Len()+1+len(line) > limit {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	flush()

	return chunks
}
