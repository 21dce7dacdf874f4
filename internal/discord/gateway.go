// Package discord connects the link and calendar bots to a Discord session.
package discord

import (
	"context"
	"fmt"

	"github.com/howl-bots/howl/internal/eventsync"
	"github.com/howl-bots/howl/internal/links"
	"github.com/howl-bots/howl/internal/logging"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Intents needed by both bots.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsGuildScheduledEvents

// Chat is the Discord surface the bots use.
type Chat interface {
	links.Messenger
	SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) error
	GuildEvents(ctx context.Context, guildID string) ([]eventsync.GuildEvent, error)
}

// Gateway implements Chat over a discordgo session.
type Gateway struct {
	session *discordgo.Session
	waiters *ReactionWaiters
	logger  *zap.Logger
}

// NewSession creates a bot session with the intents both bots need.
// The session is not opened.
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = Intents
	return session, nil
}

// NewGateway wraps session and starts routing reaction-add events to waiters.
func NewGateway(session *discordgo.Session, logger *zap.Logger) *Gateway {
	g := &Gateway{
		session: session,
		waiters: NewReactionWaiters(),
		logger:  logging.OrNop(logger).Named("gateway"),
	}
	session.AddHandler(g.onReactionAdd)
	return g
}

func (g *Gateway) onReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.MessageReaction == nil {
		return
	}
	if g.waiters.Dispatch(r.MessageID, r.UserID, r.Emoji.Name) {
		g.logger.Debug("Delivered reaction",
			zap.String("message_id", r.MessageID),
			zap.String("user_id", r.UserID),
			zap.String("emoji", r.Emoji.Name))
	}
}

func (g *Gateway) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	msg, err := g.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return msg.ID, nil
}

func (g *Gateway) SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) error {
	if _, err := g.session.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send embed: %w", err)
	}
	return nil
}

func (g *Gateway) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	if err := g.session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to add reaction: %w", err)
	}
	return nil
}

func (g *Gateway) RemoveReactions(ctx context.Context, channelID, messageID, emoji string) error {
	if err := g.session.MessageReactionsRemoveEmoji(channelID, messageID, emoji, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to remove reactions: %w", err)
	}
	return nil
}

func (g *Gateway) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := g.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// SuppressEmbeds hides the link previews of a message.
func (g *Gateway) SuppressEmbeds(ctx context.Context, channelID, messageID string) error {
	_, err := g.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:      messageID,
		Channel: channelID,
		Flags:   discordgo.MessageFlagsSuppressEmbeds,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to suppress embeds: %w", err)
	}
	return nil
}

func (g *Gateway) WatchReactions(channelID, messageID, userID string) (<-chan string, func()) {
	return g.waiters.Watch(messageID, userID)
}

// GuildEvents lists the guild's scheduled events in the order Discord returns them.
func (g *Gateway) GuildEvents(ctx context.Context, guildID string) ([]eventsync.GuildEvent, error) {
	events, err := g.session.GuildScheduledEvents(guildID, false, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list guild scheduled events: %w", err)
	}

	out := make([]eventsync.GuildEvent, 0, len(events))
	for _, event := range events {
		out = append(out, GuildEventFromDiscord(event))
	}
	return out, nil
}

// GuildEventFromDiscord converts a discordgo scheduled event.
func GuildEventFromDiscord(event *discordgo.GuildScheduledEvent) eventsync.GuildEvent {
	return eventsync.GuildEvent{
		ID:          event.ID,
		Name:        event.Name,
		Description: event.Description,
		Start:       event.ScheduledStartTime,
		End:         event.ScheduledEndTime,
		Location:    event.EntityMetadata.Location,
		External:    event.EntityType == discordgo.GuildScheduledEventEntityTypeExternal,
	}
}
