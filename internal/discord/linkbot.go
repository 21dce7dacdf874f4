package discord

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/howl-bots/howl/internal/links"
	"github.com/howl-bots/howl/internal/logging"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// ColorBlurple is Discord's brand color, used for list embeds.
const ColorBlurple = 0x5865F2

// LinkBot offers link rewrites on every message and manages the
// replacement table through list/add/remove commands.
type LinkBot struct {
	chat   Chat
	table  *links.Table
	flow   *links.Flow
	router *CommandRouter
	logger *zap.Logger
}

// NewLinkBot wires the rewrite flow and the table commands.
func NewLinkBot(chat Chat, table *links.Table, prefix string, offerTimeout, undoTimeout time.Duration, logger *zap.Logger) *LinkBot {
	logger = logging.OrNop(logger)
	b := &LinkBot{
		chat:   chat,
		table:  table,
		flow:   links.NewFlow(table, chat, offerTimeout, undoTimeout, logger),
		router: NewCommandRouter(prefix),
		logger: logger.Named("linkbot"),
	}

	b.router.Register(Command{
		Name:        "list",
		Usage:       "list",
		Description: "Lists registered host replacements",
		Handler:     b.listCommand,
	})
	b.router.Register(Command{
		Name:        "add",
		Usage:       "add <host> <replacement>",
		Description: "Register or update a host replacement",
		Args:        2,
		Handler:     b.addCommand,
	})
	b.router.Register(Command{
		Name:        "remove",
		Usage:       "remove <host>",
		Description: "Remove a registered host replacement",
		Args:        1,
		Handler:     b.removeCommand,
	})
	b.router.Register(Command{
		Name:        "help",
		Usage:       "help",
		Description: "Lists commands",
		Handler:     b.helpCommand,
	})

	return b
}

// Register subscribes the bot to message-created events on session.
// Handlers run with ctx.
func (b *LinkBot) Register(ctx context.Context, session *discordgo.Session) {
	session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		b.HandleMessage(ctx, m.Message)
	})
}

// HandleMessage runs a command, or the rewrite flow, for one message.
// It blocks for as long as the flow waits for reactions.
func (b *LinkBot) HandleMessage(ctx context.Context, msg *discordgo.Message) {
	if msg == nil || msg.Author == nil || msg.Author.Bot {
		return
	}
	logger := b.logger.With(zap.String("message_id", msg.ID), zap.String("channel_id", msg.ChannelID))

	req := Request{GuildID: msg.GuildID, ChannelID: msg.ChannelID, AuthorID: msg.Author.ID}
	handled, err := b.router.Dispatch(ctx, msg.Content, req)
	if handled {
		replyCommandError(ctx, b.chat, logger, msg.ChannelID, err)
		return
	}

	state, err := b.flow.Run(ctx, links.Trigger{
		ChannelID:     msg.ChannelID,
		MessageID:     msg.ID,
		AuthorID:      msg.Author.ID,
		AuthorMention: msg.Author.Mention(),
		Content:       msg.Content,
	})
	if err != nil {
		logger.Error("Link rewrite failed", zap.Stringer("state", state), zap.Error(err))
		return
	}
	if state != links.StateSkipped {
		logger.Debug("Link rewrite finished", zap.Stringer("state", state))
	}
}

func (b *LinkBot) helpCommand(ctx context.Context, req Request) error {
	_, err := b.chat.SendMessage(ctx, req.ChannelID, b.router.Help())
	return err
}

func (b *LinkBot) listCommand(ctx context.Context, req Request) error {
	return b.chat.SendEmbed(ctx, req.ChannelID, ReplacementsEmbed(b.table.Rules()))
}

func (b *LinkBot) addCommand(ctx context.Context, req Request) error {
	if err := b.table.Add(req.Args[0], req.Args[1]); err != nil {
		return err
	}
	b.logger.Info("Added replacement", zap.String("host", req.Args[0]), zap.String("replacement", req.Args[1]))
	return b.listCommand(ctx, req)
}

func (b *LinkBot) removeCommand(ctx context.Context, req Request) error {
	removed, err := b.table.Remove(req.Args[0])
	if err != nil {
		return err
	}
	b.logger.Info("Removed replacement", zap.String("host", req.Args[0]), zap.Bool("existed", removed))
	return b.listCommand(ctx, req)
}

// ReplacementsEmbed renders the rules as the "Replacements" embed.
func ReplacementsEmbed(rules []links.Rule) *discordgo.MessageEmbed {
	var sb strings.Builder
	for _, rule := range rules {
		sb.WriteString("🔗**")
		sb.WriteString(rule.Host)
		sb.WriteString("**\n✨")
		sb.WriteString(rule.Replacement)
		sb.WriteString("\n\n")
	}

	description := strings.TrimSuffix(sb.String(), "\n\n")
	if description == "" {
		description = "No replacements registered."
	}

	return &discordgo.MessageEmbed{
		Title:       "Replacements",
		Description: description,
		Color:       ColorBlurple,
	}
}

// replyCommandError logs a failed command. Usage errors are answered in
// the channel; everything else stays in the logs.
func replyCommandError(ctx context.Context, chat Chat, logger *zap.Logger, channelID string, err error) {
	if err == nil {
		return
	}

	var usage *ErrUsage
	if errors.As(err, &usage) {
		if _, sendErr := chat.SendMessage(ctx, channelID, usage.Error()); sendErr != nil {
			logger.Warn("Failed to send usage", zap.Error(sendErr))
		}
		return
	}
	logger.Error("Command failed", zap.Error(err))
}
