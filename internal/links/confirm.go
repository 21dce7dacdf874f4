package links

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/howl-bots/howl/internal/logging"

	"go.uber.org/zap"
)

// Reaction affordances.
const (
	EmojiReplace = "\U0001F4E4"       // 📤 replace the original message
	EmojiAdd     = "\U0001F4E5"       // 📥 post alongside the original
	EmojiUndo    = "\U0001F5D1\uFE0F" // 🗑️ delete the rewritten message
)

const variationSelector = "\uFE0F"

var errReactionTimeout = errors.New("timed out waiting for reaction")

// Messenger is the chat surface the confirmation flow drives.
type Messenger interface {
	SendMessage(ctx context.Context, channelID, content string) (string, error)
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	RemoveReactions(ctx context.Context, channelID, messageID, emoji string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	SuppressEmbeds(ctx context.Context, channelID, messageID string) error
	// WatchReactions delivers the emoji of every reaction userID adds to
	// messageID until stop is called. stop may be called more than once.
	WatchReactions(channelID, messageID, userID string) (reactions <-chan string, stop func())
}

// Choice is what a reaction asks the flow to do.
type Choice int

const (
	ChoiceNone Choice = iota
	ChoiceReplace
	ChoiceAdd
	ChoiceUndo
)

// Choose maps a reaction emoji to a Choice. Variation selectors are ignored,
// since clients do not agree on whether 🗑 carries one.
func Choose(emoji string) Choice {
	switch strings.TrimSuffix(emoji, variationSelector) {
	case EmojiReplace:
		return ChoiceReplace
	case EmojiAdd:
		return ChoiceAdd
	case strings.TrimSuffix(EmojiUndo, variationSelector):
		return ChoiceUndo
	default:
		return ChoiceNone
	}
}

// State is a step of the confirmation flow.
type State int

const (
	// StateSkipped: the message had nothing to rewrite.
	StateSkipped State = iota
	// StateOffered: replace/add reactions are on the original message.
	StateOffered
	// StateUndoOffered: the rewritten message is posted with an undo reaction.
	StateUndoOffered
	// StateDone: the author never chose; affordances were cleared.
	StateDone
	// StateUndone: the author undid the rewrite.
	StateUndone
	// StateConfirmed: the undo window closed with the rewrite kept.
	StateConfirmed
)

func (s State) String() string {
	switch s {
	case StateSkipped:
		return "skipped"
	case StateOffered:
		return "offered"
	case StateUndoOffered:
		return "undo offered"
	case StateDone:
		return "done"
	case StateUndone:
		return "undone"
	case StateConfirmed:
		return "confirmed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Trigger is the chat message that started a flow.
type Trigger struct {
	ChannelID     string
	MessageID     string
	AuthorID      string
	AuthorMention string
	Content       string
}

// Flow runs the reaction-gated rewrite for one message at a time.
// A Flow may be shared by concurrent Run calls.
type Flow struct {
	table        *Table
	messenger    Messenger
	offerTimeout time.Duration
	undoTimeout  time.Duration
	logger       *zap.Logger
}

// NewFlow creates a Flow. offerTimeout bounds the wait for the replace/add
// choice and undoTimeout the undo window.
func NewFlow(table *Table, messenger Messenger, offerTimeout, undoTimeout time.Duration, logger *zap.Logger) *Flow {
	return &Flow{
		table:        table,
		messenger:    messenger,
		offerTimeout: offerTimeout,
		undoTimeout:  undoTimeout,
		logger:       logging.OrNop(logger).Named("links"),
	}
}

// Run evaluates the trigger and, if a rule applies, offers the rewrite and
// carries out the author's choice. It returns the terminal state reached.
// Errors from the messenger end the flow.
func (f *Flow) Run(ctx context.Context, trigger Trigger) (State, error) {
	rewrite, ok := Plan(trigger.Content, trigger.AuthorMention, f.table.Rules())
	if !ok {
		return StateSkipped, nil
	}

	logger := f.logger.With(
		zap.String("message_id", trigger.MessageID),
		zap.String("channel_id", trigger.ChannelID),
		zap.String("url", rewrite.URL))

	reactions, stop := f.messenger.WatchReactions(trigger.ChannelID, trigger.MessageID, trigger.AuthorID)
	defer stop()

	if err := f.messenger.AddReaction(ctx, trigger.ChannelID, trigger.MessageID, EmojiReplace); err != nil {
		return StateSkipped, fmt.Errorf("failed to offer replace: %w", err)
	}
	if err := f.messenger.AddReaction(ctx, trigger.ChannelID, trigger.MessageID, EmojiAdd); err != nil {
		return StateOffered, fmt.Errorf("failed to offer add: %w", err)
	}
	logger.Debug("Offered rewrite", zap.String("new_url", rewrite.NewURL))

	choice, err := awaitChoice(ctx, reactions, f.offerTimeout,
		func(c Choice) bool { return c == ChoiceReplace || c == ChoiceAdd }, logger)
	stop()
	if errors.Is(err, errReactionTimeout) {
		if err := f.clearOffer(ctx, trigger); err != nil {
			return StateOffered, err
		}
		logger.Debug("Rewrite offer expired")
		return StateDone, nil
	}
	if err != nil {
		return StateOffered, err
	}

	if err := f.clearOffer(ctx, trigger); err != nil {
		return StateOffered, err
	}

	if choice == ChoiceAdd {
		if err := f.messenger.SuppressEmbeds(ctx, trigger.ChannelID, trigger.MessageID); err != nil {
			return StateOffered, fmt.Errorf("failed to suppress embeds: %w", err)
		}
	}

	newMessageID, err := f.messenger.SendMessage(ctx, trigger.ChannelID, rewrite.Content)
	if err != nil {
		return StateOffered, fmt.Errorf("failed to post rewritten message: %w", err)
	}

	if choice == ChoiceReplace {
		if err := f.messenger.DeleteMessage(ctx, trigger.ChannelID, trigger.MessageID); err != nil {
			return StateOffered, fmt.Errorf("failed to delete original message: %w", err)
		}
	}
	logger.Info("Rewrote link",
		zap.String("new_url", rewrite.NewURL),
		zap.Bool("replaced", choice == ChoiceReplace),
		zap.String("new_message_id", newMessageID))

	return f.offerUndo(ctx, trigger, newMessageID, logger)
}

func (f *Flow) offerUndo(ctx context.Context, trigger Trigger, messageID string, logger *zap.Logger) (State, error) {
	reactions, stop := f.messenger.WatchReactions(trigger.ChannelID, messageID, trigger.AuthorID)
	defer stop()

	if err := f.messenger.AddReaction(ctx, trigger.ChannelID, messageID, EmojiUndo); err != nil {
		return StateUndoOffered, fmt.Errorf("failed to offer undo: %w", err)
	}

	_, err := awaitChoice(ctx, reactions, f.undoTimeout,
		func(c Choice) bool { return c == ChoiceUndo }, logger)
	if errors.Is(err, errReactionTimeout) {
		if err := f.messenger.RemoveReactions(ctx, trigger.ChannelID, messageID, EmojiUndo); err != nil {
			return StateUndoOffered, fmt.Errorf("failed to clear undo: %w", err)
		}
		return StateConfirmed, nil
	}
	if err != nil {
		return StateUndoOffered, err
	}

	if err := f.messenger.DeleteMessage(ctx, trigger.ChannelID, messageID); err != nil {
		return StateUndoOffered, fmt.Errorf("failed to delete rewritten message: %w", err)
	}
	logger.Info("Rewrite undone", zap.String("new_message_id", messageID))
	return StateUndone, nil
}

// awaitChoice reads reactions until one is accepted by want. Other
// reactions are ignored without extending the timeout.
func awaitChoice(ctx context.Context, reactions <-chan string, timeout time.Duration, want func(Choice) bool, logger *zap.Logger) (Choice, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case emoji := <-reactions:
			if choice := Choose(emoji); want(choice) {
				return choice, nil
			}
			logger.Debug("Ignoring reaction", zap.String("emoji", emoji))
		case <-timer.C:
			return ChoiceNone, errReactionTimeout
		case <-ctx.Done():
			return ChoiceNone, ctx.Err()
		}
	}
}

func (f *Flow) clearOffer(ctx context.Context, trigger Trigger) error {
	if err := f.messenger.RemoveReactions(ctx, trigger.ChannelID, trigger.MessageID, EmojiReplace); err != nil {
		return fmt.Errorf("failed to clear replace reaction: %w", err)
	}
	if err := f.messenger.RemoveReactions(ctx, trigger.ChannelID, trigger.MessageID, EmojiAdd); err != nil {
		return fmt.Errorf("failed to clear add reaction: %w", err)
	}
	return nil
}
