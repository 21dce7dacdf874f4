package eventsync

import (
	"context"
	"errors"
	"fmt"

	calclient "github.com/howl-bots/howl/internal/calendar"
	"github.com/howl-bots/howl/internal/logging"

	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"
)

// Syncer mirrors guild events into one calendar.
// It keeps no state between calls: every operation re-reads the calendar.
type Syncer struct {
	client     calclient.CalendarClient
	calendarID string
	requireTag bool
	logger     *zap.Logger
}

// NewSyncer creates a new Syncer instance.
// requireTag limits Cleanup to events whose summary carries SummaryTag.
func NewSyncer(client calclient.CalendarClient, calendarID string, requireTag bool, logger *zap.Logger) *Syncer {
	return &Syncer{
		client:     client,
		calendarID: calendarID,
		requireTag: requireTag,
		logger:     logging.OrNop(logger).Named("eventsync"),
	}
}

// ListEvents returns every event in the synced calendar.
func (s *Syncer) ListEvents(ctx context.Context) ([]*calendar.Event, error) {
	events, err := s.client.ListEvents(ctx, s.calendarID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch calendar events: %w", err)
	}
	return events, nil
}

// CreateOrUpdate updates the calendar event correlated with guildEvent in
// place, or inserts a new one when there is none.
func (s *Syncer) CreateOrUpdate(ctx context.Context, guildEvent GuildEvent) error {
	events, err := s.ListEvents(ctx)
	if err != nil {
		return err
	}

	if existing := FindMatch(events, guildEvent.ID); existing != nil {
		updated := PopulateEvent(existing, guildEvent)
		if err := s.client.UpdateEvent(ctx, s.calendarID, existing.Id, updated); err != nil {
			return fmt.Errorf("failed to update calendar event %s for guild event %s: %w", existing.Id, guildEvent.ID, err)
		}
		s.logger.Info("Updated calendar event",
			zap.String("calendar_event_id", existing.Id),
			zap.String("discord_id", guildEvent.ID),
			zap.String("summary", updated.Summary))
		return nil
	}

	created, err := s.client.InsertEvent(ctx, s.calendarID, PopulateEvent(nil, guildEvent))
	if err != nil {
		return fmt.Errorf("failed to insert calendar event for guild event %s: %w", guildEvent.ID, err)
	}
	s.logger.Info("Inserted calendar event",
		zap.String("calendar_event_id", created.Id),
		zap.String("discord_id", guildEvent.ID),
		zap.String("summary", created.Summary))
	return nil
}

// Delete removes the calendar event correlated with guildEventID.
// Having nothing to delete is not an error.
func (s *Syncer) Delete(ctx context.Context, guildEventID string) error {
	events, err := s.ListEvents(ctx)
	if err != nil {
		return err
	}

	existing := FindMatch(events, guildEventID)
	if existing == nil {
		s.logger.Debug("No calendar event to delete", zap.String("discord_id", guildEventID))
		return nil
	}

	if err := s.client.DeleteEvent(ctx, s.calendarID, existing.Id); err != nil {
		return fmt.Errorf("failed to delete calendar event %s for guild event %s: %w", existing.Id, guildEventID, err)
	}
	s.logger.Info("Deleted calendar event",
		zap.String("calendar_event_id", existing.Id),
		zap.String("discord_id", guildEventID))
	return nil
}

// FullSync runs CreateOrUpdate for each guild event in order.
// A failure does not stop the run; it returns the number of events synced
// and the joined errors.
func (s *Syncer) FullSync(ctx context.Context, guildEvents []GuildEvent) (int, error) {
	s.logger.Info("Starting full sync", zap.Int("guild_events", len(guildEvents)))

	var synced int
	var errs []error
	for _, guildEvent := range guildEvents {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.CreateOrUpdate(ctx, guildEvent); err != nil {
			s.logger.Warn("Failed to sync guild event",
				zap.String("discord_id", guildEvent.ID),
				zap.String("name", guildEvent.Name),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		synced++
	}

	s.logger.Info("Full sync complete", zap.Int("synced", synced), zap.Int("failed", len(errs)))
	return synced, errors.Join(errs...)
}

// Cleanup deletes every calendar event that DanglingEvents reports for the
// current guild events, and returns how many were deleted.
func (s *Syncer) Cleanup(ctx context.Context, guildEvents []GuildEvent) (int, error) {
	events, err := s.ListEvents(ctx)
	if err != nil {
		return 0, err
	}

	dangling := DanglingEvents(events, guildEvents, s.requireTag)
	s.logger.Info("Removing unlinked calendar events", zap.Int("count", len(dangling)))

	var deleted int
	var errs []error
	for _, event := range dangling {
		if err := s.client.DeleteEvent(ctx, s.calendarID, event.Id); err != nil {
			s.logger.Warn("Failed to delete unlinked calendar event",
				zap.String("calendar_event_id", event.Id),
				zap.String("summary", event.Summary),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("failed to delete calendar event %s: %w", event.Id, err))
			continue
		}
		s.logger.Info("Deleted unlinked calendar event",
			zap.String("calendar_event_id", event.Id),
			zap.String("summary", event.Summary))
		deleted++
	}

	return deleted, errors.Join(errs...)
}
