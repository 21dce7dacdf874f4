package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/howl-bots/howl/internal/auth"
	calclient "github.com/howl-bots/howl/internal/calendar"
	"github.com/howl-bots/howl/internal/config"
	"github.com/howl-bots/howl/internal/eventsync"
	"github.com/howl-bots/howl/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"
)

type rootOptions struct {
	configFile string
	envFile    string
	verbose    bool
	overrides  config.Overrides
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "howl",
		Short: "Discord bots for link rewriting and calendar mirroring",
		Long: `Howl runs two independent Discord bots:

  links     offers to rewrite known link hosts (x.com, instagram.com, ...)
            to embed-friendly alternatives, confirmed with reactions
  calendar  mirrors the guild's scheduled events into a Google or CalDAV
            calendar, tagged with the Discord event ID

CONFIGURATION PRECEDENCE (highest to lowest):
    1. Command-line flags
    2. Environment variables (DISCORD_TOKEN, CALENDAR_ID, ...), including a .env file
    3. Config file (--config, JSON or YAML)
    4. Defaults

IMPORTANT: calendar cleanup deletes every event in the calendar that is not
linked to a current guild event, including events created by hand. Use a
dedicated calendar, or set cleanup_require_tag.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "Path to JSON or YAML config file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file (ignored if missing)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output (debug logs)")
	flags.StringVar(&opts.overrides.DiscordToken, "token", "", "Discord bot token (overrides DISCORD_TOKEN)")
	flags.StringVar(&opts.overrides.GuildID, "guild", "", "Guild ID for sync and scheduled resync (overrides DISCORD_GUILD_ID)")

	root.AddCommand(
		newLinksCommand(opts),
		newCalendarCommand(opts),
		newSyncCommand(opts),
	)

	return root
}

// setup loads the .env file and configuration and builds the logger.
func (o *rootOptions) setup() (*config.Config, *zap.Logger, error) {
	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("failed to load env file %s: %w", o.envFile, err)
	}

	logger, err := logging.New(o.verbose)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.LoadConfig(o.configFile, o.overrides)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, logger, nil
}

// newSyncer builds the calendar client for the configured backend.
func newSyncer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*eventsync.Syncer, error) {
	var client calclient.CalendarClient

	switch cfg.CalendarBackend {
	case config.BackendCalDAV:
		client = calclient.NewCalDAVClient(cfg.CalDAVServerURL, cfg.CalDAVUsername, cfg.CalDAVPassword, nil)
	default:
		var tokenStore auth.TokenStore
		if cfg.GoogleTokenPath != "" {
			tokenStore = &auth.FileTokenStore{Path: cfg.GoogleTokenPath}
		}

		httpClient, err := auth.GetAuthenticatedClient(ctx, cfg.GoogleCredentialsPath, tokenStore, calendar.CalendarEventsScope)
		if err != nil {
			return nil, fmt.Errorf("failed to authenticate with Google: %w", err)
		}

		googleClient, err := calclient.NewGoogleClient(ctx, httpClient)
		if err != nil {
			return nil, err
		}
		client = googleClient
	}

	logger.Info("Using calendar",
		zap.String("backend", cfg.CalendarBackend),
		zap.String("calendar_id", cfg.CalendarID),
		zap.Bool("cleanup_require_tag", cfg.CleanupRequireTag))

	return eventsync.NewSyncer(client, cfg.CalendarID, cfg.CleanupRequireTag, logger), nil
}
