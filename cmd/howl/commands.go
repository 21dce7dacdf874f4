package main

import (
	"context"
	"fmt"

	"github.com/howl-bots/howl/internal/discord"
	"github.com/howl-bots/howl/internal/links"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newLinksCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "links",
		Short: "Run the link rewrite bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := cfg.ValidateLinkBot(); err != nil {
				return err
			}

			table, err := links.LoadTable(cfg.ReplacementsPath)
			if err != nil {
				return err
			}
			logger.Info("Loaded replacements", zap.String("path", cfg.ReplacementsPath), zap.Int("rules", len(table.Rules())))

			session, err := discord.NewSession(cfg.DiscordToken)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			gateway := discord.NewGateway(session, logger)
			discord.NewLinkBot(gateway, table, cfg.CommandPrefix, cfg.OfferTimeout(), cfg.UndoTimeout(), logger).
				Register(ctx, session)

			return runSession(ctx, session, logger)
		},
	}
	cmd.Flags().StringVar(&opts.overrides.ReplacementsPath, "replacements", "", "Path to the replacements JSON file (overrides REPLACEMENTS_PATH)")
	return cmd
}

func newCalendarCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Run the calendar mirroring bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := cfg.ValidateCalendarBot(); err != nil {
				return err
			}

			ctx := cmd.Context()
			syncer, err := newSyncer(ctx, cfg, logger)
			if err != nil {
				return err
			}

			session, err := discord.NewSession(cfg.DiscordToken)
			if err != nil {
				return err
			}
			gateway := discord.NewGateway(session, logger)
			bot := discord.NewCalendarBot(gateway, syncer, cfg.CommandPrefix, cfg.GuildID, logger)
			bot.Register(ctx, session)

			if cfg.SyncSchedule != "" {
				if err := bot.StartSchedule(ctx, cfg.SyncSchedule); err != nil {
					return err
				}
				defer bot.Stop()
			}

			return runSession(ctx, session, logger)
		},
	}
	addCalendarFlags(cmd, opts)
	return cmd
}

func newSyncCommand(opts *rootOptions) *cobra.Command {
	var cleanup bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror the guild's scheduled events once and exit",
		Long: `Runs a full sync of the guild's scheduled events into the calendar over the
Discord REST API, without connecting to the gateway. Suitable for cron or a
systemd timer. With --cleanup, calendar events with no guild event are removed
afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := cfg.ValidateCalendarBot(); err != nil {
				return err
			}
			if cfg.GuildID == "" {
				return fmt.Errorf("guild_id must be provided via --guild flag, DISCORD_GUILD_ID environment variable, or config file")
			}

			ctx := cmd.Context()
			syncer, err := newSyncer(ctx, cfg, logger)
			if err != nil {
				return err
			}

			session, err := discord.NewSession(cfg.DiscordToken)
			if err != nil {
				return err
			}
			bot := discord.NewCalendarBot(discord.NewGateway(session, logger), syncer, cfg.CommandPrefix, cfg.GuildID, logger)

			synced, removed, err := bot.SyncGuild(ctx, cfg.GuildID, cleanup)
			fmt.Fprintf(cmd.OutOrStdout(), "Synchronised %d event(s)", synced)
			if cleanup {
				fmt.Fprintf(cmd.OutOrStdout(), ", removed %d unlinked event(s)", removed)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Remove calendar events with no guild event after syncing")
	addCalendarFlags(cmd, opts)
	return cmd
}

func addCalendarFlags(cmd *cobra.Command, opts *rootOptions) {
	cmd.Flags().StringVar(&opts.overrides.CalendarID, "calendar-id", "", "Calendar ID, or CalDAV collection path (overrides CALENDAR_ID)")
	cmd.Flags().StringVar(&opts.overrides.CredentialsPath, "google-credentials-path", "", "Path to Google credentials JSON (overrides GOOGLE_CREDENTIALS_PATH)")
}

// runSession opens the gateway connection and blocks until ctx is cancelled.
func runSession(ctx context.Context, session *discordgo.Session, logger *zap.Logger) error {
	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		logger.Info("Connected to Discord", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer session.Close()

	logger.Info("Bot is now running. Press CTRL-C to exit.")
	<-ctx.Done()
	logger.Info("Shutting down")
	return nil
}
