package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendGoogle = "google"
	BackendCalDAV = "caldav"
)

// Config holds the configuration shared by the link bot and the calendar bot.
type Config struct {
	DiscordToken  string `json:"discord_token,omitempty" yaml:"discord_token,omitempty"`
	GuildID       string `json:"guild_id,omitempty" yaml:"guild_id,omitempty"`               // Guild used by `sync` and scheduled resync
	CommandPrefix string `json:"command_prefix,omitempty" yaml:"command_prefix,omitempty"` // Text command prefix (default: "!")

	// Link bot
	ReplacementsPath    string `json:"replacements_path,omitempty" yaml:"replacements_path,omitempty"`
	OfferTimeoutSeconds int    `json:"offer_timeout_seconds,omitempty" yaml:"offer_timeout_seconds,omitempty"` // Wait for replace/add choice (default: 60)
	UndoTimeoutSeconds  int    `json:"undo_timeout_seconds,omitempty" yaml:"undo_timeout_seconds,omitempty"`   // Undo window on the rewritten message (default: 180)

	// Calendar bot
	CalendarBackend       string `json:"calendar_backend,omitempty" yaml:"calendar_backend,omitempty"` // "google" or "caldav"
	CalendarID            string `json:"calendar_id,omitempty" yaml:"calendar_id,omitempty"`           // Google calendar ID, or CalDAV collection path
	GoogleCredentialsPath string `json:"google_credentials_path,omitempty" yaml:"google_credentials_path,omitempty"`
	GoogleTokenPath       string `json:"google_token_path,omitempty" yaml:"google_token_path,omitempty"` // Only used with OAuth client credentials
	CalDAVServerURL       string `json:"caldav_server_url,omitempty" yaml:"caldav_server_url,omitempty"`
	CalDAVUsername        string `json:"caldav_username,omitempty" yaml:"caldav_username,omitempty"`
	CalDAVPassword        string `json:"caldav_password,omitempty" yaml:"caldav_password,omitempty"`
	SyncSchedule          string `json:"sync_schedule,omitempty" yaml:"sync_schedule,omitempty"` // Cron spec for periodic full sync; empty disables
	CleanupRequireTag     bool   `json:"cleanup_require_tag,omitempty" yaml:"cleanup_require_tag,omitempty"`
}

// Overrides carries command-line flag values. Empty fields do not override.
type Overrides struct {
	DiscordToken     string
	GuildID          string
	CalendarID       string
	ReplacementsPath string
	CredentialsPath  string
}

// LoadConfigFromFile loads configuration from a JSON or YAML file.
// The format is chosen by extension; anything that is not .yaml/.yml is read as JSON.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return &config, nil
}

// LoadConfig loads configuration with the following precedence (highest to lowest):
// 1. Command-line flags
// 2. Environment variables
// 3. Config file
// 4. Defaults
// Required values are checked per bot by ValidateLinkBot and ValidateCalendarBot.
func LoadConfig(configFile string, overrides Overrides) (*Config, error) {
	var config Config

	if configFile != "" {
		fileConfig, err := LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
		config = *fileConfig
	}

	envStrings := map[string]*string{
		"DISCORD_TOKEN":           &config.DiscordToken,
		"DISCORD_GUILD_ID":        &config.GuildID,
		"COMMAND_PREFIX":          &config.CommandPrefix,
		"REPLACEMENTS_PATH":       &config.ReplacementsPath,
		"CALENDAR_BACKEND":        &config.CalendarBackend,
		"CALENDAR_ID":             &config.CalendarID,
		"GOOGLE_CREDENTIALS_PATH": &config.GoogleCredentialsPath,
		"GOOGLE_TOKEN_PATH":       &config.GoogleTokenPath,
		"CALDAV_SERVER_URL":       &config.CalDAVServerURL,
		"CALDAV_USERNAME":         &config.CalDAVUsername,
		"CALDAV_PASSWORD":         &config.CalDAVPassword,
		"SYNC_SCHEDULE":           &config.SyncSchedule,
	}
	for name, field := range envStrings {
		if value := os.Getenv(name); value != "" {
			*field = value
		}
	}

	envInts := map[string]*int{
		"OFFER_TIMEOUT_SECONDS": &config.OfferTimeoutSeconds,
		"UNDO_TIMEOUT_SECONDS":  &config.UndoTimeoutSeconds,
	}
	for name, field := range envInts {
		if value := os.Getenv(name); value != "" {
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid %s value: %w", name, err)
			}
			*field = n
		}
	}

	if value := os.Getenv("CLEANUP_REQUIRE_TAG"); value != "" {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid CLEANUP_REQUIRE_TAG value: %w", err)
		}
		config.CleanupRequireTag = b
	}

	// Command-line flags (highest priority)
	if overrides.DiscordToken != "" {
		config.DiscordToken = overrides.DiscordToken
	}
	if overrides.GuildID != "" {
		config.GuildID = overrides.GuildID
	}
	if overrides.CalendarID != "" {
		config.CalendarID = overrides.CalendarID
	}
	if overrides.ReplacementsPath != "" {
		config.ReplacementsPath = overrides.ReplacementsPath
	}
	if overrides.CredentialsPath != "" {
		config.GoogleCredentialsPath = overrides.CredentialsPath
	}

	// Defaults
	if config.CommandPrefix == "" {
		config.CommandPrefix = "!"
	}
	if config.ReplacementsPath == "" {
		config.ReplacementsPath = filepath.Join("config", "replacements.json")
	}
	if config.OfferTimeoutSeconds == 0 {
		config.OfferTimeoutSeconds = 60
	}
	if config.UndoTimeoutSeconds == 0 {
		config.UndoTimeoutSeconds = 180
	}
	if config.CalendarBackend == "" {
		config.CalendarBackend = BackendGoogle
	}
	if config.GoogleCredentialsPath == "" {
		config.GoogleCredentialsPath = filepath.Join("config", "credentials.json")
	}

	if config.DiscordToken == "" {
		return nil, fmt.Errorf("discord_token must be provided via --token flag, DISCORD_TOKEN environment variable, .env file, or config file")
	}

	return &config, nil
}

// OfferTimeout is how long the link bot waits for the author to pick replace or add.
func (c *Config) OfferTimeout() time.Duration {
	return time.Duration(c.OfferTimeoutSeconds) * time.Second
}

// UndoTimeout is how long the rewritten message offers its undo reaction.
func (c *Config) UndoTimeout() time.Duration {
	return time.Duration(c.UndoTimeoutSeconds) * time.Second
}

// ValidateLinkBot checks the settings the link bot needs.
func (c *Config) ValidateLinkBot() error {
	if c.ReplacementsPath == "" {
		return fmt.Errorf("replacements_path must not be empty")
	}
	if c.OfferTimeoutSeconds < 0 {
		return fmt.Errorf("offer_timeout_seconds must be positive, got %d", c.OfferTimeoutSeconds)
	}
	if c.UndoTimeoutSeconds < 0 {
		return fmt.Errorf("undo_timeout_seconds must be positive, got %d", c.UndoTimeoutSeconds)
	}
	return nil
}

// ValidateCalendarBot checks the settings the calendar bot needs.
func (c *Config) ValidateCalendarBot() error {
	if c.CalendarID == "" {
		return fmt.Errorf("calendar_id must be provided via --calendar-id flag, CALENDAR_ID environment variable, or config file")
	}

	switch c.CalendarBackend {
	case BackendGoogle:
		if c.GoogleCredentialsPath == "" {
			return fmt.Errorf("google_credentials_path must be provided for the google calendar backend")
		}
	case BackendCalDAV:
		if c.CalDAVServerURL == "" {
			return fmt.Errorf("caldav_server_url must be provided for the caldav calendar backend")
		}
		if c.CalDAVUsername == "" {
			return fmt.Errorf("caldav_username must be provided for the caldav calendar backend")
		}
		if c.CalDAVPassword == "" {
			return fmt.Errorf("caldav_password must be provided for the caldav calendar backend")
		}
	default:
		return fmt.Errorf("calendar_backend must be 'google' or 'caldav', got '%s'", c.CalendarBackend)
	}

	return nil
}
