// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// Call Validate before wiring anything; it reports every missing or malformed setting at once.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/onnwee/relaybot/db"
)

// Change feed drivers.
const (
	DriverRealtime = "realtime"
	DriverPostgres = "postgres"
)

// Messenger backends.
const (
	MessengerWhatsApp = "whatsapp"
	MessengerTwitch   = "twitch"
)

type Config struct {
	// Change feed
	Driver        string `validate:"oneof=realtime postgres"`
	SupabaseURL   string `validate:"required_if=Driver realtime"`
	SupabaseKey   string `validate:"required_if=Driver realtime"`
	Schema        string `validate:"required,sqlident"`
	Table         string `validate:"required,sqlident"`
	DBDsn         string `validate:"required_if=Driver postgres"`
	NotifyChannel string `validate:"required,sqlident"`

	// Messenger
	Messenger string `validate:"oneof=whatsapp twitch"`

	// WhatsAppGroupID may be empty; every send then fails as a missing chat.
	WhatsAppGroupID string
	SessionDialect  string `validate:"oneof=sqlite3 postgres"`
	SessionDSN      string `validate:"required_if=Messenger whatsapp"`
	ListGroups      bool

	// Twitch
	TwitchChannel     string `validate:"required_if=Messenger twitch"`
	TwitchBotUsername string `validate:"required_if=Messenger twitch"`
	TwitchOAuthToken  string `validate:"required_if=Messenger twitch"`

	// HTTP
	Port        string `validate:"required,numeric"`
	MetricsAddr string `validate:"omitempty,hostname_port"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
			return db.ValidIdentifier(fl.Field().String())
		})
	})
	return validate
}

// Load reads environment variables and applies defaults. It doesn't fail on missing
// credentials; use Validate() for that.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Driver = strings.ToLower(getenv("CHANGEFEED_DRIVER", DriverRealtime))
	cfg.SupabaseURL = strings.TrimRight(os.Getenv("SUPABASE_URL"), "/")
	cfg.SupabaseKey = os.Getenv("SUPABASE_SERVICE_KEY")
	cfg.Schema = getenv("SUPABASE_SCHEMA", "public")
	cfg.Table = os.Getenv("SUPABASE_TABLE")
	cfg.DBDsn = os.Getenv("DB_DSN")
	cfg.NotifyChannel = getenv("CHANGEFEED_CHANNEL", "table_changes")

	cfg.Messenger = strings.ToLower(getenv("MESSENGER", MessengerWhatsApp))
	cfg.WhatsAppGroupID = strings.TrimSpace(os.Getenv("WHATSAPP_GROUP_ID"))
	cfg.SessionDialect = strings.ToLower(getenv("WHATSAPP_SESSION_DIALECT", "sqlite3"))
	cfg.SessionDSN = getenv("WHATSAPP_SESSION_DSN", "file:whatsapp-session.db?_foreign_keys=on")
	switch v := strings.ToLower(getenv("WHATSAPP_LIST_GROUPS", "1")); v {
	case "1", "true", "yes", "on":
		cfg.ListGroups = true
	case "0", "false", "no", "off":
		cfg.ListGroups = false
	default:
		return nil, fmt.Errorf("invalid WHATSAPP_LIST_GROUPS %q", v)
	}

	cfg.TwitchChannel = os.Getenv("TWITCH_CHANNEL")
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")

	cfg.Port = getenv("PORT", "3000")
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	return cfg, nil
}

// Validate checks that every setting the selected driver and messenger need is present.
func (c *Config) Validate() error {
	var msgs []string
	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate config: %w", err)
		}
		for _, fe := range verrs {
			msgs = append(msgs, describe(fe))
		}
	}
	if c.SupabaseURL != "" {
		if err := getValidator().Var(c.SupabaseURL, "url"); err != nil {
			msgs = append(msgs, fmt.Sprintf("SUPABASE_URL must be a URL, got %q", c.SupabaseURL))
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Destination returns the chat id the forwarder sends to.
func (c *Config) Destination() string {
	if c.Messenger == MessengerTwitch {
		return c.TwitchChannel
	}
	return c.WhatsAppGroupID
}

// Addr returns the health listener address.
func (c *Config) Addr() string { return ":" + c.Port }

var envNames = map[string]string{
	"Driver":            "CHANGEFEED_DRIVER",
	"SupabaseURL":       "SUPABASE_URL",
	"SupabaseKey":       "SUPABASE_SERVICE_KEY",
	"Schema":            "SUPABASE_SCHEMA",
	"Table":             "SUPABASE_TABLE",
	"DBDsn":             "DB_DSN",
	"NotifyChannel":     "CHANGEFEED_CHANNEL",
	"Messenger":         "MESSENGER",
	"WhatsAppGroupID":   "WHATSAPP_GROUP_ID",
	"SessionDialect":    "WHATSAPP_SESSION_DIALECT",
	"SessionDSN":        "WHATSAPP_SESSION_DSN",
	"TwitchChannel":     "TWITCH_CHANNEL",
	"TwitchBotUsername": "TWITCH_BOT_USERNAME",
	"TwitchOAuthToken":  "TWITCH_OAUTH_TOKEN",
	"Port":              "PORT",
	"MetricsAddr":       "METRICS_ADDR",
}

func describe(fe validator.FieldError) string {
	name := envNames[fe.Field()]
	if name == "" {
		name = fe.Field()
	}
	switch fe.Tag() {
	case "required", "required_if":
		return name + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", name, fe.Param(), fe.Value())
	case "sqlident":
		return fmt.Sprintf("%s must be a plain identifier, got %q", name, fe.Value())
	default:
		return fmt.Sprintf("%s is invalid (%s)", name, fe.Tag())
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
