package config

import (
	"github.com/caarlos0/env/v11"

	"example.com/planboard/internal/apperr"
)

// Config carries every recognized environment option. CLIs load a local
// .env via godotenv before parsing.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	AppBaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:3000"`
	MySQLDSN   string `env:"MYSQL_DSN"`

	DirectoryURL        string `env:"DIRECTORY_URL"`
	DirectoryServiceKey string `env:"DIRECTORY_SERVICE_KEY"`

	RealmBaseURL      string `env:"REALM_BASE_URL"`
	RealmName         string `env:"REALM_NAME"`
	RealmAdminRealm   string `env:"REALM_ADMIN_REALM" envDefault:"master"`
	RealmAdminClient  string `env:"REALM_ADMIN_CLIENT_ID" envDefault:"admin-cli"`
	RealmAdminUser    string `env:"REALM_ADMIN_USER"`
	RealmAdminPass    string `env:"REALM_ADMIN_PASSWORD"`
	RealmAppClientID  string `env:"REALM_APP_CLIENT_ID"`
	RealmRedirectURI  string `env:"REALM_REDIRECT_URI"`

	InviteTTLDays int `env:"INVITE_TTL_DAYS" envDefault:"14"`

	MailAPIURL string `env:"MAIL_API_URL"`
	MailAPIKey string `env:"MAIL_API_KEY"`
	MailFrom   string `env:"MAIL_FROM"`

	ReserveAdminEmail    string `env:"RESERVE_ADMIN_EMAIL"`
	ReserveAdminPassword string `env:"RESERVE_ADMIN_PASSWORD"`

	RabbitURL         string `env:"RABBITMQ_URL"`
	SweepIntervalMins int    `env:"SWEEP_INTERVAL_MINUTES" envDefault:"30"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// HasRealmAdmin reports whether realm admin credentials are configured.
// Without them role synchronization degrades to a configuration error
// instead of crashing the process.
func (c *Config) HasRealmAdmin() bool {
	return c.RealmBaseURL != "" && c.RealmName != "" && c.RealmAdminUser != "" && c.RealmAdminPass != ""
}

// ErrRealmNotConfigured is returned by role-sync paths when admin
// credentials are absent.
var ErrRealmNotConfigured = apperr.New(apperr.Internal, "external realm admin credentials are not configured")
