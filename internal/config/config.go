// Package config defines the server's settings and how they are read: every
// setting is a command-line flag, and every flag can also be set through an
// environment variable with the SANTA_ prefix (--db-path → SANTA_DB_PATH).
// A flag given on the command line wins over the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sakif/secret-santa/internal/secretcode"
)

const EnvPrefix = "SANTA"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds every server setting.
type Config struct {
	Bind       string
	Port       int
	LogLevel   string
	TrustProxy bool // take client IPs from X-Forwarded-For / X-Real-IP

	DBDriver    string
	DBPath      string
	DatabaseURL string

	JWTSecret         string
	SessionTTL        time.Duration
	SecureCookies     bool
	AdminPasswordHash string

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
	AdminGitHubLogins  []string

	PublicURL    string
	CodeLength   int
	SyncInterval time.Duration
	RevealRate   int // reveal and login attempts per minute per IP
	RevealBurst  int

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

// RegisterFlags defines the server flags on fs with their defaults.
func RegisterFlags(fs *pflag.FlagSet, c *Config) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&c.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: SANTA_BIND)")
	fs.IntVarP(&c.Port, "port", "p", 8080, "port to listen on (env: SANTA_PORT)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug, info, warn or error (env: SANTA_LOG_LEVEL)")
	fs.BoolVar(&c.TrustProxy, "trust-proxy", false, "use X-Forwarded-For/X-Real-IP as the client address; only behind a reverse proxy that sets them (env: SANTA_TRUST_PROXY)")

	fs.StringVar(&c.DBDriver, "db-driver", DriverSQLite, "storage backend: sqlite or postgres (env: SANTA_DB_DRIVER)")
	fs.StringVar(&c.DBPath, "db-path", "data/santa.db", "SQLite database file (env: SANTA_DB_PATH)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection string (env: SANTA_DATABASE_URL)")

	fs.StringVar(&c.JWTSecret, "jwt-secret", "", "HMAC secret for admin sessions, 16+ chars; random per process if empty (env: SANTA_JWT_SECRET)")
	fs.DurationVar(&c.SessionTTL, "session-ttl", 12*time.Hour, "admin session lifetime (env: SANTA_SESSION_TTL)")
	fs.BoolVar(&c.SecureCookies, "secure-cookies", false, "mark cookies Secure, for HTTPS deployments (env: SANTA_SECURE_COOKIES)")
	fs.StringVar(&c.AdminPasswordHash, "admin-password-hash", "", "bcrypt hash of the initial admin password, see hash-password (env: SANTA_ADMIN_PASSWORD_HASH)")

	fs.StringVar(&c.GitHubClientID, "github-client-id", "", "GitHub OAuth app client ID (env: SANTA_GITHUB_CLIENT_ID)")
	fs.StringVar(&c.GitHubClientSecret, "github-client-secret", "", "GitHub OAuth app client secret (env: SANTA_GITHUB_CLIENT_SECRET)")
	fs.StringVar(&c.GitHubCallbackURL, "github-callback-url", "", "OAuth callback URL; defaults to {public-url}/auth/github/callback (env: SANTA_GITHUB_CALLBACK_URL)")
	fs.StringSliceVar(&c.AdminGitHubLogins, "admin-github-logins", nil, "GitHub logins allowed to organise, comma separated (env: SANTA_ADMIN_GITHUB_LOGINS)")

	fs.StringVar(&c.PublicURL, "public-url", "", "external base URL used in reveal links and QR codes (env: SANTA_PUBLIC_URL)")
	fs.IntVar(&c.CodeLength, "code-length", secretcode.DefaultLength, "secret code length (env: SANTA_CODE_LENGTH)")
	fs.DurationVar(&c.SyncInterval, "sync-interval", 5*time.Second, "how often to pull the shared round, postgres only (env: SANTA_SYNC_INTERVAL)")
	fs.IntVar(&c.RevealRate, "reveal-rate", 20, "reveal and login attempts per minute per IP (env: SANTA_REVEAL_RATE)")
	fs.IntVar(&c.RevealBurst, "reveal-burst", 5, "attempts allowed in a burst (env: SANTA_REVEAL_BURST)")

	fs.StringVar(&c.S3Bucket, "s3-bucket", "", "bucket for exported code lists; export disabled if empty (env: SANTA_S3_BUCKET)")
	fs.StringVar(&c.S3Region, "s3-region", "us-east-1", "S3 region (env: SANTA_S3_REGION)")
	fs.StringVar(&c.S3Endpoint, "s3-endpoint", "", "S3-compatible endpoint, e.g. MinIO (env: SANTA_S3_ENDPOINT)")
	fs.StringVar(&c.S3AccessKey, "s3-access-key", "", "S3 access key; default AWS chain if empty (env: SANTA_S3_ACCESS_KEY)")
	fs.StringVar(&c.S3SecretKey, "s3-secret-key", "", "S3 secret key (env: SANTA_S3_SECRET_KEY)")
}

// BindEnv fills every flag not set on the command line from its SANTA_
// environment variable.
func BindEnv(fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil {
			errs = append(errs, err)
			return
		}
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			if err := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
				errs = append(errs, fmt.Errorf("%s_%s: %w", EnvPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), err))
			}
		}
	})
	return errors.Join(errs...)
}

// Validate checks ranges and settings that only make sense together.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.Port < 1 || c.Port > 65535 {
		add("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			add("--db-path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			add("--database-url is required for the postgres driver")
		}
		if c.SyncInterval < 100*time.Millisecond {
			add("--sync-interval must be at least 100ms, got %s", c.SyncInterval)
		}
	default:
		add("unknown --db-driver %q (want sqlite or postgres)", c.DBDriver)
	}

	if c.JWTSecret != "" && len(c.JWTSecret) < 16 {
		add("--jwt-secret must be at least 16 characters")
	}
	if c.SessionTTL <= 0 {
		add("--session-ttl must be positive")
	}

	if (c.GitHubClientID == "") != (c.GitHubClientSecret == "") {
		add("both --github-client-id and --github-client-secret must be provided together")
	}
	if c.GitHubEnabled() && len(c.AdminGitHubLogins) == 0 {
		add("--admin-github-logins is required when GitHub sign-in is configured")
	}
	if c.GitHubEnabled() && c.GitHubCallbackURL == "" && c.PublicURL == "" {
		add("--github-callback-url or --public-url is required when GitHub sign-in is configured")
	}

	if c.PublicURL != "" {
		u, err := url.Parse(c.PublicURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("--public-url must be an absolute http(s) URL, got %q", c.PublicURL)
		}
	}
	if c.CodeLength < secretcode.MinLength || c.CodeLength > 64 {
		add("--code-length must be between %d and 64, got %d", secretcode.MinLength, c.CodeLength)
	}
	if c.RevealRate < 1 || c.RevealBurst < 1 {
		add("--reveal-rate and --reveal-burst must be at least 1")
	}

	if (c.S3AccessKey == "") != (c.S3SecretKey == "") {
		add("both --s3-access-key and --s3-secret-key must be provided together")
	}
	if c.S3Bucket == "" && (c.S3Endpoint != "" || c.S3AccessKey != "") {
		add("--s3-bucket is required when other S3 settings are given")
	}

	return errors.Join(errs...)
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// S3Enabled reports whether code lists can be exported.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

// CallbackURL is the GitHub OAuth redirect URL.
func (c *Config) CallbackURL() string {
	if c.GitHubCallbackURL != "" {
		return c.GitHubCallbackURL
	}
	return strings.TrimRight(c.PublicURL, "/") + "/auth/github/callback"
}

// SlogLevel converts LogLevel for slog.HandlerOptions. Unknown values fall
// back to Info; Validate reports them.
func (c *Config) SlogLevel() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid --log-level %q (want debug, info, warn or error)", s)
	}
	return l, nil
}
