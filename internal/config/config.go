package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Skotchmaster/ticket_reservation/internal/ratelimit"
	"github.com/Skotchmaster/ticket_reservation/internal/service"
	pkgcfg "github.com/Skotchmaster/ticket_reservation/pkg/config"
	pkgdb "github.com/Skotchmaster/ticket_reservation/pkg/db"
	"github.com/Skotchmaster/ticket_reservation/pkg/tokens"
)

type Config struct {
	ServiceName string
	Port        string
	LogLevel    string

	DBDriver    string
	DatabaseURL string

	JWTSecret   []byte
	JWTIssuer   string
	JWTAudience string

	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	RefreshCookieTTL    time.Duration
	CookieSecure        bool
	RevokeOtherSessions bool

	KafkaBrokers []string
	KafkaTopic   string

	ESURL      string
	ESUser     string
	ESPassword string
	ESIndex    string

	RedisURL                string
	RedisPassword           string
	LoginMaxAttempts        int
	LoginMaxAccountAttempts int
	LoginWindow             time.Duration

	// TrustedProxies lists the peers allowed to set X-Forwarded-For.
	TrustedProxies []*net.IPNet
}

// Load reads the environment, after .env when one exists.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	if err := godotenv.Load(envFiles...); err != nil {
		slog.Info("env file not loaded, using process environment", "files", envFiles, "error", err)
	}

	cfg := &Config{
		ServiceName: pkgcfg.EnvDefault("SERVICE_NAME", "ticket_reservation"),
		Port:        pkgcfg.EnvDefault("SERVER_PORT", "8080"),
		LogLevel:    pkgcfg.EnvDefault("LOG_LEVEL", "info"),

		DBDriver:    pkgcfg.EnvDefault("DB_DRIVER", pkgdb.DriverPostgres),
		DatabaseURL: pkgcfg.EnvDefault("DATABASE_URL", ""),

		JWTSecret:   []byte(pkgcfg.EnvDefault("JWT_SECRET", "")),
		JWTIssuer:   pkgcfg.EnvDefault("JWT_ISSUER", tokens.DefaultIssuer),
		JWTAudience: pkgcfg.EnvDefault("JWT_AUDIENCE", tokens.DefaultAudience),

		AccessTTL:           pkgcfg.EnvDurationDefault("ACCESS_TTL", service.DefaultAccessTTL),
		RefreshTTL:          pkgcfg.EnvDurationDefault("REFRESH_TTL", service.DefaultRefreshTTL),
		RefreshCookieTTL:    pkgcfg.EnvDurationDefault("REFRESH_COOKIE_TTL", 60*time.Minute),
		CookieSecure:        pkgcfg.EnvBoolDefault("COOKIE_SECURE", false),
		RevokeOtherSessions: pkgcfg.EnvBoolDefault("REVOKE_OTHER_SESSIONS", false),

		KafkaBrokers: pkgcfg.CSV(pkgcfg.EnvDefault("KAFKA_BROKERS", "")),
		KafkaTopic:   pkgcfg.EnvDefault("KAFKA_TOPIC", service.DefaultEventTopic),

		ESURL:      pkgcfg.EnvDefault("ES_URL", ""),
		ESUser:     pkgcfg.EnvDefault("ES_USER", ""),
		ESPassword: pkgcfg.EnvDefault("ES_PASSWORD", ""),
		ESIndex:    pkgcfg.EnvDefault("ES_INDEX", "events"),

		RedisURL:                pkgcfg.EnvDefault("REDIS_URL", ""),
		RedisPassword:           pkgcfg.EnvDefault("REDIS_PASSWORD", ""),
		LoginMaxAttempts:        pkgcfg.EnvIntDefault("LOGIN_MAX_ATTEMPTS", ratelimit.DefaultMaxAttempts),
		LoginMaxAccountAttempts: pkgcfg.EnvIntDefault("LOGIN_MAX_ACCOUNT_ATTEMPTS", ratelimit.DefaultAccountMaxAttempts),
		LoginWindow:             pkgcfg.EnvDurationDefault("LOGIN_WINDOW", ratelimit.DefaultWindow),
	}

	proxies, err := ParseProxies(pkgcfg.CSV(pkgcfg.EnvDefault("TRUSTED_PROXIES", "")))
	cfg.TrustedProxies = proxies
	return cfg, errors.Join(err, cfg.Validate())
}

// ParseProxies accepts CIDR ranges and bare addresses.
func ParseProxies(list []string) ([]*net.IPNet, error) {
	var out []*net.IPNet
	var errs []error
	for _, item := range list {
		if !strings.Contains(item, "/") {
			ip := net.ParseIP(item)
			if ip == nil {
				errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: invalid address %q", item))
				continue
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(item)
		if err != nil {
			errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", err))
			continue
		}
		out = append(out, n)
	}
	return out, errors.Join(errs...)
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) == 0 {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.DBDriver != pkgdb.DriverPostgres && c.DBDriver != pkgdb.DriverSQLite {
		errs = append(errs, errors.New("DB_DRIVER must be postgres or sqlite"))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TTL and REFRESH_TTL must be positive"))
	}
	if c.RefreshTTL < c.AccessTTL {
		errs = append(errs, errors.New("REFRESH_TTL must not be shorter than ACCESS_TTL"))
	}
	return errors.Join(errs...)
}
