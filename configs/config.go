package configs

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	StaticDir  string

	DBDriver         string
	DatabaseURL      string
	DatabaseReadURLs []string
	RedisURL         string
	LabelCacheTTL    time.Duration

	RateLimitPerHour int
	EnableRateLimit  bool

	LogLevel  string
	LogFormat string

	CenterLat   float64
	CenterLon   float64
	BBoxDegrees float64

	MaxPaidCallsPerDay     int
	MaxAttemptsPerCallsign int
	NegativeCacheTTL       time.Duration
	LabelTimeout           time.Duration
	PaidTimeout            time.Duration
	ImageTimeout           time.Duration
	PlaceholderImageURL    string

	ReconcileCron            string
	ReconcilePacing          time.Duration
	ReconcileMaxRetries      int
	ReconcileBatchLimit      int
	LandingAltitudeThreshold float64
	ReconcileJobTimeout      time.Duration

	OpenSkyClientID      string
	OpenSkyClientSecret  string
	OpenSkyBaseURL       string
	OpenSkyAuthURL       string
	AeroAPIKey           string
	AeroAPIBaseURL       string
	FlightWallCDNBaseURL string
	WikimediaBaseURL     string
	HTTPClientTimeout    time.Duration

	AdminAPIKeyHash string
	AdminJWTSecret  string
	AdminJWTTTL     time.Duration
}

var AppConfig *Config

func LoadConfig() error {

	godotenv.Load()

	cfg := &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		StaticDir:  getEnv("STATIC_DIR", "web/static"),

		DBDriver:         strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		DatabaseURL:      getEnv("DATABASE_URL", "root:password@tcp(localhost:3306)/flight_radar?charset=utf8mb4&parseTime=True&loc=UTC"),
		DatabaseReadURLs: splitList(getEnv("DATABASE_READ_URLS", "")),
		RedisURL:         getEnv("REDIS_URL", "localhost:6379"),
		LabelCacheTTL:    parseDuration(getEnv("LABEL_CACHE_TTL", "24h"), 24*time.Hour),

		RateLimitPerHour: parseInt(getEnv("RATE_LIMIT_PER_HOUR", "600")),
		EnableRateLimit:  parseBool(getEnv("ENABLE_RATE_LIMIT", "true")),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "console")),

		// Dortmund
		CenterLat:   parseFloat(getEnv("CENTER_LAT", "51.5136")),
		CenterLon:   parseFloat(getEnv("CENTER_LON", "7.4653")),
		BBoxDegrees: parseFloat(getEnv("BBOX_DEGREES", "1.0")),

		MaxPaidCallsPerDay:     parseInt(getEnv("MAX_PAID_CALLS_PER_DAY", "100")),
		MaxAttemptsPerCallsign: parseInt(getEnv("MAX_ATTEMPTS_PER_CALLSIGN", "2")),
		NegativeCacheTTL:       parseDuration(getEnv("NEGATIVE_CACHE_TTL", "6h"), 6*time.Hour),
		LabelTimeout:           parseDuration(getEnv("LABEL_TIMEOUT", "250ms"), 250*time.Millisecond),
		PaidTimeout:            parseDuration(getEnv("PAID_TIMEOUT", "900ms"), 900*time.Millisecond),
		ImageTimeout:           parseDuration(getEnv("IMAGE_TIMEOUT", "300ms"), 300*time.Millisecond),
		PlaceholderImageURL:    getEnv("PLACEHOLDER_IMAGE_URL", "/static/aircraft/plane.svg"),

		ReconcileCron:            os.Getenv("RECONCILE_CRON"),
		ReconcilePacing:          parseDuration(getEnv("RECONCILE_PACING", "1200ms"), 1200*time.Millisecond),
		ReconcileMaxRetries:      parseInt(getEnv("RECONCILE_MAX_RETRIES", "3")),
		ReconcileBatchLimit:      parseInt(getEnv("RECONCILE_BATCH_LIMIT", "500")),
		LandingAltitudeThreshold: parseFloat(getEnv("LANDING_ALTITUDE_THRESHOLD", "50")),
		ReconcileJobTimeout:      parseDuration(getEnv("RECONCILE_JOB_TIMEOUT", "2h"), 2*time.Hour),

		OpenSkyClientID:      os.Getenv("OPENSKY_CLIENT_ID"),
		OpenSkyClientSecret:  os.Getenv("OPENSKY_CLIENT_SECRET"),
		OpenSkyBaseURL:       getEnv("OPENSKY_BASE_URL", "https://opensky-network.org/api"),
		OpenSkyAuthURL:       getEnv("OPENSKY_AUTH_URL", "https://auth.opensky-network.org/auth/realms/opensky-network/protocol/openid-connect/token"),
		AeroAPIKey:           os.Getenv("AEROAPI_KEY"),
		AeroAPIBaseURL:       getEnv("AEROAPI_BASE_URL", "https://aeroapi.flightaware.com/aeroapi"),
		FlightWallCDNBaseURL: getEnv("FLIGHTWALL_CDN_BASE_URL", "https://cdn.theflightwall.com"),
		WikimediaBaseURL:     getEnv("WIKIMEDIA_BASE_URL", "https://commons.wikimedia.org"),
		HTTPClientTimeout:    parseDuration(getEnv("HTTP_CLIENT_TIMEOUT", "10s"), 10*time.Second),

		AdminAPIKeyHash: os.Getenv("ADMIN_API_KEY_HASH"),
		AdminJWTSecret:  os.Getenv("ADMIN_JWT_SECRET"),
		AdminJWTTTL:     parseDuration(getEnv("ADMIN_JWT_TTL", "12h"), 12*time.Hour),
	}

	if _, set := os.LookupEnv("RECONCILE_CRON"); !set {
		cfg.ReconcileCron = "0 3 * * *"
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	AppConfig = cfg
	return nil
}

// Validate rejects configurations the enrichment core cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.DBDriver != "mysql" && c.DBDriver != "sqlite" {
		errs = append(errs, fmt.Errorf("DB_DRIVER must be mysql or sqlite, got %q", c.DBDriver))
	}
	if c.MaxPaidCallsPerDay < 0 {
		errs = append(errs, errors.New("MAX_PAID_CALLS_PER_DAY must not be negative"))
	}
	if c.MaxAttemptsPerCallsign < 0 {
		errs = append(errs, errors.New("MAX_ATTEMPTS_PER_CALLSIGN must not be negative"))
	}
	if c.ReconcileMaxRetries < 0 {
		errs = append(errs, errors.New("RECONCILE_MAX_RETRIES must not be negative"))
	}
	if c.ReconcileBatchLimit <= 0 {
		errs = append(errs, errors.New("RECONCILE_BATCH_LIMIT must be positive"))
	}
	if c.RateLimitPerHour <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_HOUR must be positive"))
	}
	if c.NegativeCacheTTL < 0 || c.ReconcilePacing < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.LabelTimeout <= 0 || c.PaidTimeout <= 0 || c.ImageTimeout <= 0 {
		errs = append(errs, errors.New("lookup timeouts must be positive"))
	}
	if c.BBoxDegrees <= 0 {
		errs = append(errs, errors.New("BBOX_DEGREES must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return i
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return b
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
