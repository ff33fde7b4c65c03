// Package config lê toda a configuração do serviço a partir de variáveis de ambiente.
// Valores inválidos caem no padrão; só combinações impossíveis viram erro.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"shortlink-gateway/middleware/ratelimit/domain"
)

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	ListenAddr string
	BaseURL    string

	StoreBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string

	RatePerMin        int
	RatePerHour       int
	RateSubnetPerMin  int
	RateSubnetPerHour int
	RateUAFactor      float64
	RateMaxTracked    int
	RateSweepEvery    time.Duration
	BackoffTiers      []domain.BackoffTier

	KillSwitchThreshold int
	KillSwitchWindow    time.Duration
	KillSwitchCooldown  time.Duration
	AnomalyClicks       int
	AnomalyClicksWindow time.Duration
	AnomalyIPCreations  int
	MonitorSweepEvery   time.Duration

	MinTrustScore int
	MinTTL        int64
	MaxTTL        int64

	CacheSize        int
	CacheTTL         time.Duration
	CacheNegativeTTL time.Duration
	ClickWorkers     int
	ClickQueue       int

	RecaptchaSecret       string
	CaptchaScoreThreshold float64
	SafeBrowsingAPIKey    string
	VerifyTimeout         time.Duration

	MonitoringSecret string

	TrustXFF       bool
	ClientIPHeader string

	GeneralRateRPS     float64
	GeneralRateBurst   int
	ConcurrencyMax     int
	ConcurrencyTimeout time.Duration

	RateStatsEnabled   bool
	RateStatsPrefix    string
	RateStatsTTL       time.Duration
	RateStatsBucket    string
	RateStatsTrackKeys bool

	LogLevel    string
	LogPretty   bool
	LogSampleN  uint32
	ServiceName string
	InstanceID  string
}

func Load() (Config, error) {
	cfg := Config{}
	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.BaseURL = strings.TrimRight(getenvDefault("BASE_URL", ""), "/")

	cfg.StoreBackend = strings.ToLower(getenvDefault("STORE_BACKEND", BackendRedis))
	cfg.RedisAddr = getenvDefault("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getenvIntDefault("REDIS_DB", 0)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.RatePerMin = getenvIntDefault("RATE_LIMIT_PER_MIN", 5)
	cfg.RatePerHour = getenvIntDefault("RATE_LIMIT_PER_HOUR", 50)
	cfg.RateSubnetPerMin = getenvIntDefault("RATE_LIMIT_SUBNET_PER_MIN", 30)
	cfg.RateSubnetPerHour = getenvIntDefault("RATE_LIMIT_SUBNET_PER_HOUR", 200)
	cfg.RateUAFactor = getenvFloatDefault("RATE_UA_FACTOR", 0.5)
	cfg.RateMaxTracked = getenvIntDefault("RATE_MAX_TRACKED", 50000)
	cfg.RateSweepEvery = getenvDurationDefault("RATE_SWEEP_EVERY", 5*time.Minute)
	cfg.BackoffTiers = domain.DefaultBackoff()
	if v := os.Getenv("BACKOFF_TIERS"); v != "" {
		if tiers, err := ParseBackoffTiers(v); err == nil {
			cfg.BackoffTiers = tiers
		}
	}

	cfg.KillSwitchThreshold = getenvIntDefault("KILLSWITCH_MALICIOUS_THRESHOLD", 10)
	cfg.KillSwitchWindow = getenvDurationDefault("KILLSWITCH_WINDOW", 5*time.Minute)
	cfg.KillSwitchCooldown = getenvDurationDefault("KILLSWITCH_COOLDOWN", 15*time.Minute)
	cfg.AnomalyClicks = getenvIntDefault("ANOMALY_CLICKS_THRESHOLD", 10000)
	cfg.AnomalyClicksWindow = getenvDurationDefault("ANOMALY_CLICKS_WINDOW", 5*time.Minute)
	cfg.AnomalyIPCreations = getenvIntDefault("ANOMALY_IP_CREATIONS", 10)
	cfg.MonitorSweepEvery = getenvDurationDefault("MONITOR_SWEEP_EVERY", 5*time.Minute)

	cfg.MinTrustScore = getenvIntDefault("MIN_TRUST_SCORE", 20)
	cfg.MinTTL = int64(getenvIntDefault("MIN_TTL", 60))
	cfg.MaxTTL = int64(getenvIntDefault("MAX_TTL", 31536000))

	cfg.CacheSize = getenvIntDefault("CACHE_SIZE", 10000)
	cfg.CacheTTL = getenvDurationDefault("CACHE_TTL", 30*time.Second)
	cfg.CacheNegativeTTL = getenvDurationDefault("CACHE_NEGATIVE_TTL", 2*time.Second)
	cfg.ClickWorkers = getenvIntDefault("CLICK_WORKERS", 4)
	cfg.ClickQueue = getenvIntDefault("CLICK_QUEUE", 4096)

	cfg.RecaptchaSecret = os.Getenv("RECAPTCHA_SECRET_KEY")
	cfg.CaptchaScoreThreshold = getenvFloatDefault("CAPTCHA_SCORE_THRESHOLD", 0.5)
	cfg.SafeBrowsingAPIKey = os.Getenv("GOOGLE_SAFE_BROWSING_API_KEY")
	cfg.VerifyTimeout = getenvDurationDefault("VERIFY_TIMEOUT", 5*time.Second)

	cfg.MonitoringSecret = os.Getenv("MONITORING_SECRET")

	cfg.TrustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.ClientIPHeader = os.Getenv("CLIENT_IP_HEADER")

	// 100 requisições a cada 15 minutos
	cfg.GeneralRateRPS = getenvFloatDefault("GENERAL_RATE_RPS", 100.0/900.0)
	cfg.GeneralRateBurst = getenvIntDefault("GENERAL_RATE_BURST", 100)
	cfg.ConcurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.ConcurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.RateStatsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.RateStatsPrefix = getenvDefault("RATE_STATS_PREFIX", "ratelimit:stats")
	cfg.RateStatsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.RateStatsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.RateStatsTrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", false)

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogPretty = getenvBoolDefault("LOG_PRETTY", false)
	cfg.LogSampleN = uint32(max(getenvIntDefault("LOG_SAMPLE_N", 0), 0))
	cfg.ServiceName = getenvDefault("SERVICE_NAME", "shortlink-gateway")
	cfg.InstanceID = getenvDefault("INSTANCE_ID", hostnameOr("local"))

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case BackendRedis, BackendMemory:
	case BackendPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be redis, postgres or memory, got %q", c.StoreBackend)
	}
	if c.RateStatsEnabled && c.StoreBackend != BackendRedis {
		return errors.New("RATE_STATS_ENABLED=true requires STORE_BACKEND=redis")
	}
	if c.RatePerMin <= 0 || c.RatePerHour <= 0 || c.RateSubnetPerMin <= 0 || c.RateSubnetPerHour <= 0 {
		return errors.New("rate limit caps must be > 0")
	}
	if c.MinTTL <= 0 || c.MaxTTL < c.MinTTL {
		return errors.New("MIN_TTL must be > 0 and MAX_TTL >= MIN_TTL")
	}
	if c.GeneralRateRPS <= 0 {
		return errors.New("GENERAL_RATE_RPS must be > 0")
	}
	if c.GeneralRateBurst <= 0 {
		return errors.New("GENERAL_RATE_BURST must be > 0")
	}
	if c.ConcurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return nil
}

// ParseBackoffTiers lê "3:5m,6:30m" (violações:duração), em qualquer ordem.
func ParseBackoffTiers(s string) ([]domain.BackoffTier, error) {
	var tiers []domain.BackoffTier
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, d, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("backoff tier %q: expected count:duration", part)
		}
		count, err := strconv.ParseUint(strings.TrimSpace(n), 10, 32)
		if err != nil || count == 0 {
			return nil, fmt.Errorf("backoff tier %q: bad count", part)
		}
		dur, err := time.ParseDuration(strings.TrimSpace(d))
		if err != nil || dur <= 0 {
			return nil, fmt.Errorf("backoff tier %q: bad duration", part)
		}
		tiers = append(tiers, domain.BackoffTier{Violations: uint32(count), Block: dur})
	}
	if len(tiers) == 0 {
		return nil, errors.New("no backoff tiers")
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Violations < tiers[j].Violations })
	return tiers, nil
}

func hostnameOr(def string) string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return def
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
