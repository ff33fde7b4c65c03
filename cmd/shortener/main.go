package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"shortlink-gateway/config"
	"shortlink-gateway/creator"
	"shortlink-gateway/httpapi"
	"shortlink-gateway/logger"
	"shortlink-gateway/middleware/accesslog"
	"shortlink-gateway/middleware/clientip"
	"shortlink-gateway/middleware/proxydetect"
	"shortlink-gateway/middleware/ratelimit"
	"shortlink-gateway/middleware/ratelimit/application"
	"shortlink-gateway/middleware/ratelimit/domain"
	"shortlink-gateway/middleware/ratelimit/infra"
	"shortlink-gateway/monitor"
	"shortlink-gateway/redirect"
	"shortlink-gateway/store"
	"shortlink-gateway/urlsafety"
	"shortlink-gateway/verify"
)

func main() {
	cfg, err := config.Load()
	logger.Init(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("store error")
	}
	defer func() { _ = st.Close() }()

	rv := clientip.Resolver{Header: cfg.ClientIPHeader, TrustXForwardedFor: cfg.TrustXFF}

	// stats do rate limit: memória sempre; com Redis o dashboard soma as instâncias
	memStats := infra.NewMemoryStatsStore(
		infra.WithTrackKeys(cfg.RateStatsTrackKeys),
		infra.WithMaxTrackedKeys(cfg.RateMaxTracked),
	)
	stats := infra.MultiStats{memStats}
	var summary httpapi.StatsSummary = memStats
	if rs, ok := st.(*store.Redis); ok && cfg.RateStatsEnabled {
		redisStats := infra.NewRedisStatsStore(
			rs.Client(),
			infra.WithStatsPrefix(cfg.RateStatsPrefix),
			infra.WithStatsTTL(cfg.RateStatsTTL),
			infra.WithStatsBucket(cfg.RateStatsBucket),
			infra.WithStatsTrackKeys(cfg.RateStatsTrackKeys),
		)
		stats = append(stats, redisStats)
		summary = redisStats
	}

	windows := infra.NewWindowStore(cfg.RateMaxTracked, infra.WithSweepEvery(cfg.RateSweepEvery))
	violations := infra.NewViolationStore(
		infra.WithViolationSweepEvery(cfg.RateSweepEvery),
		infra.WithMaxViolations(cfg.RateMaxTracked),
	)
	reads := infra.NewBucketStore(cfg.GeneralRateRPS, cfg.GeneralRateBurst, infra.WithMaxBuckets(cfg.RateMaxTracked))

	var inFlight domain.Slots
	if cfg.ConcurrencyMax > 0 {
		inFlight = infra.NewSlots(cfg.ConcurrencyMax)
	}

	mon := monitor.New(monitor.Config{
		KillSwitchThreshold:   cfg.KillSwitchThreshold,
		KillSwitchWindow:      cfg.KillSwitchWindow,
		KillSwitchCooldown:    cfg.KillSwitchCooldown,
		ClickAnomalyThreshold: cfg.AnomalyClicks,
		ClickAnomalyWindow:    cfg.AnomalyClicksWindow,
		IPSpikeThreshold:      cfg.AnomalyIPCreations,
		SweepEvery:            cfg.MonitorSweepEvery,
	})

	resolver := redirect.NewResolver(st, redirect.NewCache(cfg.CacheSize, cfg.CacheTTL, cfg.CacheNegativeTTL))
	clicks := redirect.NewClickRecorder(st, cfg.ClickWorkers, cfg.ClickQueue)

	cr := &creator.Creator{
		Store:   st,
		Cache:   resolver,
		Monitor: mon,
		Stats:   stats,
		Admission: application.AdmissionService{
			Windows:    windows,
			Violations: violations,
			IPCaps:     domain.Caps{PerMinute: cfg.RatePerMin, PerHour: cfg.RatePerHour},
			SubnetCaps: domain.Caps{PerMinute: cfg.RateSubnetPerMin, PerHour: cfg.RateSubnetPerHour},
			UAFactor:   cfg.RateUAFactor,
			Backoff:    cfg.BackoffTiers,
		},
		Scanner:     urlsafety.Scanner{MinTrustScore: cfg.MinTrustScore, Flags: mon},
		Threats:     verify.NewSafeBrowsing(cfg.SafeBrowsingAPIKey, cfg.VerifyTimeout),
		Challenge:   verify.NewRecaptcha(cfg.RecaptchaSecret, cfg.CaptchaScoreThreshold, cfg.VerifyTimeout),
		ShouldCheck: verify.ShouldChallenge,
		MinTTL:      cfg.MinTTL,
		MaxTTL:      cfg.MaxTTL,
	}

	windows.StartJanitor(ctx)
	violations.StartJanitor(ctx)
	reads.StartJanitor(ctx)
	mon.StartJanitor(ctx)
	if pg, ok := st.(*store.Postgres); ok {
		pg.StartJanitor(ctx, 5*time.Minute, func(err error) {
			log.Warn().Err(err).Msg("expired row cleanup failed")
		})
	}

	api := &httpapi.Server{
		Store:    st,
		Resolver: resolver,
		Clicks:   clicks,
		Creator:  cr,
		Monitor:  mon,
		Proxy:    proxydetect.Detector{Resolver: rv},
		General: ratelimit.Middleware(ratelimit.Options{
			Store:           reads,
			Stats:           stats,
			Resolver:        rv,
			RejectStatus:    http.StatusTooManyRequests,
			StandardHeaders: true,
		}),
		RateStats:        summary,
		InFlight:         inFlight,
		MonitoringSecret: cfg.MonitoringSecret,
		BaseURL:          cfg.BaseURL,
	}

	h := api.Routes()
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Slots:          inFlight,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.ConcurrencyTimeout,
		Exempt:         func(r *http.Request) bool { return r.URL.Path == "/health" },
		Stats:          stats,
		Resolver:       rv,
	})(h)
	h = accesslog.Middleware(rv)(h)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", cfg.ListenAddr).
		Str("backend", cfg.StoreBackend).
		Msg("shortener listening")
	log.Info().
		Int("ip_per_min", cfg.RatePerMin).
		Int("ip_per_hour", cfg.RatePerHour).
		Int("subnet_per_min", cfg.RateSubnetPerMin).
		Int("subnet_per_hour", cfg.RateSubnetPerHour).
		Float64("general_rps", cfg.GeneralRateRPS).
		Int("general_burst", cfg.GeneralRateBurst).
		Bool("trust_xff", cfg.TrustXFF).
		Msg("rate limits")
	log.Info().
		Bool("safe_browsing", cfg.SafeBrowsingAPIKey != "").
		Bool("captcha", cfg.RecaptchaSecret != "").
		Bool("dashboard", cfg.MonitoringSecret != "").
		Bool("rate_stats_redis", cfg.RateStatsEnabled).
		Msg("features")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}

	// cliques ainda na fila são gravados antes de fechar o store
	clicks.Close()
	log.Info().Msg("shutdown complete")
}

// openStore abre o backend configurado.
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		log.Warn().Msg("using in-memory store: links are lost on restart")
		return store.NewMemory(), nil
	case config.BackendPostgres:
		pg, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}
		return store.NewRedis(rdb), nil
	}
}
