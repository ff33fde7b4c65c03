// Package creator orquestra a criação de links: kill switch, admissão, validação,
// filtros de segurança, CAPTCHA, escrita atômica e invalidação do cache.
package creator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"shortlink-gateway/link"
	"shortlink-gateway/middleware/ratelimit/application"
	"shortlink-gateway/middleware/ratelimit/domain"
	"shortlink-gateway/middleware/secmeta"
	"shortlink-gateway/store"
	"shortlink-gateway/urlsafety"
)

const (
	MaxURLLength     = 2048
	DefaultMinTTL    = 60
	DefaultMaxTTL    = 365 * 24 * 60 * 60
	maxGenerateTries = 5
)

// Route é o padrão do mux da criação; também rotula as stats da admissão.
const Route = "POST /shorten"

// Monitor é o que o creator usa do monitoramento.
type Monitor interface {
	urlsafety.FlagRecorder
	IsKillSwitchActive() bool
	RecordCreation(code, rawURL, ip string)
	IPCreationSpike(ip string) bool
}

type Admitter interface {
	Admit(req application.AdmissionRequest) (domain.Decision, bool)
}

type Invalidator interface {
	Invalidate(code string)
}

type ThreatChecker interface {
	Enabled() bool
	Check(ctx context.Context, rawURL string) (bool, error)
}

type ChallengeVerifier interface {
	Enabled() bool
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

type Request struct {
	OriginalURL string
	CustomCode  string
	// TTL em segundos; nil ou 0 para link sem expiração.
	TTL          *int64
	RedirectType int
	CaptchaToken string
}

type Result struct {
	Code        string
	OriginalURL string
	ExpiresAt   *time.Time
}

type Creator struct {
	Store       store.Store
	Cache       Invalidator
	Monitor     Monitor
	Admission   Admitter
	Stats       domain.StatsStore
	Scanner     urlsafety.Scanner
	Threats     ThreatChecker
	Challenge   ChallengeVerifier
	ShouldCheck func(*secmeta.Meta) bool

	MinTTL int64
	MaxTTL int64
	Now    func() time.Time
}

func (c *Creator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Create roda o pipeline completo. O meta vem do contexto (proxydetect) e é
// enriquecido aqui com UA suspeito e trust score.
func (c *Creator) Create(ctx context.Context, req Request) (Result, error) {
	meta, ok := secmeta.FromContext(ctx)
	if !ok {
		meta = &secmeta.Meta{}
	}

	if c.Monitor != nil && c.Monitor.IsKillSwitchActive() {
		return Result{}, &link.AdmissionError{
			Reason: "kill_switch",
			Status: http.StatusServiceUnavailable,
			Msg:    "Link creation is temporarily disabled due to detected abuse. Please try again later.",
		}
	}

	if err := c.admit(ctx, meta); err != nil {
		return Result{}, err
	}

	status, err := c.validate(&req)
	if err != nil {
		return Result{}, err
	}

	if err := c.checkSafety(ctx, meta, req.OriginalURL); err != nil {
		return Result{}, err
	}

	if err := c.checkChallenge(ctx, meta, req.CaptchaToken); err != nil {
		return Result{}, err
	}

	now := c.now()
	rec := link.Record{
		URL:            req.OriginalURL,
		Enabled:        true,
		RedirectStatus: status,
		CreatedAt:      now.UTC().Truncate(time.Second),
	}
	var ttl time.Duration
	if req.TTL != nil {
		ttl = time.Duration(*req.TTL) * time.Second
		rec.ExpiresAtMs = now.Add(ttl).UnixMilli()
	}

	code, err := c.write(ctx, req.CustomCode, rec, ttl)
	if err != nil {
		return Result{}, err
	}

	// antes da resposta: senão um "não existe" em cache esconde o link novo
	if c.Cache != nil {
		c.Cache.Invalidate(code)
	}

	if c.Monitor != nil {
		c.Monitor.RecordCreation(code, req.OriginalURL, meta.ClientIP)
		if c.Monitor.IPCreationSpike(meta.ClientIP) {
			log.Warn().Str("ip", meta.ClientIP).Msg("link creation spike from ip")
		}
	}

	log.Info().Str("code", code).Str("ip", meta.ClientIP).Msg("link created")
	return Result{Code: code, OriginalURL: req.OriginalURL, ExpiresAt: rec.ExpiresAt()}, nil
}

func (c *Creator) admit(ctx context.Context, meta *secmeta.Meta) error {
	if c.Admission == nil {
		return nil
	}
	ip := meta.ClientIP
	dec, suspicious := c.Admission.Admit(application.AdmissionRequest{
		IP:        domain.Key(ip),
		Subnet:    domain.Key(meta.Subnet),
		UserAgent: meta.UserAgent,
	})
	meta.SuspiciousUA = suspicious

	if c.Stats != nil {
		err := c.Stats.Record(ctx, domain.StatsEvent{
			Key:     domain.Key(ip),
			Allowed: dec.Allowed,
			Scope:   dec.Scope,
			Route:   Route,
			At:      c.now(),
		})
		if err != nil {
			log.Debug().Err(err).Msg("rate limit stats record failed")
		}
	}

	if dec.Allowed {
		return nil
	}

	msg := "Too many requests. Please try again later."
	switch dec.Scope {
	case domain.ScopeBackoff:
		msg = "You have been temporarily blocked due to excessive requests. Please try again later."
	case domain.ScopeSubnet:
		msg = "Too many requests from your network. Please try again later."
	}
	log.Info().Str("ip", ip).Str("scope", string(dec.Scope)).Dur("retry_after", dec.RetryAfter).Msg("creation throttled")
	return &link.AdmissionError{
		Reason:     string(dec.Scope),
		Status:     http.StatusTooManyRequests,
		RetryAfter: dec.RetryAfter,
		Msg:        msg,
	}
}

// validate normaliza req e devolve o status de redirect efetivo.
func (c *Creator) validate(req *Request) (int, error) {
	req.OriginalURL = strings.TrimSpace(req.OriginalURL)
	if req.OriginalURL == "" {
		return 0, &link.ValidationError{Field: "originalUrl", Msg: "originalUrl is required"}
	}
	if len(req.OriginalURL) > MaxURLLength {
		return 0, &link.ValidationError{Field: "originalUrl", Msg: "URL must be 2048 characters or fewer"}
	}
	u, err := url.Parse(req.OriginalURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return 0, &link.ValidationError{Field: "originalUrl", Msg: "Invalid URL. Only http and https URLs are allowed"}
	}

	if req.CustomCode != "" {
		if err := link.ValidateCustomCode(req.CustomCode); err != nil {
			return 0, err
		}
	}

	// ttl 0 equivale a não informar: link sem expiração
	if req.TTL != nil && *req.TTL == 0 {
		req.TTL = nil
	}
	if req.TTL != nil {
		lo, hi := c.MinTTL, c.MaxTTL
		if lo <= 0 {
			lo = DefaultMinTTL
		}
		if hi <= 0 {
			hi = DefaultMaxTTL
		}
		if *req.TTL < lo || *req.TTL > hi {
			return 0, &link.ValidationError{
				Field: "ttl",
				Msg:   fmt.Sprintf("TTL must be between %d and %d seconds", lo, hi),
			}
		}
	}

	status := req.RedirectType
	if !link.ValidRedirectStatus(status) {
		status = link.DefaultRedirectStatus
	}
	return status, nil
}

func (c *Creator) checkSafety(ctx context.Context, meta *secmeta.Meta, rawURL string) error {
	v := c.Scanner.Gate(rawURL)
	if !v.Allowed {
		return &link.SafetyError{Reason: string(v.Reason), Msg: v.Message}
	}
	if v.HasTrustScore {
		meta.TrustScore = v.TrustScore
		meta.HasTrustScore = true
	}

	if c.Threats == nil || !c.Threats.Enabled() {
		return nil
	}
	flagged, err := c.Threats.Check(ctx, rawURL)
	if err != nil {
		log.Warn().Err(err).Msg("safe browsing unavailable, allowing")
		return nil
	}
	if flagged {
		if c.Monitor != nil {
			c.Monitor.RecordFlagged(rawURL, string(urlsafety.ReasonSafeBrowsing))
		}
		return &link.SafetyError{
			Reason: string(urlsafety.ReasonSafeBrowsing),
			Msg:    "This URL has been flagged as unsafe by Google Safe Browsing and cannot be shortened.",
		}
	}
	return nil
}

func (c *Creator) checkChallenge(ctx context.Context, meta *secmeta.Meta, token string) error {
	if c.Challenge == nil || !c.Challenge.Enabled() {
		return nil
	}
	if c.ShouldCheck == nil || !c.ShouldCheck(meta) {
		return nil
	}
	if token == "" {
		return &link.ChallengeError{Msg: "CAPTCHA verification required. Please complete the CAPTCHA challenge."}
	}
	ok, err := c.Challenge.Verify(ctx, token, meta.ClientIP)
	if err != nil {
		log.Warn().Err(err).Msg("captcha verification unavailable, allowing")
		return nil
	}
	if !ok {
		return &link.ChallengeError{Msg: "CAPTCHA verification failed. Please try again."}
	}
	return nil
}

func (c *Creator) write(ctx context.Context, custom string, rec link.Record, ttl time.Duration) (string, error) {
	raw, err := rec.Marshal()
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	opts := store.SetOptions{NX: true, TTL: ttl}

	if custom != "" {
		ok, err := c.Store.Set(ctx, link.URLKey(custom), raw, opts)
		if err != nil {
			return "", storeErr(err)
		}
		if !ok {
			return "", link.ErrAlreadyExists
		}
		return custom, nil
	}

	// contador monotônico: só colide com código customizado ou rota reservada
	for i := 0; i < maxGenerateTries; i++ {
		n, err := c.Store.Incr(ctx, link.CounterKey)
		if err != nil {
			return "", storeErr(err)
		}
		code := link.EncodeBase62(uint64(n))
		if link.IsReserved(code) {
			continue
		}
		ok, err := c.Store.Set(ctx, link.URLKey(code), raw, opts)
		if err != nil {
			return "", storeErr(err)
		}
		if ok {
			return code, nil
		}
	}
	return "", errors.New("could not allocate a short code")
}

func storeErr(err error) error {
	log.Error().Err(err).Msg("store write failed")
	return fmt.Errorf("%w: %w", link.ErrStoreUnavailable, err)
}
