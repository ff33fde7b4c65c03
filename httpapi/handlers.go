package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"shortlink-gateway/creator"
	"shortlink-gateway/link"
	"shortlink-gateway/middleware/ratelimit/infra"
	"shortlink-gateway/monitor"
)

const (
	maxBodyBytes  = 64 << 10
	healthTimeout = 2 * time.Second
	secretHeader  = "X-Monitoring-Secret"
	captchaHeader = "X-Captcha-Token"
)

type shortenRequest struct {
	OriginalURL     string `json:"originalUrl"`
	CustomShortCode string `json:"customShortCode"`
	TTL             *int64 `json:"ttl"`
	RedirectType    int    `json:"redirectType"`
	CaptchaToken    string `json:"captchaToken"`
}

type shortenResponse struct {
	ShortCode   string     `json:"shortCode"`
	OriginalURL string     `json:"originalUrl"`
	ShortURL    string     `json:"shortUrl,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

func (s *Server) handleShorten(w http.ResponseWriter, r *http.Request) {
	var body shortenRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON body"})
		return
	}

	token := body.CaptchaToken
	if token == "" {
		token = r.Header.Get(captchaHeader)
	}

	res, err := s.Creator.Create(r.Context(), creator.Request{
		OriginalURL:  body.OriginalURL,
		CustomCode:   body.CustomShortCode,
		TTL:          body.TTL,
		RedirectType: body.RedirectType,
		CaptchaToken: token,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	out := shortenResponse{ShortCode: res.Code, OriginalURL: res.OriginalURL, ExpiresAt: res.ExpiresAt}
	if s.BaseURL != "" {
		out.ShortURL = s.BaseURL + "/" + res.Code
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	rec, err := s.Resolver.Resolve(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Cache-Control", link.CacheControl(rec.RedirectStatus))
	http.Redirect(w, r, rec.URL, rec.RedirectStatus)

	// contabilidade fora do caminho da resposta
	if s.Clicks != nil {
		s.Clicks.Dispatch(code)
	}
	if s.Monitor != nil {
		s.Monitor.RecordRedirect(code)
		if s.Monitor.ClickAnomaly(code) {
			log.Warn().Str("code", code).Msg("click anomaly detected")
		}
	}
}

type trackResponse struct {
	OriginalURL string     `json:"originalUrl"`
	ShortCode   string     `json:"shortCode"`
	Clicks      int64      `json:"clicks"`
	CreatedAt   *time.Time `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	info, err := s.Resolver.Track(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}

	out := trackResponse{
		OriginalURL: info.Record.URL,
		ShortCode:   info.Code,
		Clicks:      info.Clicks,
		ExpiresAt:   info.Record.ExpiresAt(),
	}
	if !info.Record.CreatedAt.IsZero() {
		ca := info.Record.CreatedAt.UTC()
		out.CreatedAt = &ca
	}
	writeJSON(w, http.StatusOK, out)
}

type healthResponse struct {
	Status         string    `json:"status"`
	StoreConnected bool      `json:"storeConnected"`
	Timestamp      time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	out := healthResponse{Status: "healthy", StoreConnected: true, Timestamp: time.Now().UTC()}
	status := http.StatusOK
	if err := s.Store.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("health check: store ping failed")
		out.Status = "degraded"
		out.StoreConnected = false
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, out)
}

type inFlightSummary struct {
	InUse    int `json:"inUse"`
	Capacity int `json:"capacity"`
}

type dashboardResponse struct {
	monitor.Dashboard
	RateLimit *infra.Summary   `json:"rateLimit,omitempty"`
	InFlight  *inFlightSummary `json:"inFlight,omitempty"`
}

// handleDashboard: sem segredo configurado a rota não existe.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if s.MonitoringSecret == "" || s.Monitor == nil {
		http.NotFound(w, r)
		return
	}
	got := r.Header.Get(secretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.MonitoringSecret)) != 1 {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
		return
	}

	out := dashboardResponse{Dashboard: s.Monitor.Snapshot()}
	if s.RateStats != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		sum, err := s.RateStats.Summary(ctx)
		cancel()
		if err != nil {
			// o resto do painel continua útil sem as stats
			log.Warn().Err(err).Msg("dashboard: rate limit summary failed")
		} else {
			out.RateLimit = &sum
		}
	}
	if s.InFlight != nil {
		out.InFlight = &inFlightSummary{InUse: s.InFlight.InUse(), Capacity: s.InFlight.Capacity()}
	}
	writeJSON(w, http.StatusOK, out)
}
