// Package httpapi expõe as rotas HTTP do encurtador sobre http.ServeMux.
package httpapi

import (
	"context"
	"net/http"

	"github.com/klauspost/compress/gzhttp"

	"shortlink-gateway/creator"
	"shortlink-gateway/middleware/proxydetect"
	"shortlink-gateway/middleware/ratelimit/domain"
	"shortlink-gateway/middleware/ratelimit/infra"
	"shortlink-gateway/monitor"
	"shortlink-gateway/redirect"
	"shortlink-gateway/store"
)

type Middleware func(http.Handler) http.Handler

// StatsSummary é a fonte do bloco rateLimit do dashboard: a memória da
// instância ou o Redis compartilhado.
type StatsSummary interface {
	Summary(ctx context.Context) (infra.Summary, error)
}

type Server struct {
	Store    store.Store
	Resolver *redirect.Resolver
	Clicks   *redirect.ClickRecorder
	Creator  *creator.Creator
	Monitor  *monitor.Monitor
	Proxy    proxydetect.Detector

	// General é o limiter das rotas de leitura; nil desliga.
	General Middleware
	// RateStats e InFlight são opcionais no dashboard.
	RateStats StatsSummary
	InFlight  domain.Slots

	MonitoringSecret string
	BaseURL          string
}

// Routes monta o mux. /track e /health ficam antes do curinga /{code}
// por especificidade do padrão, não por ordem.
func (s *Server) Routes() http.Handler {
	general := s.General
	if general == nil {
		general = func(h http.Handler) http.Handler { return h }
	}

	mux := http.NewServeMux()
	mux.Handle(creator.Route, proxydetect.Middleware(s.Proxy)(gzhttp.GzipHandler(http.HandlerFunc(s.handleShorten))))
	mux.Handle("GET /track/{code}", general(gzhttp.GzipHandler(http.HandlerFunc(s.handleTrack))))
	mux.Handle("GET /health", gzhttp.GzipHandler(http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /monitoring/dashboard", gzhttp.GzipHandler(http.HandlerFunc(s.handleDashboard)))
	mux.Handle("GET /{code}", general(http.HandlerFunc(s.handleRedirect)))
	return mux
}
