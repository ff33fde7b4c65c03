package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"shortlink-gateway/creator"
	"shortlink-gateway/link"
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
)

type testEnv struct {
	srv   *Server
	h     http.Handler
	store *store.Memory
	mon   *monitor.Monitor
	stats *infra.MemoryStatsStore
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemory()
	mon := monitor.New(monitor.DefaultConfig())
	stats := infra.NewMemoryStatsStore()
	res := redirect.NewResolver(st, redirect.NewCache(100, time.Minute, 2*time.Second))
	clicks := redirect.NewClickRecorder(st, 1, 16)
	t.Cleanup(clicks.Close)

	srv := &Server{
		Store:    st,
		Resolver: res,
		Clicks:   clicks,
		Monitor:  mon,
		Creator: &creator.Creator{
			Store:   st,
			Cache:   res,
			Monitor: mon,
			Stats:   stats,
			Scanner: urlsafety.Scanner{Flags: mon},
			Admission: application.AdmissionService{
				Windows:    infra.NewWindowStore(1000),
				Violations: infra.NewViolationStore(),
				IPCaps:     domain.Caps{PerMinute: 5, PerHour: 50},
				SubnetCaps: domain.Caps{PerMinute: 30, PerHour: 200},
			},
		},
		Proxy:            proxydetect.Detector{},
		RateStats:        stats,
		MonitoringSecret: "s3cret",
		BaseURL:          "https://sho.rt",
	}
	return &testEnv{srv: srv, h: srv.Routes(), store: st, mon: mon, stats: stats}
}

func (e *testEnv) do(method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:5555"
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestShortenThenRedirect(t *testing.T) {
	e := newEnv(t)

	rr := e.do(http.MethodPost, "/shorten", `{"originalUrl":"https://example.com/page","customShortCode":"hello","redirectType":302}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	out := decode[shortenResponse](t, rr)
	if out.ShortCode != "hello" || out.ShortURL != "https://sho.rt/hello" || out.ExpiresAt != nil {
		t.Fatalf("unexpected response %+v", out)
	}

	rr = e.do(http.MethodGet, "/hello", "", nil)
	if rr.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "https://example.com/page" {
		t.Fatalf("expected location header, got %q", loc)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("expected no-store for 302, got %q", cc)
	}
}

func TestShorten_DuplicateCode(t *testing.T) {
	e := newEnv(t)
	body := `{"originalUrl":"https://example.com","customShortCode":"dup"}`
	e.do(http.MethodPost, "/shorten", body, nil)

	rr := e.do(http.MethodPost, "/shorten", body, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if got := decode[errorBody](t, rr); got.Error != "Shortcode already exists" {
		t.Fatalf("unexpected error body %+v", got)
	}
}

func TestShorten_InvalidJSON(t *testing.T) {
	e := newEnv(t)
	rr := e.do(http.MethodPost, "/shorten", `{"originalUrl":`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestShorten_RateLimitedWithRetryAfter(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 5; i++ {
		if rr := e.do(http.MethodPost, "/shorten", `{"originalUrl":"https://example.com"}`, nil); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
	}
	rr := e.do(http.MethodPost, "/shorten", `{"originalUrl":"https://example.com"}`, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestShorten_TooManyHops(t *testing.T) {
	e := newEnv(t)
	rr := e.do(http.MethodPost, "/shorten", `{"originalUrl":"https://example.com"}`,
		map[string]string{"X-Forwarded-For": "1.1.1.1, 2.2.2.2, 3.3.3.3, 4.4.4.4, 5.5.5.5, 6.6.6.6"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestShorten_UnsafeURL(t *testing.T) {
	e := newEnv(t)
	rr := e.do(http.MethodPost, "/shorten", `{"originalUrl":"http://123.123.123.123/x"}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestShorten_KillSwitch(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 10; i++ {
		e.mon.RecordFlagged("https://bad.example", "test")
	}
	rr := e.do(http.MethodPost, "/shorten", `{"originalUrl":"https://example.com"}`, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestRedirect_NotFoundAndExpired(t *testing.T) {
	e := newEnv(t)

	if rr := e.do(http.MethodGet, "/missing", "", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := e.do(http.MethodGet, "/bad.code", "", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for invalid code, got %d", rr.Code)
	}

	rec := link.Record{URL: "https://example.com", Enabled: true, ExpiresAtMs: 1, RedirectStatus: 308}
	raw, _ := rec.Marshal()
	_, _ = e.store.Set(context.Background(), link.URLKey("old"), raw, store.SetOptions{})
	if rr := e.do(http.MethodGet, "/old", "", nil); rr.Code != http.StatusGone {
		t.Fatalf("expected 410, got %d", rr.Code)
	}
}

func TestRedirect_StoreOutageIs503(t *testing.T) {
	e := newEnv(t)
	e.store.SetFail(errors.New("down"))
	if rr := e.do(http.MethodGet, "/abc", "", nil); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestTrack_CountsClicks(t *testing.T) {
	e := newEnv(t)
	e.do(http.MethodPost, "/shorten", `{"originalUrl":"https://example.com","customShortCode":"trk"}`, nil)
	e.do(http.MethodGet, "/trk", "", nil)
	e.do(http.MethodGet, "/trk", "", nil)
	e.srv.Clicks.Close()

	rr := e.do(http.MethodGet, "/track/trk", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	out := decode[trackResponse](t, rr)
	if out.Clicks != 2 || out.OriginalURL != "https://example.com" || out.CreatedAt == nil {
		t.Fatalf("unexpected track response %+v", out)
	}
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	rr := e.do(http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if out := decode[healthResponse](t, rr); !out.StoreConnected || out.Status != "healthy" {
		t.Fatalf("unexpected health %+v", out)
	}

	e.store.SetFail(errors.New("down"))
	rr = e.do(http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if out := decode[healthResponse](t, rr); out.StoreConnected || out.Status != "degraded" {
		t.Fatalf("unexpected health %+v", out)
	}
}

func TestDashboard_RequiresSecret(t *testing.T) {
	e := newEnv(t)
	if rr := e.do(http.MethodGet, "/monitoring/dashboard", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", rr.Code)
	}

	e.do(http.MethodPost, "/shorten", `{"originalUrl":"https://example.com"}`, nil)
	rr := e.do(http.MethodGet, "/monitoring/dashboard", "", map[string]string{secretHeader: "s3cret"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var out struct {
		LinksCreatedLastHour int            `json:"linksCreatedLastHour"`
		RateLimit            *infra.Summary `json:"rateLimit"`
		InFlight             *struct {
			Capacity int `json:"capacity"`
		} `json:"inFlight"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.LinksCreatedLastHour != 1 || out.RateLimit == nil || out.RateLimit.Total.Allowed != 1 {
		t.Fatalf("unexpected dashboard %s", rr.Body.String())
	}
	if out.RateLimit.ByRoute["POST /shorten"].Allowed != 1 {
		t.Fatalf("expected admission under POST /shorten, got %v", out.RateLimit.ByRoute)
	}
	if out.InFlight != nil {
		t.Fatalf("expected no inFlight block without slots")
	}
}

type brokenSummary struct{}

func (brokenSummary) Summary(context.Context) (infra.Summary, error) {
	return infra.Summary{}, errors.New("redis down")
}

func TestDashboard_SurvivesStatsFailureAndShowsInFlight(t *testing.T) {
	e := newEnv(t)
	e.srv.RateStats = brokenSummary{}
	e.srv.InFlight = infra.NewSlots(8)
	e.h = e.srv.Routes()

	rr := e.do(http.MethodGet, "/monitoring/dashboard", "", map[string]string{secretHeader: "s3cret"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := out["rateLimit"]; ok {
		t.Fatalf("expected rateLimit omitted on failure, got %s", rr.Body.String())
	}
	if string(out["inFlight"]) != `{"inUse":0,"capacity":8}` {
		t.Fatalf("unexpected inFlight %s", out["inFlight"])
	}
}

func TestDashboard_HiddenWithoutConfiguredSecret(t *testing.T) {
	e := newEnv(t)
	e.srv.MonitoringSecret = ""
	e.h = e.srv.Routes()
	if rr := e.do(http.MethodGet, "/monitoring/dashboard", "", map[string]string{secretHeader: ""}); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestGeneralLimiterOnReadRoutes(t *testing.T) {
	e := newEnv(t)
	e.srv.General = ratelimit.Middleware(ratelimit.Options{
		Store:           infra.NewBucketStore(0.001, 2),
		Resolver:        clientip.Resolver{},
		StandardHeaders: true,
	})
	e.h = e.srv.Routes()

	for i := 0; i < 2; i++ {
		if rr := e.do(http.MethodGet, "/missing", "", nil); rr.Code != http.StatusNotFound {
			t.Fatalf("request %d: expected 404, got %d", i, rr.Code)
		}
	}
	rr := e.do(http.MethodGet, "/missing", "", nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" || rr.Header().Get("RateLimit-Remaining") != "0" {
		t.Fatalf("expected Retry-After and RateLimit-Remaining=0, got %v", rr.Header())
	}
	// health não passa pelo limiter geral
	if rr := e.do(http.MethodGet, "/health", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected health to bypass limiter, got %d", rr.Code)
	}
}
