// Package monitor mantém contadores em memória do processo (criações, cliques,
// domínios, links rejeitados), detectores de anomalia e o kill switch global
// da criação de links.
//
// O estado é local ao processo; múltiplas instâncias não compartilham contadores.
package monitor

import (
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"shortlink-gateway/timewindow"

	"github.com/rs/zerolog/log"
)

type Config struct {
	KillSwitchThreshold int
	KillSwitchWindow    time.Duration
	KillSwitchCooldown  time.Duration

	ClickAnomalyThreshold int
	ClickAnomalyWindow    time.Duration
	IPSpikeThreshold      int

	FlaggedCapacity int
	MaxTrackedLinks int
	MaxTrackedIPs   int
	// ao passar de MaxDomains, a varredura mantém só os MaxDomains/2 mais frequentes.
	MaxDomains int

	SweepEvery time.Duration
}

func DefaultConfig() Config {
	return Config{
		KillSwitchThreshold:   10,
		KillSwitchWindow:      5 * time.Minute,
		KillSwitchCooldown:    15 * time.Minute,
		ClickAnomalyThreshold: 10000,
		ClickAnomalyWindow:    5 * time.Minute,
		IPSpikeThreshold:      10,
		FlaggedCapacity:       1000,
		MaxTrackedLinks:       10000,
		MaxTrackedIPs:         10000,
		MaxDomains:            10000,
		SweepEvery:            5 * time.Minute,
	}
}

// retenção das séries por link/IP
const trackHorizon = time.Hour

type Monitor struct {
	cfg Config
	now func() time.Time

	createdMu sync.Mutex
	created   timewindow.Log

	domainsMu sync.Mutex
	domains   map[string]int64

	clicks        *timewindow.Keyed
	creationsByIP *timewindow.Keyed
	flagged       *flaggedRing

	ks killSwitch
}

type killSwitch struct {
	mu          sync.Mutex
	active      bool
	activatedAt time.Time
	malicious   timewindow.Log
}

type Option func(*Monitor)

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

func New(cfg Config, opts ...Option) *Monitor {
	def := DefaultConfig()
	if cfg.KillSwitchThreshold <= 0 {
		cfg.KillSwitchThreshold = def.KillSwitchThreshold
	}
	if cfg.KillSwitchWindow <= 0 {
		cfg.KillSwitchWindow = def.KillSwitchWindow
	}
	if cfg.KillSwitchCooldown <= 0 {
		cfg.KillSwitchCooldown = def.KillSwitchCooldown
	}
	if cfg.ClickAnomalyThreshold <= 0 {
		cfg.ClickAnomalyThreshold = def.ClickAnomalyThreshold
	}
	if cfg.ClickAnomalyWindow <= 0 {
		cfg.ClickAnomalyWindow = def.ClickAnomalyWindow
	}
	if cfg.IPSpikeThreshold <= 0 {
		cfg.IPSpikeThreshold = def.IPSpikeThreshold
	}
	if cfg.FlaggedCapacity <= 0 {
		cfg.FlaggedCapacity = def.FlaggedCapacity
	}
	if cfg.MaxTrackedLinks <= 0 {
		cfg.MaxTrackedLinks = def.MaxTrackedLinks
	}
	if cfg.MaxTrackedIPs <= 0 {
		cfg.MaxTrackedIPs = def.MaxTrackedIPs
	}
	if cfg.MaxDomains <= 0 {
		cfg.MaxDomains = def.MaxDomains
	}

	m := &Monitor{
		cfg:           cfg,
		now:           time.Now,
		domains:       make(map[string]int64),
		clicks:        timewindow.NewKeyed(cfg.MaxTrackedLinks),
		creationsByIP: timewindow.NewKeyed(cfg.MaxTrackedIPs),
		flagged:       newFlaggedRing(cfg.FlaggedCapacity),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) RecordCreation(code, rawURL, ip string) {
	now := m.now()

	m.createdMu.Lock()
	m.created.Prune(now, time.Hour)
	m.created.Append(now)
	m.createdMu.Unlock()

	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host := strings.ToLower(u.Hostname())
		m.domainsMu.Lock()
		m.domains[host]++
		m.domainsMu.Unlock()
	}

	m.creationsByIP.With(ip, func(l *timewindow.Log) {
		l.Prune(now, trackHorizon)
		l.Append(now)
	})
}

func (m *Monitor) RecordRedirect(code string) {
	now := m.now()
	horizon := max(trackHorizon, m.cfg.ClickAnomalyWindow)
	m.clicks.With(code, func(l *timewindow.Log) {
		l.Prune(now, horizon)
		l.Append(now)
	})
}

// RecordFlagged guarda o link rejeitado e avalia o kill switch.
func (m *Monitor) RecordFlagged(rawURL, reason string) {
	now := m.now()
	m.flagged.push(FlaggedLink{URL: rawURL, Reason: reason, Timestamp: now})

	ks := &m.ks
	ks.mu.Lock()
	defer ks.mu.Unlock()

	ks.malicious.Prune(now, m.cfg.KillSwitchWindow)
	ks.malicious.Append(now)
	if !ks.active && ks.malicious.Len() >= m.cfg.KillSwitchThreshold {
		ks.active = true
		ks.activatedAt = now
		log.Warn().
			Int("flagged_in_window", ks.malicious.Len()).
			Dur("window", m.cfg.KillSwitchWindow).
			Msg("kill switch activated")
	}
}

// IsKillSwitchActive desativa sozinho quando o cooldown passou desde a ativação.
func (m *Monitor) IsKillSwitchActive() bool {
	now := m.now()

	ks := &m.ks
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if !ks.active {
		return false
	}
	if now.Sub(ks.activatedAt) > m.cfg.KillSwitchCooldown {
		ks.active = false
		ks.activatedAt = time.Time{}
		log.Info().Msg("kill switch deactivated: cooldown expired")
		return false
	}
	return true
}

// ClickAnomaly: cliques recentes do link atingiram o limiar. Só consultivo.
func (m *Monitor) ClickAnomaly(code string) bool {
	since := m.now().Add(-m.cfg.ClickAnomalyWindow)
	hit := false
	m.clicks.View(code, func(l *timewindow.Log) {
		hit = l.CountSince(since) >= m.cfg.ClickAnomalyThreshold
	})
	return hit
}

// IPCreationSpike: mais de IPSpikeThreshold criações do IP no último minuto.
func (m *Monitor) IPCreationSpike(ip string) bool {
	since := m.now().Add(-time.Minute)
	hit := false
	m.creationsByIP.View(ip, func(l *timewindow.Log) {
		hit = l.CountSince(since) > m.cfg.IPSpikeThreshold
	})
	return hit
}

// Sweep poda as séries, remove chaves vazias e compacta o mapa de domínios.
func (m *Monitor) Sweep() {
	now := m.now()

	m.createdMu.Lock()
	m.created.Prune(now, time.Hour)
	m.createdMu.Unlock()

	horizon := max(trackHorizon, m.cfg.ClickAnomalyWindow)
	links := m.clicks.Sweep(func(l *timewindow.Log) bool {
		l.Prune(now, horizon)
		return l.Len() == 0
	})
	ips := m.creationsByIP.Sweep(func(l *timewindow.Log) bool {
		l.Prune(now, trackHorizon)
		return l.Len() == 0
	})

	m.compactDomains()

	log.Debug().Int("links_removed", links).Int("ips_removed", ips).Msg("monitor sweep done")
}

func (m *Monitor) compactDomains() {
	m.domainsMu.Lock()
	if len(m.domains) <= m.cfg.MaxDomains {
		m.domainsMu.Unlock()
		return
	}
	snapshot := m.domains
	m.domains = make(map[string]int64)
	m.domainsMu.Unlock()

	// ordena fora do lock e troca o mapa; contagens que chegarem no meio são somadas
	top := topDomains(snapshot, m.cfg.MaxDomains/2)

	m.domainsMu.Lock()
	for _, d := range top {
		m.domains[d.Domain] += d.Count
	}
	m.domainsMu.Unlock()
}

// StartJanitor roda Sweep a cada SweepEvery. Pare cancelando o contexto.
func (m *Monitor) StartJanitor(ctx interface{ Done() <-chan struct{} }) {
	if m.cfg.SweepEvery <= 0 {
		return
	}
	t := time.NewTicker(m.cfg.SweepEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.Sweep()
			}
		}
	}()
}

func topDomains(src map[string]int64, n int) []DomainCount {
	out := make([]DomainCount, 0, len(src))
	for d, c := range src {
		out = append(out, DomainCount{Domain: d, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Domain < out[j].Domain
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
