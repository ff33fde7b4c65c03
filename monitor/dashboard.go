package monitor

import (
	"sort"
	"time"

	"shortlink-gateway/timewindow"
)

const (
	dashboardTop     = 20
	dashboardFlagged = 50
	redirectWindow   = 5 * time.Minute
)

type DomainCount struct {
	Domain string `json:"domain"`
	Count  int64  `json:"count"`
}

type RedirectCount struct {
	ShortCode      string `json:"shortCode"`
	ClicksLast5Min int    `json:"clicksLast5Min"`
	TotalTracked   int    `json:"totalTracked"`
}

type KillSwitchState struct {
	Active      bool       `json:"active"`
	ActivatedAt *time.Time `json:"activatedAt"`
}

type Dashboard struct {
	LinksCreatedLastMinute int             `json:"linksCreatedLastMinute"`
	LinksCreatedLastHour   int             `json:"linksCreatedLastHour"`
	TopDomains             []DomainCount   `json:"topDomains"`
	TopRedirects           []RedirectCount `json:"topRedirects"`
	RecentFlaggedLinks     []FlaggedLink   `json:"recentFlaggedLinks"`
	KillSwitch             KillSwitchState `json:"killSwitch"`
	Timestamp              time.Time       `json:"timestamp"`
}

// Snapshot monta a visão do dashboard. Copia cada estrutura sob o próprio lock.
func (m *Monitor) Snapshot() Dashboard {
	now := m.now()
	d := Dashboard{Timestamp: now.UTC()}

	m.createdMu.Lock()
	m.created.Prune(now, time.Hour)
	d.LinksCreatedLastHour = m.created.Len()
	d.LinksCreatedLastMinute = m.created.CountSince(now.Add(-time.Minute))
	m.createdMu.Unlock()

	m.domainsMu.Lock()
	domains := make(map[string]int64, len(m.domains))
	for k, v := range m.domains {
		domains[k] = v
	}
	m.domainsMu.Unlock()
	d.TopDomains = topDomains(domains, dashboardTop)

	since := now.Add(-redirectWindow)
	redirects := make([]RedirectCount, 0)
	m.clicks.Each(func(code string, l *timewindow.Log) {
		redirects = append(redirects, RedirectCount{
			ShortCode:      code,
			ClicksLast5Min: l.CountSince(since),
			TotalTracked:   l.Len(),
		})
	})
	sort.Slice(redirects, func(i, j int) bool {
		if redirects[i].ClicksLast5Min != redirects[j].ClicksLast5Min {
			return redirects[i].ClicksLast5Min > redirects[j].ClicksLast5Min
		}
		return redirects[i].ShortCode < redirects[j].ShortCode
	})
	if len(redirects) > dashboardTop {
		redirects = redirects[:dashboardTop]
	}
	d.TopRedirects = redirects

	d.RecentFlaggedLinks = m.flagged.recent(dashboardFlagged)

	d.KillSwitch.Active = m.IsKillSwitchActive()
	if d.KillSwitch.Active {
		m.ks.mu.Lock()
		at := m.ks.activatedAt.UTC()
		m.ks.mu.Unlock()
		d.KillSwitch.ActivatedAt = &at
	}
	return d
}
