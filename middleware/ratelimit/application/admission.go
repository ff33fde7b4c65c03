package application

import (
	"time"

	"shortlink-gateway/middleware/ratelimit/domain"
)

// AdmissionRequest descreve quem está tentando criar um link.
type AdmissionRequest struct {
	IP        domain.Key
	Subnet    domain.Key
	UserAgent string
}

// AdmissionService aplica, em ordem: bloqueio de backoff, janela por IP
// (reduzida para UA suspeito) e janela por subnet.
//
// Não sabe nada sobre HTTP; devolve a decisão e se o UA foi considerado suspeito.
type AdmissionService struct {
	Windows    domain.WindowGate
	Violations domain.ViolationBook

	IPCaps     domain.Caps
	SubnetCaps domain.Caps
	// UAFactor multiplica IPCaps para UA suspeito. 0 usa 0.5.
	UAFactor float64
	Backoff  []domain.BackoffTier

	Now func() time.Time
}

func (s AdmissionService) Admit(req AdmissionRequest) (domain.Decision, bool) {
	suspicious := IsSuspiciousUA(req.UserAgent)
	if s.Windows == nil {
		return domain.Decision{Allowed: true}, suspicious
	}

	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	// 1) backoff: janela limpa não libera IP bloqueado
	if s.Violations != nil {
		if left := s.Violations.BlockedFor(req.IP, now); left > 0 {
			return domain.Decision{Allowed: false, RetryAfter: left, Scope: domain.ScopeBackoff}, suspicious
		}
	}

	ipCaps := s.IPCaps
	if suspicious {
		f := s.UAFactor
		if f <= 0 {
			f = 0.5
		}
		ipCaps = ipCaps.Scale(f)
	}

	// 2) e 3) janelas de IP e subnet, verificadas e registradas juntas
	dec := s.Windows.Admit(req.IP, ipCaps, req.Subnet, s.SubnetCaps, now)
	if !dec.Allowed && dec.Scope == domain.ScopeIP && s.Violations != nil {
		tiers := s.Backoff
		if tiers == nil {
			tiers = domain.DefaultBackoff()
		}
		s.Violations.Record(req.IP, now, tiers)
	}
	return dec, suspicious
}
