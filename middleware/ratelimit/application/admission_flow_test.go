package application

import (
	"testing"
	"time"

	"shortlink-gateway/middleware/ratelimit/domain"
	"shortlink-gateway/middleware/ratelimit/infra"
)

// Fluxo completo com os stores reais: a janela de um minuto esvazia, mas o
// bloqueio de backoff continua valendo até expirar.
func TestAdmissionService_WindowResetDoesNotLiftBackoff(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	svc := AdmissionService{
		Windows:    infra.NewWindowStore(1000, infra.WithWindowClock(clock)),
		Violations: infra.NewViolationStore(infra.WithViolationClock(clock)),
		IPCaps:     domain.Caps{PerMinute: 5, PerHour: 50},
		SubnetCaps: domain.Caps{PerMinute: 30, PerHour: 200},
		Backoff:    domain.DefaultBackoff(),
		Now:        clock,
	}
	req := AdmissionRequest{IP: "203.0.113.9", Subnet: "203.0.113.0/24", UserAgent: "Mozilla/5.0 (X11; Linux x86_64)"}

	for i := 0; i < 5; i++ {
		if dec, _ := svc.Admit(req); !dec.Allowed {
			t.Fatalf("request %d: expected allowed, got %+v", i+1, dec)
		}
	}
	for i := 0; i < 3; i++ {
		dec, _ := svc.Admit(req)
		if dec.Allowed || dec.Scope != domain.ScopeIP {
			t.Fatalf("violation %d: expected ip denial, got %+v", i+1, dec)
		}
	}

	now = now.Add(2 * time.Minute)
	dec, _ := svc.Admit(req)
	if dec.Allowed || dec.Scope != domain.ScopeBackoff {
		t.Fatalf("expected backoff block after the window emptied, got %+v", dec)
	}
	if dec.RetryAfter != 3*time.Minute {
		t.Fatalf("expected 3m left on the 5m block, got %s", dec.RetryAfter)
	}

	now = now.Add(4 * time.Minute)
	if dec, _ := svc.Admit(req); !dec.Allowed {
		t.Fatalf("expected admission once the block expired, got %+v", dec)
	}
}
