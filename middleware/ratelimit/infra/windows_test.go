package infra

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"shortlink-gateway/middleware/ratelimit/domain"
)

var (
	ipCaps     = domain.Caps{PerMinute: 5, PerHour: 50}
	subnetCaps = domain.Caps{PerMinute: 30, PerHour: 200}
)

func TestWindowStore_AdmitsUpToMinuteCapThenRejects(t *testing.T) {
	s := NewWindowStore(100)
	now := time.Unix(10_000, 0)

	for i := 0; i < 5; i++ {
		dec := s.Admit("1.2.3.4", ipCaps, "1.2.3.0/24", subnetCaps, now.Add(time.Duration(i)*time.Second))
		if !dec.Allowed {
			t.Fatalf("expected request %d to be allowed", i+1)
		}
	}

	dec := s.Admit("1.2.3.4", ipCaps, "1.2.3.0/24", subnetCaps, now.Add(10*time.Second))
	if dec.Allowed {
		t.Fatalf("expected 6th request to be rejected")
	}
	if dec.Scope != domain.ScopeIP {
		t.Fatalf("expected ip scope, got %q", dec.Scope)
	}
	// mais antigo em t=0, agora t=10s => 50s
	if dec.RetryAfter != 50*time.Second {
		t.Fatalf("expected RetryAfter=50s, got %s", dec.RetryAfter)
	}
}

func TestWindowStore_MinuteWindowSlides(t *testing.T) {
	s := NewWindowStore(100)
	now := time.Unix(10_000, 0)

	for i := 0; i < 5; i++ {
		s.Admit("1.2.3.4", ipCaps, "1.2.3.0/24", subnetCaps, now)
	}
	dec := s.Admit("1.2.3.4", ipCaps, "1.2.3.0/24", subnetCaps, now.Add(61*time.Second))
	if !dec.Allowed {
		t.Fatalf("expected request after a minute to be allowed")
	}
}

func TestWindowStore_HourCap(t *testing.T) {
	s := NewWindowStore(100)
	now := time.Unix(10_000, 0)
	caps := domain.Caps{PerMinute: 100, PerHour: 3}

	for i := 0; i < 3; i++ {
		s.Admit("ip", caps, "net", subnetCaps, now.Add(time.Duration(i)*time.Minute))
	}
	dec := s.Admit("ip", caps, "net", subnetCaps, now.Add(10*time.Minute))
	if dec.Allowed {
		t.Fatalf("expected hour cap to reject")
	}
	if dec.RetryAfter != 50*time.Minute {
		t.Fatalf("expected RetryAfter=50m, got %s", dec.RetryAfter)
	}
}

func TestWindowStore_SubnetGateIsIndependent(t *testing.T) {
	s := NewWindowStore(100)
	now := time.Unix(10_000, 0)
	small := domain.Caps{PerMinute: 2, PerHour: 10}

	s.Admit("1.2.3.1", ipCaps, "1.2.3.0/24", small, now)
	s.Admit("1.2.3.2", ipCaps, "1.2.3.0/24", small, now)

	dec := s.Admit("1.2.3.3", ipCaps, "1.2.3.0/24", small, now)
	if dec.Allowed || dec.Scope != domain.ScopeSubnet {
		t.Fatalf("expected subnet reject, got %+v", dec)
	}

	// rejeição na subnet não consome a janela do IP
	other := s.Admit("1.2.3.3", ipCaps, "9.9.9.0/24", small, now)
	if !other.Allowed {
		t.Fatalf("expected ip window to be untouched after subnet reject")
	}
}

func TestWindowStore_ConcurrentSameIPNeverExceedsCap(t *testing.T) {
	s := NewWindowStore(100)
	now := time.Now()

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Admit("1.2.3.4", ipCaps, "1.2.3.0/24", subnetCaps, now).Allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 5 {
		t.Fatalf("expected exactly 5 admissions, got %d", got)
	}
}

func TestWindowStore_SweepDropsEmptyWindows(t *testing.T) {
	now := time.Unix(10_000, 0)
	clock := now
	s := NewWindowStore(100, WithWindowClock(func() time.Time { return clock }))

	s.Admit("1.2.3.4", ipCaps, "1.2.3.0/24", subnetCaps, now)
	clock = now.Add(2 * time.Hour)

	if removed := s.Sweep(); removed != 2 {
		t.Fatalf("expected ip and subnet windows to be swept, got %d", removed)
	}
	if ips, subnets := s.Tracked(); ips != 0 || subnets != 0 {
		t.Fatalf("expected nothing tracked, got ips=%d subnets=%d", ips, subnets)
	}
}
