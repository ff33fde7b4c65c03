package infra

import (
	"time"

	"shortlink-gateway/middleware/ratelimit/domain"
	"shortlink-gateway/timewindow"
)

// WindowStore implementa domain.WindowGate com janelas deslizantes por IP e por
// subnet. Cada janela guarda a última hora; o minuto é contado sobre ela.
type WindowStore struct {
	ips     *timewindow.Keyed
	subnets *timewindow.Keyed

	sweepEvery time.Duration
	now        func() time.Time
}

type WindowOption func(*WindowStore)

func WithSweepEvery(d time.Duration) WindowOption {
	return func(s *WindowStore) { s.sweepEvery = d }
}

func WithWindowClock(now func() time.Time) WindowOption {
	return func(s *WindowStore) { s.now = now }
}

// NewWindowStore cria o store limitando cada mapa (IP, subnet) a maxKeys chaves.
func NewWindowStore(maxKeys int, opts ...WindowOption) *WindowStore {
	s := &WindowStore{
		ips:        timewindow.NewKeyed(maxKeys),
		subnets:    timewindow.NewKeyed(maxKeys),
		sweepEvery: 5 * time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Admit trava a janela do IP e depois a da subnet (sempre nessa ordem), avalia
// as duas e só então registra o timestamp em ambas.
func (s *WindowStore) Admit(ip domain.Key, ipCaps domain.Caps, subnet domain.Key, subnetCaps domain.Caps, now time.Time) domain.Decision {
	var dec domain.Decision

	s.ips.With(string(ip), func(il *timewindow.Log) {
		il.Prune(now, time.Hour)
		if wait, ok := checkWindow(il, ipCaps, now); !ok {
			dec = domain.Decision{Allowed: false, RetryAfter: wait, Scope: domain.ScopeIP}
			return
		}

		s.subnets.With(string(subnet), func(sl *timewindow.Log) {
			sl.Prune(now, time.Hour)
			if wait, ok := checkWindow(sl, subnetCaps, now); !ok {
				dec = domain.Decision{Allowed: false, RetryAfter: wait, Scope: domain.ScopeSubnet}
				return
			}
			il.Append(now)
			sl.Append(now)
			dec = domain.Decision{Allowed: true}
		})
	})
	return dec
}

// checkWindow calcula o Retry-After a partir do timestamp mais antigo da janela estourada.
func checkWindow(l *timewindow.Log, caps domain.Caps, now time.Time) (time.Duration, bool) {
	minuteAgo := now.Add(-time.Minute)
	if l.CountSince(minuteAgo) >= caps.PerMinute {
		return retryFrom(l, minuteAgo, time.Minute, now), false
	}
	if l.Len() >= caps.PerHour {
		return retryFrom(l, now.Add(-time.Hour), time.Hour, now), false
	}
	return 0, true
}

func retryFrom(l *timewindow.Log, since time.Time, horizon time.Duration, now time.Time) time.Duration {
	oldest, ok := l.OldestSince(since)
	if !ok {
		return horizon
	}
	wait := horizon - now.Sub(oldest)
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}

// Sweep remove janelas vazias. Devolve quantas chaves saíram.
func (s *WindowStore) Sweep() int {
	now := s.now()
	empty := func(l *timewindow.Log) bool {
		l.Prune(now, time.Hour)
		return l.Len() == 0
	}
	return s.ips.Sweep(empty) + s.subnets.Sweep(empty)
}

// Tracked devolve quantas chaves de IP e de subnet estão em memória.
func (s *WindowStore) Tracked() (ips, subnets int) {
	return s.ips.Len(), s.subnets.Len()
}

// StartJanitor varre janelas vazias periodicamente. Pare cancelando o contexto.
func (s *WindowStore) StartJanitor(ctx DoneContext) {
	startTicker(ctx, s.sweepEvery, func() { s.Sweep() })
}
