package domain

import (
	"math"
	"time"
)

// Caps são os limites de uma janela deslizante (1 minuto e 1 hora).
type Caps struct {
	PerMinute int
	PerHour   int
}

// Scale aplica um fator com arredondamento para baixo.
func (c Caps) Scale(f float64) Caps {
	if f == 1 {
		return c
	}
	return Caps{
		PerMinute: int(math.Floor(float64(c.PerMinute) * f)),
		PerHour:   int(math.Floor(float64(c.PerHour) * f)),
	}
}

// BackoffTier: a partir de Violations violações, bloqueia por Block.
type BackoffTier struct {
	Violations uint32
	Block      time.Duration
}

// DefaultBackoff é a tabela 3→5min, 6→30min, 10→1h, 20→24h.
func DefaultBackoff() []BackoffTier {
	return []BackoffTier{
		{Violations: 3, Block: 5 * time.Minute},
		{Violations: 6, Block: 30 * time.Minute},
		{Violations: 10, Block: time.Hour},
		{Violations: 20, Block: 24 * time.Hour},
	}
}

// BlockFor devolve a duração do maior degrau atingido por count (não soma).
func BlockFor(tiers []BackoffTier, count uint32) time.Duration {
	var d time.Duration
	for _, t := range tiers {
		if count >= t.Violations && t.Block > d {
			d = t.Block
		}
	}
	return d
}

// Violation é o histórico de violações de um IP.
// Count só cresce; BlockedUntil só avança.
type Violation struct {
	Count        uint32
	BlockedUntil time.Time
}

// WindowGate verifica e registra, de forma atômica, as janelas de IP e subnet.
//
// Só registra o timestamp nas duas janelas quando as duas permitem.
type WindowGate interface {
	Admit(ip Key, ipCaps Caps, subnet Key, subnetCaps Caps, now time.Time) Decision
}

// ViolationBook guarda violações por IP para o backoff progressivo.
type ViolationBook interface {
	// BlockedFor devolve quanto falta do bloqueio atual (0 se livre).
	BlockedFor(ip Key, now time.Time) time.Duration
	Record(ip Key, now time.Time, tiers []BackoffTier) Violation
}
