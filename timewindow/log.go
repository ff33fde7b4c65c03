// Package timewindow guarda listas de timestamps por chave (janelas deslizantes)
// com lock por chave, shards por hash e despejo da entrada mais antiga.
//
// É a base compartilhada do rate limit (buckets por IP/subnet) e do monitoramento
// (cliques por link, criações por IP).
package timewindow

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Log é a janela de uma chave. Os métodos (exceto os de Keyed) assumem que o
// chamador está dentro de Keyed.With/View, que já seguram o lock.
type Log struct {
	mu   sync.Mutex
	ts   []time.Time
	dead atomic.Bool
}

// Prune descarta timestamps com idade >= horizon.
func (l *Log) Prune(now time.Time, horizon time.Duration) {
	cutoff := now.Add(-horizon)
	i := sort.Search(len(l.ts), func(i int) bool { return l.ts[i].After(cutoff) })
	if i == 0 {
		return
	}
	n := copy(l.ts, l.ts[i:])
	l.ts = l.ts[:n]
}

// Append registra t mantendo a ordem (relógio injetado pode andar para trás).
func (l *Log) Append(t time.Time) {
	if n := len(l.ts); n > 0 && t.Before(l.ts[n-1]) {
		t = l.ts[n-1]
	}
	l.ts = append(l.ts, t)
}

func (l *Log) Len() int { return len(l.ts) }

// CountSince conta timestamps estritamente depois de since.
func (l *Log) CountSince(since time.Time) int {
	return len(l.ts) - l.firstAfter(since)
}

// OldestSince retorna o timestamp mais antigo estritamente depois de since.
func (l *Log) OldestSince(since time.Time) (time.Time, bool) {
	i := l.firstAfter(since)
	if i >= len(l.ts) {
		return time.Time{}, false
	}
	return l.ts[i], true
}

func (l *Log) firstAfter(since time.Time) int {
	return sort.Search(len(l.ts), func(i int) bool { return l.ts[i].After(since) })
}
