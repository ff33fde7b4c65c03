// Package redirect resolve códigos curtos no caminho quente: cache local
// (positivo e negativo) na frente do store, mais a contagem assíncrona de cliques.
package redirect

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"shortlink-gateway/link"
	"shortlink-gateway/store"
)

type Resolver struct {
	store store.Store
	cache *Cache
	now   func() time.Time
}

type ResolverOption func(*Resolver)

func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

func NewResolver(st store.Store, cache *Cache, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: st, cache: cache, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve devolve o registro servível do código.
// Erros: link.ErrNotFound, link.ErrExpired ou link.ErrStoreUnavailable (nunca confundidos).
func (r *Resolver) Resolve(ctx context.Context, code string) (link.Record, error) {
	if !link.LookupCodeOK(code) {
		return link.Record{}, link.ErrNotFound
	}

	if rec, negative, ok := r.cache.Get(code); ok {
		if negative {
			return link.Record{}, link.ErrNotFound
		}
		return r.servable(rec)
	}

	raw, err := r.store.Get(ctx, link.URLKey(code))
	if errors.Is(err, store.ErrNil) {
		r.cache.PutNegative(code)
		return link.Record{}, link.ErrNotFound
	}
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("redirect lookup failed")
		return link.Record{}, fmt.Errorf("%w: %w", link.ErrStoreUnavailable, err)
	}

	rec, err := link.Unmarshal(raw)
	if err != nil {
		return link.Record{}, fmt.Errorf("record %s: %w", code, err)
	}
	r.cache.Put(code, rec)
	return r.servable(rec)
}

func (r *Resolver) servable(rec link.Record) (link.Record, error) {
	if !rec.Enabled {
		return link.Record{}, link.ErrNotFound
	}
	if rec.Expired(r.now()) {
		return link.Record{}, link.ErrExpired
	}
	return rec, nil
}

// Invalidate deve ser chamado depois de qualquer escrita bem-sucedida do código.
func (r *Resolver) Invalidate(code string) {
	r.cache.Invalidate(code)
}

type TrackInfo struct {
	Record link.Record
	Code   string
	Clicks int64
}

// Track lê registro e contador num único round trip. Não usa o cache:
// o contador muda a cada clique.
func (r *Resolver) Track(ctx context.Context, code string) (TrackInfo, error) {
	if !link.LookupCodeOK(code) {
		return TrackInfo{}, link.ErrNotFound
	}

	res, err := r.store.Pipeline(ctx, store.Get(link.URLKey(code)), store.Get(link.ClickKey(code)))
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("track lookup failed")
		return TrackInfo{}, fmt.Errorf("%w: %w", link.ErrStoreUnavailable, err)
	}
	if !res[0].Found {
		return TrackInfo{}, link.ErrNotFound
	}

	rec, err := link.Unmarshal(res[0].Value)
	if err != nil {
		return TrackInfo{}, fmt.Errorf("record %s: %w", code, err)
	}
	if _, err := r.servable(rec); err != nil {
		return TrackInfo{}, err
	}

	info := TrackInfo{Record: rec, Code: code}
	if res[1].Found {
		// contador corrompido conta como zero
		info.Clicks, _ = strconv.ParseInt(res[1].Value, 10, 64)
	}
	return info, nil
}
