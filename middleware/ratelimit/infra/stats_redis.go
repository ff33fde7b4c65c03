package infra

import (
	"context"
	"strconv"
	"strings"
	"time"

	"shortlink-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore soma as decisões de todas as instâncias em hashes do Redis:
//
//	{prefix}:total                  allowed, denied
//	{prefix}:route                  "<rota>|allowed", "<rota>|denied"
//	{prefix}:scope                  negações por regra
//	{prefix}:minute:{yyyymmddhhmm}  allowed, denied (expira em ttl)
//	{prefix}:ip:{ip}                allowed, denied (expira em ttl, só com trackKeys)
//
// total, route e scope são cumulativos e alimentam Summary.
type RedisStatsStore struct {
	rdb *redis.Client

	prefix    string
	ttl       time.Duration
	perMinute bool
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ": "); p != "" {
			s.prefix = p
		}
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// WithStatsBucket: "minute" liga a série por minuto, "none" desliga.
func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.perMinute = strings.ToLower(strings.TrimSpace(bucket)) != "none"
	}
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:       rdb,
		prefix:    "ratelimit:stats",
		ttl:       24 * time.Hour,
		perMinute: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type hashIncr struct {
	key    string
	field  string
	expire bool
}

// increments lista os HINCRBY de um evento.
func (s *RedisStatsStore) increments(ev domain.StatsEvent) []hashIncr {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	outcome := "denied"
	if ev.Allowed {
		outcome = "allowed"
	}

	out := []hashIncr{
		{key: s.prefix + ":total", field: outcome},
		{key: s.prefix + ":route", field: routeLabel(ev.Route) + "|" + outcome},
	}
	if !ev.Allowed && ev.Scope != domain.ScopeNone {
		out = append(out, hashIncr{key: s.prefix + ":scope", field: string(ev.Scope)})
	}
	if s.perMinute {
		out = append(out, hashIncr{
			key:    s.prefix + ":minute:" + at.UTC().Format("200601021504"),
			field:  outcome,
			expire: true,
		})
	}
	if k := strings.TrimSpace(string(ev.Key)); s.trackKeys && k != "" {
		out = append(out, hashIncr{key: s.prefix + ":ip:" + k, field: outcome, expire: true})
	}
	return out
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, inc := range s.increments(ev) {
			p.HIncrBy(ctx, inc.key, inc.field, 1)
			if inc.expire && s.ttl > 0 {
				p.Expire(ctx, inc.key, s.ttl)
			}
		}
		return nil
	})
	return err
}

// Summary lê os contadores cumulativos de todas as instâncias.
func (s *RedisStatsStore) Summary(ctx context.Context) (Summary, error) {
	var total, route, scope *redis.MapStringStringCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		total = p.HGetAll(ctx, s.prefix+":total")
		route = p.HGetAll(ctx, s.prefix+":route")
		scope = p.HGetAll(ctx, s.prefix+":scope")
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	return parseSummary(total.Val(), route.Val(), scope.Val()), nil
}

func parseSummary(total, route, scope map[string]string) Summary {
	sum := Summary{
		Total:         Counters{Allowed: atoi64(total["allowed"]), Denied: atoi64(total["denied"])},
		ByRoute:       make(map[string]Counters, len(route)/2),
		DeniedByScope: make(map[string]int64, len(scope)),
	}
	for field, v := range route {
		i := strings.LastIndexByte(field, '|')
		if i < 0 {
			continue
		}
		c := sum.ByRoute[field[:i]]
		switch field[i+1:] {
		case "allowed":
			c.Allowed += atoi64(v)
		case "denied":
			c.Denied += atoi64(v)
		default:
			continue
		}
		sum.ByRoute[field[:i]] = c
	}
	for sc, v := range scope {
		sum.DeniedByScope[sc] = atoi64(v)
	}
	return sum
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
