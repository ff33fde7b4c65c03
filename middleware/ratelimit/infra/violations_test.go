package infra

import (
	"fmt"
	"testing"
	"time"

	"shortlink-gateway/middleware/ratelimit/domain"
)

func TestViolationStore_BlocksAfterThirdViolation(t *testing.T) {
	s := NewViolationStore()
	now := time.Unix(10_000, 0)
	tiers := domain.DefaultBackoff()

	s.Record("ip", now, tiers)
	s.Record("ip", now, tiers)
	if left := s.BlockedFor("ip", now); left != 0 {
		t.Fatalf("expected no block after 2 violations, got %s", left)
	}

	v := s.Record("ip", now, tiers)
	if v.Count != 3 {
		t.Fatalf("expected count=3, got %d", v.Count)
	}
	if left := s.BlockedFor("ip", now.Add(time.Minute)); left != 4*time.Minute {
		t.Fatalf("expected 4m left, got %s", left)
	}
	if left := s.BlockedFor("ip", now.Add(6*time.Minute)); left != 0 {
		t.Fatalf("expected block to end after 5m, got %s", left)
	}
}

func TestViolationStore_BlockNeverRetracts(t *testing.T) {
	s := NewViolationStore()
	now := time.Unix(10_000, 0)
	long := []domain.BackoffTier{{Violations: 1, Block: time.Hour}}
	short := []domain.BackoffTier{{Violations: 1, Block: time.Minute}}

	s.Record("ip", now, long)
	s.Record("ip", now.Add(time.Second), short)

	if left := s.BlockedFor("ip", now.Add(30*time.Minute)); left != 30*time.Minute {
		t.Fatalf("expected original block to stand, got %s", left)
	}
}

func TestViolationStore_SweepKeepsActiveBlocks(t *testing.T) {
	now := time.Unix(10_000, 0)
	clock := now
	s := NewViolationStore(WithViolationClock(func() time.Time { return clock }))

	s.Record("blocked", now, []domain.BackoffTier{{Violations: 1, Block: 24 * time.Hour}})
	s.Record("stale", now, domain.DefaultBackoff())

	clock = now.Add(2 * time.Hour)
	if removed := s.Sweep(); removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if left := s.BlockedFor("blocked", clock); left == 0 {
		t.Fatalf("expected blocked ip to survive sweep")
	}
}

func TestViolationStore_CapEvictsOldestInShard(t *testing.T) {
	// 32 no total: um registro por shard
	s := NewViolationStore(WithMaxViolations(violationShards))
	now := time.Unix(10_000, 0)
	tiers := domain.DefaultBackoff()

	first := domain.Key("10.0.0.0")
	var second domain.Key
	for i := 1; i < 1000; i++ {
		k := domain.Key(fmt.Sprintf("10.0.%d.%d", i/256, i%256))
		if s.shard(k) == s.shard(first) {
			second = k
			break
		}
	}
	if second == "" {
		t.Fatalf("expected to find two keys in the same shard")
	}

	s.Record(first, now, tiers)
	s.Record(first, now, tiers)
	s.Record(second, now, tiers)

	if v := s.Record(first, now, tiers); v.Count != 1 {
		t.Fatalf("expected %s to be evicted and start over, got count=%d", first, v.Count)
	}
	if v := s.Record(first, now, tiers); v.Count != 2 {
		t.Fatalf("expected re-inserted key to keep counting, got count=%d", v.Count)
	}
}
