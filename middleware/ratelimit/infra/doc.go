// Package infra implementa os contratos de domain em memória e no Redis.
//
//   - BucketStore: token buckets x/time/rate por IP das leituras
//   - WindowStore, ViolationStore: janelas e backoff da criação de links
//   - WeightedSlots: teto de requests em voo sobre x/sync/semaphore
//   - MemoryStatsStore, RedisStatsStore, MultiStats: contadores das decisões
package infra
