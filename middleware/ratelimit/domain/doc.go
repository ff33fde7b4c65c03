// Package domain define os tipos e contratos das defesas de admissão do encurtador.
//
// Três mecanismos convivem aqui, todos sem net/http:
//
//   - Bucket/BucketStore: token bucket por IP das leituras (redirect e track)
//   - WindowGate/ViolationBook: janelas por IP/subnet e backoff da criação de links
//   - Slots: teto de requests em voo
package domain
