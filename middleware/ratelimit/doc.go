// Package ratelimit traz as defesas de admissão do encurtador para net/http.
//
// Camadas:
//
//   - domain: tipos e contratos, sem net/http
//   - application: decisões (ReadLimiter, AdmissionService, InFlight)
//   - infra: buckets x/time/rate, janelas por IP/subnet, violações, semáforo, stats
//   - ratelimit (este pacote): middlewares, chave do cliente, status e headers
//
// Nas leituras (GET /{code}, GET /track/{code}) o Middleware tira uma ficha do
// bucket do IP; sem ficha responde 429 com Retry-After. A criação de links
// não passa por aqui: o creator chama AdmissionService depois do kill switch
// e o httpapi responde a recusa com WriteRejection, no mesmo formato.
//
// ConcurrencyMiddleware fica por fora do mux e recusa com 503 quando o teto
// de requests em voo está cheio.
package ratelimit
