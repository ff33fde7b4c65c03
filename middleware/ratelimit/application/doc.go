// Package application junta os contratos de domain nas decisões que os
// middlewares e o creator consultam:
//
//   - ReadLimiter.Decide: token bucket por IP das leituras
//   - AdmissionService.Admit: backoff e janelas de IP/subnet da criação de links
//   - InFlight.Acquire: vaga no teto de requests simultâneas
//
// Nada aqui conhece net/http.
package application
