package urlsafety

import "github.com/rs/zerolog/log"

// Reason é a etiqueta registrada no monitoramento para cada rejeição.
type Reason string

const (
	ReasonIPBased          Reason = "ip_based_url"
	ReasonNestedShortener  Reason = "nested_shortener"
	ReasonDangerousPattern Reason = "dangerous_pattern"
	ReasonLowTrustScore    Reason = "low_trust_score"
	ReasonSafeBrowsing     Reason = "safe_browsing"
)

const DefaultMinTrustScore = 20

// FlagRecorder recebe cada URL rejeitada (alimenta o kill switch).
type FlagRecorder interface {
	RecordFlagged(url string, reason string)
}

type Verdict struct {
	Allowed bool
	Reason  Reason
	Message string
	// TrustScore só é calculado quando as verificações anteriores passam.
	TrustScore    int
	HasTrustScore bool
}

type Scanner struct {
	MinTrustScore int
	Flags         FlagRecorder
}

const unsafeMsg = "This URL has been flagged as potentially unsafe and cannot be shortened."

// Gate rejeita, nesta ordem: host IP, encurtador aninhado, padrão perigoso e
// trust score abaixo do mínimo. Toda rejeição vai para o FlagRecorder.
func (s Scanner) Gate(raw string) Verdict {
	switch {
	case IsIPLiteralHost(raw):
		return s.reject(raw, Verdict{Reason: ReasonIPBased, Message: "IP-based URLs are not allowed. Please use a domain name."})
	case IsNestedShortener(raw):
		return s.reject(raw, Verdict{Reason: ReasonNestedShortener, Message: "Shortening URLs from other URL shorteners is not allowed."})
	case HasDangerousPattern(raw):
		return s.reject(raw, Verdict{Reason: ReasonDangerousPattern, Message: unsafeMsg})
	}

	floor := s.MinTrustScore
	if floor <= 0 {
		floor = DefaultMinTrustScore
	}

	score := TrustScore(raw)
	v := Verdict{Allowed: true, TrustScore: score, HasTrustScore: true}
	if score < floor {
		v.Allowed = false
		v.Reason = ReasonLowTrustScore
		v.Message = unsafeMsg
		return s.reject(raw, v)
	}
	return v
}

func (s Scanner) reject(raw string, v Verdict) Verdict {
	v.Allowed = false
	log.Info().Str("reason", string(v.Reason)).Int("trust_score", v.TrustScore).Msg("url rejected by safety gate")
	if s.Flags != nil {
		s.Flags.RecordFlagged(raw, string(v.Reason))
	}
	return v
}
