// Package secmeta carrega, no contexto da request, os sinais de segurança
// produzidos por cada estágio (proxy, rate limit, score da URL).
package secmeta

import "context"

type Meta struct {
	ClientIP     string
	Subnet       string
	UserAgent    string
	Proxied      bool
	DataCenterIP bool
	SuspiciousUA bool

	// TrustScore só vale quando HasTrustScore=true.
	TrustScore    int
	HasTrustScore bool
}

type ctxKey struct{}

// WithMeta anexa m ao contexto. Os estágios seguintes alteram o mesmo ponteiro.
func WithMeta(ctx context.Context, m *Meta) context.Context {
	return context.WithValue(ctx, ctxKey{}, m)
}

func FromContext(ctx context.Context) (*Meta, bool) {
	m, ok := ctx.Value(ctxKey{}).(*Meta)
	return m, ok && m != nil
}
