// Package accesslog gera o X-Request-Id e escreve uma linha de log por request.
package accesslog

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"shortlink-gateway/middleware/clientip"
)

const HeaderRequestID = "X-Request-Id"

type ctxKey struct{}

// RequestID devolve o id da request atual ("" fora do middleware).
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

type recorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *recorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Unwrap deixa o http.ResponseController achar o writer original.
func (r *recorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Middleware reaproveita um X-Request-Id recebido se for um UUID válido.
// O IP do log vem de rv, porque o secmeta só existe nas camadas internas.
func Middleware(rv clientip.Resolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := r.Header.Get(HeaderRequestID)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, id)

			rec := &recorder{ResponseWriter: w}
			r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, id))
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			log.Info().
				Str("request_id", id).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", rec.bytes).
				Dur("duration", time.Since(start)).
				Str("ip", rv.Resolve(r)).
				Msg("request")
		})
	}
}
