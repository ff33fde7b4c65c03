package httpapi

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"shortlink-gateway/link"
	"shortlink-gateway/middleware/ratelimit"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response failed")
	}
}

type errorBody struct {
	Error           string `json:"error"`
	CaptchaRequired bool   `json:"captchaRequired,omitempty"`
}

// writeError traduz a taxonomia de link para status e corpo.
func writeError(w http.ResponseWriter, err error) {
	status := link.HTTPStatus(err)

	var (
		ae *link.AdmissionError
		ce *link.ChallengeError
	)
	switch {
	case errors.As(err, &ae):
		ratelimit.WriteRejection(w, status, ae.RetryAfter, ae.Msg)
	case errors.As(err, &ce):
		writeJSON(w, status, errorBody{Error: ce.Msg, CaptchaRequired: true})
	case errors.Is(err, link.ErrAlreadyExists):
		writeJSON(w, status, errorBody{Error: "Shortcode already exists"})
	case errors.Is(err, link.ErrNotFound):
		writeJSON(w, status, errorBody{Error: "Link not found"})
	case errors.Is(err, link.ErrExpired):
		writeJSON(w, status, errorBody{Error: "Link has expired"})
	case errors.Is(err, link.ErrStoreUnavailable):
		writeJSON(w, status, errorBody{Error: "Service temporarily unavailable"})
	case status == http.StatusInternalServerError:
		log.Error().Err(err).Msg("request failed")
		writeJSON(w, status, errorBody{Error: "Server error"})
	default:
		// validação e segurança: a mensagem já é para o usuário
		writeJSON(w, status, errorBody{Error: err.Error()})
	}
}
