package link

import (
	"errors"
	"net/http"
	"time"
)

var (
	ErrNotFound         = errors.New("link not found")
	ErrExpired          = errors.New("link expired")
	ErrAlreadyExists    = errors.New("shortcode already exists")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError: entrada malformada. Nunca é reprocessada.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Msg }

// AdmissionError: rate limit, backoff ou kill switch.
type AdmissionError struct {
	Reason     string
	Status     int
	RetryAfter time.Duration
	Msg        string
}

func (e *AdmissionError) Error() string { return e.Msg }

// SafetyError: a URL não passou num filtro de segurança.
type SafetyError struct {
	Reason string
	Msg    string
}

func (e *SafetyError) Error() string { return e.Msg }

// ChallengeError: a request precisa (ou falhou) no CAPTCHA.
type ChallengeError struct {
	Msg string
}

func (e *ChallengeError) Error() string { return e.Msg }

// HTTPStatus traduz a taxonomia para status HTTP.
func HTTPStatus(err error) int {
	var (
		ve *ValidationError
		ae *AdmissionError
		se *SafetyError
		ce *ChallengeError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve), errors.As(err, &se), errors.Is(err, ErrAlreadyExists):
		return http.StatusBadRequest
	case errors.As(err, &ce):
		return http.StatusForbidden
	case errors.As(err, &ae):
		if ae.Status != 0 {
			return ae.Status
		}
		return http.StatusTooManyRequests
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrExpired):
		return http.StatusGone
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
