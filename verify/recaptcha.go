package verify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"shortlink-gateway/middleware/secmeta"
)

// ChallengeTrustScore: abaixo disso a URL conta como suspeita para o CAPTCHA.
const ChallengeTrustScore = 50

// ShouldChallenge decide se a request precisa de CAPTCHA: UA suspeito,
// request via proxy ou URL com score de confiança baixo.
func ShouldChallenge(m *secmeta.Meta) bool {
	if m == nil {
		return false
	}
	if m.SuspiciousUA || m.Proxied {
		return true
	}
	return m.HasTrustScore && m.TrustScore < ChallengeTrustScore
}

type Recaptcha struct {
	Secret    string
	Threshold float64
	Endpoint  string
	Client    *http.Client
}

func NewRecaptcha(secret string, threshold float64, timeout time.Duration) *Recaptcha {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if threshold <= 0 {
		threshold = 0.5
	}
	return &Recaptcha{
		Secret:    secret,
		Threshold: threshold,
		Endpoint:  DefaultSiteVerifyURL,
		Client:    &http.Client{Timeout: timeout},
	}
}

func (r *Recaptcha) Enabled() bool { return r != nil && r.Secret != "" }

type siteVerifyResponse struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	Action     string   `json:"action"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify devolve true quando o token é válido e o score atinge o limiar.
// Erro significa que o serviço não respondeu direito, não que o token é ruim.
func (r *Recaptcha) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	form := url.Values{
		"secret":   {r.Secret},
		"response": {token},
		"remoteip": {remoteIP},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("recaptcha: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("recaptcha: unexpected status %d", resp.StatusCode)
	}

	rb, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return false, fmt.Errorf("recaptcha: read: %w", err)
	}
	var out siteVerifyResponse
	if err := json.Unmarshal(rb, &out); err != nil {
		return false, fmt.Errorf("recaptcha: decode: %w", err)
	}
	return out.Success && out.Score >= r.Threshold, nil
}
