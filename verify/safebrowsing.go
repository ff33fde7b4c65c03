// Package verify chama os serviços externos de verificação (Safe Browsing e
// reCAPTCHA). Quem chama decide a política; aqui só se reporta erro ou veredito.
package verify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
)

const (
	DefaultTimeout         = 5 * time.Second
	DefaultSafeBrowsingURL = "https://safebrowsing.googleapis.com/v4/threatMatches:find"
	DefaultSiteVerifyURL   = "https://www.google.com/recaptcha/api/siteverify"
	maxResponseBody        = 1 << 20
	safeBrowsingClientID   = "shortlink-gateway"
	safeBrowsingClientVer  = "1.0.0"
)

var threatTypes = []string{"MALWARE", "SOCIAL_ENGINEERING", "UNWANTED_SOFTWARE", "POTENTIALLY_HARMFUL_APPLICATION"}

type SafeBrowsing struct {
	APIKey   string
	Endpoint string
	Client   *http.Client
}

func NewSafeBrowsing(apiKey string, timeout time.Duration) *SafeBrowsing {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SafeBrowsing{
		APIKey:   apiKey,
		Endpoint: DefaultSafeBrowsingURL,
		Client:   &http.Client{Timeout: timeout},
	}
}

// Enabled: sem chave de API a checagem é pulada.
func (s *SafeBrowsing) Enabled() bool { return s != nil && s.APIKey != "" }

type sbRequest struct {
	Client struct {
		ClientID      string `json:"clientId"`
		ClientVersion string `json:"clientVersion"`
	} `json:"client"`
	ThreatInfo struct {
		ThreatTypes      []string  `json:"threatTypes"`
		PlatformTypes    []string  `json:"platformTypes"`
		ThreatEntryTypes []string  `json:"threatEntryTypes"`
		ThreatEntries    []sbEntry `json:"threatEntries"`
	} `json:"threatInfo"`
}

type sbEntry struct {
	URL string `json:"url"`
}

type sbResponse struct {
	Matches []struct {
		ThreatType string `json:"threatType"`
	} `json:"matches"`
}

// Check devolve true quando a URL consta em alguma lista de ameaças.
// Qualquer falha de rede, status ou decode vira erro.
func (s *SafeBrowsing) Check(ctx context.Context, target string) (bool, error) {
	var body sbRequest
	body.Client.ClientID = safeBrowsingClientID
	body.Client.ClientVersion = safeBrowsingClientVer
	body.ThreatInfo.ThreatTypes = threatTypes
	body.ThreatInfo.PlatformTypes = []string{"ANY_PLATFORM"}
	body.ThreatInfo.ThreatEntryTypes = []string{"URL"}
	body.ThreatInfo.ThreatEntries = []sbEntry{{URL: target}}

	payload, err := json.Marshal(body)
	if err != nil {
		return false, err
	}

	endpoint := s.Endpoint + "?key=" + url.QueryEscape(s.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("safe browsing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("safe browsing: unexpected status %d", resp.StatusCode)
	}

	var out sbResponse
	rb, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return false, fmt.Errorf("safe browsing: read: %w", err)
	}
	if err := json.Unmarshal(rb, &out); err != nil {
		return false, fmt.Errorf("safe browsing: decode: %w", err)
	}
	return len(out.Matches) > 0, nil
}
