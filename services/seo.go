package services

import (
	"dr-tracker-service/config"
	"dr-tracker-service/utils"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// DomainMetrics is the normalized result of a metrics provider lookup
type DomainMetrics struct {
	Domain           string
	DomainAuthority  int
	Backlinks        *int
	ReferringDomains *int
}

// MetricsProvider fetches authority metrics for a domain. Implementations
// may fail transiently; callers get an *UpstreamError once retries are
// exhausted.
type MetricsProvider interface {
	GetDomainMetrics(domain string) (*DomainMetrics, error)
}

// seoAPIResponse mirrors the SEO Intelligence API payload. domain_rating is
// the current field; the rest are legacy fallbacks kept for compatibility.
type seoAPIResponse struct {
	Domain           string `json:"domain"`
	DomainRating     *int   `json:"domain_rating"`
	DomainAuthority  *int   `json:"domain_authority"`
	DA               *int   `json:"da"`
	Backlinks        *int   `json:"backlinks"`
	TotalBacklinks   *int   `json:"total_backlinks"`
	ReferringDomains *int   `json:"referring_domains"`
	RefDomains       *int   `json:"ref_domains"`
}

// SEOClient is the RapidAPI SEO Intelligence implementation of MetricsProvider
type SEOClient struct {
	apiKey     string
	apiHost    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
}

func NewSEOClient() *SEOClient {
	return &SEOClient{
		apiKey:     config.AppConfig.RapidAPIKey,
		apiHost:    config.AppConfig.RapidAPIHost,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		maxRetries: 3,
		retryDelay: 1 * time.Second,
	}
}

// GetDomainMetrics fetches DR metrics for a domain, retrying transient
// failures with increasing backoff before giving up.
func (c *SEOClient) GetDomainMetrics(domain string) (*DomainMetrics, error) {
	normalized := utils.NormalizeDomain(domain)

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		metrics, err := c.fetch(normalized)
		if err == nil {
			return metrics, nil
		}
		lastErr = err

		if attempt < c.maxRetries {
			time.Sleep(c.retryDelay * time.Duration(attempt))
			log.Printf("[SEO] Retry attempt %d for domain %s: %v", attempt, normalized, err)
		}
	}

	return nil, &UpstreamError{Op: "metrics fetch", Err: lastErr}
}

func (c *SEOClient) fetch(domain string) (*DomainMetrics, error) {
	reqURL := fmt.Sprintf("https://%s/check-dr-ar?domain=%s", c.apiHost, url.QueryEscape(domain))

	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-rapidapi-key", c.apiKey)
	req.Header.Set("x-rapidapi-host", c.apiHost)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var apiResp seoAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse API response: %w", err)
	}

	return parseMetrics(domain, &apiResp), nil
}

func parseMetrics(domain string, resp *seoAPIResponse) *DomainMetrics {
	da := 0
	switch {
	case resp.DomainRating != nil:
		da = *resp.DomainRating
	case resp.DomainAuthority != nil:
		da = *resp.DomainAuthority
	case resp.DA != nil:
		da = *resp.DA
	}

	backlinks := resp.Backlinks
	if backlinks == nil {
		backlinks = resp.TotalBacklinks
	}

	referring := resp.ReferringDomains
	if referring == nil {
		referring = resp.RefDomains
	}

	return &DomainMetrics{
		Domain:           domain,
		DomainAuthority:  da,
		Backlinks:        backlinks,
		ReferringDomains: referring,
	}
}
