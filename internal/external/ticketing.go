package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const LocalProviderName = "public-doc-rules-v1"

type TicketingConfig struct {
	BaseURL string
	Timeout time.Duration
}

// VerificationInput - данные листинга, которые проверяет провайдер
type VerificationInput struct {
	EventID     *string `json:"eventId,omitempty"`
	Title       string  `json:"title"`
	Venue       string  `json:"venue"`
	Date        string  `json:"date"`
	BarcodeHash *string `json:"barcodeHash,omitempty"`
	BarcodeType *string `json:"barcodeType,omitempty"`
}

type VerificationResult struct {
	Confirmed  bool   `json:"confirmed"`
	Confidence int    `json:"confidence"`
	Reason     string `json:"reason"`
	Provider   string `json:"provider"`
}

// TicketVerifier оценивает подлинность листинга
type TicketVerifier interface {
	Verify(ctx context.Context, in VerificationInput) (*VerificationResult, error)
}

// TicketingClient ходит во внешний сервис проверки билетов,
// а без него (или при его ошибке) считает оценку по публичным признакам.
type TicketingClient struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

func NewTicketingClient(cfg TicketingConfig) *TicketingClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &TicketingClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		now: time.Now,
	}
}

func (tc *TicketingClient) Verify(ctx context.Context, in VerificationInput) (*VerificationResult, error) {
	if tc.baseURL == "" {
		return tc.verifyLocal(in), nil
	}

	result, err := tc.verifyRemote(ctx, in)
	if err != nil {
		slog.Warn("Ticket provider unavailable, using local rules", "error", err)
		return tc.verifyLocal(in), nil
	}
	return result, nil
}

func (tc *TicketingClient) verifyRemote(ctx context.Context, in VerificationInput) (*VerificationResult, error) {
	jsonBody, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tc.baseURL+"/verify", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ticket: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verify ticket: unexpected status %d", resp.StatusCode)
	}

	var result VerificationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Provider == "" {
		result.Provider = "remote"
	}
	return &result, nil
}

var suspiciousListing = []*regexp.Regexp{
	regexp.MustCompile(`(?i)parking pass`),
	regexp.MustCompile(`(?i)test(ing)? ticket`),
	regexp.MustCompile(`(?i)placeholder`),
	regexp.MustCompile(`(?i)tbd`),
}

var listingDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"Mon, Jan 2, 2006",
	"January 2, 2006 3:04 PM",
	"Jan 2, 2006 3:04 PM",
}

func parseListingDate(s string) (time.Time, bool) {
	for _, layout := range listingDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// verifyLocal - риск-скоринг по публичным данным листинга, не криптографическая проверка
func (tc *TicketingClient) verifyLocal(in VerificationInput) *VerificationResult {
	confidence := 0
	var reasons []string

	title := strings.TrimSpace(in.Title)
	venue := strings.TrimSpace(in.Venue)
	date := strings.TrimSpace(in.Date)

	if in.EventID != nil && *in.EventID != "" {
		confidence += 25
		reasons = append(reasons, "Event linked")
	}
	if len(title) >= 8 {
		confidence += 15
	} else {
		reasons = append(reasons, "Short/weak title")
	}
	if len(venue) >= 4 {
		confidence += 15
	} else {
		reasons = append(reasons, "Missing/weak venue")
	}

	if parsed, ok := parseListingDate(date); date != "" && ok {
		confidence += 15
		now := tc.now()
		if parsed.Before(now.Add(-24 * time.Hour)) {
			reasons = append(reasons, "Event date appears in the past")
			confidence -= 10
		}
		if parsed.After(now.AddDate(2, 0, 0)) {
			reasons = append(reasons, "Event date very far in future")
			confidence -= 5
		}
	} else {
		reasons = append(reasons, "Unparseable date")
	}

	if in.BarcodeHash != nil && *in.BarcodeHash != "" {
		confidence += 20
	} else {
		reasons = append(reasons, "No barcode evidence")
	}
	if in.BarcodeType != nil && *in.BarcodeType != "" {
		confidence += 5
	}

	for _, re := range suspiciousListing {
		if re.MatchString(title) || re.MatchString(venue) {
			confidence -= 20
			reasons = append(reasons, "Suspicious listing metadata")
			break
		}
	}

	confidence = max(0, min(100, confidence))

	reason := "Public validation checks passed"
	if len(reasons) > 0 {
		reason = strings.Join(reasons, "; ")
	}

	return &VerificationResult{
		Confirmed:  confidence >= 70,
		Confidence: confidence,
		Reason:     reason,
		Provider:   LocalProviderName,
	}
}
