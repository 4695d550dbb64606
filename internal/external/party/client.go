package party

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/segyhp/loan-origination/internal/domain"

	"go.uber.org/zap"
)

// Client looks parties up in the customer service over HTTP
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type partyResponse struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// LookupParty calls GET {base}/parties/{id}. A 404 is a party that does not
// exist, not an error.
func (c *Client) LookupParty(ctx context.Context, partyID string) (*domain.Party, error) {
	endpoint := fmt.Sprintf("%s/parties/%s", c.baseURL, url.PathEscape(partyID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup party %s: %w", partyID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return &domain.Party{ID: partyID, Exists: false}, nil
	default:
		return nil, fmt.Errorf("lookup party %s: unexpected status %d", partyID, resp.StatusCode)
	}

	var body partyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode party %s: %w", partyID, err)
	}

	c.logger.Debug("party resolved", zap.String("party_id", partyID), zap.String("type", body.Type))
	return &domain.Party{
		ID:     partyID,
		Exists: true,
		Type:   domain.PartyType(strings.ToUpper(body.Type)),
	}, nil
}

// AcceptAll treats every non-empty party id as an existing individual. It is
// used when no customer service is configured.
type AcceptAll struct{}

func (AcceptAll) LookupParty(_ context.Context, partyID string) (*domain.Party, error) {
	if strings.TrimSpace(partyID) == "" {
		return &domain.Party{ID: partyID}, nil
	}
	return &domain.Party{ID: partyID, Exists: true, Type: domain.PartyTypeIndividual}, nil
}
