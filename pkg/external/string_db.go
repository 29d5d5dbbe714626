package external

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/genegpt-server/internal/domain"
)

const (
	defaultSTRINGURL   = "https://string-db.org/api"
	stringNetworkLimit = "20"
)

// STRINGClient fetches protein-protein interaction partners.
type STRINGClient struct {
	rest *restClient
}

// NewSTRINGClient creates a new STRING API client
func NewSTRINGClient(config domain.APIConfig) *STRINGClient {
	return &STRINGClient{rest: newRESTClient("STRING", config, defaultSTRINGURL)}
}

type stringInteraction struct {
	PreferredNameA string  `json:"preferredName_A"`
	PreferredNameB string  `json:"preferredName_B"`
	StringIDB      string  `json:"stringId_B"`
	Score          float64 `json:"score"`
}

// Fetch implements domain.Fetcher.
func (c *STRINGClient) Fetch(ctx context.Context, searchTerm, _ string) (map[string]any, error) {
	gene := strings.TrimSpace(searchTerm)
	if gene == "" {
		return nil, fmt.Errorf("STRING search term cannot be empty")
	}

	params := url.Values{
		"identifiers": {gene},
		"species":     {humanTaxonomy},
		"limit":       {stringNetworkLimit},
	}
	var network []stringInteraction
	if err := c.rest.getJSON(ctx, c.rest.endpoint("json/network", params), &network); err != nil {
		return nil, fmt.Errorf("STRING network lookup for %s failed: %w", gene, err)
	}
	if len(network) == 0 {
		return nil, notFoundf("no interactions found for '%s'", gene)
	}

	interactions := make([]map[string]any, 0, len(network))
	for _, item := range network {
		interactions = append(interactions, map[string]any{
			"partner":   item.PreferredNameB,
			"score":     item.Score,
			"string_id": item.StringIDB,
		})
	}

	image := url.Values{"identifiers": {gene}, "species": {humanTaxonomy}}
	return map[string]any{
		"query":             gene,
		"interactions":      interactions,
		"network_image_url": c.rest.endpoint("image/network", image),
	}, nil
}
