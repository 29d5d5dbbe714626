package external

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/genegpt-server/internal/domain"
)

const (
	defaultCustomSearchURL = "https://www.googleapis.com/customsearch/v1"
	maxImages              = 10
)

// ImageSearchClient finds images through Google Custom Search. It is
// disabled unless both an API key and a search engine id are configured.
type ImageSearchClient struct {
	rest  *restClient
	cseID string
}

// NewImageSearchClient creates a new Google Custom Search client
func NewImageSearchClient(config domain.GoogleConfig) *ImageSearchClient {
	return &ImageSearchClient{
		rest:  newRESTClient("Google image search", config.APIConfig, defaultCustomSearchURL),
		cseID: config.CSEID,
	}
}

// Enabled reports whether credentials are configured.
func (c *ImageSearchClient) Enabled() bool {
	return c.rest.apiKey != "" && c.cseID != ""
}

type customSearchResponse struct {
	Items []struct {
		Title string `json:"title"`
		Link  string `json:"link"`
		Image struct {
			ThumbnailLink string `json:"thumbnailLink"`
		} `json:"image"`
	} `json:"items"`
}

// Fetch implements domain.Fetcher.
func (c *ImageSearchClient) Fetch(ctx context.Context, searchTerm, _ string) (map[string]any, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("image search: %w", ErrNotConfigured)
	}
	query := strings.TrimSpace(searchTerm)
	if query == "" {
		return nil, fmt.Errorf("image search term cannot be empty")
	}

	params := url.Values{
		"q":          {query},
		"searchType": {"image"},
		"num":        {fmt.Sprint(maxImages)},
		"key":        {c.rest.apiKey},
		"cx":         {c.cseID},
	}
	var resp customSearchResponse
	if err := c.rest.getJSON(ctx, c.rest.baseURL+"?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("image search for %s failed: %w", query, err)
	}

	images := make([]map[string]any, 0, len(resp.Items))
	for _, item := range resp.Items {
		if len(images) == maxImages {
			break
		}
		title := item.Title
		if title == "" {
			title = "image"
		}
		images = append(images, map[string]any{
			"title":     title,
			"link":      item.Link,
			"thumbnail": item.Image.ThumbnailLink,
		})
	}
	if len(images) == 0 {
		return nil, notFoundf("no images found for '%s'", query)
	}

	return map[string]any{
		"query":  query,
		"images": images,
	}, nil
}
