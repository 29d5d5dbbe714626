package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/genegpt-server/internal/domain"
)

const defaultEUtilsURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// eutils wraps the NCBI E-utilities endpoints shared by the Gene, PubMed
// and ClinVar lookups.
type eutils struct {
	rest *restClient
}

type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

func (e *eutils) params(db string) url.Values {
	params := url.Values{
		"db":      {db},
		"retmode": {"json"},
	}
	if e.rest.apiKey != "" {
		params.Set("api_key", e.rest.apiKey)
	}
	return params
}

// search runs esearch and returns the matching ids and the total hit count.
func (e *eutils) search(ctx context.Context, db, term string, retmax int, sort string) ([]string, int, error) {
	params := e.params(db)
	params.Set("term", term)
	params.Set("retmax", strconv.Itoa(retmax))
	if sort != "" {
		params.Set("sort", sort)
	}

	var resp esearchResponse
	if err := e.rest.getJSON(ctx, e.rest.endpoint("esearch.fcgi", params), &resp); err != nil {
		return nil, 0, fmt.Errorf("%s search failed: %w", db, err)
	}
	count, _ := strconv.Atoi(resp.Result.Count)
	if count < len(resp.Result.IDList) {
		count = len(resp.Result.IDList)
	}
	return resp.Result.IDList, count, nil
}

// summary runs esummary and returns the raw per-id documents.
func (e *eutils) summary(ctx context.Context, db string, ids []string) (map[string]json.RawMessage, error) {
	params := e.params(db)
	params.Set("id", strings.Join(ids, ","))

	var resp struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := e.rest.getJSON(ctx, e.rest.endpoint("esummary.fcgi", params), &resp); err != nil {
		return nil, fmt.Errorf("%s summary failed: %w", db, err)
	}
	delete(resp.Result, "uids")
	return resp.Result, nil
}

// NCBIClient answers gene questions from NCBI Gene and literature questions
// from PubMed.
type NCBIClient struct {
	eutils
}

// NewNCBIClient creates a new NCBI E-utilities client
func NewNCBIClient(config domain.APIConfig) *NCBIClient {
	if config.RateLimit <= 0 {
		config.RateLimit = 3
	}
	return &NCBIClient{eutils{rest: newRESTClient("NCBI", config, defaultEUtilsURL)}}
}

type geneSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Summary     string `json:"summary"`
}

// Fetch implements domain.Fetcher. subCommand "pubmed" searches the
// literature; anything else looks the term up in NCBI Gene.
func (c *NCBIClient) Fetch(ctx context.Context, searchTerm, subCommand string) (map[string]any, error) {
	term := strings.TrimSpace(searchTerm)
	if term == "" {
		return nil, fmt.Errorf("NCBI search term cannot be empty")
	}
	if strings.EqualFold(strings.TrimSpace(subCommand), "pubmed") {
		return c.searchPubMed(ctx, term)
	}
	return c.fetchGene(ctx, term)
}

func (c *NCBIClient) fetchGene(ctx context.Context, term string) (map[string]any, error) {
	ids, _, err := c.search(ctx, "gene", term, 1, "")
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, notFoundf("no gene found for '%s'", term)
	}
	geneID := ids[0]

	data := map[string]any{
		"source":  "gene",
		"query":   term,
		"gene_id": geneID,
		"summary": "No summary available",
	}

	docs, err := c.summary(ctx, "gene", []string{geneID})
	if err != nil {
		return nil, err
	}
	var doc geneSummary
	if raw, ok := docs[geneID]; ok && json.Unmarshal(raw, &doc) == nil {
		data["name"] = doc.Name
		data["description"] = doc.Description
		if doc.Summary != "" {
			data["summary"] = doc.Summary
		}
	}
	return data, nil
}
