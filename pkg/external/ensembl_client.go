package external

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/genegpt-server/internal/domain"
)

const (
	defaultEnsemblURL = "https://rest.ensembl.org"
	maxRegionGenes    = 20
)

var regionPattern = regexp.MustCompile(`^(?:chr)?(\w+):(\d+)-(\d+)$`)

// EnsemblClient handles interactions with the Ensembl REST API
type EnsemblClient struct {
	rest *restClient
}

// NewEnsemblClient creates a new Ensembl API client
func NewEnsemblClient(config domain.APIConfig) *EnsemblClient {
	if config.RateLimit <= 0 {
		config.RateLimit = 15 // Ensembl allows 15 requests per second
	}
	return &EnsemblClient{rest: newRESTClient("Ensembl", config, defaultEnsemblURL)}
}

// EnsemblGeneResponse represents the JSON response from Ensembl gene lookup
type EnsemblGeneResponse struct {
	ID            string                      `json:"id"`
	DisplayName   string                      `json:"display_name"`
	Description   string                      `json:"description"`
	Biotype       string                      `json:"biotype"`
	Species       string                      `json:"species"`
	Assembly      string                      `json:"assembly_name"`
	SeqRegionName string                      `json:"seq_region_name"`
	Start         int                         `json:"start"`
	End           int                         `json:"end"`
	Strand        int                         `json:"strand"`
	Transcripts   []EnsemblTranscriptResponse `json:"Transcript"`
}

// EnsemblTranscriptResponse represents a transcript nested in a gene lookup
type EnsemblTranscriptResponse struct {
	ID            string `json:"id"`
	DisplayName   string `json:"display_name"`
	Biotype       string `json:"biotype"`
	SeqRegionName string `json:"seq_region_name"`
	Start         int    `json:"start"`
	End           int    `json:"end"`
	Strand        int    `json:"strand"`
	Length        int    `json:"length"`
	IsCanonical   int    `json:"is_canonical"`
}

// EnsemblXRefResponse represents cross-references from Ensembl
type EnsemblXRefResponse []struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type ensemblOverlapGene struct {
	ID           string `json:"id"`
	GeneID       string `json:"gene_id"`
	ExternalName string `json:"external_name"`
	Biotype      string `json:"biotype"`
	Description  string `json:"description"`
	Start        int    `json:"start"`
	End          int    `json:"end"`
	Strand       int    `json:"strand"`
}

// Fetch implements domain.Fetcher. subCommand selects "id", "transcripts"
// or "region" lookups; the default resolves a gene symbol.
func (e *EnsemblClient) Fetch(ctx context.Context, searchTerm, subCommand string) (map[string]any, error) {
	term := strings.TrimSpace(searchTerm)
	if term == "" {
		return nil, fmt.Errorf("Ensembl search term cannot be empty")
	}

	switch strings.ToLower(strings.TrimSpace(subCommand)) {
	case "id":
		gene, err := e.lookupID(ctx, term)
		if err != nil {
			return nil, err
		}
		data := geneData(gene)
		data["source"] = "id_lookup"
		return data, nil
	case "transcripts":
		return e.fetchTranscripts(ctx, term)
	case "region":
		return e.fetchRegion(ctx, term)
	default:
		gene, err := e.lookupSymbol(ctx, term)
		if err != nil {
			return nil, err
		}
		data := geneData(gene)
		data["source"] = "gene_lookup"
		return data, nil
	}
}

func (e *EnsemblClient) lookupID(ctx context.Context, id string) (*EnsemblGeneResponse, error) {
	var gene EnsemblGeneResponse
	params := url.Values{"expand": {"1"}, "content-type": {"application/json"}}
	if err := e.rest.getJSON(ctx, e.rest.endpoint("lookup/id/"+escapePath(id), params), &gene); err != nil {
		return nil, fmt.Errorf("no Ensembl record found for ID '%s': %w", id, err)
	}
	return &gene, nil
}

// lookupSymbol resolves a symbol through the xrefs endpoint, then expands
// the first gene it names.
func (e *EnsemblClient) lookupSymbol(ctx context.Context, symbol string) (*EnsemblGeneResponse, error) {
	if strings.HasPrefix(strings.ToUpper(symbol), "ENS") {
		return e.lookupID(ctx, symbol)
	}

	var xrefs EnsemblXRefResponse
	params := url.Values{"content-type": {"application/json"}}
	path := "xrefs/symbol/homo_sapiens/" + escapePath(strings.ToUpper(symbol))
	if err := e.rest.getJSON(ctx, e.rest.endpoint(path, params), &xrefs); err != nil {
		return nil, fmt.Errorf("Ensembl symbol lookup for %s failed: %w", symbol, err)
	}
	for _, x := range xrefs {
		if x.Type == "gene" && x.ID != "" {
			return e.lookupID(ctx, x.ID)
		}
	}
	return nil, notFoundf("no Ensembl gene found for '%s'", symbol)
}

func (e *EnsemblClient) fetchTranscripts(ctx context.Context, term string) (map[string]any, error) {
	gene, err := e.lookupSymbol(ctx, term)
	if err != nil {
		return nil, err
	}
	if len(gene.Transcripts) == 0 {
		return nil, notFoundf("no transcripts found for '%s'", term)
	}
	data := geneData(gene)
	data["source"] = "transcripts"
	return data, nil
}

func (e *EnsemblClient) fetchRegion(ctx context.Context, region string) (map[string]any, error) {
	m := regionPattern.FindStringSubmatch(strings.TrimSpace(region))
	if m == nil {
		return nil, fmt.Errorf("invalid region format. Use format: chromosome:start-end (e.g., 17:7565097-7590856)")
	}
	chrom := m[1]
	start, _ := strconv.Atoi(m[2])
	end, _ := strconv.Atoi(m[3])
	if end < start {
		return nil, fmt.Errorf("invalid region %s: end precedes start", region)
	}
	span := fmt.Sprintf("%s:%d-%d", chrom, start, end)

	var genes []ensemblOverlapGene
	params := url.Values{"feature": {"gene"}, "content-type": {"application/json"}}
	if err := e.rest.getJSON(ctx, e.rest.endpoint("overlap/region/human/"+span, params), &genes); err != nil {
		return nil, fmt.Errorf("Ensembl region lookup for %s failed: %w", span, err)
	}
	if len(genes) == 0 {
		return nil, notFoundf("no genes found in region %s", span)
	}

	shown := genes
	if len(shown) > maxRegionGenes {
		shown = shown[:maxRegionGenes]
	}
	list := make([]map[string]any, 0, len(shown))
	for _, g := range shown {
		id := g.GeneID
		if id == "" {
			id = g.ID
		}
		name := g.ExternalName
		if name == "" {
			name = "Unknown"
		}
		list = append(list, map[string]any{
			"id":          id,
			"name":        name,
			"biotype":     g.Biotype,
			"start":       g.Start,
			"end":         g.End,
			"strand":      g.Strand,
			"description": g.Description,
		})
	}

	return map[string]any{
		"source":      "region",
		"region":      span,
		"chromosome":  chrom,
		"start":       start,
		"end":         end,
		"genes":       list,
		"total_genes": len(genes),
		"ensembl_url": "https://ensembl.org/Homo_sapiens/Location/View?r=" + span,
	}, nil
}

func geneData(g *EnsemblGeneResponse) map[string]any {
	transcripts := make([]map[string]any, 0, len(g.Transcripts))
	for _, t := range g.Transcripts {
		transcripts = append(transcripts, map[string]any{
			"id":              t.ID,
			"display_name":    t.DisplayName,
			"biotype":         t.Biotype,
			"seq_region_name": t.SeqRegionName,
			"start":           t.Start,
			"end":             t.End,
			"length":          t.Length,
			"is_canonical":    t.IsCanonical == 1,
		})
	}
	return map[string]any{
		"id":              g.ID,
		"display_name":    g.DisplayName,
		"description":     g.Description,
		"biotype":         g.Biotype,
		"species":         g.Species,
		"assembly":        g.Assembly,
		"seq_region_name": g.SeqRegionName,
		"start":           g.Start,
		"end":             g.End,
		"strand":          g.Strand,
		"transcripts":     transcripts,
	}
}
