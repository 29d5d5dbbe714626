package external

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/genegpt-server/internal/domain"
)

const (
	clinvarMaxVariants    = 50
	clinvarSampleVariants = 10
)

// Newer records move significance, conditions and review status out of
// the legacy fields into these classification blocks.
var clinvarClassificationKeys = []string{
	"clinical_impact_classification",
	"germline_classification",
	"oncogenicity_classification",
}

// ClinVarClient handles interactions with the ClinVar database via NCBI E-utilities
type ClinVarClient struct {
	eutils
}

// NewClinVarClient creates a new ClinVar API client
func NewClinVarClient(config domain.APIConfig) *ClinVarClient {
	if config.RateLimit <= 0 {
		config.RateLimit = 3
	}
	return &ClinVarClient{eutils{rest: newRESTClient("ClinVar", config, defaultEUtilsURL)}}
}

// clinvarClassification is a significance block in either schema.
type clinvarClassification struct {
	Description  string          `json:"description"`
	Label        string          `json:"label"`
	ReviewStatus string          `json:"review_status"`
	TraitSet     json.RawMessage `json:"trait_set"`
}

// Fetch implements domain.Fetcher. The search term is a gene symbol.
func (c *ClinVarClient) Fetch(ctx context.Context, searchTerm, _ string) (map[string]any, error) {
	gene := strings.ToUpper(strings.TrimSpace(searchTerm))
	if gene == "" {
		return nil, fmt.Errorf("ClinVar search term cannot be empty")
	}

	ids, _, err := c.search(ctx, "clinvar", gene+"[gene]", clinvarMaxVariants, "")
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, notFoundf("no ClinVar variants found for %s", gene)
	}

	docs, err := c.summary(ctx, "clinvar", ids)
	if err != nil {
		return nil, err
	}

	variants := make([]map[string]any, 0, len(ids))
	counts := make(map[string]any)
	for _, id := range ids {
		raw, ok := docs[id]
		if !ok {
			continue
		}
		v := parseClinVarRecord(id, raw)
		sig := v["clinical_significance"].(string)
		n, _ := counts[sig].(int)
		counts[sig] = n + 1
		variants = append(variants, v)
	}

	sample := variants
	if len(sample) > clinvarSampleVariants {
		sample = sample[:clinvarSampleVariants]
	}
	return map[string]any{
		"gene":                 gene,
		"total_variants":       len(variants),
		"significance_summary": counts,
		"sample_variants":      sample,
	}, nil
}

func parseClinVarRecord(id string, raw json.RawMessage) map[string]any {
	var rec struct {
		Title        string                `json:"title"`
		Type         string                `json:"obj_type"`
		Accession    string                `json:"accession"`
		ReviewStatus string                `json:"review_status"`
		Legacy       clinvarClassification `json:"clinical_significance"`
		TraitSet     json.RawMessage       `json:"trait_set"`
	}
	_ = json.Unmarshal(raw, &rec)

	var blocks map[string]json.RawMessage
	_ = json.Unmarshal(raw, &blocks)
	var classifications []clinvarClassification
	for _, key := range clinvarClassificationKeys {
		var cls clinvarClassification
		if b, ok := blocks[key]; ok && json.Unmarshal(b, &cls) == nil {
			classifications = append(classifications, cls)
		}
	}

	significance := firstNonBlank(rec.Legacy.Description, rec.Legacy.Label)
	for _, cls := range classifications {
		if significance != "" {
			break
		}
		significance = cls.Description
	}
	if significance == "" {
		significance = "Unknown"
	}

	conditions := traitNames(rec.TraitSet)
	for _, cls := range classifications {
		if len(conditions) > 0 {
			break
		}
		conditions = traitNames(cls.TraitSet)
	}

	review := strings.TrimSpace(rec.ReviewStatus)
	for _, cls := range classifications {
		if review != "" {
			break
		}
		review = strings.TrimSpace(cls.ReviewStatus)
	}
	if review == "" {
		review = "Unknown"
	}

	return map[string]any{
		"id":                    id,
		"title":                 rec.Title,
		"type":                  rec.Type,
		"clinical_significance": significance,
		"conditions":            conditions,
		"review_status":         review,
		"rcvaccession":          rec.Accession,
	}
}

// traitNames collects condition names from a trait_set given as one object
// or a list, with names given as a string, a list of strings or a list of
// {text|name} objects. The result is sorted and de-duplicated.
func traitNames(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}

	var sets []map[string]json.RawMessage
	if json.Unmarshal(raw, &sets) != nil {
		var one map[string]json.RawMessage
		if json.Unmarshal(raw, &one) != nil {
			return []string{}
		}
		sets = append(sets, one)
	}

	seen := make(map[string]struct{})
	for _, set := range sets {
		for _, name := range flexibleNames(set["trait_name"]) {
			if name != "" {
				seen[name] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func flexibleNames(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var single string
	if json.Unmarshal(raw, &single) == nil {
		return []string{single}
	}
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return nil
	}
	var out []string
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil {
			out = append(out, s)
			continue
		}
		var obj struct {
			Text string `json:"text"`
			Name string `json:"name"`
		}
		if json.Unmarshal(item, &obj) == nil {
			out = append(out, firstNonBlank(obj.Text, obj.Name))
		}
	}
	return out
}
