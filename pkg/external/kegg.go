package external

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/genegpt-server/internal/domain"
)

const (
	defaultKEGGURL      = "https://rest.kegg.jp"
	maxGenePathways     = 10
	maxPathwaySearchHit = 5
)

var (
	pathwayIDPattern = regexp.MustCompile(`^(?:hsa|map)?(\d{5})$`)
	diagramWords     = regexp.MustCompile(`(?i)\b(diagrams?|images?|maps?|pictures?|pathways?|signaling|signal)\b`)
	pathwayFiller    = regexp.MustCompile(`(?i)\b(diagrams?|images?|maps?|pictures?|show me|show|pathways?|of|the)\b`)
)

// geneToKEGG maps common symbols to KEGG human gene ids so the find
// endpoint is only consulted for everything else.
var geneToKEGG = map[string]string{
	"TP53": "hsa:7157", "BRCA1": "hsa:672", "BRCA2": "hsa:675", "EGFR": "hsa:1956",
	"KRAS": "hsa:3845", "AKT1": "hsa:207", "PTEN": "hsa:5728", "PIK3CA": "hsa:5290",
	"MYC": "hsa:4609", "RB1": "hsa:5925", "BRAF": "hsa:673", "ERBB2": "hsa:2064",
	"HER2": "hsa:2064", "CDK4": "hsa:1019", "CDK6": "hsa:1021", "VEGFA": "hsa:7422",
	"MTOR": "hsa:2475", "JAK2": "hsa:3717", "BCL2": "hsa:596", "NRAS": "hsa:4893",
	"ALK": "hsa:238", "RET": "hsa:5979", "MET": "hsa:4233", "FGFR1": "hsa:2260",
	"FGFR2": "hsa:2263", "FGFR3": "hsa:2261", "ATM": "hsa:472", "CHEK2": "hsa:11200",
	"PALB2": "hsa:79728", "RAD51": "hsa:5888", "CDKN2A": "hsa:1029", "VHL": "hsa:7428",
	"NF1": "hsa:4763", "NF2": "hsa:4771", "WT1": "hsa:7490", "APC": "hsa:324",
	"SMAD4": "hsa:4089", "MLH1": "hsa:4292", "MSH2": "hsa:4436", "INS": "hsa:3630",
	"GCK": "hsa:2645", "HNF1A": "hsa:6927", "HNF4A": "hsa:3172", "CFTR": "hsa:1080",
	"DMD": "hsa:1756", "HTT": "hsa:3064", "FMR1": "hsa:2332", "SOD1": "hsa:6647",
	"APP": "hsa:351", "PSEN1": "hsa:5663", "PSEN2": "hsa:5664", "APOE": "hsa:348",
	"LRRK2": "hsa:120892", "SNCA": "hsa:6622", "PARK7": "hsa:11315", "PINK1": "hsa:65018",
}

// KEGGClient fetches pathway memberships and pathway diagrams.
type KEGGClient struct {
	rest *restClient
}

// NewKEGGClient creates a new KEGG REST client
func NewKEGGClient(config domain.APIConfig) *KEGGClient {
	return &KEGGClient{rest: newRESTClient("KEGG", config, defaultKEGGURL)}
}

// Fetch implements domain.Fetcher. subCommand "gene" lists the pathways of
// a gene. "pathway", "diagram" or a term that names a diagram searches
// pathways. Anything else is treated as a gene.
func (c *KEGGClient) Fetch(ctx context.Context, searchTerm, subCommand string) (map[string]any, error) {
	term := strings.TrimSpace(searchTerm)
	if term == "" {
		return nil, fmt.Errorf("KEGG search term cannot be empty")
	}

	sub := strings.ToLower(strings.TrimSpace(subCommand))
	if sub == "gene" {
		return c.fetchGenePathways(ctx, term)
	}
	if sub == "pathway" || sub == "diagram" || mentionsDiagram(term) {
		return c.fetchPathway(ctx, term)
	}
	return c.fetchGenePathways(ctx, term)
}

func mentionsDiagram(term string) bool {
	return diagramWords.MatchString(term)
}

func pathwayRecord(pid, name string) map[string]any {
	return map[string]any{
		"id":              pid,
		"name":            name,
		"link":            "https://www.kegg.jp/pathway/" + pid,
		"image_url":       "https://www.kegg.jp/kegg/pathway/hsa/" + pid + ".png",
		"interactive_map": "https://www.kegg.jp/kegg-bin/show_pathway?" + pid,
	}
}

func (c *KEGGClient) fetchPathway(ctx context.Context, term string) (map[string]any, error) {
	clean := strings.Join(strings.Fields(pathwayFiller.ReplaceAllString(term, " ")), " ")

	if m := pathwayIDPattern.FindStringSubmatch(strings.ReplaceAll(strings.ToLower(clean), " ", "")); m != nil {
		pid := "hsa" + m[1]
		return map[string]any{
			"source":  "pathway_diagram",
			"query":   term,
			"pathway": pathwayRecord(pid, c.pathwayName(ctx, pid)),
		}, nil
	}
	if clean == "" {
		return nil, fmt.Errorf("please name a KEGG pathway or pathway id (e.g., hsa04110)")
	}

	text, err := c.rest.getText(ctx, c.rest.endpoint("find/pathway/"+escapePath(clean), nil))
	if err != nil {
		return nil, fmt.Errorf("KEGG pathway search for %s failed: %w", clean, err)
	}

	var pathways []map[string]any
	for _, row := range tabRows(text) {
		if len(pathways) == maxPathwaySearchHit {
			break
		}
		m := pathwayIDPattern.FindStringSubmatch(strings.TrimPrefix(row[0], "path:"))
		if m == nil {
			continue
		}
		pathways = append(pathways, pathwayRecord("hsa"+m[1], row[1]))
	}
	if len(pathways) == 0 {
		return nil, notFoundf("no KEGG pathway found for '%s'", clean)
	}

	return map[string]any{
		"source":   "pathway_diagram",
		"query":    clean,
		"pathways": pathways,
	}, nil
}

func (c *KEGGClient) fetchGenePathways(ctx context.Context, term string) (map[string]any, error) {
	gene := strings.ToUpper(term)
	keggID, err := c.findGeneID(ctx, gene)
	if err != nil {
		return nil, err
	}

	text, err := c.rest.getText(ctx, c.rest.endpoint("link/pathway/"+keggID, nil))
	if err != nil {
		return nil, fmt.Errorf("KEGG pathway link for %s failed: %w", keggID, err)
	}

	var ids []string
	for _, row := range tabRows(text) {
		ids = append(ids, strings.TrimPrefix(row[1], "path:"))
	}
	if len(ids) == 0 {
		return nil, notFoundf("no KEGG pathways found for %s", gene)
	}
	sort.Strings(ids)

	shown := ids
	if len(shown) > maxGenePathways {
		shown = shown[:maxGenePathways]
	}
	pathways := make([]map[string]any, 0, len(shown))
	for _, pid := range shown {
		p := pathwayRecord(pid, c.pathwayName(ctx, pid))
		p["map_url"] = fmt.Sprintf("https://www.kegg.jp/kegg-bin/show_pathway?%s+%s", pid, keggID)
		pathways = append(pathways, p)
	}

	return map[string]any{
		"source":         "gene",
		"gene":           gene,
		"kegg_id":        keggID,
		"pathways":       pathways,
		"total_pathways": len(ids),
	}, nil
}

func (c *KEGGClient) findGeneID(ctx context.Context, gene string) (string, error) {
	if id, ok := geneToKEGG[gene]; ok {
		return id, nil
	}

	text, err := c.rest.getText(ctx, c.rest.endpoint("find/genes/"+escapePath(gene), nil))
	if err != nil {
		return "", fmt.Errorf("KEGG gene search for %s failed: %w", gene, err)
	}

	var first string
	for _, row := range tabRows(text) {
		if !strings.HasPrefix(row[0], "hsa:") {
			continue
		}
		if first == "" {
			first = row[0]
		}
		desc := strings.ToUpper(row[1])
		if strings.HasPrefix(desc, gene+",") || strings.HasPrefix(desc, gene+";") ||
			strings.Contains(desc, " "+gene+",") || strings.Contains(desc, ";"+gene) {
			return row[0], nil
		}
	}
	if first == "" {
		return "", notFoundf("could not find KEGG gene ID for '%s'", gene)
	}
	return first, nil
}

// pathwayName reads the NAME line of a pathway record.
func (c *KEGGClient) pathwayName(ctx context.Context, pid string) string {
	text, err := c.rest.getText(ctx, c.rest.endpoint("get/"+pid, nil))
	if err == nil {
		for _, line := range strings.Split(text, "\n") {
			if strings.HasPrefix(line, "NAME") {
				return strings.TrimSpace(strings.TrimPrefix(line, "NAME"))
			}
		}
	}
	return "Pathway " + pid
}

// tabRows splits KEGG flat output into two-column rows.
func tabRows(text string) [][2]string {
	var rows [][2]string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			continue
		}
		rows = append(rows, [2]string{strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])})
	}
	return rows
}
