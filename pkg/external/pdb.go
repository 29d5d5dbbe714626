package external

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/genegpt-server/internal/domain"
	"github.com/genegpt-server/internal/resolver"
)

const (
	defaultRCSBDataURL   = "https://data.rcsb.org"
	defaultRCSBSearchURL = "https://search.rcsb.org/rcsbsearch/v2/query"
	defaultRCSBFilesURL  = "https://files.rcsb.org/download"

	mmcifPreviewLines = 500
	maxListedPDBIDs   = 10
)

var pdbIDInText = regexp.MustCompile(`\b(\d[A-Za-z0-9]{3})\b`)

// knownPDBStructures answers when RCSB search is unreachable.
var knownPDBStructures = map[string][]string{
	"EGFR":       {"1M17", "5UG9", "3POZ", "4HJO", "2ITY"},
	"KRAS":       {"4OBE", "6GOD", "4DSO", "5TAR", "6MNX"},
	"TP53":       {"1TUP", "2OCJ", "3KMD", "4HJE", "5AOK"},
	"BRCA1":      {"1JM7", "4IGK", "3K0H", "4Y2G"},
	"MYC":        {"1NKP", "5I50"},
	"AKT1":       {"3O96", "4EKL", "3CQW"},
	"MDM2":       {"1YCR", "4ERF", "3JZK"},
	"BRAF":       {"1UWH", "4MNE", "6P3D"},
	"HER2":       {"3PP0", "1N8Z", "3WSQ"},
	"ALK":        {"2XP2", "4MKC", "5AAA"},
	"BCL2":       {"1G5M", "2O2F", "4LVT"},
	"PTEN":       {"1D5R", "5BZZ"},
	"RAS":        {"4OBE", "5P21", "6GOD"},
	"P53":        {"1TUP", "2OCJ", "3KMD"},
	"INSULIN":    {"4INS", "1ZNI", "1AI0"},
	"HEMOGLOBIN": {"1HHO", "2HHB", "1A3N"},
}

// PDBClient finds experimental structures in RCSB, falling back to a
// predicted AlphaFold model when none exists.
type PDBClient struct {
	rest      *restClient
	searchURL string
	filesURL  string
	uniprot   *UniProtClient
}

// NewPDBClient creates a new RCSB client. uniprot resolves accessions for
// genes outside the built-in table and may be nil.
func NewPDBClient(config domain.APIConfig, uniprot *UniProtClient) *PDBClient {
	return &PDBClient{
		rest:      newRESTClient("PDB", config, defaultRCSBDataURL),
		searchURL: defaultRCSBSearchURL,
		filesURL:  defaultRCSBFilesURL,
		uniprot:   uniprot,
	}
}

type rcsbEntry struct {
	Struct struct {
		Title string `json:"title"`
	} `json:"struct"`
	Exptl []struct {
		Method string `json:"method"`
	} `json:"exptl"`
	EntryInfo struct {
		Resolution []float64 `json:"resolution_combined"`
	} `json:"rcsb_entry_info"`
	AccessionInfo struct {
		ReleaseDate string `json:"initial_release_date"`
	} `json:"rcsb_accession_info"`
}

type rcsbPolymerEntity struct {
	Entity struct {
		Description string `json:"pdbx_description"`
	} `json:"rcsb_polymer_entity"`
	SourceOrganism []struct {
		ScientificName string `json:"scientific_name"`
		GeneName       []struct {
			Value string `json:"value"`
		} `json:"rcsb_gene_name"`
	} `json:"rcsb_entity_source_organism"`
}

type rcsbSearchResponse struct {
	TotalCount int `json:"total_count"`
	ResultSet  []struct {
		Identifier string `json:"identifier"`
	} `json:"result_set"`
}

// Fetch implements domain.Fetcher.
func (c *PDBClient) Fetch(ctx context.Context, searchTerm, subCommand string) (map[string]any, error) {
	term := strings.TrimSpace(searchTerm)
	if term == "" {
		return nil, fmt.Errorf("PDB search term cannot be empty")
	}

	if strings.EqualFold(strings.TrimSpace(subCommand), "mmcif") {
		return c.fetchMMCIF(ctx, term)
	}
	if len(term) == 4 && term[0] >= '0' && term[0] <= '9' {
		return c.fetchByID(ctx, term)
	}

	gene := strings.ToUpper(term)
	accession, _ := resolver.Genes.Lookup(gene)

	if accession != "" {
		data, err := c.searchByUniProt(ctx, gene, accession)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
	}

	data, err := c.searchByText(ctx, term, gene)
	if err == nil {
		return data, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	if ids, ok := knownPDBStructures[gene]; ok {
		return c.fromKnownIDs(ctx, gene, ids), nil
	}

	if accession == "" && c.uniprot != nil {
		if found, err := c.uniprot.search(ctx, gene); err == nil {
			accession = found
		}
	}
	if accession != "" {
		return alphaFoldResult(gene, accession), nil
	}

	return nil, notFoundf("no PDB structure found for '%s'. Try searching with a specific PDB ID (e.g., 4OBE for KRAS, 1M17 for EGFR)", term)
}

func (c *PDBClient) entry(ctx context.Context, id string) (*rcsbEntry, error) {
	var e rcsbEntry
	if err := c.rest.getJSON(ctx, c.rest.endpoint("rest/v1/core/entry/"+strings.ToLower(id), nil), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (e *rcsbEntry) title(fallback string) string {
	if e == nil || e.Struct.Title == "" {
		return fallback
	}
	return e.Struct.Title
}

func (e *rcsbEntry) method(fallback string) string {
	if e == nil || len(e.Exptl) == 0 || e.Exptl[0].Method == "" {
		return fallback
	}
	return e.Exptl[0].Method
}

func (c *PDBClient) fetchMMCIF(ctx context.Context, term string) (map[string]any, error) {
	id := ""
	if len(term) == 4 {
		id = strings.ToLower(term)
	} else if m := pdbIDInText.FindStringSubmatch(term); m != nil {
		id = strings.ToLower(m[1])
	}
	if id == "" {
		return nil, fmt.Errorf("please provide a valid PDB ID (e.g., 1A1U, 4OBE)")
	}

	text, err := c.rest.getText(ctx, c.filesURL+"/"+id+".cif")
	if err != nil {
		return nil, fmt.Errorf("could not fetch mmCIF for %s: %w", id, err)
	}

	// The entry only supplies a title; the download is what was asked for.
	e, _ := c.entry(ctx, id)

	lines := strings.Split(text, "\n")
	preview := lines
	if len(preview) > mmcifPreviewLines {
		preview = preview[:mmcifPreviewLines]
	}

	return map[string]any{
		"pdb_id":              strings.ToUpper(id),
		"request_type":        "mmcif",
		"title":               e.title("Unknown"),
		"mmcif_preview":       strings.Join(preview, "\n"),
		"mmcif_preview_lines": len(preview),
		"mmcif_total_lines":   len(lines),
		"download_url":        defaultRCSBFilesURL + "/" + id + ".cif",
		"viewer_url":          "https://www.rcsb.org/3d-view/" + id,
	}, nil
}

func (c *PDBClient) fetchByID(ctx context.Context, id string) (map[string]any, error) {
	id = strings.ToLower(id)
	e, err := c.entry(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFoundf("PDB entry %s not found", id)
		}
		return nil, err
	}

	proteinName, geneName, organism := "", "N/A", "Unknown"
	var entity rcsbPolymerEntity
	if err := c.rest.getJSON(ctx, c.rest.endpoint("rest/v1/core/polymer_entity/"+id+"/1", nil), &entity); err == nil {
		proteinName = entity.Entity.Description
		if len(entity.SourceOrganism) > 0 {
			src := entity.SourceOrganism[0]
			if src.ScientificName != "" {
				organism = src.ScientificName
			}
			if len(src.GeneName) > 0 && src.GeneName[0].Value != "" {
				geneName = src.GeneName[0].Value
			}
		}
	}
	if proteinName == "" {
		proteinName = e.title("Unknown")
	}

	resolution := any("N/A")
	if len(e.EntryInfo.Resolution) > 0 {
		resolution = e.EntryInfo.Resolution[0]
	}
	release := e.AccessionInfo.ReleaseDate
	if release == "" {
		release = "Unknown"
	}

	return map[string]any{
		"pdb_id":          strings.ToUpper(id),
		"protein_name":    proteinName,
		"gene_name":       geneName,
		"title":           e.title("Unknown"),
		"structure_title": e.title("Unknown"),
		"organism":        organism,
		"method":          e.method("Unknown"),
		"resolution":      resolution,
		"release_date":    release,
		"viewer_url":      "https://www.rcsb.org/3d-view/" + id,
	}, nil
}

func (c *PDBClient) search(ctx context.Context, query map[string]any) (*rcsbSearchResponse, error) {
	var resp rcsbSearchResponse
	if err := c.rest.postJSON(ctx, c.searchURL, query, &resp); err != nil {
		return nil, err
	}
	if len(resp.ResultSet) == 0 {
		return nil, notFoundf("no RCSB search results")
	}
	return &resp, nil
}

func (c *PDBClient) searchByUniProt(ctx context.Context, gene, accession string) (map[string]any, error) {
	resp, err := c.search(ctx, map[string]any{
		"query": map[string]any{
			"type":    "terminal",
			"service": "text",
			"parameters": map[string]any{
				"attribute": "rcsb_polymer_entity_container_identifiers.reference_sequence_identifiers.database_accession",
				"value":     accession,
			},
		},
		"return_type": "entry",
	})
	if err != nil {
		return nil, err
	}
	data := c.structureResult(ctx, gene, resp)
	data["uniprot_accession"] = accession
	return data, nil
}

func (c *PDBClient) searchByText(ctx context.Context, term, gene string) (map[string]any, error) {
	resp, err := c.search(ctx, map[string]any{
		"query": map[string]any{
			"type":             "group",
			"logical_operator": "or",
			"nodes": []map[string]any{
				{
					"type":    "terminal",
					"service": "text",
					"parameters": map[string]any{
						"attribute": "rcsb_entity_source_organism.rcsb_gene_name.value",
						"operator":  "exact_match",
						"value":     gene,
					},
				},
				{
					"type":       "terminal",
					"service":    "full_text",
					"parameters": map[string]any{"value": term},
				},
			},
		},
		"return_type": "entry",
		"request_options": map[string]any{
			"results_content_type": []string{"experimental"},
			"sort":                 []map[string]any{{"sort_by": "rcsb_accession_info.deposit_date", "direction": "desc"}},
			"paginate":             map[string]any{"start": 0, "rows": 5},
		},
	})
	if err != nil {
		return nil, err
	}
	return c.structureResult(ctx, gene, resp), nil
}

func (c *PDBClient) structureResult(ctx context.Context, gene string, resp *rcsbSearchResponse) map[string]any {
	ids := make([]string, 0, len(resp.ResultSet))
	for _, r := range resp.ResultSet {
		ids = append(ids, r.Identifier)
	}
	if len(ids) > maxListedPDBIDs {
		ids = ids[:maxListedPDBIDs]
	}
	total := resp.TotalCount
	if total == 0 {
		total = len(resp.ResultSet)
	}

	first := ids[0]
	e, _ := c.entry(ctx, first)
	return map[string]any{
		"pdb_id":           first,
		"gene_name":        gene,
		"all_pdb_ids":      ids,
		"total_structures": total,
		"title":            e.title("Unknown"),
		"method":           e.method("Unknown"),
		"viewer_url":       "https://www.rcsb.org/3d-view/" + strings.ToLower(first),
	}
}

func (c *PDBClient) fromKnownIDs(ctx context.Context, gene string, ids []string) map[string]any {
	first := ids[0]
	e, _ := c.entry(ctx, first)
	return map[string]any{
		"pdb_id":           first,
		"gene_name":        gene,
		"all_pdb_ids":      append([]string(nil), ids...),
		"total_structures": len(ids),
		"title":            e.title(gene + " structure"),
		"method":           e.method("X-ray/Cryo-EM"),
		"viewer_url":       "https://www.rcsb.org/3d-view/" + strings.ToLower(first),
		"note":             "Using a well-known PDB ID because RCSB search was unavailable",
	}
}

func alphaFoldResult(gene, accession string) map[string]any {
	return map[string]any{
		"pdb_id":            "AF-" + accession,
		"gene_name":         gene,
		"uniprot_accession": accession,
		"title":             gene + " - AlphaFold Predicted Structure",
		"method":            "AlphaFold AI Prediction",
		"viewer_url":        "https://alphafold.ebi.ac.uk/entry/" + accession,
		"is_alphafold":      true,
	}
}

func escapePath(s string) string {
	return url.PathEscape(strings.TrimSpace(s))
}
