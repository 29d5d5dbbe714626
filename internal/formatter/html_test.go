package formatter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/genegpt-server/internal/domain"
)

func TestBuildHTML(t *testing.T) {
	tests := []struct {
		name     string
		db       domain.DBType
		data     map[string]any
		query    string
		contains []string
		excludes []string
	}{
		{
			name: "uniprot summary card",
			db:   domain.DBUniProt,
			data: map[string]any{
				"accession": "P04637", "gene_name": "TP53", "protein_name": "Cellular tumor antigen p53",
				"sequence": "MEEPQSDPSV", "sequence_length": 393, "alphafold_url": "https://alphafold.ebi.ac.uk/entry/P04637",
			},
			query:    "what is TP53",
			contains: []string{"TP53", "P04637", "393 aa", "https://www.uniprot.org/uniprotkb/P04637", "AlphaFold model"},
			excludes: []string{"MEEPQSDPSV"},
		},
		{
			name:     "uniprot sequence on request",
			db:       domain.DBUniProt,
			data:     map[string]any{"accession": "P04637", "sequence": "MEEPQSDPSV"},
			query:    "show the sequence of TP53",
			contains: []string{`<pre class="sequence">MEEPQSDPSV</pre>`},
		},
		{
			name: "uniprot domains on request",
			db:   domain.DBUniProt,
			data: map[string]any{
				"accession": "P04637",
				"domains":   []any{map[string]any{"description": "DNA-binding", "start": 102.0, "end": 292.0}},
			},
			query:    "TP53 domains",
			contains: []string{"<td>DNA-binding</td><td>domain</td><td>102-292</td>"},
		},
		{
			name: "pdb entry",
			db:   domain.DBPDB,
			data: map[string]any{
				"pdb_id": "1jm7", "title": "BRCA1/BARD1 RING heterodimer", "method": "SOLUTION NMR",
				"all_pdb_ids": []string{"1JM7", "1JNX", "1T15"}, "total_structures": 3,
			},
			contains: []string{"PDB structure: 1JM7", "https://www.rcsb.org/3d-view/1JM7", "Other structures (3 total)", ">1JNX<", "Method: SOLUTION NMR"},
		},
		{
			name: "pdb mmcif preview",
			db:   domain.DBPDB,
			data: map[string]any{
				"pdb_id": "1A1U", "request_type": "mmcif", "mmcif_preview": "data_1A1U\n_entry.id 1A1U",
				"mmcif_preview_lines": 2, "mmcif_total_lines": 2000, "download_url": "https://files.rcsb.org/download/1A1U.cif",
			},
			contains: []string{"mmCIF file: 1A1U", "Showing first 2 of 2000 lines", "https://files.rcsb.org/download/1A1U.cif"},
		},
		{
			name: "alphafold fallback",
			db:   domain.DBPDB,
			data: map[string]any{
				"is_alphafold": true, "uniprot_accession": "Q9Y243", "gene_name": "AKT3", "title": "AlphaFold model",
			},
			contains: []string{"AKT3 predicted structure (AlphaFold)", "https://alphafold.ebi.ac.uk/entry/Q9Y243"},
		},
		{
			name: "string network escaped",
			db:   domain.DBString,
			data: map[string]any{
				"query":             "TP53",
				"interactions":      []any{map[string]any{"partner": "<script>MDM2</script>", "score": 0.999}},
				"network_image_url": "https://string-db.org/api/image/network?identifiers=TP53",
			},
			contains: []string{"&lt;script&gt;MDM2&lt;/script&gt;", "0.999", "STRING network"},
			excludes: []string{"<script>"},
		},
		{
			name: "pubchem with 3d",
			db:   domain.DBPubChem,
			data: map[string]any{
				"cid": 2244, "name": "aspirin", "molecular_formula": "C9H8O4", "molecular_weight": "180.16",
				"canonical_smiles": "CC(=O)OC1=CC=CC=C1C(=O)O", "show_3d": true,
			},
			contains: []string{"<h3>aspirin</h3>", "C9H8O4", "180.16 g/mol", "embed.molview.org", "compound/2244"},
		},
		{
			name: "pubmed list",
			db:   domain.DBNCBI,
			data: map[string]any{"results": []any{
				map[string]any{"pmid": "12345", "title": "Checkpoint blockade", "journal": "Nature", "year": "2020"},
			}},
			contains: []string{"https://pubmed.ncbi.nlm.nih.gov/12345/", "Checkpoint blockade", "(2020)"},
		},
		{
			name:     "ncbi gene",
			db:       domain.DBNCBI,
			data:     map[string]any{"gene_id": "7157", "name": "TP53", "description": "tumor protein p53"},
			contains: []string{"NCBI Gene 7157", "tumor protein p53", "https://www.ncbi.nlm.nih.gov/gene/7157"},
		},
		{
			name: "kegg pathways",
			db:   domain.DBKEGG,
			data: map[string]any{"gene": "AKT1", "pathways": []any{
				map[string]any{"id": "hsa04151", "name": "PI3K-Akt signaling pathway"},
			}},
			contains: []string{"www_bget?hsa04151", "PI3K-Akt signaling pathway", "for AKT1"},
		},
		{
			name: "ensembl gene with transcripts",
			db:   domain.DBEnsembl,
			data: map[string]any{
				"id": "ENSG00000141510", "display_name": "TP53", "biotype": "protein_coding",
				"seq_region_name": "17", "start": 7661779, "end": 7687538,
				"transcripts": []any{map[string]any{"id": "ENST00000269305", "display_name": "TP53-201", "biotype": "protein_coding"}},
			},
			contains: []string{"ENSG00000141510", "17:7661779-7687538", "ENST00000269305"},
		},
		{
			name: "ensembl region",
			db:   domain.DBEnsembl,
			data: map[string]any{"region": "17:7661779-7687538", "genes": []any{
				map[string]any{"id": "ENSG00000141510", "display_name": "TP53"},
			}},
			contains: []string{"Genes in 17:7661779-7687538", "ENSG00000141510"},
		},
		{
			name: "clinvar summary sorted by count",
			db:   domain.DBClinVar,
			data: map[string]any{
				"gene": "BRCA1", "total_variants": 50,
				"significance_summary": map[string]any{"Benign": 5.0, "Pathogenic": 30.0},
				"sample_variants": []any{map[string]any{
					"id": "55407", "title": "NM_007294.4(BRCA1):c.5266dup", "clinical_significance": "Pathogenic",
					"conditions": []any{"Breast-ovarian cancer"},
				}},
			},
			contains: []string{"Total: 50 variants", "<li>Pathogenic: 30</li>\n<li>Benign: 5</li>", "Breast-ovarian cancer"},
		},
		{
			name: "image grid",
			db:   domain.DBImageSearch,
			data: map[string]any{"query": "p53 structure", "images": []any{
				map[string]any{"title": "p53", "link": "https://example.org/p53.png"},
			}},
			contains: []string{`src="https://example.org/p53.png"`, "for p53 structure"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := BuildHTML(tt.db, tt.data, tt.query)
			assert.NotEmpty(t, out)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestBuildHTML_NothingToShow(t *testing.T) {
	tests := []struct {
		name string
		db   domain.DBType
		data map[string]any
	}{
		{"empty data", domain.DBUniProt, map[string]any{}},
		{"uniprot without accession", domain.DBUniProt, map[string]any{"gene_name": "TP53"}},
		{"string without interactions", domain.DBString, map[string]any{"query": "TP53"}},
		{"unknown database", domain.DBType("omim"), map[string]any{"id": "1"}},
		{"ensembl without id", domain.DBEnsembl, map[string]any{"biotype": "lncRNA"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, BuildHTML(tt.db, tt.data, ""))
		})
	}
}
