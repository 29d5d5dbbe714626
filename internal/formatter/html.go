package formatter

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"

	"github.com/genegpt-server/internal/domain"
)

const (
	maxRows       = 10
	maxOtherPDBs  = 5
	sequenceWords = "sequence|amino acid|fasta"
	featureWords  = "domain|region|motif"
)

var htmlTemplates = template.Must(template.New("html").Parse(`
{{define "uniprot"}}<div class="card uniprot">
<h3>{{.Gene}} <small>{{.Accession}}</small></h3>
<p><b>Protein:</b> {{.Protein}}{{if .Length}} | <b>Length:</b> {{.Length}} aa{{end}}</p>
{{- if .Sequence}}
<pre class="sequence">{{.Sequence}}</pre>
{{- end}}
{{- if .Features}}
<table><tr><th>Feature</th><th>Type</th><th>Position</th></tr>
{{- range .Features}}
<tr><td>{{.Description}}</td><td>{{.Kind}}</td><td>{{.Start}}-{{.End}}</td></tr>
{{- end}}
</table>
{{- end}}
<p><a href="{{.UniProtURL}}" target="_blank">View on UniProt</a>{{if .AlphaFoldURL}} | <a href="{{.AlphaFoldURL}}" target="_blank">AlphaFold model</a>{{end}}</p>
</div>{{end}}

{{define "pdb"}}<div class="card pdb">
{{- if .MMCIF}}
<h3>mmCIF file: {{.PDBID}}</h3>
<p><b>{{.Title}}</b></p>
<p>Showing first {{.PreviewLines}} of {{.TotalLines}} lines</p>
<details><summary>mmCIF content</summary><pre>{{.MMCIF}}</pre></details>
<p><a href="{{.DownloadURL}}" target="_blank">Download mmCIF</a> | <a href="{{.ViewerURL}}" target="_blank">View 3D structure</a></p>
{{- else}}
<h3>{{if .AlphaFold}}{{.Gene}} predicted structure (AlphaFold){{else}}PDB structure: {{.PDBID}}{{end}}</h3>
<p><b>{{.Title}}</b></p>
{{- if or .Gene .Method}}
<p>{{if .Gene}}Gene: {{.Gene}}{{end}}{{if and .Gene .Method}} | {{end}}{{if .Method}}Method: {{.Method}}{{end}}</p>
{{- end}}
<iframe src="{{.ViewerURL}}" class="viewer"></iframe>
{{- if .Others}}
<p>Other structures ({{.Total}} total):{{range .Others}} <a href="https://www.rcsb.org/structure/{{.}}" target="_blank">{{.}}</a>{{end}}</p>
{{- end}}
<p><a href="{{.EntryURL}}" target="_blank">{{if .AlphaFold}}View on AlphaFold DB{{else}}View on RCSB PDB{{end}}</a></p>
{{- end}}
</div>{{end}}

{{define "string"}}<div class="card string">
<h3>STRING interactions for <b>{{.Query}}</b></h3>
<table><tr><th>Partner</th><th>Score</th></tr>
{{- range .Partners}}
<tr><td>{{.Name}}</td><td>{{.Score}}</td></tr>
{{- end}}
</table>
{{- if .ImageURL}}
<img src="{{.ImageURL}}" alt="STRING network" class="network">
{{- end}}
</div>{{end}}

{{define "pubchem"}}<div class="card pubchem">
<h3>{{.Name}}</h3>
<img src="{{.ImageURL}}" alt="{{.Name}} structure" class="compound">
<p><b>CID:</b> {{.CID}}</p>
<p><b>Molecular Formula:</b> {{.Formula}}</p>
<p><b>Molecular Weight:</b> {{.Weight}} g/mol</p>
{{- if .SMILES}}
<p><b>SMILES:</b> <code>{{.SMILES}}</code></p>
{{- end}}
{{- if .InChIKey}}
<p><b>InChIKey:</b> <code>{{.InChIKey}}</code></p>
{{- end}}
{{- if .Show3D}}
<iframe src="https://embed.molview.org/v1/?mode=balls&cid={{.CID}}" class="viewer"></iframe>
{{- end}}
<p><a href="{{.PubChemURL}}" target="_blank">View on PubChem</a> | <a href="{{.PubChemURL}}#section=3D-Conformer" target="_blank">3D conformer</a></p>
</div>{{end}}

{{define "ncbi"}}<div class="card ncbi">
{{- if .Papers}}
<p>PubMed results:</p>
<ol>
{{- range .Papers}}
<li><a href="{{.Link}}" target="_blank">{{.Title}}</a>{{if .Journal}} <i>{{.Journal}}</i>{{end}}{{if .Year}} ({{.Year}}){{end}}</li>
{{- end}}
</ol>
{{- else}}
<h3>{{.Name}} <small>NCBI Gene {{.GeneID}}</small></h3>
<p>{{.Description}}</p>
{{- if .Summary}}
<p>{{.Summary}}</p>
{{- end}}
<p><a href="https://www.ncbi.nlm.nih.gov/gene/{{.GeneID}}" target="_blank">View on NCBI</a></p>
{{- end}}
</div>{{end}}

{{define "kegg"}}<div class="card kegg">
<p>KEGG pathways{{if .Gene}} for {{.Gene}}{{end}}:</p>
<ol>
{{- range .Pathways}}
<li><a href="{{.Link}}" target="_blank">{{.ID}}</a>{{if .Name}} {{.Name}}{{end}}{{if .ImageURL}} (<a href="{{.ImageURL}}" target="_blank">map</a>){{end}}</li>
{{- end}}
</ol>
</div>{{end}}

{{define "ensembl"}}<div class="card ensembl">
{{- if .Region}}
<h3>Genes in {{.Region}}</h3>
{{- else}}
<h3>{{.Name}} <small>{{.ID}}</small></h3>
<p>{{if .Biotype}}<b>Biotype:</b> {{.Biotype}}{{end}}{{if .Location}} | <b>Location:</b> {{.Location}}{{end}}</p>
{{- end}}
{{- if .Rows}}
<table><tr><th>ID</th><th>Name</th><th>Biotype</th><th>Location</th></tr>
{{- range .Rows}}
<tr><td>{{.ID}}</td><td>{{.Name}}</td><td>{{.Biotype}}</td><td>{{.Location}}</td></tr>
{{- end}}
</table>
{{- end}}
</div>{{end}}

{{define "clinvar"}}<div class="card clinvar">
<h3>ClinVar variants for <b>{{.Gene}}</b></h3>
<p>Total: {{.Total}} variants</p>
{{- if .Summary}}
<ul>
{{- range .Summary}}
<li>{{.Label}}: {{.Count}}</li>
{{- end}}
</ul>
{{- end}}
{{- if .Variants}}
<table><tr><th>ID</th><th>Variant</th><th>Significance</th><th>Conditions</th></tr>
{{- range .Variants}}
<tr><td>{{.ID}}</td><td>{{.Title}}</td><td>{{.Significance}}</td><td>{{.Conditions}}</td></tr>
{{- end}}
</table>
{{- end}}
</div>{{end}}

{{define "image_search"}}<div class="card images">
<p>Image results{{if .Query}} for {{.Query}}{{end}}:</p>
<div class="grid">
{{- range .Images}}
<a href="{{.Link}}" target="_blank"><img src="{{.Thumbnail}}" alt="{{.Title}}" title="{{.Title}}"></a>
{{- end}}
</div>
</div>{{end}}
`))

type feature struct {
	Description, Kind, Start, End string
}

type uniprotView struct {
	Gene, Accession, Protein, Length string
	Sequence                         string
	Features                         []feature
	UniProtURL, AlphaFoldURL         string
}

type pdbView struct {
	PDBID, Title, Method, Gene string
	AlphaFold                  bool
	ViewerURL, EntryURL        string
	Others                     []string
	Total                      int
	MMCIF                      string
	PreviewLines, TotalLines   int
	DownloadURL                string
}

type partner struct {
	Name, Score string
}

type stringView struct {
	Query    string
	Partners []partner
	ImageURL string
}

type pubchemView struct {
	CID, Name, Formula, Weight, SMILES, InChIKey string
	ImageURL, PubChemURL                         string
	Show3D                                       bool
}

type paper struct {
	Title, Link, Journal, Year string
}

type ncbiView struct {
	Papers                             []paper
	GeneID, Name, Description, Summary string
}

type pathway struct {
	ID, Name, Link, ImageURL string
}

type keggView struct {
	Gene     string
	Pathways []pathway
}

type ensemblRow struct {
	ID, Name, Biotype, Location string
}

type ensemblView struct {
	ID, Name, Biotype, Location, Region string
	Rows                                []ensemblRow
}

type count struct {
	Label string
	Count int
}

type variant struct {
	ID, Title, Significance, Conditions string
}

type clinvarView struct {
	Gene, Total string
	Summary     []count
	Variants    []variant
}

type image struct {
	Title, Link, Thumbnail string
}

type imageView struct {
	Query  string
	Images []image
}

// BuildHTML returns an HTML fragment presenting data from db, or "" when the
// data has nothing worth showing beyond the text reply. query tunes which
// details are shown.
func BuildHTML(db domain.DBType, data map[string]any, query string) string {
	if len(data) == 0 {
		return ""
	}

	var view any
	switch db {
	case domain.DBUniProt:
		view = uniprotHTML(data, query)
	case domain.DBPDB:
		view = pdbHTML(data)
	case domain.DBString:
		view = stringHTML(data)
	case domain.DBPubChem:
		view = pubchemHTML(data)
	case domain.DBNCBI:
		view = ncbiHTML(data)
	case domain.DBKEGG:
		view = keggHTML(data)
	case domain.DBEnsembl:
		view = ensemblHTML(data)
	case domain.DBClinVar:
		view = clinvarHTML(data)
	case domain.DBImageSearch:
		view = imageHTML(data)
	}
	if view == nil {
		return ""
	}

	var buf bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&buf, string(db), view); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}

func uniprotHTML(data map[string]any, query string) any {
	acc := str(data, "accession")
	if acc == "" {
		return nil
	}
	v := uniprotView{
		Gene:         orNotAvailable(str(data, "gene_name")),
		Accession:    acc,
		Protein:      orNotAvailable(str(data, "protein_name")),
		Length:       str(data, "sequence_length"),
		UniProtURL:   "https://www.uniprot.org/uniprotkb/" + acc,
		AlphaFoldURL: str(data, "alphafold_url"),
	}
	q := strings.ToLower(query)
	if mentionsAny(q, sequenceWords) {
		v.Sequence = str(data, "sequence")
	}
	if mentionsAny(q, featureWords) {
		for _, kind := range []string{"domains", "motifs", "regions"} {
			for _, f := range records(data, kind) {
				v.Features = append(v.Features, feature{
					Description: orNotAvailable(str(f, "description")),
					Kind:        strings.TrimSuffix(kind, "s"),
					Start:       orUnknown(str(f, "start")),
					End:         orUnknown(str(f, "end")),
				})
			}
		}
	}
	return v
}

func pdbHTML(data map[string]any) any {
	id := strings.ToUpper(str(data, "pdb_id"))
	isAF, _ := data["is_alphafold"].(bool)
	if id == "" && !isAF {
		return nil
	}

	v := pdbView{
		PDBID:     id,
		Title:     orNotAvailable(str(data, "title")),
		Method:    str(data, "method"),
		Gene:      str(data, "gene_name"),
		AlphaFold: isAF,
		ViewerURL: str(data, "viewer_url"),
		EntryURL:  "https://www.rcsb.org/structure/" + id,
	}
	if isAF {
		acc := str(data, "uniprot_accession")
		v.EntryURL = "https://alphafold.ebi.ac.uk/entry/" + acc
		if v.ViewerURL == "" {
			v.ViewerURL = v.EntryURL
		}
	}
	if v.ViewerURL == "" {
		v.ViewerURL = "https://www.rcsb.org/3d-view/" + id
	}

	if str(data, "request_type") == "mmcif" && str(data, "mmcif_preview") != "" {
		v.MMCIF = str(data, "mmcif_preview")
		v.PreviewLines, _ = integer(data, "mmcif_preview_lines")
		v.TotalLines, _ = integer(data, "mmcif_total_lines")
		v.DownloadURL = str(data, "download_url")
		return v
	}

	ids := strs(data, "all_pdb_ids")
	v.Total, _ = integer(data, "total_structures")
	if v.Total == 0 {
		v.Total = len(ids)
	}
	for _, other := range ids {
		if len(v.Others) == maxOtherPDBs {
			break
		}
		if !strings.EqualFold(other, id) {
			v.Others = append(v.Others, strings.ToUpper(other))
		}
	}
	return v
}

func stringHTML(data map[string]any) any {
	rows := records(data, "interactions")
	if len(rows) == 0 {
		return nil
	}
	v := stringView{Query: str(data, "query"), ImageURL: str(data, "network_image_url")}
	for _, r := range limit(rows) {
		v.Partners = append(v.Partners, partner{Name: str(r, "partner"), Score: str(r, "score")})
	}
	return v
}

func pubchemHTML(data map[string]any) any {
	cid := str(data, "cid")
	if cid == "" {
		return nil
	}
	show3D, _ := data["show_3d"].(bool)
	v := pubchemView{
		CID:        cid,
		Name:       firstNonEmpty(str(data, "name"), str(data, "query"), "Compound"),
		Formula:    orNotAvailable(str(data, "molecular_formula")),
		Weight:     orNotAvailable(str(data, "molecular_weight")),
		SMILES:     str(data, "canonical_smiles"),
		InChIKey:   str(data, "inchi_key"),
		ImageURL:   firstNonEmpty(str(data, "structure_image_url"), fmt.Sprintf("https://pubchem.ncbi.nlm.nih.gov/rest/pug/compound/cid/%s/PNG?image_size=300x300", cid)),
		PubChemURL: firstNonEmpty(str(data, "pubchem_url"), "https://pubchem.ncbi.nlm.nih.gov/compound/"+cid),
		Show3D:     show3D,
	}
	return v
}

func ncbiHTML(data map[string]any) any {
	if results := records(data, "results"); len(results) > 0 {
		v := ncbiView{}
		for _, r := range limit(results) {
			link := str(r, "link")
			if link == "" && str(r, "pmid") != "" {
				link = "https://pubmed.ncbi.nlm.nih.gov/" + str(r, "pmid") + "/"
			}
			v.Papers = append(v.Papers, paper{
				Title:   firstNonEmpty(str(r, "title"), "No title"),
				Link:    link,
				Journal: str(r, "journal"),
				Year:    str(r, "year"),
			})
		}
		return v
	}
	if id := str(data, "gene_id"); id != "" {
		return ncbiView{
			GeneID:      id,
			Name:        orNotAvailable(str(data, "name")),
			Description: str(data, "description"),
			Summary:     str(data, "summary"),
		}
	}
	return nil
}

func keggHTML(data map[string]any) any {
	v := keggView{Gene: str(data, "gene")}
	if p := record(data, "pathway"); p != nil {
		v.Pathways = append(v.Pathways, keggPathway(p))
	}
	for _, p := range limit(records(data, "pathways")) {
		v.Pathways = append(v.Pathways, keggPathway(p))
	}
	if len(v.Pathways) == 0 {
		return nil
	}
	return v
}

func keggPathway(p map[string]any) pathway {
	id := str(p, "id")
	return pathway{
		ID:       id,
		Name:     str(p, "name"),
		Link:     firstNonEmpty(str(p, "link"), "https://www.kegg.jp/dbget-bin/www_bget?"+id),
		ImageURL: str(p, "image_url"),
	}
}

func ensemblHTML(data map[string]any) any {
	if region := str(data, "region"); region != "" {
		v := ensemblView{Region: region}
		for _, g := range limit(records(data, "genes")) {
			v.Rows = append(v.Rows, ensemblRowOf(g))
		}
		return v
	}
	id := str(data, "id")
	if id == "" {
		return nil
	}
	v := ensemblView{
		ID:       id,
		Name:     firstNonEmpty(str(data, "display_name"), id),
		Biotype:  str(data, "biotype"),
		Location: location(data),
	}
	for _, t := range limit(records(data, "transcripts")) {
		v.Rows = append(v.Rows, ensemblRowOf(t))
	}
	return v
}

func ensemblRowOf(m map[string]any) ensemblRow {
	return ensemblRow{
		ID:       str(m, "id"),
		Name:     str(m, "display_name"),
		Biotype:  str(m, "biotype"),
		Location: location(m),
	}
}

func location(m map[string]any) string {
	chr, start, end := str(m, "seq_region_name"), str(m, "start"), str(m, "end")
	if chr == "" || start == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s-%s", chr, start, end)
}

func clinvarHTML(data map[string]any) any {
	gene := str(data, "gene")
	if gene == "" {
		return nil
	}
	v := clinvarView{Gene: gene, Total: firstNonEmpty(str(data, "total_variants"), "0")}
	for label, n := range counts(data, "significance_summary") {
		v.Summary = append(v.Summary, count{Label: label, Count: n})
	}
	sort.Slice(v.Summary, func(i, j int) bool {
		if v.Summary[i].Count != v.Summary[j].Count {
			return v.Summary[i].Count > v.Summary[j].Count
		}
		return v.Summary[i].Label < v.Summary[j].Label
	})
	for _, r := range limit(records(data, "sample_variants")) {
		v.Variants = append(v.Variants, variant{
			ID:           str(r, "id"),
			Title:        str(r, "title"),
			Significance: firstNonEmpty(str(r, "clinical_significance"), "Unknown"),
			Conditions:   firstNonEmpty(strings.Join(strs(r, "conditions"), ", "), "-"),
		})
	}
	return v
}

func imageHTML(data map[string]any) any {
	rows := records(data, "images")
	if len(rows) == 0 {
		return nil
	}
	v := imageView{Query: str(data, "query")}
	for _, r := range limit(rows) {
		v.Images = append(v.Images, image{
			Title:     firstNonEmpty(str(r, "title"), "Image"),
			Link:      str(r, "link"),
			Thumbnail: firstNonEmpty(str(r, "thumbnail"), str(r, "link")),
		})
	}
	return v
}

func counts(m map[string]any, key string) map[string]int {
	out := map[string]int{}
	switch v := m[key].(type) {
	case map[string]int:
		for k, n := range v {
			out[k] = n
		}
	case map[string]any:
		for k := range v {
			if n, ok := integer(v, k); ok {
				out[k] = n
			}
		}
	}
	return out
}

func limit(rows []map[string]any) []map[string]any {
	if len(rows) > maxRows {
		return rows[:maxRows]
	}
	return rows
}

func mentionsAny(text, words string) bool {
	for _, w := range strings.Split(words, "|") {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}
