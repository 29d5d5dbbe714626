package formatter

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genegpt-server/internal/domain"
)

const akt1Isoform2 = "MSDVAIVKEGWLHKRGEYIKTWRPRYFLLKNDGTFIGYKERPQDVDQREAPLNNFSVAQCQLMKTERPRPNTFIIRCLQWTTVIERTFHVETPEEREEWTTAIQTVADGLKKQEEEEMDFRSG"

func akt1Data() map[string]any {
	return map[string]any{
		"accession": "P31749",
		"gene_name": "AKT1",
		"isoforms": []map[string]any{
			{"name": "1", "ids": []string{"P31749-1"}, "sequence_status": "Displayed", "sequence_length": 480},
			{"name": "2", "ids": []string{"P31749-2"}, "sequence_status": "Described", "synonyms": []string{"AKT1-beta"}},
		},
		"isoform_count": 2,
	}
}

func TestFormatSpecificIsoform(t *testing.T) {
	data := akt1Data()
	data["requested_isoform"] = map[string]any{
		"number":          2,
		"name":            "2",
		"uniprot_id":      "P31749-2",
		"synonyms":        []string{"AKT1-beta"},
		"sequence_status": "Described",
		"note":            "",
		"sequence":        akt1Isoform2,
		"sequence_length": len(akt1Isoform2),
	}

	out := FormatSpecificIsoform(data)

	assert.Contains(t, out, "**AKT1 Isoform 2** (P31749-2)")
	assert.Contains(t, out, "| Synonyms | AKT1-beta |")
	assert.Contains(t, out, "| Note | None |")
	assert.Contains(t, out, "```\n"+akt1Isoform2+"\n```")
	assert.Contains(t, out, "**All known isoforms of AKT1** (2)")
	assert.Contains(t, out, "| 1 | 1 | P31749-1 | 480 amino acids |  |")
	assert.Contains(t, out, "| 2 | 2 | P31749-2 | Not available | requested |")
	assert.True(t, strings.HasSuffix(out, "Source: UniProt"))
}

func TestFormatSpecificIsoform_MissingSequence(t *testing.T) {
	data := akt1Data()
	data["requested_isoform"] = map[string]any{"number": 2, "name": "2", "error": "No UniProt ID available for this isoform"}

	out := FormatSpecificIsoform(data)
	assert.Contains(t, out, "| UniProt ID | Not available |")
	assert.Contains(t, out, "**Sequence**\nNot available")
}

func TestFormatSpecificIsoform_OutOfRange(t *testing.T) {
	data := akt1Data()
	data["requested_isoform_error"] = "Isoform 99 not found. AKT1 has 2 isoforms."

	out := FormatSpecificIsoform(data)
	assert.Contains(t, out, "Isoform 99 not found. AKT1 has 2 isoforms.")
	assert.Contains(t, out, "**All known isoforms of AKT1** (2)")
	assert.NotContains(t, out, "requested |")
}

func TestFormatSpecificIsoform_NoIsoforms(t *testing.T) {
	out := FormatSpecificIsoform(map[string]any{"gene_name": "INS"})
	assert.Equal(t, "No isoforms found for INS.", out)
}

func TestFormatAllIsoforms(t *testing.T) {
	data := map[string]any{
		"gene_name": "BRCA1",
		"all_isoforms_data": []map[string]any{
			{"number": 7, "name": "1", "uniprot_id": "P38398-1", "sequence_status": "Displayed", "sequence": "MDLSALRVEE", "sequence_length": 10},
			{"number": 3, "name": "2", "uniprot_id": "N/A", "ids": []string{"P38398-2"}, "sequence": ""},
		},
	}

	out := FormatAllIsoforms(data)

	assert.Contains(t, out, "**BRCA1 isoforms** (2 found)")
	first := strings.Index(out, "### Isoform 1: 1")
	second := strings.Index(out, "### Isoform 2: 2")
	require.GreaterOrEqual(t, first, 0)
	require.Greater(t, second, first, "numbering is positional, not taken from the data")
	assert.Contains(t, out, "- **UniProt ID**: P38398-2")
	assert.Contains(t, out, "```\nMDLSALRVEE\n```")
	assert.Contains(t, out, "- **Length**: 10 amino acids")
	assert.Contains(t, out, "- **Length**: Not available")
	assert.Contains(t, out, "**Sequence**\nNot available")
}

func TestFormatAllIsoforms_Empty(t *testing.T) {
	assert.Equal(t, "No isoforms found for TP53", FormatAllIsoforms(map[string]any{
		"gene_name":          "TP53",
		"all_isoforms_data":  []any{},
		"all_isoforms_error": "No isoforms found for TP53",
	}))
	assert.Equal(t, "No isoforms found for MYC.", FormatAllIsoforms(map[string]any{"gene_name": "MYC"}))
}

func TestFormatAllIsoforms_JSONDecodedData(t *testing.T) {
	raw := `{"gene_name":"EGFR","all_isoforms_data":[{"name":"1","uniprot_id":"P00533-1","sequence":"MRPSGTAGAA","sequence_length":10,"synonyms":["p170"]}]}`
	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &data))

	out := FormatAllIsoforms(data)
	assert.Contains(t, out, "- **Length**: 10 amino acids")
	assert.Contains(t, out, "- **Synonyms**: p170")
	assert.Contains(t, out, "MRPSGTAGAA")
}

func TestFormatIsoform(t *testing.T) {
	t.Run("failed fetch", func(t *testing.T) {
		out := FormatIsoform(domain.NewFailureResult(domain.DBUniProt, "AKT1", "timeout"), &domain.IsoformRequest{Specific: true, Number: 2})
		assert.Contains(t, out, "AKT1")
		assert.Contains(t, out, "timeout")
	})

	t.Run("gene name taken from search term", func(t *testing.T) {
		out := FormatIsoform(domain.NewSuccessResult(domain.DBUniProt, "myc", nil), &domain.IsoformRequest{})
		assert.Equal(t, "No isoforms found for MYC.", out)
	})

	t.Run("specific dispatch", func(t *testing.T) {
		data := akt1Data()
		data["requested_isoform"] = map[string]any{"number": 1, "uniprot_id": "P31749-1", "sequence": "MSDV"}
		out := FormatIsoform(domain.NewSuccessResult(domain.DBUniProt, "AKT1", data), &domain.IsoformRequest{Specific: true, Number: 1})
		assert.Contains(t, out, "**AKT1 Isoform 1** (P31749-1)")
	})
}
