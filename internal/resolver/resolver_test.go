package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectUniProtAccession(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"canonical upper", "P04637", "P04637"},
		{"canonical lower in sentence", "what is p04637?", "P04637"},
		{"Q accession", "tell me about q9y243 please", "Q9Y243"},
		{"extended shape", "uniprot a2bc12", "A2BC12"},
		{"isoform suffix", "P31749-2 sequence", "P31749"},
		{"gene symbol", "TP53", ""},
		{"ensembl id", "ENSG00000141510", ""},
		{"plain text", "hello there", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectUniProtAccession(tt.input))
			// pure: a second call yields the same answer
			assert.Equal(t, tt.want, DetectUniProtAccession(tt.input))
		})
	}
}

func TestDetectPDBID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"upper", "4OBE", "4OBE"},
		{"lower in sentence", "show me 1a1u", "1A1U"},
		{"numeric rejected", "1234", ""},
		{"year then id", "deposited in 2019 as 6god", "6GOD"},
		{"3D is too short", "3D structure of BRCA1", ""},
		{"five characters", "12345", ""},
		{"no id", "TP53 structure", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectPDBID(tt.input))
		})
	}
}

func TestDetectPDBIDInProse(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"It is 53kD in size.", ""},
		{"a 110kDa subunit", ""},
		{"the 10th exon spans 250bp", ""},
		{"53kD, solved as 1tup", "1TUP"},
		{"shown in 4OBE", "4OBE"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectPDBIDInProse(tt.input))
		})
	}
	assert.Equal(t, "53KD", DetectPDBID("It is 53kD in size."))
}

func TestResolveGeneSymbol(t *testing.T) {
	tests := []struct {
		input   string
		wantSym string
		wantAcc string
	}{
		{"TP53", "TP53", "P04637"},
		{"what does brca1 do?", "BRCA1", "P38398"},
		{"compare EGFR, KRAS", "EGFR", "P00533"},
		{"HER2 amplification", "HER2", "P04626"},
		{"tell me about caffeine", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.wantSym, FindGeneSymbol(tt.input))
			assert.Equal(t, tt.wantAcc, ResolveGeneSymbol(tt.input))
		})
	}
}

func TestGeneTable(t *testing.T) {
	assert.GreaterOrEqual(t, Genes.Len(), 80)
	acc, ok := Genes.Lookup("AKT1")
	assert.True(t, ok)
	assert.Equal(t, "P31749", acc)

	_, ok = Genes.Lookup("akt1")
	assert.False(t, ok, "lookups are upper-case only")

	symbols := Genes.Symbols()
	assert.Len(t, symbols, Genes.Len())
	assert.IsIncreasing(t, symbols)
}

func TestIsKnownGeneSymbol(t *testing.T) {
	assert.True(t, IsKnownGeneSymbol("TP53"))
	assert.True(t, IsKnownGeneSymbol("  tp53? "))
	assert.False(t, IsKnownGeneSymbol("TP53 structure"))
	assert.False(t, IsKnownGeneSymbol("XYZ123"))
}

func TestLooksLikeGeneSymbol(t *testing.T) {
	assert.True(t, LooksLikeGeneSymbol("TP53"))
	assert.True(t, LooksLikeGeneSymbol("HSP90AA1"))
	assert.False(t, LooksLikeGeneSymbol("T"))
	assert.False(t, LooksLikeGeneSymbol("tp53"))
	assert.False(t, LooksLikeGeneSymbol("1A1U"))
}

func TestHasEntity(t *testing.T) {
	assert.True(t, HasEntity("TP53 structure"))
	assert.True(t, HasEntity("show 4OBE"))
	assert.True(t, HasEntity("P04637 function"))
	assert.False(t, HasEntity("structure"))
	assert.False(t, HasEntity("function of this protein"))
}

func TestStripQualifiers(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"EGFR isoform 99", "EGFR"},
		{"TP53 variant X123Y", "TP53"},
		{"BRCA1 mutation", "BRCA1"},
		{"R175H mutation in TP53", "TP53"},
		{"variants in brca2", "BRCA2"},
		{"XYZ9 isoform 2", "XYZ9"},
		{"  aspirin ", "aspirin"},
		{"cancer immunotherapy", "cancer immunotherapy"},
		{"chr17:7661779-7687550", "chr17:7661779-7687550"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, StripQualifiers(tt.input))
		})
	}
}
