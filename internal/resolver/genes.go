package resolver

import "sort"

// GeneSymbolTable maps upper-case human gene symbols to UniProt accessions.
// It is built once at package init and never mutated, so concurrent readers
// need no locking.
type GeneSymbolTable struct {
	entries map[string]string
}

// Lookup returns the accession for symbol. symbol must already be upper case.
func (t *GeneSymbolTable) Lookup(symbol string) (string, bool) {
	acc, ok := t.entries[symbol]
	return acc, ok
}

// Len returns the number of symbols in the table.
func (t *GeneSymbolTable) Len() int {
	return len(t.entries)
}

// Symbols returns every symbol in sorted order.
func (t *GeneSymbolTable) Symbols() []string {
	out := make([]string, 0, len(t.entries))
	for s := range t.entries {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Genes is the process-wide gene table.
var Genes = &GeneSymbolTable{entries: map[string]string{
	// Tumor suppressors
	"TP53":  "P04637",
	"BRCA1": "P38398",
	"BRCA2": "P51587",
	"RB1":   "P06400",
	"PTEN":  "P60484",
	"APC":   "P25054",
	"VHL":   "P40337",
	"NF1":   "P21359",
	"NF2":   "P35240",
	"WT1":   "P19544",

	// Oncogenes
	"EGFR": "P00533",
	"KRAS": "P01116",
	"NRAS": "P01111",
	"HRAS": "P01112",
	"BRAF": "P15056",
	"MYC":  "P01106",
	"MYCN": "P04198",
	"MDM2": "Q00987",
	"BCL2": "P10415",
	"ABL1": "P00519",

	// Kinases and receptors
	"AKT1":   "P31749",
	"AKT2":   "P31751",
	"AKT3":   "Q9Y243",
	"PIK3CA": "P42336",
	"MTOR":   "P42345",
	"JAK2":   "O60674",
	"SRC":    "P12931",
	"ERBB2":  "P04626",
	"HER2":   "P04626",
	"MET":    "P08581",
	"ALK":    "Q9UM73",
	"RET":    "P07949",
	"KIT":    "P10721",
	"FLT3":   "P36888",
	"PDGFRA": "P16234",
	"FGFR1":  "P11362",
	"FGFR2":  "P21802",
	"FGFR3":  "P22607",

	// DNA repair
	"ATM":   "Q13315",
	"ATR":   "Q13535",
	"CHEK1": "O14757",
	"CHEK2": "O96017",
	"RAD51": "Q06609",
	"PALB2": "Q86YC2",

	// Cell cycle
	"CDK4":   "P11802",
	"CDK6":   "Q00534",
	"CDKN1A": "P38936",
	"CDKN2A": "P42771",
	"CCND1":  "P24385",

	// Transcription factors
	"STAT3":  "P40763",
	"STAT5A": "P42229",
	"STAT5B": "P51692",
	"NFKB1":  "P19838",
	"JUN":    "P05412",
	"FOS":    "P01100",

	// Apoptosis
	"CASP3": "P42574",
	"CASP8": "Q14790",
	"CASP9": "P55211",
	"BAX":   "Q07812",
	"BAK1":  "Q16611",

	// Immune checkpoints
	"PDCD1": "Q15116",
	"CD274": "Q9NZQ7",
	"CTLA4": "P16410",

	// Housekeeping
	"GAPDH":    "P04406",
	"ACTB":     "P60709",
	"TUBB":     "P07437",
	"HSP90AA1": "P07900",
	"HSP70":    "P0DMV8",

	// Metabolism
	"INS":   "P01308",
	"INSR":  "P06213",
	"IGF1":  "P05019",
	"IGF1R": "P08069",
	"PPARG": "P37231",

	// Neurodegeneration
	"APP":   "P05067",
	"MAPT":  "P10636",
	"SNCA":  "P37840",
	"PSEN1": "P49768",
	"PSEN2": "P49810",
	"SOD1":  "P00441",
	"HTT":   "P42858",

	// Viral entry
	"ACE2":    "Q9BYF1",
	"TMPRSS2": "O15393",
}}
