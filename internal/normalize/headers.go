package normalize

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/dennisdiepolder/monti/agentkpi/internal/types"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// defaultSynonyms maps cleaned header text to canonical fields.
// Keys must already be in CleanHeader form.
var defaultSynonyms = map[string]types.Field{
	"NOM_AGENTE": types.FieldAgent,
	"NOMAGENTE":  types.FieldAgent,
	"AGENTE":     types.FieldAgent,

	"QTDATENDIMENTO":  types.FieldCallCount,
	"QTD_ATENDIMENTO": types.FieldCallCount,
	"QTDATENDIMENTOS": types.FieldCallCount,

	"TMA":  types.FieldHandleTime,
	"TME":  types.FieldWaitTime,
	"TMIA": types.FieldPreCallTime,
	"TMIC": types.FieldPostCallTime,

	"FCR":        types.FieldFCR,
	"SATISFACAO": types.FieldSatisfaction,
	"NPS":        types.FieldNPS,

	"QTDSATISFACAO":  types.FieldEvaluationCount,
	"QTD_SATISFACAO": types.FieldEvaluationCount,
	"QTDAVALIACOES":  types.FieldEvaluationCount,

	"NUM_PROTOCOLO": types.FieldProtocol,
	"NUMPROTOCOLO":  types.FieldProtocol,
	"PROTOCOLO":     types.FieldProtocol,
	"NOM_VALOR":     types.FieldNote,
	"NOMVALOR":      types.FieldNote,
	"NOTA":          types.FieldNote,
	"DIA":           types.FieldSourceDay,
	"COMENTARIO":    types.FieldComment,
}

// Column is one raw header resolved against the synonym table
type Column struct {
	Raw    string      // header text as read
	Name   string      // cleaned header text
	Field  types.Field // canonical field when Mapped
	Mapped bool
}

// Canonicalizer maps raw headers onto the canonical schema
type Canonicalizer struct {
	synonyms map[string]types.Field
}

// NewCanonicalizer returns a canonicalizer with the built-in synonym table.
// Canonical field names are accepted as their own synonyms.
func NewCanonicalizer() *Canonicalizer {
	synonyms := make(map[string]types.Field, len(defaultSynonyms)+len(types.ExpectedKPIFields))
	for k, v := range defaultSynonyms {
		synonyms[k] = v
	}
	for _, f := range append(append([]types.Field{}, types.ExpectedKPIFields...),
		types.FieldProtocol, types.FieldNote, types.FieldSourceDay, types.FieldComment) {
		synonyms[CleanHeader(string(f))] = f
	}
	return &Canonicalizer{synonyms: synonyms}
}

// WithSynonyms returns a copy extended with extra raw spellings per field.
// Extra spellings override built-in ones.
func (c *Canonicalizer) WithSynonyms(extra map[types.Field][]string) *Canonicalizer {
	synonyms := make(map[string]types.Field, len(c.synonyms))
	for k, v := range c.synonyms {
		synonyms[k] = v
	}
	for field, spellings := range extra {
		for _, s := range spellings {
			if key := CleanHeader(s); key != "" {
				synonyms[key] = field
			}
		}
	}
	return &Canonicalizer{synonyms: synonyms}
}

// LoadSynonyms reads a YAML document of the form `field: [RAW, ...]`
func LoadSynonyms(path string) (map[types.Field][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read synonyms file: %w", err)
	}

	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse synonyms file: %w", err)
	}

	out := make(map[types.Field][]string, len(raw))
	for field, spellings := range raw {
		out[types.Field(strings.TrimSpace(field))] = spellings
	}
	return out, nil
}

// Lookup resolves one raw header
func (c *Canonicalizer) Lookup(raw string) Column {
	name := CleanHeader(raw)
	field, ok := c.synonyms[name]
	return Column{Raw: raw, Name: name, Field: field, Mapped: ok}
}

// Map resolves every header of one file, in order
func (c *Canonicalizer) Map(header []string) []Column {
	cols := make([]Column, len(header))
	for i, h := range header {
		cols[i] = c.Lookup(h)
		if cols[i].Name == "" {
			cols[i].Name = fmt.Sprintf("COL%d", i+1)
		}
	}
	return cols
}

// Index returns the column position owning each canonical field.
// When two raw headers map to the same field the right-most one wins.
func Index(cols []Column) map[types.Field]int {
	idx := make(map[types.Field]int)
	for i, c := range cols {
		if c.Mapped {
			idx[c.Field] = i
		}
	}
	return idx
}

// CleanHeader trims, folds diacritics, uppercases and keeps only [A-Z0-9_]
func CleanHeader(raw string) string {
	s := strings.ToUpper(foldDiacritics(strings.TrimSpace(raw)))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// foldDiacritics strips combining marks: "Satisfação" -> "Satisfacao"
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
