package csvload

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Raw is the decoded content of one CSV file before header mapping
type Raw struct {
	Header    []string
	Records   [][]string
	Delimiter rune
	Encoding  string
	Skipped   int // records dropped as unparseable
}

// Empty reports whether nothing usable was read
func (r Raw) Empty() bool {
	return len(r.Header) == 0
}

// Encoding names reported in Raw.Encoding
const (
	EncodingLatin1 = "latin1"
	EncodingUTF8   = "utf-8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrTooFewColumns marks a parse whose header has fewer than two columns,
// which is what a wrong delimiter guess looks like.
var ErrTooFewColumns = errors.New("header has fewer than two columns")

type attempt struct {
	delimiter rune
	encoding  string
}

// attempts are tried in order; the first one that parses wins
var attempts = []attempt{
	{';', EncodingLatin1},
	{',', EncodingUTF8},
}

// Read decodes a CSV export trying (';', Latin-1) and then (',', UTF-8).
// It never fails: a missing or unparseable file yields an empty Raw and
// the error describing why, for the caller to log.
func Read(path string) (Raw, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Raw{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Decode(data)
}

// Decode applies the same attempts as Read to bytes already in memory
func Decode(data []byte) (Raw, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	var errs []error
	for _, a := range attempts {
		raw, err := parse(data, a.delimiter, encodingFor(data, a.encoding))
		if err == nil {
			return raw, nil
		}
		errs = append(errs, fmt.Errorf("delimiter %q: %w", a.delimiter, err))
	}
	return Raw{}, errors.Join(errs...)
}

// encodingFor keeps valid multi-byte UTF-8 intact on the Latin-1 attempt
// and falls back to Latin-1 when the UTF-8 attempt would see invalid bytes.
func encodingFor(data []byte, preferred string) string {
	valid := utf8.Valid(data)
	switch {
	case preferred == EncodingLatin1 && valid && hasMultiByte(data):
		return EncodingUTF8
	case preferred == EncodingUTF8 && !valid:
		return EncodingLatin1
	default:
		return preferred
	}
}

func hasMultiByte(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return true
		}
	}
	return false
}

func parse(data []byte, delimiter rune, encoding string) (Raw, error) {
	var src io.Reader = bytes.NewReader(data)
	if encoding == EncodingLatin1 {
		src = charmap.ISO8859_1.NewDecoder().Reader(src)
	}

	r := csv.NewReader(src)
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return Raw{}, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < 2 {
		return Raw{}, ErrTooFewColumns
	}

	raw := Raw{Header: header, Delimiter: delimiter, Encoding: encoding}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			raw.Skipped++
			continue
		}
		if err != nil {
			return Raw{}, fmt.Errorf("failed to read record: %w", err)
		}
		if blank(rec) {
			continue
		}
		raw.Records = append(raw.Records, fit(rec, len(header)))
	}
	return raw, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// fit pads or truncates a record to the header width
func fit(rec []string, width int) []string {
	if len(rec) == width {
		return rec
	}
	out := make([]string, width)
	copy(out, rec)
	return out
}

// Resolve returns path when it exists, otherwise the first entry of its
// parent directory whose name matches case-insensitively.
func Resolve(path string) (string, bool) {
	return resolve(path, false)
}

// ResolveDir is Resolve restricted to directories
func ResolveDir(path string) (string, bool) {
	return resolve(path, true)
}

func resolve(path string, wantDir bool) (string, bool) {
	if info, err := os.Stat(path); err == nil && info.IsDir() == wantDir {
		return path, true
	}

	parent := filepath.Dir(path)
	if parent != path {
		if p, ok := ResolveDir(parent); ok {
			parent = p
		} else {
			return "", false
		}
	}

	entries, err := os.ReadDir(parent)
	if err != nil {
		return "", false
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	base := filepath.Base(path)
	for _, e := range entries {
		if !strings.EqualFold(e.Name(), base) {
			continue
		}
		full := filepath.Join(parent, e.Name())
		info, err := os.Stat(full)
		if err != nil || info.IsDir() != wantDir {
			continue
		}
		return full, true
	}
	return "", false
}

// List returns the regular *.csv files of dir in sorted name order
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
