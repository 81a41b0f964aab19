// Package candidate loads and normalizes the input list of domains to probe.
package candidate

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Row is one candidate site. Domain is the normalized host; Raw keeps the
// original cell so a candidate that already carries a scheme is navigated
// literally. Stratum is the sampling-group label carried through to the
// output unchanged; Source and SourceRank are optional provenance columns
// from the list builder.
type Row struct {
	Domain     string
	Raw        string
	Stratum    string
	Source     string
	SourceRank string
}

var (
	schemeRe = regexp.MustCompile(`^https?://`)
	slugRe   = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

// NormalizeDomain reduces a raw candidate value to a bare lowercase host:
// trims whitespace, strips an http(s) scheme, drops any path, and removes a
// leading "www." label. Returns "" for values that normalize to nothing.
func NormalizeDomain(raw string) string {
	x := strings.TrimSpace(raw)
	x = schemeRe.ReplaceAllString(x, "")
	if i := strings.IndexByte(x, '/'); i >= 0 {
		x = x[:i]
	}
	x = strings.TrimPrefix(x, "www.")
	return strings.ToLower(x)
}

// SafeSlug makes a string safe for use as a directory name, collapsing every
// run of disallowed characters to a single underscore.
func SafeSlug(s string) string {
	return slugRe.ReplaceAllString(s, "_")
}

// Load reads candidate rows from a CSV file with a header row. The file must
// contain "domain" and "stratum" columns; "source" and "source_rank" are
// optional. A UTF-8 BOM on the file or on the first header cell is tolerated.
// Rows whose normalized domain or stratum is empty are dropped; the second
// return value is the dropped count so the caller can log it.
func Load(path string) ([]Row, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open candidates: %w", err)
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) ([]Row, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read candidate header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\uFEFF")
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	domCol, ok := idx["domain"]
	if !ok {
		return nil, 0, fmt.Errorf("candidate file has no %q column", "domain")
	}
	strCol, hasStratum := idx["stratum"]
	if !hasStratum {
		return nil, 0, fmt.Errorf("candidate file has no %q column", "stratum")
	}
	srcCol, hasSrc := idx["source"]
	rankCol, hasRank := idx["source_rank"]

	field := func(rec []string, i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	var rows []Row
	dropped := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read candidate row: %w", err)
		}
		raw := field(rec, domCol)
		row := Row{
			Domain:  NormalizeDomain(raw),
			Raw:     raw,
			Stratum: field(rec, strCol),
		}
		if hasSrc {
			row.Source = field(rec, srcCol)
		}
		if hasRank {
			row.SourceRank = field(rec, rankCol)
		}
		if row.Domain == "" || row.Stratum == "" {
			dropped++
			continue
		}
		rows = append(rows, row)
	}
	return rows, dropped, nil
}
