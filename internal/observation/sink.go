package observation

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Sink appends Observation rows to a CSV file. The header is written exactly
// once, only when the file does not already exist, so a resumed crawl keeps
// appending to the same file. Safe for concurrent Append calls.
//
// The writer quotes a field only when it contains a comma, quote, or newline,
// doubling internal quotes. This keeps the file byte-compatible with rows
// produced by earlier crawls that resume reads back.
type Sink struct {
	mu   sync.Mutex
	path string
}

// NewSink returns a sink writing to path. Nothing is created until the first
// Append.
func NewSink(path string) *Sink {
	return &Sink{path: path}
}

// Path returns the output file path.
func (s *Sink) Path() string { return s.path }

// Append writes one observation row, creating the file with a header first
// if needed.
func (s *Sink) Append(o *Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, statErr := os.Stat(s.path)
	needHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer f.Close()

	if needHeader {
		if _, err := f.WriteString(encodeLine(Header())); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if _, err := f.WriteString(encodeLine(o.Fields())); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	return nil
}

func encodeLine(fields []string) string {
	var b strings.Builder
	for i, s := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		if strings.ContainsAny(s, ",\"\n") {
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(s, `"`, `""`))
			b.WriteByte('"')
		} else {
			b.WriteString(s)
		}
	}
	b.WriteByte('\n')
	return b.String()
}

// LoadDoneKeys reads a previous output file and returns the set of
// domain|device|run_id keys already present, for resume filtering. When
// retryErrors is true, rows whose status is error or script_error are left
// out of the set so those trials run again. A missing file yields an empty
// set, not an error.
func LoadDoneKeys(path string, retryErrors bool) (map[string]struct{}, error) {
	keys := make(map[string]struct{})

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return keys, nil
		}
		return nil, fmt.Errorf("read prior output: %w", err)
	}

	lines := splitNonEmpty(string(data))
	if len(lines) < 2 {
		return keys, nil
	}

	header := strings.Split(lines[0], ",")
	col := func(name string) int {
		for i, h := range header {
			if h == name {
				return i
			}
		}
		return -1
	}
	iDom, iDev, iRun, iStatus := col("domain"), col("device"), col("run_id"), col("status")
	if iDom < 0 || iDev < 0 || iRun < 0 {
		return keys, nil
	}

	get := func(cols []string, i int) string {
		if i >= 0 && i < len(cols) {
			return cols[i]
		}
		return ""
	}

	for _, line := range lines[1:] {
		cols := decodeLine(line)
		dom, dev, run := get(cols, iDom), get(cols, iDev), get(cols, iRun)
		if dom == "" || dev == "" || run == "" {
			continue
		}
		if retryErrors {
			status := get(cols, iStatus)
			if status == StatusError || status == StatusScriptError {
				continue
			}
		}
		keys[dom+"|"+dev+"|"+run] = struct{}{}
	}
	return keys, nil
}

func splitNonEmpty(s string) []string {
	raw := strings.Split(s, "\n")
	out := raw[:0]
	for _, l := range raw {
		l = strings.TrimSuffix(l, "\r")
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// decodeLine parses one CSV line produced by encodeLine. It only needs to be
// quote-safe for our own output, not a general CSV reader.
func decodeLine(line string) []string {
	var out []string
	var cur strings.Builder
	inQ := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if inQ {
			if ch == '"' {
				if i+1 < len(line) && line[i+1] == '"' {
					cur.WriteByte('"')
					i++
				} else {
					inQ = false
				}
			} else {
				cur.WriteByte(ch)
			}
			continue
		}
		switch ch {
		case ',':
			out = append(out, cur.String())
			cur.Reset()
		case '"':
			inQ = true
		default:
			cur.WriteByte(ch)
		}
	}
	out = append(out, cur.String())
	return out
}
