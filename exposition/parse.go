package exposition

import (
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// samplePattern matches a sample line.
// Group 1: metric name
// Group 2: the label block including braces (optional)
// Group 3: everything after the separating whitespace
var samplePattern = regexp.MustCompile(`^([a-zA-Z_:][a-zA-Z0-9_:]*)(\{[^}]*\})?\s+(.+)$`)

// Parse converts exposition text into a [Snapshot].
//
// Parse never fails. Comment lines, blank lines, lines that do not look like
// a sample and samples whose value is not a finite number are skipped.
// Samples of the same name accumulate in document order even when they are
// not contiguous.
func Parse(text string) *Snapshot {
	snap := newSnapshot()

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}

		m := samplePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		value, ok := parseValue(m[3])
		if !ok {
			continue
		}

		snap.add(m[1], parseLabels(m[2]), value)
	}

	return snap
}

// ParseReader reads r to the end and parses the content with [Parse].
// The only error returned is a read error.
func ParseReader(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read exposition: %w", err)
	}
	return Parse(string(data)), nil
}

// parseValue reads the value token. A trailing timestamp is ignored.
func parseValue(rest string) (float64, bool) {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parseLabels parses a `{k="v",...}` block. Segments without '=' or with an
// empty key are skipped; a partial label set is still valid.
func parseLabels(block string) map[string]string {
	labels := map[string]string{}
	if len(block) < 2 {
		return labels
	}

	inside := strings.TrimSpace(block[1 : len(block)-1])
	if inside == "" {
		return labels
	}

	for _, pair := range strings.Split(inside, ",") {
		p := strings.TrimSpace(pair)
		if p == "" {
			continue
		}
		eq := strings.IndexByte(p, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(p[:eq])
		if key == "" {
			continue
		}
		labels[key] = unquote(strings.TrimSpace(p[eq+1:]))
	}
	return labels
}

// unquote strips one surrounding pair of double quotes (each side
// independently) and resolves the \\, \" and \n escapes.
func unquote(v string) string {
	v = strings.TrimPrefix(v, `"`)
	v = strings.TrimSuffix(v, `"`)
	if !strings.Contains(v, `\`) {
		return v
	}

	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		ch := v[i]
		if ch != '\\' || i+1 >= len(v) {
			b.WriteByte(ch)
			continue
		}
		i++
		switch v[i] {
		case 'n':
			b.WriteByte('\n')
		case '\\', '"':
			b.WriteByte(v[i])
		default:
			// unknown escape is kept verbatim
			b.WriteByte('\\')
			b.WriteByte(v[i])
		}
	}
	return b.String()
}
