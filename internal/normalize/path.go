// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// segment is one step of a source path: a map key, optionally filtered by
// an attribute predicate ("organization[@type=coordinator]").
type segment struct {
	key   string
	attr  string
	value string
}

var segmentPattern = regexp.MustCompile(`^([^\[\]@.]+)(?:\[@([^=\]]+)=([^\]]*)\])?$`)

// Path is a compiled source path.
type Path struct {
	raw  string
	segs []segment
}

func (p Path) String() string { return p.raw }

// CompilePath parses a dot-separated source path.
func CompilePath(raw string) (Path, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Path{}, fmt.Errorf("empty path")
	}
	parts := splitPath(trimmed)
	segs := make([]segment, 0, len(parts))
	for _, part := range parts {
		m := segmentPattern.FindStringSubmatch(part)
		if m == nil {
			return Path{}, fmt.Errorf("invalid path segment %q in %q", part, raw)
		}
		segs = append(segs, segment{key: m[1], attr: m[2], value: strings.TrimSpace(m[3])})
	}
	return Path{raw: trimmed, segs: segs}, nil
}

// splitPath splits on dots outside attribute predicates, so predicate values
// may contain dots.
func splitPath(s string) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case '.':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// Lookup returns every leaf value reached by p in tree, in document order.
// Lists are traversed transparently. Leaves are rendered as strings; maps
// contribute their "#text" value.
func (p Path) Lookup(tree any) []string {
	var out []string
	walk(tree, p.segs, &out)
	return out
}

func walk(node any, segs []segment, out *[]string) {
	if list, ok := node.([]any); ok {
		for _, item := range list {
			walk(item, segs, out)
		}
		return
	}
	if len(segs) == 0 {
		collectLeaf(node, out)
		return
	}
	m, ok := node.(map[string]any)
	if !ok {
		return
	}
	child, ok := m[segs[0].key]
	if !ok {
		return
	}
	if segs[0].attr != "" {
		child = filterByAttr(child, segs[0].attr, segs[0].value)
	}
	walk(child, segs[1:], out)
}

func filterByAttr(node any, attr, value string) any {
	switch v := node.(type) {
	case []any:
		var kept []any
		for _, item := range v {
			if matchesAttr(item, attr, value) {
				kept = append(kept, item)
			}
		}
		return kept
	default:
		if matchesAttr(v, attr, value) {
			return v
		}
		return nil
	}
}

func matchesAttr(node any, attr, value string) bool {
	m, ok := node.(map[string]any)
	if !ok {
		return false
	}
	got, ok := m["@"+attr]
	if !ok {
		// Records converted from YAML or JSON often drop the "@" prefix.
		got, ok = m[attr]
	}
	if !ok {
		return false
	}
	s, ok := scalarString(got)
	return ok && strings.EqualFold(strings.TrimSpace(s), value)
}

func collectLeaf(node any, out *[]string) {
	switch v := node.(type) {
	case nil:
	case []any:
		for _, item := range v {
			collectLeaf(item, out)
		}
	case map[string]any:
		if text, ok := v["#text"]; ok {
			collectLeaf(text, out)
		}
	default:
		if s, ok := scalarString(v); ok {
			*out = append(*out, s)
		}
	}
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	case time.Time:
		return x.Format(time.RFC3339), true
	default:
		return "", false
	}
}
