package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a Path: an object key or an array index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// Key returns an object-key segment.
func Key(k string) Segment { return Segment{Key: k} }

// Index returns an array-index segment.
func Index(i int) Segment { return Segment{Index: i, IsIndex: true} }

func (s Segment) String() string {
	if s.IsIndex {
		return fmt.Sprintf("[%d]", s.Index)
	}
	return s.Key
}

// Path addresses a node of the model tree.
type Path []Segment

func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		if !s.IsIndex && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// Join returns p followed by more.
func (p Path) Join(more ...Segment) Path {
	out := make(Path, 0, len(p)+len(more))
	out = append(out, p...)
	return append(out, more...)
}

// ParsePath parses dotted paths with bracketed indices such as
// "mesh[0].pos[2]" or "drives.d1.Offset". The empty string is the root.
// Keys containing dots or brackets can be quoted: drives["a.b"].Slope.
func ParsePath(s string) (Path, error) {
	var p Path
	i := 0
	expectKey := true
	for i < len(s) {
		switch c := s[i]; {
		case c == '.':
			if expectKey {
				return nil, fmt.Errorf("model: path %q: empty key at %d", s, i)
			}
			expectKey = true
			i++
		case c == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("model: path %q: unterminated '['", s)
			}
			inner := s[i+1 : i+end]
			if len(inner) >= 2 && inner[0] == '"' && inner[len(inner)-1] == '"' {
				key, err := strconv.Unquote(inner)
				if err != nil {
					return nil, fmt.Errorf("model: path %q: %w", s, err)
				}
				p = append(p, Key(key))
			} else {
				n, err := strconv.Atoi(inner)
				if err != nil || n < 0 {
					return nil, fmt.Errorf("model: path %q: bad index %q", s, inner)
				}
				p = append(p, Index(n))
			}
			expectKey = false
			i += end + 1
		default:
			if !expectKey {
				return nil, fmt.Errorf("model: path %q: missing '.' at %d", s, i)
			}
			end := strings.IndexAny(s[i:], ".[")
			if end < 0 {
				end = len(s) - i
			}
			p = append(p, Key(s[i:i+end]))
			expectKey = false
			i += end
		}
	}
	if expectKey && len(s) > 0 {
		return nil, fmt.Errorf("model: path %q: trailing '.'", s)
	}
	return p, nil
}

// MustParsePath is ParsePath that panics on error.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}
