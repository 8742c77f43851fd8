// Package template implements the small pattern language used by secret
// mappings. A pattern such as "DB_{field}" is made of literal text and named
// {placeholders}. The same compiled Template can match an input string and
// capture the placeholder values, or render a string from captured values.
package template

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrDuplicateParameter is returned when a placeholder name is used more than
// once in a single pattern.
var ErrDuplicateParameter = errors.New("duplicate template parameter")

// placeholderPattern finds {name} placeholders. Surrounding whitespace inside
// the braces is ignored.
var placeholderPattern = regexp.MustCompile(`\{\s*([A-Za-z][A-Za-z0-9_-]*)\s*\}`)

// Captures holds the values matched for each placeholder name.
type Captures map[string]string

// piece is either literal text or a placeholder.
type piece struct {
	text  string
	param bool
}

// Template is a compiled pattern. It is immutable once compiled and safe for
// concurrent use.
type Template struct {
	source string
	pieces []piece
	params []string
	re     *regexp.Regexp
}

// Compile parses a pattern into a Template.
func Compile(pattern string) (*Template, error) {
	var (
		pieces []piece
		params []string
		seen   = make(map[string]bool)
		last   int
	)

	for _, loc := range placeholderPattern.FindAllStringSubmatchIndex(pattern, -1) {
		name := pattern[loc[2]:loc[3]]
		if seen[name] {
			return nil, fmt.Errorf("%w: '%s' is used more than once in '%s'", ErrDuplicateParameter, name, pattern)
		}
		seen[name] = true

		if loc[0] > last {
			pieces = append(pieces, piece{text: pattern[last:loc[0]]})
		}
		pieces = append(pieces, piece{text: name, param: true})
		params = append(params, name)
		last = loc[1]
	}
	if last < len(pattern) {
		pieces = append(pieces, piece{text: pattern[last:]})
	}

	// Capture groups are positional: Go does not allow '-' in group names,
	// and params[i] names group i+1.
	var expr strings.Builder
	expr.WriteString("^")
	for _, p := range pieces {
		if p.param {
			expr.WriteString("(.+?)")
		} else {
			expr.WriteString(regexp.QuoteMeta(p.text))
		}
	}
	expr.WriteString("$")

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, fmt.Errorf("failed to compile template '%s': %w", pattern, err)
	}

	return &Template{
		source: pattern,
		pieces: pieces,
		params: params,
		re:     re,
	}, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and
// package-level literals.
func MustCompile(pattern string) *Template {
	t, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return t
}

// Match matches the whole input against the template. It reports false if
// the input does not satisfy the pattern, including when a placeholder would
// have to match nothing.
func (t *Template) Match(input string) (Captures, bool) {
	groups := t.re.FindStringSubmatch(input)
	if groups == nil {
		return nil, false
	}
	captures := make(Captures, len(t.params))
	for i, name := range t.params {
		captures[name] = groups[i+1]
	}
	return captures, true
}

// Render builds a string from the template, substituting captured values.
// Placeholders without a capture render as the empty string.
func (t *Template) Render(captures Captures) string {
	var out strings.Builder
	for _, p := range t.pieces {
		if p.param {
			out.WriteString(captures[p.text])
			continue
		}
		out.WriteString(p.text)
	}
	return out.String()
}

// ParamsSubsetOf reports whether every placeholder in t also appears in
// other, i.e. whether t can always be rendered from other's captures without
// leaving gaps.
func (t *Template) ParamsSubsetOf(other *Template) bool {
	have := make(map[string]bool, len(other.params))
	for _, name := range other.params {
		have[name] = true
	}
	for _, name := range t.params {
		if !have[name] {
			return false
		}
	}
	return true
}

// Params returns the placeholder names in order of appearance.
func (t *Template) Params() []string {
	out := make([]string, len(t.params))
	copy(out, t.params)
	return out
}

// IsLiteral reports whether the template has no placeholders.
func (t *Template) IsLiteral() bool {
	return len(t.params) == 0
}

// Equal reports whether two templates are made of the same pieces.
// Whitespace inside placeholder braces does not affect equality.
func (t *Template) Equal(other *Template) bool {
	if t == nil || other == nil {
		return t == other
	}
	if len(t.pieces) != len(other.pieces) {
		return false
	}
	for i := range t.pieces {
		if t.pieces[i] != other.pieces[i] {
			return false
		}
	}
	return true
}

// String returns the pattern the template was compiled from.
func (t *Template) String() string {
	return t.source
}
