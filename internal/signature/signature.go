package signature

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrEmptyName is returned for a signature without a name.
	ErrEmptyName = errors.New("signature name is empty")
	// ErrNoPatterns is returned for a signature without patterns.
	ErrNoPatterns = errors.New("signature has no patterns")
	// ErrDuplicateName is returned when a table names the same technology twice.
	ErrDuplicateName = errors.New("duplicate signature name")
)

// Signature names a technology and the patterns that reveal it.
type Signature struct {
	Name     string
	Patterns []*regexp.Regexp
}

// Compile builds a Signature from Go regular expressions. Prefix an
// expression with (?i) for case-insensitive matching.
func Compile(name string, exprs ...string) (Signature, error) {
	if name == "" {
		return Signature{}, ErrEmptyName
	}
	if len(exprs) == 0 {
		return Signature{}, fmt.Errorf("%s: %w", name, ErrNoPatterns)
	}
	patterns := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return Signature{}, fmt.Errorf("%s: compile %q: %w", name, expr, err)
		}
		patterns = append(patterns, re)
	}
	return Signature{Name: name, Patterns: patterns}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(name string, exprs ...string) Signature {
	sig, err := Compile(name, exprs...)
	if err != nil {
		panic(err)
	}
	return sig
}

// Matches reports whether any pattern matches text.
func (s Signature) Matches(text string) bool {
	for _, re := range s.Patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Table is an ordered signature list.
type Table struct {
	signatures []Signature
}

// NewTable validates sigs and returns a table preserving their order.
func NewTable(sigs ...Signature) (*Table, error) {
	seen := make(map[string]struct{}, len(sigs))
	for _, sig := range sigs {
		if sig.Name == "" {
			return nil, ErrEmptyName
		}
		if len(sig.Patterns) == 0 {
			return nil, fmt.Errorf("%s: %w", sig.Name, ErrNoPatterns)
		}
		if _, ok := seen[sig.Name]; ok {
			return nil, fmt.Errorf("%s: %w", sig.Name, ErrDuplicateName)
		}
		seen[sig.Name] = struct{}{}
	}
	return &Table{signatures: append([]Signature(nil), sigs...)}, nil
}

// Match returns the names of every signature matching text, in table order.
// The result is never nil.
func (t *Table) Match(text string) []string {
	matched := make([]string, 0)
	if t == nil {
		return matched
	}
	for _, sig := range t.signatures {
		if sig.Matches(text) {
			matched = append(matched, sig.Name)
		}
	}
	return matched
}

// Names lists the signature names in table order.
func (t *Table) Names() []string {
	names := make([]string, 0, t.Len())
	if t == nil {
		return names
	}
	for _, sig := range t.signatures {
		names = append(names, sig.Name)
	}
	return names
}

// Len reports the number of signatures.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.signatures)
}
