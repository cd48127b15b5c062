// Package filter decides whether a row is visible under a search rule.
package filter

import (
	"errors"
	"fmt"
	"iter"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/elastic/go-freelru"
	"github.com/zeebo/xxh3"
)

// ErrInvalidFilterPattern is returned when a regex rule does not compile.
// The row is treated as not matching.
var ErrInvalidFilterPattern = errors.New("invalid filter pattern")

// DefaultCacheSize is the number of compiled patterns kept by the package-level matcher.
const DefaultCacheSize = 256

// compiled is a cache entry; a pattern that failed to compile is cached with its error.
type compiled struct {
	re  *regexp.Regexp
	err error
}

// Matcher evaluates rules and keeps recently compiled regular expressions.
// It is safe for concurrent use.
type Matcher struct {
	cache *freelru.SyncedLRU[string, compiled]
}

func hashString(s string) uint32 {
	return uint32(xxh3.HashString(s))
}

// NewMatcher creates a Matcher caching up to cacheSize compiled patterns.
func NewMatcher(cacheSize uint32) (*Matcher, error) {
	cache, err := freelru.NewSynced[string, compiled](cacheSize, hashString)
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern cache: %w", err)
	}
	return &Matcher{cache: cache}, nil
}

var defaultMatcher = func() *Matcher {
	m, err := NewMatcher(DefaultCacheSize)
	if err != nil {
		panic(err)
	}
	return m
}()

// Matches reports whether text satisfies rule using a shared Matcher.
func Matches(text, rule string, useRegex, matchCase, wholeWord bool) (bool, error) {
	return defaultMatcher.Matches(text, rule, useRegex, matchCase, wholeWord)
}

// Matches reports whether text satisfies rule.
//
// An empty rule always matches. In regex mode wholeWord is ignored and a
// case-insensitive match is done with the (?i) flag. Otherwise rule is a plain
// substring, optionally case folded, and with wholeWord it must be bounded on
// both sides by a rune that is neither letter nor digit, or by the edge of text.
func (m *Matcher) Matches(text, rule string, useRegex, matchCase, wholeWord bool) (bool, error) {
	if rule == "" {
		return true, nil
	}
	if useRegex {
		re, err := m.compile(rule, matchCase)
		if err != nil {
			return false, err
		}
		return re.MatchString(text), nil
	}

	if !matchCase {
		text = strings.ToLower(text)
		rule = strings.ToLower(rule)
	}
	if !wholeWord {
		return strings.Contains(text, rule), nil
	}
	return containsWord(text, rule), nil
}

func (m *Matcher) compile(rule string, matchCase bool) (*regexp.Regexp, error) {
	pattern := rule
	if !matchCase {
		pattern = "(?i)" + rule
	}
	if c, ok := m.cache.Get(pattern); ok {
		return c.re, c.err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		err = fmt.Errorf("%w %q: %w", ErrInvalidFilterPattern, rule, err)
	}
	m.cache.Add(pattern, compiled{re: re, err: err})
	return re, err
}

func containsWord(text, word string) bool {
	for offset := 0; offset <= len(text)-len(word); {
		i := strings.Index(text[offset:], word)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(word)
		if isBoundaryBefore(text, start) && isBoundaryAfter(text, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isBoundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func isBoundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

// Rule is a search rule as entered by the user.
type Rule struct {
	Pattern   string `json:"pattern"`
	UseRegex  bool   `json:"regex"`
	MatchCase bool   `json:"match_case"`
	WholeWord bool   `json:"whole_word"`
}

// Empty reports whether the rule filters nothing.
func (r Rule) Empty() bool { return r.Pattern == "" }

// Match evaluates the rule against text with the shared Matcher.
func (r Rule) Match(text string) (bool, error) {
	return defaultMatcher.Matches(text, r.Pattern, r.UseRegex, r.MatchCase, r.WholeWord)
}

// MatchAny reports whether any of fields matches. An invalid pattern stops at
// the first field and returns its error.
func (r Rule) MatchAny(fields ...string) (bool, error) {
	return defaultMatcher.MatchAny(r, fields...)
}

// MatchAny reports whether any of fields matches r.
func (m *Matcher) MatchAny(r Rule, fields ...string) (bool, error) {
	if r.Empty() {
		return true, nil
	}
	for _, f := range fields {
		ok, err := m.Matches(f, r.Pattern, r.UseRegex, r.MatchCase, r.WholeWord)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Row is anything with a textual projection.
type Row interface {
	Fields() []string
}

// Select yields the rows of seq visible under r. A pattern error ends the
// sequence and is stored in *errp.
func Select[T Row](m *Matcher, seq iter.Seq[T], r Rule, errp *error) iter.Seq[T] {
	return func(yield func(T) bool) {
		for row := range seq {
			ok, err := m.MatchAny(r, row.Fields()...)
			if err != nil {
				if errp != nil {
					*errp = err
				}
				return
			}
			if ok && !yield(row) {
				return
			}
		}
	}
}

// Count returns how many rows of seq are visible under r.
func Count[T Row](seq iter.Seq[T], r Rule) (int, error) {
	var (
		n   int
		err error
	)
	for range Select(defaultMatcher, seq, r, &err) {
		n++
	}
	return n, err
}
