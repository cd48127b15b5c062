package filter

import (
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		rule      string
		useRegex  bool
		matchCase bool
		wholeWord bool
		want      bool
	}{
		{"substring case folded", "CamelCase", "camel", false, false, false, true},
		{"substring case sensitive", "CamelCase", "camel", false, true, false, false},
		{"substring exact case", "CamelCase", "Camel", false, true, false, true},
		{"whole word at start", "foo bar", "foo", false, false, true, true},
		{"whole word inside identifier", "foobar", "foo", false, false, true, false},
		{"whole word at end", "bar foo", "foo", false, false, true, true},
		{"whole word with punctuation", "/usr/bin/foo.sh", "foo", false, false, true, true},
		{"whole word later occurrence", "foobar foo", "foo", false, false, true, true},
		{"whole word digits are word runes", "foo1", "foo", false, false, true, false},
		{"whole word unicode letter", "éfoo", "foo", false, false, true, false},
		{"whole word case folded", "Foo Bar", "foo", false, false, true, true},
		{"empty rule", "anything", "", false, false, false, true},
		{"empty rule regex", "anything", "", true, true, true, true},
		{"empty rule on empty text", "", "", false, true, true, true},
		{"regex case folded", "ABC123", "a.*3", true, false, false, true},
		{"regex case sensitive", "ABC123", "a.*3", true, true, false, false},
		{"regex ignores whole word", "foobar", "foo", true, false, true, true},
		{"regex anchors", "foobar", "^bar", true, false, false, false},
		{"no match", "hello", "xyz", false, false, false, false},
		{"rule longer than text", "ab", "abc", false, false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Matches(tt.text, tt.rule, tt.useRegex, tt.matchCase, tt.wholeWord)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInvalidRegex(t *testing.T) {
	for _, matchCase := range []bool{false, true} {
		got, err := Matches("a((", "a((", true, matchCase, false)
		assert.False(t, got)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidFilterPattern))
	}

	// Cached failures keep failing the same way.
	_, err := Matches("x", "a((", true, false, false)
	assert.ErrorIs(t, err, ErrInvalidFilterPattern)

	// The same text as a plain substring is fine.
	got, err := Matches("a((", "a((", false, true, false)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestMatcherCache(t *testing.T) {
	m, err := NewMatcher(2)
	require.NoError(t, err)

	for _, p := range []string{"a+", "b+", "c+", "a+"} {
		ok, err := m.Matches("aaa bbb ccc", p, true, true, false)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.LessOrEqual(t, m.cache.Len(), 2)

	_, err = NewMatcher(0)
	assert.Error(t, err)
}

func TestMatcherConcurrentUse(t *testing.T) {
	m, err := NewMatcher(4)
	require.NoError(t, err)

	patterns := []string{"fo+", "ba[rz]", "^q", "x|y", "z$", "[0-9]+"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				p := patterns[(i+j)%len(patterns)]
				if _, err := m.Matches("foo baz 42", p, true, false, false); err != nil {
					t.Errorf("pattern %q: %v", p, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

type row []string

func (r row) Fields() []string { return r }

func TestRuleMatchAnyAndCount(t *testing.T) {
	rows := []row{
		{"firefox", "enforce"},
		{"cupsd", "complain"},
		{"evince", "enforce"},
	}

	r := Rule{Pattern: "enforce", WholeWord: true}
	ok, err := r.MatchAny(rows[0]...)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := Count(slices.Values(rows), r)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = Count(slices.Values(rows), Rule{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = Count(slices.Values(rows), Rule{Pattern: "C.*D", UseRegex: true})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = Count(slices.Values(rows), Rule{Pattern: "(", UseRegex: true})
	assert.ErrorIs(t, err, ErrInvalidFilterPattern)

	ok, err = Rule{Pattern: "CUPS", MatchCase: true}.Match("cupsd")
	require.NoError(t, err)
	assert.False(t, ok)
}
