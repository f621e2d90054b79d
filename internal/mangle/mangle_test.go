package mangle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPath(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "foo", "foo"},
		{"nested", "a/b/foo", "a#b#foo"},
		{"parent", "a/../foo", "a#^#foo"},
		{"drops_dot", "a/./foo", "a#foo"},
		{"leading_slash", "/a/foo", "#a#foo"},
		{"only_dots", "./..", "^"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, Path(c.in))
		})
	}
}

// TestPathDeterministicAndSafe checks that for any path composed of
// segments drawn from {a, .., ., foo}, mangling is deterministic and
// contains no '/' and no literal "..".
func TestPathDeterministicAndSafe(t *testing.T) {
	alphabet := []string{"a", "..", ".", "foo"}
	var paths []string
	for _, s1 := range alphabet {
		for _, s2 := range alphabet {
			for _, s3 := range alphabet {
				paths = append(paths, strings.Join([]string{s1, s2, s3}, "/"))
			}
		}
	}

	for _, p := range paths {
		got := Path(p)
		again := Path(p)
		require.Equal(t, got, again, "mangling must be deterministic for %q", p)
		require.NotContains(t, got, "/", "mangled output must not contain '/' for %q", p)
		require.NotContains(t, got, "..", "mangled output must not contain literal '..' for %q", p)
	}
}
