package solve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustVersion(t *testing.T, s string) Version {
	t.Helper()
	v, err := ParseVersion(s)
	require.NoError(t, err)
	return v
}

// ---------------------------------------------------------------------------
// ParseVersionSpec / Match
// ---------------------------------------------------------------------------

func TestVersionSpecWildcardMatchesAnything(t *testing.T) {
	vs, err := ParseVersionSpec("")
	require.NoError(t, err)
	assert.True(t, vs.Match(mustVersion(t, "1.0.0")))

	vs2, err := ParseVersionSpec("*")
	require.NoError(t, err)
	assert.True(t, vs2.Match(mustVersion(t, "9.9.9")))
}

func TestVersionSpecExactMatch(t *testing.T) {
	vs, err := ParseVersionSpec("==1.2.3")
	require.NoError(t, err)
	assert.True(t, vs.Match(mustVersion(t, "1.2.3")))
	assert.False(t, vs.Match(mustVersion(t, "1.2.4")))
	assert.True(t, vs.IsExact())
}

func TestVersionSpecExactWithWildcardRejected(t *testing.T) {
	_, err := ParseVersionSpec("==1.2.*")
	require.Error(t, err)
}

func TestVersionSpecFuzzyEquality(t *testing.T) {
	vs, err := ParseVersionSpec("1.2")
	require.NoError(t, err)
	assert.True(t, vs.Match(mustVersion(t, "1.2")))
	assert.True(t, vs.Match(mustVersion(t, "1.2.5")))
	assert.False(t, vs.Match(mustVersion(t, "1.3")))
	assert.False(t, vs.Match(mustVersion(t, "1.1.9")))
}

func TestVersionSpecGlob(t *testing.T) {
	vs, err := ParseVersionSpec("1.2.*")
	require.NoError(t, err)
	assert.True(t, vs.Match(mustVersion(t, "1.2.5")))
	assert.False(t, vs.Match(mustVersion(t, "1.3.0")))
}

func TestVersionSpecInequalities(t *testing.T) {
	tests := []struct {
		spec    string
		version string
		expect  bool
	}{
		{">=1.0.0", "1.0.0", true},
		{">=1.0.0", "0.9.0", false},
		{"<=2.0.0", "2.0.0", true},
		{"<=2.0.0", "2.0.1", false},
		{">1.0.0", "1.0.0", false},
		{">1.0.0", "1.0.1", true},
		{"<2.0.0", "2.0.0", false},
		{"<2.0.0", "1.9.9", true},
		{"!=1.0.0", "1.0.0", false},
		{"!=1.0.0", "1.0.1", true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			vs, err := ParseVersionSpec(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, vs.Match(mustVersion(t, tt.version)))
		})
	}
}

func TestVersionSpecInequalityRejectsWildcard(t *testing.T) {
	_, err := ParseVersionSpec(">=1.0.*")
	require.Error(t, err)
}

func TestVersionSpecAndCombinator(t *testing.T) {
	vs, err := ParseVersionSpec(">=1.0.0,<2.0.0")
	require.NoError(t, err)
	assert.True(t, vs.Match(mustVersion(t, "1.5.0")))
	assert.False(t, vs.Match(mustVersion(t, "2.0.0")))
	assert.False(t, vs.Match(mustVersion(t, "0.9.0")))
}

func TestVersionSpecOrCombinator(t *testing.T) {
	vs, err := ParseVersionSpec("1.0.0|2.0.0")
	require.NoError(t, err)
	assert.True(t, vs.Match(mustVersion(t, "1.0.0")))
	assert.True(t, vs.Match(mustVersion(t, "2.0.0")))
	assert.False(t, vs.Match(mustVersion(t, "1.5.0")))
}

func TestVersionSpecParentheses(t *testing.T) {
	vs, err := ParseVersionSpec("(>=1.0.0,<2.0.0)|>=3.0.0")
	require.NoError(t, err)
	assert.True(t, vs.Match(mustVersion(t, "1.5.0")))
	assert.True(t, vs.Match(mustVersion(t, "3.5.0")))
	assert.False(t, vs.Match(mustVersion(t, "2.5.0")))
}

func TestVersionSpecUnbalancedParentheses(t *testing.T) {
	_, err := ParseVersionSpec("(>=1.0.0")
	require.Error(t, err)
}

func TestVersionSpecTrailingCharacters(t *testing.T) {
	_, err := ParseVersionSpec(">=1.0.0)")
	require.Error(t, err)
}

func TestVersionSpecEmptyAtom(t *testing.T) {
	_, err := ParseVersionSpec(">=1.0.0,")
	require.Error(t, err)
}

func TestVersionSpecCompatibleRelease(t *testing.T) {
	vs, err := ParseVersionSpec("~=1.2")
	require.NoError(t, err)
	assert.True(t, vs.Match(mustVersion(t, "1.2.5")))
	assert.True(t, vs.Match(mustVersion(t, "1.3.0")))
	assert.False(t, vs.Match(mustVersion(t, "1.1.9")))
	assert.False(t, vs.Match(mustVersion(t, "2.0.0")))
}

func TestVersionSpecCompatibleReleaseEmpty(t *testing.T) {
	_, err := ParseVersionSpec("~=")
	require.Error(t, err)
}

func TestVersionSpecString(t *testing.T) {
	vs, err := ParseVersionSpec(">=1.0.0")
	require.NoError(t, err)
	assert.Equal(t, ">=1.0.0", vs.String())
}

func TestVersionSpecIsExactFalseForRanges(t *testing.T) {
	vs, err := ParseVersionSpec(">=1.0.0,<2.0.0")
	require.NoError(t, err)
	assert.False(t, vs.IsExact())
}
