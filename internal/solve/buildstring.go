package solve

import (
	"regexp"
	"strconv"
	"strings"

	debversion "github.com/knqyf263/go-deb-version"
)

// buildStringPattern recognizes the conda build string shape
// "(py<ver>_)?(h<hash>_)?<build_number>", e.g. "py310h1234abc_0", "h_0", "0".
var buildStringPattern = regexp.MustCompile(`^(?:py\d+)?_?(?:h[0-9a-f]*_)?(\d+)$`)

// buildNumberFromString extracts the trailing build_number from a raw
// build string, falling back to 0 when the shape doesn't match (the
// record's separate BuildNumber field is the authority; this is only
// consulted through ResolveBuildNumber when that field is absent).
func buildNumberFromString(build string) int {
	m := buildStringPattern.FindStringSubmatch(build)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// ResolveBuildNumber returns buildNumber as-is when set, otherwise
// recovers it from the raw build string. Some repodata mirrors omit
// the separate "build_number" field entirely, relying on readers to
// pull it from the trailing segment of "build" instead.
func ResolveBuildNumber(buildNumber int, build string) int {
	if buildNumber != 0 {
		return buildNumber
	}
	return buildNumberFromString(build)
}

// compareBuildStrings orders two build strings for tie-breaking when
// build_number is equal. A build string reads naturally as a Debian
// upstream+revision pair (hash component as upstream, build_number as
// revision), so we lean on go-deb-version's comparator and fall back to
// plain lexicographic order when either side fails to parse as one
// (e.g. conda's "py310" prefix segment, which Debian versions reject).
func compareBuildStrings(a, b string) int {
	if a == b {
		return 0
	}
	da, aerr := debversion.NewVersion(debBuildAlias(a))
	db, berr := debversion.NewVersion(debBuildAlias(b))
	if aerr == nil && berr == nil {
		return da.Compare(db)
	}
	if a < b {
		return -1
	}
	return 1
}

// debBuildAlias rewrites a conda build string as a Debian
// upstream-revision pair, splitting at the last underscore (a build with
// no underscore gets upstream "0"). go-deb-version requires the
// upstream to start with a digit, so an alias such as "py310h..." still
// fails to parse and compareBuildStrings falls back to lexicographic
// order.
func debBuildAlias(build string) string {
	idx := strings.LastIndex(build, "_")
	if idx < 0 {
		return "0-" + build
	}
	upstream, revision := build[:idx], build[idx+1:]
	if upstream == "" {
		upstream = "0"
	}
	return upstream + "-" + revision
}
