// Package solve implements the conda dependency solver core: version
// ordering, match specifications, package records, index reduction,
// the pseudo-boolean encoding, the lexicographic solver, history
// tracking, and transaction planning.
package solve

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	pep440 "github.com/aquasecurity/go-pep440-version"
)

// component is one release (or local-segment) component: a leading
// integer and a trailing string modifier, as described by the version
// grammar in the spec.
type component struct {
	num int
	mod string
}

// modRank orders the modifier namespace: dev < _ < alpha/a = beta/b <
// candidate/rc < (numeric, no modifier) < post. alpha/a and beta/b
// share a rank rather than alpha sorting strictly before beta.
func modRank(mod string) int {
	switch mod {
	case "dev":
		return -4
	case "_":
		return -3
	case "a", "alpha", "b", "beta":
		return -2
	case "rc", "candidate", "c":
		return 1
	case "post", "rev", "r":
		return 3
	case "":
		return 2
	default:
		// Unknown modifiers sort alongside candidate, before the numeric
		// release and post, so that unrecognized suffixes don't
		// silently win every comparison.
		return 1
	}
}

func compareComponent(a, b component) int {
	if a.num != b.num {
		if a.num < b.num {
			return -1
		}
		return 1
	}
	ra, rb := modRank(a.mod), modRank(b.mod)
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	default:
		return 0
	}
}

func compareComponents(as, bs []component) int {
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		a := component{}
		if i < len(as) {
			a = as[i]
		}
		b := component{}
		if i < len(bs) {
			b = bs[i]
		}
		if c := compareComponent(a, b); c != 0 {
			return c
		}
	}
	return 0
}

// Version is the parse of a conda version string:
// [epoch!]release[_build_component][+local].
type Version struct {
	raw     string
	epoch   int
	release []component
	local   []component // nil when no local segment was present
	pep     *pep440.Version
}

var allowedVersionChars = regexp.MustCompile(`^[a-z0-9.\-_!+]+$`)

var informalAliases = strings.NewReplacer(
	"alpha", "a",
	"beta", "b",
	"candidate", "rc",
	"preview", "rc",
)

// suggestNormalizedVersion maps common informal version spellings onto
// conda's canonical form so ordering stays stable across spellings
// ("1.0alpha1" behaves like "1.0a1").
func suggestNormalizedVersion(s string) string {
	return informalAliases.Replace(s)
}

// ParseVersion parses a version string, normalizing case and
// whitespace, and splitting epoch, release, and local segments.
func ParseVersion(s string) (Version, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Version{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("empty version string")
	}
	lower := strings.ToLower(trimmed)
	lower = suggestNormalizedVersion(lower)
	if !allowedVersionChars.MatchString(lower) {
		return Version{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("version contains disallowed characters: %q", s))
	}

	epoch := 0
	rest := lower
	if idx := strings.Index(rest, "!"); idx >= 0 {
		epochPart := rest[:idx]
		rest = rest[idx+1:]
		if epochPart == "" || !isAllDigits(epochPart) {
			return Version{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("malformed epoch in version %q", s))
		}
		parsed, err := strconv.Atoi(epochPart)
		if err != nil {
			return Version{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("malformed epoch in version %q", s)).
				WithCause(err)
		}
		epoch = parsed
	}

	var localStr string
	hasLocal := false
	if idx := strings.Index(rest, "+"); idx >= 0 {
		localStr = rest[idx+1:]
		rest = rest[:idx]
		hasLocal = true
		if localStr == "" {
			return Version{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("empty local segment in version %q", s))
		}
	}
	if rest == "" {
		return Version{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("empty release segment in version %q", s))
	}

	release := splitReleaseComponents(rest)
	var local []component
	if hasLocal {
		local = splitPlainComponents(localStr)
	}

	v := Version{raw: trimmed, epoch: epoch, release: release, local: local}
	// Best-effort PEP 440 parse of the common release/pre/post/dev
	// shape, stored on the Version; Compare and VersionSpec.Match do
	// not consult it, so parse failures (e.g. conda-only legacy
	// underscore forms) are tolerated.
	if parsed, err := pep440.Parse(rest); err == nil {
		v.pep = &parsed
	}
	return v, nil
}

// splitReleaseComponents splits a release string on '.', '-', and '_'
// boundaries, honoring the legacy trailing-underscore modifier, then
// further splits each chunk at digit/letter run boundaries.
func splitReleaseComponents(rel string) []component {
	legacyUnderscore := strings.HasSuffix(rel, "_")
	if legacyUnderscore {
		rel = strings.TrimSuffix(rel, "_")
	}
	normalized := strings.NewReplacer("_", ".", "-", ".").Replace(rel)
	var out []component
	for _, chunk := range strings.Split(normalized, ".") {
		out = append(out, splitChunkRuns(chunk)...)
	}
	if legacyUnderscore {
		out = append(out, component{num: 0, mod: "_"})
	}
	return out
}

// splitPlainComponents splits a local-version segment the same way,
// without the legacy-underscore special case (conda's local segment
// has no such legacy form).
func splitPlainComponents(seg string) []component {
	normalized := strings.NewReplacer("_", ".", "-", ".").Replace(seg)
	var out []component
	for _, chunk := range strings.Split(normalized, ".") {
		out = append(out, splitChunkRuns(chunk)...)
	}
	return out
}

// splitChunkRuns splits a single dot-separated chunk into alternating
// digit-run and letter-run components, e.g. "1rc1" -> [(1,""),(0,"rc"),(1,"")].
func splitChunkRuns(chunk string) []component {
	if chunk == "" {
		return []component{{}}
	}
	var out []component
	i := 0
	for i < len(chunk) {
		if isDigit(chunk[i]) {
			j := i
			for j < len(chunk) && isDigit(chunk[j]) {
				j++
			}
			n, _ := strconv.Atoi(chunk[i:j])
			out = append(out, component{num: n})
			i = j
			continue
		}
		j := i
		for j < len(chunk) && !isDigit(chunk[j]) {
			j++
		}
		out = append(out, component{mod: chunk[i:j]})
		i = j
	}
	return out
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

// String returns the original (trimmed) input string.
func (v Version) String() string { return v.raw }

// Compare returns -1, 0, or 1 comparing v against other, implementing
// a total order over epoch, release components, and local segment.
func (v Version) Compare(other Version) int {
	if v.epoch != other.epoch {
		if v.epoch < other.epoch {
			return -1
		}
		return 1
	}
	if c := compareComponents(v.release, other.release); c != 0 {
		return c
	}
	switch {
	case v.local == nil && other.local == nil:
		return 0
	case v.local == nil:
		return -1
	case other.local == nil:
		return 1
	default:
		return compareComponents(v.local, other.local)
	}
}

func (v Version) Equal(other Version) bool      { return v.Compare(other) == 0 }
func (v Version) LessThan(other Version) bool    { return v.Compare(other) < 0 }
func (v Version) GreaterThan(other Version) bool { return v.Compare(other) > 0 }

// nextSegmentBump returns the version obtained by incrementing the
// last release component's integer and clearing its modifier, used by
// fuzzy-equality matching ("1.2" matches [1.2, 1.3)).
func (v Version) nextSegmentBump() Version {
	release := append([]component(nil), v.release...)
	if len(release) == 0 {
		release = []component{{num: 1}}
	} else {
		last := len(release) - 1
		release[last] = component{num: release[last].num + 1}
	}
	return Version{raw: v.raw, epoch: v.epoch, release: release}
}
