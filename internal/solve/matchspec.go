package solve

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// MatchSpec is a conjunction of field predicates over a PackageRecord,
// parsed from the canonical form:
// [channel[/subdir]::]name[version][build][key=value,...]
type MatchSpec struct {
	Channel string
	Subdir  string
	Name    string
	Build   string
	Fn      string
	URL     string
	MD5     string
	SHA256  string

	License          string
	LicenseFamily    string
	TrackFeatures    []string
	Features         []string
	ProvidesFeatures []string

	hasVersion   bool
	version      VersionSpec
	hasBuildNum  bool
	buildNumOp   specOp
	buildNum     int
	namePattern  *regexp.Regexp
	buildPattern *regexp.Regexp

	raw string
}

// knownBracketKeys is the closed set of bracket key=value keys the
// parser accepts; anything else is a ParseError.
var knownBracketKeys = map[string]struct{}{
	"version": {}, "build": {}, "build_number": {},
	"channel": {}, "subdir": {}, "md5": {}, "sha256": {},
	"license": {}, "license_family": {}, "fn": {}, "url": {},
	"track_features": {}, "features": {}, "provides_features": {},
}

// ParseMatchSpec parses a MatchSpec string in any of the accepted
// shapes: canonical 3-tuple, bracketed key-values, channel-prefixed,
// URL-suffixed, or filename-only explicit installs.
func ParseMatchSpec(s string) (MatchSpec, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return MatchSpec{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("empty match spec")
	}
	ms := MatchSpec{raw: trimmed}
	working := trimmed

	bracket, rest, err := extractBracket(working)
	if err != nil {
		return MatchSpec{}, err
	}
	working = rest

	if idx := strings.Index(working, "::"); idx >= 0 {
		chanPart := working[:idx]
		working = strings.TrimSpace(working[idx+2:])
		channel, subdir := chanPart, ""
		if slash := strings.LastIndex(chanPart, "/"); slash >= 0 {
			channel, subdir = chanPart[:slash], chanPart[slash+1:]
		}
		ms.Channel = normalizeChannelName(channel)
		ms.Subdir = subdir
	}

	if working == "" {
		return MatchSpec{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("match spec has no package name: %q", s))
	}

	switch {
	case strings.Contains(working, "://"):
		ms.URL = stripURLAuth(working)
		name, version, build, err := parseFilenameTriple(lastPathSegment(working))
		if err != nil {
			return MatchSpec{}, err
		}
		if err := ms.applyPositional(name, version, build); err != nil {
			return MatchSpec{}, err
		}
	case strings.HasSuffix(working, ".tar.bz2") || strings.HasSuffix(working, ".conda"):
		ms.Fn = working
		name, version, build, err := parseFilenameTriple(working)
		if err != nil {
			return MatchSpec{}, err
		}
		if err := ms.applyPositional(name, version, build); err != nil {
			return MatchSpec{}, err
		}
	default:
		name, version, build, err := parseSimpleForm(working)
		if err != nil {
			return MatchSpec{}, err
		}
		if err := ms.applyPositional(name, version, build); err != nil {
			return MatchSpec{}, err
		}
	}

	if err := ms.applyBracket(bracket); err != nil {
		return MatchSpec{}, err
	}
	if ms.Name == "" {
		return MatchSpec{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("match spec name is required: %q", s))
	}
	return ms, nil
}

// applyPositional sets name/version/build from the simple-form parse,
// compiling glob patterns where needed.
func (ms *MatchSpec) applyPositional(name, version, build string) error {
	ms.Name = name
	if strings.ContainsAny(name, "*?") {
		pattern, err := globToAnchoredRegexp(name)
		if err != nil {
			return err
		}
		ms.namePattern = pattern
	}
	if version != "" {
		spec, err := ParseVersionSpec(version)
		if err != nil {
			return err
		}
		ms.version = spec
		ms.hasVersion = true
	}
	if build != "" {
		if err := ms.setBuild(build); err != nil {
			return err
		}
	}
	return nil
}

func (ms *MatchSpec) setBuild(build string) error {
	ms.Build = build
	if strings.ContainsAny(build, "*?") {
		pattern, err := globToAnchoredRegexp(build)
		if err != nil {
			return err
		}
		ms.buildPattern = pattern
	}
	return nil
}

// applyBracket applies bracket key=value overrides. Per spec, a
// bracketed value wins over a simple-position field when both are
// present.
func (ms *MatchSpec) applyBracket(bracket string) error {
	if bracket == "" {
		return nil
	}
	pairs, err := splitBracketPairs(bracket)
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		key, value, err := splitBracketPair(pair)
		if err != nil {
			return err
		}
		if _, ok := knownBracketKeys[key]; !ok {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("unknown match spec key: %q", key))
		}
		if err := ms.applyBracketKey(key, value); err != nil {
			return err
		}
	}
	return nil
}

func (ms *MatchSpec) applyBracketKey(key, value string) error {
	switch key {
	case "version":
		spec, err := ParseVersionSpec(value)
		if err != nil {
			return err
		}
		ms.version = spec
		ms.hasVersion = true
	case "build":
		return ms.setBuild(value)
	case "build_number":
		return ms.setBuildNumber(value)
	case "channel":
		ms.Channel = normalizeChannelName(value)
	case "subdir":
		ms.Subdir = value
	case "md5":
		ms.MD5 = value
	case "sha256":
		ms.SHA256 = value
	case "license":
		ms.License = value
	case "license_family":
		ms.LicenseFamily = value
	case "fn":
		ms.Fn = value
	case "url":
		ms.URL = stripURLAuth(value)
	case "track_features":
		ms.TrackFeatures = splitFeatureSet(value)
	case "features":
		ms.Features = splitFeatureSet(value)
	case "provides_features":
		ms.ProvidesFeatures = splitFeatureSet(value)
	}
	return nil
}

func (ms *MatchSpec) setBuildNumber(value string) error {
	for _, candidate := range opPrefixes {
		if strings.HasPrefix(value, candidate.token) {
			n, err := strconv.Atoi(strings.TrimSpace(value[len(candidate.token):]))
			if err != nil {
				return errbuilder.New().
					WithCode(errbuilder.CodeInvalidArgument).
					WithMsg(fmt.Sprintf("invalid build_number: %q", value)).
					WithCause(err)
			}
			ms.hasBuildNum = true
			ms.buildNumOp = candidate.op
			ms.buildNum = n
			return nil
		}
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid build_number: %q", value)).
			WithCause(err)
	}
	ms.hasBuildNum = true
	ms.buildNumOp = opExact
	ms.buildNum = n
	return nil
}

func splitFeatureSet(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ' ' || r == '&' || r == '|'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// extractBracket pulls a trailing "[key=value,...]" block off the
// spec, returning the bracket body (empty if none) and the remainder.
func extractBracket(s string) (bracket string, rest string, err error) {
	if !strings.HasSuffix(s, "]") {
		return "", s, nil
	}
	idx := strings.LastIndex(s, "[")
	if idx < 0 {
		return "", "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("unbalanced brackets in match spec %q", s))
	}
	return s[idx+1 : len(s)-1], strings.TrimSpace(s[:idx]), nil
}

func splitBracketPairs(body string) ([]string, error) {
	var pairs []string
	depth := 0
	start := 0
	for i, r := range body {
		switch r {
		case '\'', '"':
			depth ^= 1
		case ',':
			if depth == 0 {
				pairs = append(pairs, strings.TrimSpace(body[start:i]))
				start = i + 1
			}
		}
	}
	pairs = append(pairs, strings.TrimSpace(body[start:]))
	var out []string
	for _, p := range pairs {
		if p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

func splitBracketPair(pair string) (string, string, error) {
	idx := strings.Index(pair, "=")
	if idx < 0 {
		return "", "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("malformed key=value entry: %q", pair))
	}
	key := strings.TrimSpace(pair[:idx])
	value := strings.Trim(strings.TrimSpace(pair[idx+1:]), `'"`)
	return key, value, nil
}

// parseSimpleForm parses the non-URL, non-filename shapes: the
// canonical 3-tuple "name version build", or a compact single token
// like "numpy>=1.20".
func parseSimpleForm(s string) (name, version, build string, err error) {
	fields := strings.Fields(s)
	switch len(fields) {
	case 0:
		return "", "", "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("match spec has no content")
	case 1:
		return splitCompactNameVersion(fields[0])
	case 2:
		return fields[0], fields[1], "", nil
	default:
		return fields[0], fields[1], fields[2], nil
	}
}

// splitCompactNameVersion splits a single token like "numpy>=1.20"
// into name and version at the first operator character.
func splitCompactNameVersion(token string) (name, version, build string, err error) {
	idx := strings.IndexAny(token, "=<>!~")
	if idx < 0 {
		return token, "", "", nil
	}
	return token[:idx], token[idx:], "", nil
}

// parseFilenameTriple splits a "{name}-{version}-{build}.{ext}"
// filename (or URL tail) into its three identity components.
func parseFilenameTriple(fn string) (name, version, build string, err error) {
	base := fn
	switch {
	case strings.HasSuffix(base, ".tar.bz2"):
		base = strings.TrimSuffix(base, ".tar.bz2")
	case strings.HasSuffix(base, ".conda"):
		base = strings.TrimSuffix(base, ".conda")
	}
	parts := strings.Split(base, "-")
	if len(parts) < 3 {
		return "", "", "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("malformed package filename: %q", fn))
	}
	build = parts[len(parts)-1]
	version = parts[len(parts)-2]
	name = strings.Join(parts[:len(parts)-2], "-")
	return name, "==" + version, build, nil
}

func lastPathSegment(url string) string {
	if idx := strings.LastIndex(url, "/"); idx >= 0 {
		return url[idx+1:]
	}
	return url
}

// stripURLAuth removes an embedded userinfo (authentication) fragment
// from a URL so canonical forms never carry credentials.
func stripURLAuth(url string) string {
	schemeIdx := strings.Index(url, "://")
	if schemeIdx < 0 {
		return url
	}
	rest := url[schemeIdx+3:]
	if at := strings.Index(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	return url[:schemeIdx+3] + rest
}

// globToAnchoredRegexp compiles a glob pattern (using "*"/"?" as
// wildcards over arbitrary characters) into an anchored regexp, used
// for MatchSpec name and build glob fields.
func globToAnchoredRegexp(glob string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(glob); i++ {
		switch glob[i] {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(glob[i])))
		}
	}
	b.WriteString("$")
	compiled, err := regexp.Compile(b.String())
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid glob pattern %q", glob)).
			WithCause(err)
	}
	return compiled, nil
}

// Match reports whether every predicate the spec carries is satisfied
// by the record.
func (ms MatchSpec) Match(r *PackageRecord) bool {
	if ms.Channel != "" && r.Channel.CanonicalName != "" && ms.Channel != r.Channel.CanonicalName {
		return false
	}
	if ms.Subdir != "" && r.Subdir != "" && ms.Subdir != r.Subdir {
		return false
	}
	if ms.namePattern != nil {
		if !ms.namePattern.MatchString(r.Name) {
			return false
		}
	} else if ms.Name != r.Name {
		return false
	}
	if ms.hasVersion && !ms.version.Match(r.Version) {
		return false
	}
	if ms.Build != "" {
		if ms.buildPattern != nil {
			if !ms.buildPattern.MatchString(r.Build) {
				return false
			}
		} else if ms.Build != r.Build {
			return false
		}
	}
	if ms.hasBuildNum && !matchBuildNumber(ms.buildNumOp, ms.buildNum, r.BuildNumber) {
		return false
	}
	if ms.MD5 != "" && ms.MD5 != r.MD5 {
		return false
	}
	if ms.SHA256 != "" && ms.SHA256 != r.SHA256 {
		return false
	}
	if ms.License != "" && ms.License != r.License {
		return false
	}
	if ms.LicenseFamily != "" && ms.LicenseFamily != r.LicenseFamily {
		return false
	}
	if ms.Fn != "" && ms.Fn != r.Fn {
		return false
	}
	if ms.URL != "" && ms.URL != r.URL {
		return false
	}
	if !stringSetSubset(ms.TrackFeatures, r.TrackFeatures) {
		return false
	}
	if !stringSetSubset(ms.Features, r.Features) {
		return false
	}
	if !stringSetSubset(ms.ProvidesFeatures, r.ProvidesFeatures) {
		return false
	}
	return true
}

func matchBuildNumber(op specOp, want, got int) bool {
	switch op {
	case opGt:
		return got > want
	case opGte:
		return got >= want
	case opLt:
		return got < want
	case opLte:
		return got <= want
	case opNe:
		return got != want
	default:
		return got == want
	}
}

func stringSetSubset(required, have []string) bool {
	if len(required) == 0 {
		return true
	}
	haveSet := make(map[string]struct{}, len(have))
	for _, h := range have {
		haveSet[h] = struct{}{}
	}
	for _, r := range required {
		if _, ok := haveSet[r]; !ok {
			return false
		}
	}
	return true
}

// MergeError indicates two MatchSpecs could not be merged because a
// scalar field conflicted.
type MergeError struct {
	Field string
	A, B  string
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("match spec merge conflict on %s: %q vs %q", e.Field, e.A, e.B)
}

// Merge intersects the predicates of ms with others, combining
// versions with AND and feature sets with union. Conflicting scalar
// fields (name, channel, subdir, build, md5, sha256) return a
// MergeError identifying the well-formed-but-unsatisfiable conflict.
func (ms MatchSpec) Merge(others ...MatchSpec) (MatchSpec, error) {
	out := ms
	versions := []VersionSpec{}
	if ms.hasVersion {
		versions = append(versions, ms.version)
	}
	for _, other := range others {
		if err := mergeScalar(&out.Name, other.Name, "name"); err != nil {
			return MatchSpec{}, err
		}
		if err := mergeScalar(&out.Channel, other.Channel, "channel"); err != nil {
			return MatchSpec{}, err
		}
		if err := mergeScalar(&out.Subdir, other.Subdir, "subdir"); err != nil {
			return MatchSpec{}, err
		}
		if err := mergeScalar(&out.Build, other.Build, "build"); err != nil {
			return MatchSpec{}, err
		}
		if err := mergeScalar(&out.MD5, other.MD5, "md5"); err != nil {
			return MatchSpec{}, err
		}
		if err := mergeScalar(&out.SHA256, other.SHA256, "sha256"); err != nil {
			return MatchSpec{}, err
		}
		if other.namePattern != nil {
			out.namePattern = other.namePattern
		}
		if other.buildPattern != nil {
			out.buildPattern = other.buildPattern
		}
		if other.hasBuildNum {
			out.hasBuildNum = true
			out.buildNumOp = other.buildNumOp
			out.buildNum = other.buildNum
		}
		out.TrackFeatures = unionStrings(out.TrackFeatures, other.TrackFeatures)
		out.Features = unionStrings(out.Features, other.Features)
		out.ProvidesFeatures = unionStrings(out.ProvidesFeatures, other.ProvidesFeatures)
		if other.hasVersion {
			versions = append(versions, other.version)
		}
	}
	if len(versions) == 1 {
		out.version = versions[0]
		out.hasVersion = true
	} else if len(versions) > 1 {
		nodes := make([]specNode, len(versions))
		var rawParts []string
		for i, v := range versions {
			nodes[i] = v.root
			rawParts = append(rawParts, v.raw)
		}
		out.version = VersionSpec{raw: strings.Join(rawParts, ","), root: specNode{and: nodes}}
		out.hasVersion = true
	}
	return out, nil
}

func mergeScalar(target *string, incoming string, field string) error {
	if incoming == "" {
		return nil
	}
	if *target == "" {
		*target = incoming
		return nil
	}
	if *target != incoming {
		return &MergeError{Field: field, A: *target, B: incoming}
	}
	return nil
}

func unionStrings(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	set := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, v := range append(append([]string{}, a...), b...) {
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// ToCanonicalString re-emits the spec in canonical form, such that
// parsing the result reproduces an equivalent predicate set.
func (ms MatchSpec) ToCanonicalString() string {
	var b strings.Builder
	if ms.Channel != "" {
		b.WriteString(ms.Channel)
		if ms.Subdir != "" {
			b.WriteString("/")
			b.WriteString(ms.Subdir)
		}
		b.WriteString("::")
	}
	b.WriteString(ms.Name)
	if ms.hasVersion {
		b.WriteString(ms.version.String())
	}
	if ms.Build != "" {
		b.WriteString(" ")
		b.WriteString(ms.Build)
	}

	var extras []string
	if ms.hasBuildNum {
		extras = append(extras, fmt.Sprintf("build_number=%d", ms.buildNum))
	}
	if ms.MD5 != "" {
		extras = append(extras, "md5="+ms.MD5)
	}
	if ms.SHA256 != "" {
		extras = append(extras, "sha256="+ms.SHA256)
	}
	if ms.License != "" {
		extras = append(extras, "license="+ms.License)
	}
	if ms.LicenseFamily != "" {
		extras = append(extras, "license_family="+ms.LicenseFamily)
	}
	if len(ms.TrackFeatures) > 0 {
		extras = append(extras, "track_features="+strings.Join(ms.TrackFeatures, "&"))
	}
	if len(ms.Features) > 0 {
		extras = append(extras, "features="+strings.Join(ms.Features, "&"))
	}
	if len(ms.ProvidesFeatures) > 0 {
		extras = append(extras, "provides_features="+strings.Join(ms.ProvidesFeatures, "&"))
	}
	if ms.Fn != "" {
		extras = append(extras, "fn="+ms.Fn)
	}
	if ms.URL != "" {
		extras = append(extras, "url="+ms.URL)
	}
	if len(extras) > 0 {
		b.WriteString("[")
		b.WriteString(strings.Join(extras, ","))
		b.WriteString("]")
	}
	return b.String()
}
