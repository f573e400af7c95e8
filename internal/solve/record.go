package solve

import "strings"

// PackageRecord is the immutable metadata describing one candidate
// package build. Equality and hashing are defined over
// (channel.CanonicalName, subdir, name, version, build).
type PackageRecord struct {
	Name        string
	Version     Version
	Build       string
	BuildNumber int

	Channel Channel
	Subdir  string
	Fn      string
	URL     string
	MD5     string
	SHA256  string
	Size    int64

	Depends        []string
	Constrains     []string
	TrackFeatures  []string
	Features       []string
	Timestamp      int64
	License        string
	LicenseFamily  string
	ProvidesFeatures []string

	// Noarch is "python", "generic", or "" (platform-specific). Not
	// part of repodata's required fields, but needed by
	// TransactionPlanner's python-routing rule (spec.md §4.7).
	Noarch string

	// cached lazily-parsed MatchSpecs for Depends/Constrains.
	dependsCache    []MatchSpec
	constrainsCache []MatchSpec
}

// Identity is the tuple PackageRecord equality and hashing are over.
type Identity struct {
	Channel string
	Subdir  string
	Name    string
	Version string
	Build   string
}

// Identity returns the record's identity tuple.
func (r *PackageRecord) Identity() Identity {
	return Identity{
		Channel: r.Channel.CanonicalName,
		Subdir:  r.Subdir,
		Name:    r.Name,
		Version: r.Version.String(),
		Build:   r.Build,
	}
}

// Equal compares two records by identity, matching spec.md §3's
// "Equality is by the tuple (channel.canonical_name, subdir, name,
// version, build)".
func (r *PackageRecord) Equal(other *PackageRecord) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.Identity() == other.Identity()
}

// ParsedDepends lazily parses Depends into MatchSpecs, caching the
// result on the record.
func (r *PackageRecord) ParsedDepends() ([]MatchSpec, error) {
	if r.dependsCache != nil || len(r.Depends) == 0 {
		return r.dependsCache, nil
	}
	parsed := make([]MatchSpec, 0, len(r.Depends))
	for _, raw := range r.Depends {
		spec, err := ParseMatchSpec(raw)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, spec)
	}
	r.dependsCache = parsed
	return parsed, nil
}

// ParsedConstrains lazily parses Constrains into MatchSpecs, caching
// the result on the record.
func (r *PackageRecord) ParsedConstrains() ([]MatchSpec, error) {
	if r.constrainsCache != nil || len(r.Constrains) == 0 {
		return r.constrainsCache, nil
	}
	parsed := make([]MatchSpec, 0, len(r.Constrains))
	for _, raw := range r.Constrains {
		spec, err := ParseMatchSpec(raw)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, spec)
	}
	r.constrainsCache = parsed
	return parsed, nil
}

// HasFeature reports whether the record carries the given feature in
// its features set.
func (r *PackageRecord) HasFeature(feature string) bool {
	for _, f := range r.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// IsVirtual reports whether this is a virtual package record (name
// begins with "__").
func (r *PackageRecord) IsVirtual() bool { return strings.HasPrefix(r.Name, "__") }

// IsNoarchPython reports whether the record routes its files through
// the environment's python interpreter at link time.
func (r *PackageRecord) IsNoarchPython() bool { return r.Noarch == "python" }

// LinkInfo describes how an installed package was linked, carried on
// PrefixRecord.
type LinkInfo struct {
	Source string
	Type   string
}

// PrefixRecord specializes PackageRecord for an already-installed
// package, adding fields only meaningful to an environment prefix.
type PrefixRecord struct {
	PackageRecord
	Files         []string
	PathsData     []string
	Link          LinkInfo
	RequestedSpec string
}
