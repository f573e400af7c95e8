package adapters

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"github.com/condasolve/condasolve/internal/solve"
)

// PrefixDataFileAdapter reads installed-package metadata from an
// environment's conda-meta directory, per spec.md §6's
// "conda-meta/<name>-<version>-<build>.json" persisted-state format.
type PrefixDataFileAdapter struct{}

// NewPrefixDataFileAdapter constructs a PrefixDataFileAdapter.
func NewPrefixDataFileAdapter() PrefixDataFileAdapter { return PrefixDataFileAdapter{} }

// prefixRecordJSON mirrors the on-disk conda-meta/<pkg>.json schema.
type prefixRecordJSON struct {
	Name             string   `json:"name"`
	Version          string   `json:"version"`
	Build            string   `json:"build"`
	BuildNumber      int      `json:"build_number"`
	Channel          string   `json:"channel"`
	Subdir           string   `json:"subdir"`
	Fn               string   `json:"fn"`
	URL              string   `json:"url"`
	MD5              string   `json:"md5"`
	SHA256           string   `json:"sha256"`
	Size             int64    `json:"size"`
	Depends          []string `json:"depends"`
	Constrains       []string `json:"constrains"`
	TrackFeatures    []string `json:"track_features"`
	Features         []string `json:"features"`
	ProvidesFeatures []string `json:"provides_features"`
	Timestamp        int64    `json:"timestamp"`
	License          string   `json:"license"`
	LicenseFamily    string   `json:"license_family"`
	Noarch           string   `json:"noarch"`
	Files            []string `json:"files"`
	PathsData        []string `json:"paths_data"`
	RequestedSpec    string   `json:"requested_spec"`
	Link             struct {
		Source string `json:"source"`
		Type   string `json:"type"`
	} `json:"link"`
}

// LoadInstalled reads every conda-meta/*.json file in the prefix and
// returns the decoded PrefixRecords.
func (a PrefixDataFileAdapter) LoadInstalled(ctx context.Context, prefix string) ([]*solve.PrefixRecord, error) {
	dir := filepath.Join(prefix, "conda-meta")
	var out []*solve.PrefixRecord

	if _, statErr := os.Stat(dir); statErr != nil {
		if os.IsNotExist(statErr) {
			return nil, nil
		}
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to stat conda-meta directory").
			WithCause(statErr)
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !strings.HasSuffix(path, ".json") || filepath.Base(path) == "history" {
			return nil
		}
		record, parseErr := readPrefixRecord(path)
		if parseErr != nil {
			return parseErr
		}
		out = append(out, record)
		return nil
	})
	if err != nil {
		if err == ctx.Err() {
			return nil, err
		}
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to scan conda-meta directory").
			WithCause(err)
	}
	return out, nil
}

func readPrefixRecord(path string) (*solve.PrefixRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("conda-meta record not found").
			WithCause(err)
	}
	var decoded prefixRecordJSON
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid conda-meta record").
			WithCause(err)
	}

	version, err := solve.ParseVersion(decoded.Version)
	if err != nil {
		return nil, err
	}

	pr := &solve.PrefixRecord{
		PackageRecord: solve.PackageRecord{
			Name:             decoded.Name,
			Version:          version,
			Build:            decoded.Build,
			BuildNumber:      solve.ResolveBuildNumber(decoded.BuildNumber, decoded.Build),
			Channel:          solve.InstalledChannel,
			Subdir:           decoded.Subdir,
			Fn:               decoded.Fn,
			URL:              decoded.URL,
			MD5:              decoded.MD5,
			SHA256:           decoded.SHA256,
			Size:             decoded.Size,
			Depends:          decoded.Depends,
			Constrains:       decoded.Constrains,
			TrackFeatures:    decoded.TrackFeatures,
			Features:         decoded.Features,
			ProvidesFeatures: decoded.ProvidesFeatures,
			Timestamp:        decoded.Timestamp,
			License:          decoded.License,
			LicenseFamily:    decoded.LicenseFamily,
			Noarch:           decoded.Noarch,
		},
		Files:         decoded.Files,
		PathsData:     decoded.PathsData,
		RequestedSpec: decoded.RequestedSpec,
		Link: solve.LinkInfo{
			Source: decoded.Link.Source,
			Type:   decoded.Link.Type,
		},
	}
	return pr, nil
}
