package adapters

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"github.com/condasolve/condasolve/internal/solve"
)

// RepodataFileAdapter loads one repodata.json file per channel/subdir
// from a local mirror directory laid out as
// <BaseDir>/<channel>/<subdir>/repodata.json, matching spec.md §6's
// "Repodata" input contract (the core consumes already-parsed records;
// fetching and caching are external).
type RepodataFileAdapter struct {
	BaseDir string
}

// NewRepodataFileAdapter constructs a RepodataFileAdapter rooted at a
// local channel mirror directory.
func NewRepodataFileAdapter(baseDir string) RepodataFileAdapter {
	return RepodataFileAdapter{BaseDir: baseDir}
}

type repodataFile struct {
	Packages      map[string]repodataPackage `json:"packages"`
	PackagesConda map[string]repodataPackage `json:"packages.conda"`
}

type repodataPackage struct {
	Name             string   `json:"name"`
	Version          string   `json:"version"`
	Build            string   `json:"build"`
	BuildNumber      int      `json:"build_number"`
	Depends          []string `json:"depends"`
	Constrains       []string `json:"constrains"`
	TrackFeatures    []string `json:"track_features"`
	Features         []string `json:"features"`
	ProvidesFeatures []string `json:"provides_features"`
	MD5              string   `json:"md5"`
	SHA256           string   `json:"sha256"`
	Size             int64    `json:"size"`
	Timestamp        int64    `json:"timestamp"`
	License          string   `json:"license"`
	LicenseFamily    string   `json:"license_family"`
	Noarch           string   `json:"noarch"`
}

// LoadIndex reads every channel/subdir's repodata.json under BaseDir
// and aggregates the decoded records into one PackageIndex.
func (a RepodataFileAdapter) LoadIndex(ctx context.Context, channels solve.Multichannel) (*solve.PackageIndex, error) {
	idx := solve.NewPackageIndex(nil)
	for _, ch := range channels.Channels {
		for _, subdir := range ch.Subdirs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := a.loadSubdir(idx, ch, subdir); err != nil {
				return nil, err
			}
		}
	}
	log.Ctx(ctx).Debug().Int("names", idx.Len()).Msg("repodata index loaded")
	return idx, nil
}

func (a RepodataFileAdapter) loadSubdir(idx *solve.PackageIndex, ch solve.Channel, subdir string) error {
	path := filepath.Join(a.BaseDir, ch.CanonicalName, subdir, "repodata.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("repodata file not found").
			WithCause(err)
	}

	var decoded repodataFile
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid repodata.json").
			WithCause(err)
	}

	for fn, pkg := range decoded.Packages {
		if err := addRepodataRecord(idx, ch, subdir, fn, pkg); err != nil {
			return err
		}
	}
	for fn, pkg := range decoded.PackagesConda {
		if err := addRepodataRecord(idx, ch, subdir, fn, pkg); err != nil {
			return err
		}
	}
	return nil
}

func addRepodataRecord(idx *solve.PackageIndex, ch solve.Channel, subdir, fn string, pkg repodataPackage) error {
	version, err := solve.ParseVersion(pkg.Version)
	if err != nil {
		return err
	}
	idx.Add(&solve.PackageRecord{
		Name:             pkg.Name,
		Version:          version,
		Build:            pkg.Build,
		BuildNumber:      solve.ResolveBuildNumber(pkg.BuildNumber, pkg.Build),
		Channel:          ch,
		Subdir:           subdir,
		Fn:               fn,
		MD5:              pkg.MD5,
		SHA256:           pkg.SHA256,
		Size:             pkg.Size,
		Depends:          pkg.Depends,
		Constrains:       pkg.Constrains,
		TrackFeatures:    pkg.TrackFeatures,
		Features:         pkg.Features,
		ProvidesFeatures: pkg.ProvidesFeatures,
		Timestamp:        pkg.Timestamp,
		License:          pkg.License,
		LicenseFamily:    pkg.LicenseFamily,
		Noarch:           pkg.Noarch,
	})
	return nil
}
