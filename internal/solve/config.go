package solve

import (
	"os"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// SolveConfig is the subset of configuration the solver core actually
// consumes, per spec.md §6's enumerated core-relevant keys. Everything
// else (repodata caching, CLI flags, activation) is out of scope and
// lives entirely in the calling layer.
type SolveConfig struct {
	Channels                 []string
	ChannelPriority          ChannelPriorityMode
	TrackFeatures            []string
	PinnedPackages           []string
	AggressiveUpdatePackages []string
	UpdateModifier           UpdateModifier
	SolverDeadlineSeconds    int
}

// LoadSolveConfig reads the core-relevant keys from a viper instance
// already populated by the caller (config file + env + flags), mirroring
// the teacher's root.go binding style rather than performing its own
// file discovery — loading files/env precedence is an ambient-layer
// concern, not the solver core's.
func LoadSolveConfig(v *viper.Viper) SolveConfig {
	cfg := SolveConfig{
		Channels:                 v.GetStringSlice("channels"),
		ChannelPriority:          ChannelPriorityMode(v.GetString("channel_priority")),
		TrackFeatures:            v.GetStringSlice("track_features"),
		PinnedPackages:           v.GetStringSlice("pinned_packages"),
		AggressiveUpdatePackages: v.GetStringSlice("aggressive_update_packages"),
		UpdateModifier:           UpdateModifier(v.GetString("update_modifier")),
		SolverDeadlineSeconds:    v.GetInt("solver_deadline_seconds"),
	}
	if cfg.ChannelPriority == "" {
		cfg.ChannelPriority = ChannelPriorityFlexible
	}
	if cfg.UpdateModifier == "" {
		cfg.UpdateModifier = UpdateSpecs
	}
	return cfg
}

// SolveConfigFile is the on-disk shape of a checked-in pin file (e.g.
// "condasolve.yaml" sitting next to a prefix), letting a project pin
// channels/packages without threading them through CLI flags or env
// vars every invocation. It decodes into the same core-relevant
// fields as SolveConfig, distinct from viper's flag/env layer.
type SolveConfigFile struct {
	Channels                 []string `yaml:"channels"`
	ChannelPriority          string   `yaml:"channel_priority"`
	TrackFeatures            []string `yaml:"track_features"`
	PinnedPackages           []string `yaml:"pinned_packages"`
	AggressiveUpdatePackages []string `yaml:"aggressive_update_packages"`
	UpdateModifier           string   `yaml:"update_modifier"`
	SolverDeadlineSeconds    int      `yaml:"solver_deadline_seconds"`
}

// LoadSolveConfigFile reads a checked-in SolveConfigFile from path,
// mirroring the teacher's repo-index file adapter shape (read, decode,
// errbuilder-wrapped NotFound/InvalidArgument) but inline in the core
// package since a pin file, unlike repodata, has no port boundary of
// its own — it is just an alternate way to populate a SolveConfig.
func LoadSolveConfigFile(path string) (SolveConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SolveConfig{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("pin file not found: " + path).
			WithCause(err)
	}
	var file SolveConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return SolveConfig{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid pin file format: " + path).
			WithCause(err)
	}
	cfg := SolveConfig{
		Channels:                 file.Channels,
		ChannelPriority:          ChannelPriorityMode(file.ChannelPriority),
		TrackFeatures:            file.TrackFeatures,
		PinnedPackages:           file.PinnedPackages,
		AggressiveUpdatePackages: file.AggressiveUpdatePackages,
		UpdateModifier:           UpdateModifier(file.UpdateModifier),
		SolverDeadlineSeconds:    file.SolverDeadlineSeconds,
	}
	if cfg.ChannelPriority == "" {
		cfg.ChannelPriority = ChannelPriorityFlexible
	}
	if cfg.UpdateModifier == "" {
		cfg.UpdateModifier = UpdateSpecs
	}
	return cfg, nil
}

// PinnedSpecs parses the configured pinned_packages strings into
// MatchSpecs, to be merged into a SolveRequest as hard specs (spec.md
// §6: "added as hard specs").
func (c SolveConfig) PinnedSpecs() ([]MatchSpec, error) {
	specs := make([]MatchSpec, 0, len(c.PinnedPackages))
	for _, raw := range c.PinnedPackages {
		spec, err := ParseMatchSpec(raw)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
