package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/condasolve/condasolve/internal/app"
	"github.com/condasolve/condasolve/internal/solve"
)

type solveOptions struct {
	Prefix                   string
	Specs                    []string
	Remove                   []string
	Channels                 []string
	Subdirs                  []string
	ChannelPriority          string
	UpdateModifier           string
	AggressiveUpdatePackages []string
	PinnedPackages           []string
	VirtualPackages          []string
	SolverDeadlineSeconds    int
	PinFile                  string
	Commit                   bool
}

func newSolveCommand() *cobra.Command {
	opts := solveOptions{}
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Compute an install/update/remove transaction for a prefix",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Specs = append(opts.Specs, args...)
			return runSolve(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "Target environment prefix")
	cmd.Flags().StringSliceVar(&opts.Remove, "remove", nil, "MatchSpec(s) to remove")
	cmd.Flags().StringSliceVar(&opts.Channels, "channel", nil, "Channel(s), ordered by priority")
	cmd.Flags().StringSliceVar(&opts.Subdirs, "subdir", nil, "Platform subdir(s) to search (default noarch)")
	cmd.Flags().StringVar(&opts.ChannelPriority, "channel-priority", "flexible", "strict | flexible | disabled")
	cmd.Flags().StringVar(&opts.UpdateModifier, "update-modifier", "UPDATE_SPECS", "FREEZE_INSTALLED | UPDATE_SPECS | UPDATE_DEPS | UPDATE_ALL | SPECS_SATISFIED_SKIP_SOLVE")
	cmd.Flags().StringSliceVar(&opts.AggressiveUpdatePackages, "aggressive-update", nil, "Package name(s) pinned to >=installed version")
	cmd.Flags().StringSliceVar(&opts.PinnedPackages, "pin", nil, "MatchSpec string(s) added as hard specs")
	cmd.Flags().StringSliceVar(&opts.VirtualPackages, "virtual-package", nil, "Pre-computed virtual package(s) as name=version=build")
	cmd.Flags().IntVar(&opts.SolverDeadlineSeconds, "solver-deadline", 0, "Abort the optimization pass loop after this many seconds, keeping the best pass found so far (0 disables)")
	cmd.Flags().StringVar(&opts.PinFile, "pin-file", "", "YAML pin file (channels/pinned_packages/...) merged in before the solve")
	cmd.Flags().BoolVar(&opts.Commit, "commit", false, "Persist the history entry immediately (the caller is responsible for actually applying the plan first)")

	_ = viper.BindPFlag("prefix", cmd.Flags().Lookup("prefix"))
	_ = viper.BindPFlag("remove", cmd.Flags().Lookup("remove"))
	_ = viper.BindPFlag("channel", cmd.Flags().Lookup("channel"))
	_ = viper.BindPFlag("subdir", cmd.Flags().Lookup("subdir"))
	_ = viper.BindPFlag("channel_priority", cmd.Flags().Lookup("channel-priority"))
	_ = viper.BindPFlag("update_modifier", cmd.Flags().Lookup("update-modifier"))
	_ = viper.BindPFlag("aggressive_update", cmd.Flags().Lookup("aggressive-update"))
	_ = viper.BindPFlag("pin", cmd.Flags().Lookup("pin"))
	_ = viper.BindPFlag("virtual_package", cmd.Flags().Lookup("virtual-package"))
	_ = viper.BindPFlag("solver_deadline_seconds", cmd.Flags().Lookup("solver-deadline"))
	_ = viper.BindPFlag("pin_file", cmd.Flags().Lookup("pin-file"))

	return cmd
}

func runSolve(ctx context.Context, cmd *cobra.Command, opts solveOptions) error {
	deadlineSeconds := resolveInt(cmd, opts.SolverDeadlineSeconds, "solver_deadline_seconds", "solver-deadline")
	if deadlineSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(deadlineSeconds)*time.Second)
		defer cancel()
	}

	channels := resolveStrings(cmd, opts.Channels, "channel", "channel")
	pinned := resolveStrings(cmd, opts.PinnedPackages, "pin", "pin")
	aggressiveUpdate := resolveStrings(cmd, opts.AggressiveUpdatePackages, "aggressive_update", "aggressive-update")

	pinFile := resolveString(cmd, opts.PinFile, "pin_file", "pin-file")
	if pinFile != "" {
		fileCfg, err := solve.LoadSolveConfigFile(pinFile)
		if err != nil {
			return err
		}
		channels = append(channels, fileCfg.Channels...)
		pinned = append(pinned, fileCfg.PinnedPackages...)
		aggressiveUpdate = append(aggressiveUpdate, fileCfg.AggressiveUpdatePackages...)
	}

	prefix := resolveString(cmd, opts.Prefix, "prefix", "prefix")

	service := newAppService()
	result, err := service.Solve(ctx, app.SolveRequest{
		Prefix:                   prefix,
		Specs:                    opts.Specs,
		Removals:                 resolveStrings(cmd, opts.Remove, "remove", "remove"),
		Channels:                 channels,
		Subdirs:                  resolveStrings(cmd, opts.Subdirs, "subdir", "subdir"),
		ChannelPriority:          solve.ChannelPriorityMode(resolveString(cmd, opts.ChannelPriority, "channel_priority", "channel-priority")),
		UpdateModifier:           solve.UpdateModifier(resolveString(cmd, opts.UpdateModifier, "update_modifier", "update-modifier")),
		AggressiveUpdatePackages: aggressiveUpdate,
		PinnedPackages:           pinned,
		VirtualPackages:          resolveStrings(cmd, opts.VirtualPackages, "virtual_package", "virtual-package"),
		Command:                  "condasolve solve " + strings.Join(opts.Specs, " "),
	})
	if err != nil {
		var timeout *solve.TimeoutError
		if errors.As(err, &timeout) && len(timeout.BestSoFar) > 0 {
			fmt.Println("best model found before timeout:")
			for _, r := range timeout.BestSoFar {
				fmt.Printf("  %s-%s-%s\n", r.Name, r.Version.String(), r.Build)
			}
		}
		return err
	}

	for _, r := range result.Transaction.UnlinkActions {
		fmt.Printf("UNLINK %s-%s-%s\n", r.Name, r.Version.String(), r.Build)
	}
	for _, r := range result.Transaction.LinkActions {
		fmt.Printf("LINK   %s-%s-%s\n", r.Name, r.Version.String(), r.Build)
	}

	if opts.Commit {
		if err := service.Commit(ctx, prefix, result); err != nil {
			return err
		}
		fmt.Println("history updated")
	}
	return nil
}
