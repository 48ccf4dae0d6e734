package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/acpibatt/pkg/poller"
	"github.com/charlie0129/acpibatt/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewPollCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "poll [fresh|refresh]",
		Short:     "Poll the battery now",
		GroupID:   gBasic,
		ValidArgs: []string{"fresh", "refresh"},
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		Long: `Poll the battery now.

A refresh poll reads the battery once. A fresh poll also restarts the polling
timer, and re-reads static information if the battery was replaced.
Defaults to refresh.`,
		RunE: func(_ *cobra.Command, args []string) error {
			path := poller.PathRefresh
			if len(args) == 1 {
				path, _ = poller.ParsePath(args[0])
			}

			resp, err := apiClient.TriggerPoll(path)
			if err != nil {
				return fmt.Errorf("failed to poll: %w", err)
			}

			if !resp.Started {
				logrus.Warnf("a poll cycle is already in flight, %s poll not started", resp.Path)
				return nil
			}
			logrus.Infof("started %s poll", resp.Path)
			return nil
		},
	}
}

func NewPropertiesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "properties",
		Short:   "Print the published battery attributes",
		GroupID: gBasic,
		RunE: func(cmd *cobra.Command, _ []string) error {
			props, err := apiClient.GetProperties()
			if err != nil {
				return fmt.Errorf("failed to get properties: %w", err)
			}

			for _, k := range slices.Sorted(maps.Keys(props)) {
				cmd.Printf("%s = %v\n", bold("%s", k), props[k])
			}
			return nil
		},
	}
}

func NewLegacyCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "legacy",
		Short:   "Print the legacy battery info mirror",
		GroupID: gAdvanced,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := apiClient.GetLegacy()
			if err != nil {
				return fmt.Errorf("failed to get legacy battery info: %w", err)
			}

			cmd.Printf("Flags: %s\n", bold("%#x", info.Flags))
			printOptional := func(name string, v *int64) {
				if v == nil {
					cmd.Printf("%s: -\n", name)
					return
				}
				cmd.Printf("%s: %s\n", name, bold("%d", *v))
			}
			printOptional("Current", info.Current)
			printOptional("Capacity", info.Capacity)
			printOptional("Voltage", info.Voltage)
			printOptional("Amperage", info.Amperage)
			printOptional("Cycle Count", info.CycleCount)
			return nil
		},
	}
}
