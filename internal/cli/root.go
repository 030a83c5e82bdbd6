// Package cli provides rail's command-line interface definitions using
// Cobra: split, sync, and mapping inspection subcommands.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root cobra command.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "rail",
		Short:   "rail projects and synchronizes crates between a monorepo and their split repositories",
		Version: version,
		Long: `rail projects and synchronizes crates between a monorepo and their split repositories.

rail split materializes a crate's filtered history into a standalone
repository once; rail sync keeps the two in step afterward, in either
direction, resolving textual conflicts under a configurable policy.`,
	}

	rootCmd.AddCommand(newSplitCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newMappingCmd())

	return rootCmd
}
