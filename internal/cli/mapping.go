package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/railsplit/rail/internal/gitrepo"
	"github.com/railsplit/rail/internal/mapping"
	"github.com/railsplit/rail/internal/runtime"
)

func newMappingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mapping",
		Short: "Inspect the commit-identity mapping between a component and its split repository",
	}
	cmd.AddCommand(newMappingStatusCmd())
	return cmd
}

func newMappingStatusCmd() *cobra.Command {
	var splitPath string

	cmd := &cobra.Command{
		Use:          "status <component>",
		Short:        "Report how many commits are mapped and whether each side's HEAD is in sync",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rctx, err := runtime.Discover(cmd.Context(), ".")
			if err != nil {
				return err
			}
			componentName := args[0]
			if _, err := rctx.Config.FindComponent(componentName); err != nil {
				return err
			}
			if splitPath == "" {
				splitPath = componentName
			}

			split, err := gitrepo.Open(splitPath)
			if err != nil {
				return fmt.Errorf("open split repository at %s: %w", splitPath, err)
			}

			store := mapping.New(componentName)
			if err := store.Load(rctx.Context, rctx.Mono); err != nil {
				return fmt.Errorf("load mono mapping: %w", err)
			}
			if err := store.Load(rctx.Context, split); err != nil {
				return fmt.Errorf("load split mapping: %w", err)
			}

			rctx.Log.Info("%s: %d mapped commit pair(s)", componentName, store.Len())

			monoHead, err := rctx.Mono.HeadCommit()
			if err == nil {
				if splitSHA, ok := store.GetMapping(monoHead); ok {
					rctx.Log.Info("mono HEAD %s -> split %s", shortSHA(monoHead), shortSHA(splitSHA))
				} else {
					rctx.Log.Info("mono HEAD %s has not been synced to split", shortSHA(monoHead))
				}
			}

			splitHead, err := split.HeadCommit()
			if err == nil {
				if monoSHA, ok := store.GetReverseMapping(splitHead); ok {
					rctx.Log.Info("split HEAD %s -> mono %s", shortSHA(splitHead), shortSHA(monoSHA))
				} else {
					rctx.Log.Info("split HEAD %s has not been synced to mono", shortSHA(splitHead))
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&splitPath, "split-path", "", "path to the split repository's working tree (default: the component name)")
	return cmd
}

func shortSHA(sha string) string {
	if len(sha) > 10 {
		return sha[:10]
	}
	return sha
}
