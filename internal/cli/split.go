package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/railsplit/rail/internal/mapping"
	"github.com/railsplit/rail/internal/manifest/cargo"
	"github.com/railsplit/rail/internal/projector"
	"github.com/railsplit/rail/internal/runtime"
)

func newSplitCmd() *cobra.Command {
	var targetPath string

	cmd := &cobra.Command{
		Use:          "split <component>",
		Short:        "Project a configured component's filtered history into a new split repository",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rctx, err := runtime.Discover(cmd.Context(), ".")
			if err != nil {
				return err
			}

			componentName := args[0]
			split, err := rctx.Config.FindComponent(componentName)
			if err != nil {
				return err
			}

			if targetPath == "" {
				targetPath = componentName
			}

			wm, err := cargo.LoadWorkspaceMetadata(rctx.Config.Workspace.Root, rctx.Config.Splits)
			if err != nil {
				return fmt.Errorf("load workspace metadata: %w", err)
			}
			transform := cargo.New(wm)

			p := projector.New(rctx.Mono, transform, rctx.Gate, rctx.Log, func(state projector.State, i, n int) {
				if state == projector.StateProjecting && n > 0 {
					rctx.Log.Info("projecting commit %d/%d", i, n)
				} else {
					rctx.Log.Debug("split %s: %s", componentName, state)
				}
			})

			store := mapping.New(componentName)
			cfg := projector.Config{
				ComponentName:  componentName,
				CratePaths:     split.PathStrings(),
				Mode:           split.Mode,
				TargetRepoPath: targetPath,
				Branch:         split.Branch,
				RemoteURL:      split.Remote,
				WorkspaceRoot:  rctx.Config.Workspace.Root,
			}
			if cfg.Branch == "" {
				cfg.Branch = "main"
			}

			result, err := p.Run(rctx.Context, cfg, store)
			if err != nil {
				return err
			}

			switch result.FinalState {
			case projector.StatePushed:
				rctx.Log.Info("projected %d commit(s) for %s and pushed to %s", result.CommitsProjected, componentName, split.Remote)
			default:
				rctx.Log.Info("projected %d commit(s) for %s into %s", result.CommitsProjected, componentName, targetPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&targetPath, "target", "", "directory to create the split repository in (default: the component name)")

	return cmd
}
