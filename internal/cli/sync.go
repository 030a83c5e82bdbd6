package cli

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/railsplit/rail/internal/conflict"
	"github.com/railsplit/rail/internal/gitrepo"
	"github.com/railsplit/rail/internal/mapping"
	"github.com/railsplit/rail/internal/manifest/cargo"
	"github.com/railsplit/rail/internal/runtime"
	"github.com/railsplit/rail/internal/syncengine"
)

func newSyncCmd() *cobra.Command {
	var (
		splitPath string
		direction string
		policy    string
		dryRun    bool
		yes       bool
		thorough  bool
	)

	cmd := &cobra.Command{
		Use:          "sync <component>",
		Short:        "Replay new commits between a component's monorepo slice and its split repository",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rctx, err := runtime.Discover(cmd.Context(), ".")
			if err != nil {
				return err
			}

			componentName := args[0]
			splitCfg, err := rctx.Config.FindComponent(componentName)
			if err != nil {
				return err
			}
			if splitPath == "" {
				splitPath = componentName
			}

			dir, err := parseDirection(direction)
			if err != nil {
				return err
			}
			pol, err := parsePolicy(policy)
			if err != nil {
				return err
			}

			if (dir == syncengine.DirectionSplitToMono || dir == syncengine.DirectionBidirectional) && !yes {
				branch, err := rctx.Mono.CurrentBranch()
				if err == nil && rctx.Gate.IsProtectedBranch(branch) {
					confirmed := false
					prompt := &survey.Confirm{
						Message: fmt.Sprintf("%s is a protected branch; rail will divert split-to-mono commits to a PR branch instead. Continue?", branch),
						Default: true,
					}
					if err := survey.AskOne(prompt, &confirmed); err != nil || !confirmed {
						return fmt.Errorf("sync canceled")
					}
				}
			}

			split, err := gitrepo.Open(splitPath)
			if err != nil {
				return fmt.Errorf("open split repository at %s: %w", splitPath, err)
			}

			wm, err := cargo.LoadWorkspaceMetadata(rctx.Config.Workspace.Root, rctx.Config.Splits)
			if err != nil {
				return fmt.Errorf("load workspace metadata: %w", err)
			}
			transform := cargo.New(wm)

			monoRemoteURL := rctx.Mono.RemoteURL(rctx.Context, "origin")

			if thorough {
				if err := rctx.Gate.CheckRemoteAccessible(rctx.Context, rctx.Mono, monoRemoteURL); err != nil {
					return err
				}
				if err := rctx.Gate.CheckRemoteAccessible(rctx.Context, split, splitCfg.Remote); err != nil {
					return err
				}
				if rctx.Gate.RequiresSignedCommits() && !rctx.Gate.CheckSigningConfigured(rctx.Context, rctx.Mono) {
					rctx.Log.Warn("commit signing required but git is not configured to sign (run: git config commit.gpgsign true)")
				}
			}

			eng := syncengine.New(rctx.Mono, split, transform, rctx.Gate, rctx.Log)
			store := mapping.New(componentName)

			result, err := eng.Run(rctx.Context, syncengine.Options{
				ComponentName:  componentName,
				CratePaths:     splitCfg.PathStrings(),
				Mode:           splitCfg.Mode,
				WorkspaceRoot:  rctx.Config.Workspace.Root,
				SplitBranch:    splitCfg.Branch,
				MonoRemoteURL:  monoRemoteURL,
				SplitRemoteURL: splitCfg.Remote,
				Direction:      dir,
				Policy:         pol,
				DryRun:         dryRun,
				Thorough:       thorough,
			}, store)
			if err != nil {
				return err
			}

			rctx.Log.Info("%s: %d commit(s) mono→split, %d commit(s) split→mono", componentName, result.MonoToSplitCommits, result.SplitToMonoCommits)
			for _, c := range result.UnresolvedConflicts {
				rctx.Log.Warn("unresolved conflict in %s (from %s); markers left in the working tree", c.Path, c.SourceCommit)
			}
			if result.DivertedBranch != "" {
				rctx.Log.Info("diverted to %s", result.DivertedBranch)
			}
			if result.PRGuidance != nil {
				rctx.Log.Info("%s", result.PRGuidance.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&splitPath, "split-path", "", "path to the split repository's working tree (default: the component name)")
	cmd.Flags().StringVar(&direction, "direction", "bidirectional", "sync direction: mono-to-split, split-to-mono, or bidirectional")
	cmd.Flags().StringVar(&policy, "policy", string(conflict.PolicyEmitMarkers), "conflict policy: ours, theirs, union, or manual")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "detect what would sync without writing commits")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the protected-branch confirmation prompt")
	cmd.Flags().BoolVar(&thorough, "thorough", false, "also probe remote accessibility and git's signing configuration before syncing")

	return cmd
}

func parseDirection(s string) (syncengine.Direction, error) {
	switch s {
	case "mono-to-split":
		return syncengine.DirectionMonoToSplit, nil
	case "split-to-mono":
		return syncengine.DirectionSplitToMono, nil
	case "bidirectional", "":
		return syncengine.DirectionBidirectional, nil
	default:
		return "", fmt.Errorf("unknown direction %q (want mono-to-split, split-to-mono, or bidirectional)", s)
	}
}

func parsePolicy(s string) (conflict.Policy, error) {
	switch conflict.Policy(s) {
	case conflict.PolicyPreferOurs, conflict.PolicyPreferTheirs, conflict.PolicyTextualUnion, conflict.PolicyEmitMarkers:
		return conflict.Policy(s), nil
	default:
		return "", fmt.Errorf("unknown conflict policy %q (want ours, theirs, union, or manual)", s)
	}
}
