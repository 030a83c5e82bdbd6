// Package runtime provides a context type carrying the configuration,
// logger, and git handle commands need, so command bodies take one argument
// instead of threading several through every call.
package runtime

import (
	"context"
	"fmt"

	"github.com/railsplit/rail/internal/gitrepo"
	"github.com/railsplit/rail/internal/railconfig"
	"github.com/railsplit/rail/internal/railog"
	"github.com/railsplit/rail/internal/security"
)

// Context bundles the state a rail command needs: the parsed workspace
// configuration, the monorepo handle it was discovered from, a logger, and
// the security gate built from the configuration's [security] section.
type Context struct {
	context.Context
	Config *railconfig.Config
	Mono   *gitrepo.Repo
	Log    *railog.Logger
	Gate   *security.Gate
}

// New builds a Context from an already-loaded configuration and monorepo
// handle.
func New(ctx context.Context, cfg *railconfig.Config, mono *gitrepo.Repo, log *railog.Logger) *Context {
	return &Context{
		Context: ctx,
		Config:  cfg,
		Mono:    mono,
		Log:     log,
		Gate:    security.NewGate(cfg.Security, log),
	}
}

// Discover loads the workspace configuration found directly in cwd and
// opens the monorepo it declares, producing a ready-to-use Context.
func Discover(ctx context.Context, cwd string) (*Context, error) {
	cfg, err := railconfig.Load(cwd)
	if err != nil {
		return nil, fmt.Errorf("load rail configuration: %w", err)
	}
	mono, err := gitrepo.Open(cfg.Workspace.Root)
	if err != nil {
		return nil, fmt.Errorf("open monorepo at %s: %w", cfg.Workspace.Root, err)
	}
	log := railog.New()
	return New(ctx, cfg, mono, log), nil
}
