// Package railconfig loads rail's workspace configuration file: the
// workspace root, security policy, quality policy (peripheral, not consumed
// by the core), the list of configured splits, and the release list
// (peripheral). The file is TOML, discovered under four standard names in
// priority order, matching the layout the tool this workspace model was
// distilled from uses.
package railconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// candidateNames lists the config file names searched, in priority order,
// relative to the workspace root.
var candidateNames = []string{
	"rail.toml",
	".rail.toml",
	filepath.Join(".cargo", "rail.toml"),
	filepath.Join(".config", "rail.toml"),
}

// SplitMode selects how a component's path set maps onto the split
// repository's working tree.
type SplitMode string

const (
	ModeSingle   SplitMode = "single"
	ModeCombined SplitMode = "combined"
)

// CratePath is one entry of a component's path set: a crate's
// repository-relative directory.
type CratePath struct {
	Crate string `toml:"crate"`
}

// Workspace is the `[workspace]` section.
type Workspace struct {
	Root string `toml:"root"`
}

// Security is the `[security]` section (§4.7's configuration record).
type Security struct {
	SSHKeyPath           string   `toml:"ssh_key_path"`
	RequireSignedCommits bool     `toml:"require_signed_commits"`
	SigningKeyPath       string   `toml:"signing_key_path"`
	PRBranchPattern      string   `toml:"pr_branch_pattern"`
	ProtectedBranches    []string `toml:"protected_branches"`
}

func (s Security) withDefaults() Security {
	if s.PRBranchPattern == "" {
		s.PRBranchPattern = "rail/sync/{crate}/{timestamp}"
	}
	if len(s.ProtectedBranches) == 0 {
		s.ProtectedBranches = []string{"main", "master"}
	}
	return s
}

// Policy is the `[policy]` section: quality rules peripheral to the core
// projector/sync/mapping/conflict subsystems. Not consumed by them; carried
// through so a future lint/release layer has somewhere to read it from.
type Policy struct {
	Resolver                string   `toml:"resolver"`
	MSRV                    string   `toml:"msrv"`
	Edition                 string   `toml:"edition"`
	ForbidMultipleVersions  []string `toml:"forbid_multiple_versions"`
	RequireWorkspaceInherit bool     `toml:"require_workspace_inheritance"`
	AllowedLicenses         []string `toml:"allowed_licenses"`
	ForbidPatchReplace      bool     `toml:"forbid_patch_replace"`
}

// Split is one entry of the `[[splits]]` array: a configured component.
type Split struct {
	Name          string      `toml:"name"`
	Remote        string      `toml:"remote"`
	Branch        string      `toml:"branch"`
	Mode          SplitMode   `toml:"mode"`
	WorkspaceMode string      `toml:"workspace_mode"`
	Paths         []CratePath `toml:"paths"`
	Include       []string    `toml:"include"`
	Exclude       []string    `toml:"exclude"`
}

func (s Split) withDefaults() Split {
	if s.Mode == "" {
		s.Mode = ModeSingle
	}
	if s.WorkspaceMode == "" {
		s.WorkspaceMode = "standalone"
	}
	return s
}

// PathStrings returns the split's path set as bare directory strings, in
// declared order.
func (s Split) PathStrings() []string {
	out := make([]string, len(s.Paths))
	for i, p := range s.Paths {
		out[i] = p.Crate
	}
	return out
}

// Validate enforces the component-configuration invariants from §3: single
// mode requires exactly one path, combined mode requires at least two.
func (s Split) Validate() error {
	switch s.Mode {
	case ModeSingle:
		if len(s.Paths) != 1 {
			return fmt.Errorf("split %q: mode single requires exactly one path, got %d", s.Name, len(s.Paths))
		}
	case ModeCombined:
		if len(s.Paths) < 2 {
			return fmt.Errorf("split %q: mode combined requires at least two paths, got %d", s.Name, len(s.Paths))
		}
	default:
		return fmt.Errorf("split %q: unknown mode %q", s.Name, s.Mode)
	}
	return nil
}

// Release is one entry of the `[[releases]]` array: peripheral to the core,
// carried through unparsed beyond its declared fields.
type Release struct {
	Name        string `toml:"name"`
	CratePath   string `toml:"crate"`
	Split       string `toml:"split"`
	ChangelogAt string `toml:"changelog"`
}

// Config is the full parsed configuration document.
type Config struct {
	Workspace Workspace `toml:"workspace"`
	Security  Security  `toml:"security"`
	Policy    Policy    `toml:"policy"`
	Splits    []Split   `toml:"splits"`
	Releases  []Release `toml:"releases"`
}

// FindComponent returns the configured split named name, or an error if no
// such component is configured.
func (c *Config) FindComponent(name string) (*Split, error) {
	for i := range c.Splits {
		if c.Splits[i].Name == name {
			return &c.Splits[i], nil
		}
	}
	return nil, fmt.Errorf("component %q not found in configuration", name)
}

// Discover searches startDir (typically the current working directory) for
// one of the four standard config file names and returns its path. Returns
// an error if none is found.
func Discover(startDir string) (string, error) {
	for _, name := range candidateNames {
		candidate := filepath.Join(startDir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no rail config found under %s (looked for %v)", startDir, candidateNames)
}

// Load discovers and parses the configuration file under startDir, applying
// documented defaults for unset fields and validating every configured
// split.
func Load(startDir string) (*Config, error) {
	path, err := Discover(startDir)
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile parses the configuration document at path directly.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Security = cfg.Security.withDefaults()
	for i := range cfg.Splits {
		cfg.Splits[i] = cfg.Splits[i].withDefaults()
	}
	for i := range cfg.Splits {
		if err := cfg.Splits[i].Validate(); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if cfg.Workspace.Root == "" {
		cfg.Workspace.Root = filepath.Dir(path)
	}
	return &cfg, nil
}
