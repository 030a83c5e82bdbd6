package security

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/railsplit/rail/internal/gitrepo"
	"github.com/railsplit/rail/internal/railconfig"
	"github.com/railsplit/rail/internal/railerr"
	"github.com/railsplit/rail/internal/railog"
)

// sshKeyProbeOrder is the declared resolution order when no explicit key
// path is configured: ed25519 first, then RSA, then ECDSA.
var sshKeyProbeOrder = []string{"id_ed25519", "id_rsa", "id_ecdsa"}

// Gate is the security gate consulted by the projector and sync engine
// before any push, any commit construction that might land on a protected
// branch, and the start of any operation touching a non-local remote.
type Gate struct {
	cfg railconfig.Security
	log *railog.Logger
}

// NewGate constructs a Gate from the workspace's security configuration.
func NewGate(cfg railconfig.Security, log *railog.Logger) *Gate {
	return &Gate{cfg: cfg, log: log}
}

// ValidateSSHKey resolves the configured SSH identity or probes the standard
// set in declared order, and returns its path. It is fatal if no candidate
// exists or is readable; a group- or world-readable key only warns.
func (g *Gate) ValidateSSHKey() (string, error) {
	path := g.cfg.SSHKeyPath
	var err error
	if path == "" {
		path, err = findDefaultSSHKey()
		if err != nil {
			return "", err
		}
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return "", railerr.Wrap(railerr.KindValidation,
			fmt.Sprintf("configured SSH key %s does not exist", path), statErr).
			WithSuggestion("generate one with ssh-keygen -t ed25519, or set security.ssh_key_path in rail.toml")
	}
	if err := g.validateParsesAsKey(path); err != nil {
		return "", err
	}
	g.warnIfPermissive(path)
	return path, nil
}

// validateParsesAsKey confirms path holds a private key ssh.ParsePrivateKey
// can actually parse, not merely a file that happens to exist at that path.
// An encrypted (passphrase-protected) key fails to parse with
// *ssh.PassphraseMissingError, which is treated as usable here since the
// key material itself is well-formed; every other parse failure is fatal,
// mirroring the check go-git's ssh.NewPublicKeysFromFile performs before
// handing a key to a push/fetch transport.
func (g *Gate) validateParsesAsKey(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return railerr.Wrap(railerr.KindValidation, fmt.Sprintf("cannot read SSH key %s", path), err)
	}
	if _, err := ssh.ParsePrivateKey(raw); err != nil {
		var passphraseErr *ssh.PassphraseMissingError
		if errors.As(err, &passphraseErr) {
			return nil
		}
		return railerr.Wrap(railerr.KindValidation,
			fmt.Sprintf("%s does not contain a usable SSH private key", path), err).
			WithSuggestion("generate one with ssh-keygen -t ed25519, or set security.ssh_key_path in rail.toml")
	}
	return nil
}

func findDefaultSSHKey() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "", railerr.Wrap(railerr.KindValidation, "cannot determine home directory to locate an SSH key", err)
	}
	sshDir := filepath.Join(home, ".ssh")
	for _, name := range sshKeyProbeOrder {
		candidate := filepath.Join(sshDir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", railerr.New(railerr.KindValidation,
		fmt.Sprintf("no SSH key found in %s (tried %v)", sshDir, sshKeyProbeOrder)).
		WithSuggestion("generate one with ssh-keygen -t ed25519, or set security.ssh_key_path in rail.toml")
}

func (g *Gate) warnIfPermissive(path string) {
	if runtime.GOOS == "windows" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0o077 != 0 {
		g.log.Warn("SSH key %s is group- or world-readable (mode %s); consider chmod 600", path, info.Mode().Perm())
	}
}

// ValidateSigningKey resolves the signing key when commit signing is
// required, falling back to the SSH identity if no dedicated signing key is
// configured. It is a no-op returning ("", nil) when signing is not
// required.
func (g *Gate) ValidateSigningKey() (string, error) {
	if !g.cfg.RequireSignedCommits {
		return "", nil
	}
	if g.cfg.SigningKeyPath != "" {
		if _, err := os.Stat(g.cfg.SigningKeyPath); err != nil {
			return "", railerr.Wrap(railerr.KindValidation,
				fmt.Sprintf("configured signing key %s does not exist", g.cfg.SigningKeyPath), err).
				WithSuggestion("set git config gpg.format ssh and user.signingkey, or fix security.signing_key_path")
		}
		return g.cfg.SigningKeyPath, nil
	}
	return g.ValidateSSHKey()
}

// VerifyCommitSignature verifies sha's signature via `git verify-commit`. It
// is called after each commit constructed on the protected side when
// signing is required; verification failure is fatal.
func (g *Gate) VerifyCommitSignature(ctx context.Context, repo *gitrepo.Repo) func(sha string) error {
	return func(sha string) error {
		if !g.cfg.RequireSignedCommits {
			return nil
		}
		if _, err := repo.Runner().Run(ctx, "verify-commit", sha); err != nil {
			return railerr.Wrap(railerr.KindValidation, fmt.Sprintf("commit %s failed signature verification", sha), err)
		}
		return nil
	}
}

// RequiresSignedCommits reports whether this workspace's security
// configuration requires commit signing.
func (g *Gate) RequiresSignedCommits() bool { return g.cfg.RequireSignedCommits }

// CheckSigningConfigured reports whether git itself is set up to sign
// commits (`commit.gpgsign`), the thorough-mode counterpart to
// ValidateSigningKey's file-existence check: a present, readable signing
// key is useless if git was never told to sign with it.
func (g *Gate) CheckSigningConfigured(ctx context.Context, repo *gitrepo.Repo) bool {
	out, err := repo.Runner().Run(ctx, "config", "--get", "commit.gpgsign")
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) == "true"
}

// CheckRemoteAccessible probes connectivity to url: local paths are checked
// for existence, everything else via `git ls-remote --heads`. This is the
// thorough-mode remote-accessibility check §9 defers behind the flag,
// since it is a real network round trip rather than a local file check.
func (g *Gate) CheckRemoteAccessible(ctx context.Context, repo *gitrepo.Repo, url string) error {
	if url == "" {
		return nil
	}
	if IsLocal(url) {
		path := strings.TrimPrefix(url, "file://")
		if _, err := os.Stat(path); err != nil {
			return railerr.Wrap(railerr.KindValidation, fmt.Sprintf("local remote %s does not exist", url), err)
		}
		return nil
	}
	if _, err := repo.RemoteHasBranches(ctx, url); err != nil {
		return railerr.Wrap(railerr.KindValidation, fmt.Sprintf("remote %s is not accessible", url), err).
			WithSuggestion("verify the remote URL is correct and you have network access")
	}
	return nil
}

// IsProtectedBranch reports whether branch matches the configured protected
// list.
func (g *Gate) IsProtectedBranch(branch string) bool {
	for _, p := range g.cfg.ProtectedBranches {
		if p == branch {
			return true
		}
	}
	return false
}

// GeneratePRBranch expands the configured pattern's {crate} and {timestamp}
// placeholders into a concrete branch name, using a monotonically
// increasing Unix timestamp for uniqueness.
func (g *Gate) GeneratePRBranch(componentName string, now time.Time) string {
	pattern := g.cfg.PRBranchPattern
	if pattern == "" {
		pattern = "rail/sync/{crate}/{timestamp}"
	}
	replacer := strings.NewReplacer(
		"{crate}", componentName,
		"{timestamp}", strconv.FormatInt(now.Unix(), 10),
	)
	return replacer.Replace(pattern)
}

// RemoteKind classifies a configured remote URL for connectivity purposes.
type RemoteKind int

const (
	RemoteLocal RemoteKind = iota
	RemoteSSH
	RemoteHTTPS
	RemoteUnknown
)

// ClassifyRemote applies the §6 remote URL classification rules.
func ClassifyRemote(url string) RemoteKind {
	switch {
	case strings.HasPrefix(url, "/"), strings.HasPrefix(url, "./"), strings.HasPrefix(url, "../"),
		isWindowsLocalPath(url):
		return RemoteLocal
	case strings.HasPrefix(url, "git@"), strings.HasPrefix(url, "ssh://"):
		return RemoteSSH
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return RemoteHTTPS
	default:
		return RemoteUnknown
	}
}

func isWindowsLocalPath(url string) bool {
	if len(url) >= 3 && url[1] == ':' && (url[2] == '\\' || url[2] == '/') {
		return true // drive letter, e.g. C:\
	}
	return strings.HasPrefix(url, `\\`) // UNC path
}

// IsLocal is a convenience wrapper over ClassifyRemote.
func IsLocal(url string) bool { return ClassifyRemote(url) == RemoteLocal }
