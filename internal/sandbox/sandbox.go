package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/brainstem-ai/brainstem/internal/domain/guard"
)

// AccessResult is the outcome of one access check.
type AccessResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Checker is the contract the guard engine calls before any rule is
// consulted. Sandbox implements it with profile checks; a kernel-level
// backend may implement it with real isolation.
type Checker interface {
	CheckAccess(kind guard.AccessKind, detail string) AccessResult
}

// networkCommands are command names that reach the network and are
// screened out under the no_net profile.
var networkCommands = map[string]bool{
	"curl": true,
	"wget": true,
	"ssh":  true,
	"scp":  true,
	"nc":   true,
	"ncat": true,
}

// Sandbox evaluates requested actions against a stack of access profiles.
// Every profile must permit an action for it to be allowed; the first
// denial wins.
type Sandbox struct {
	profiles   []Profile
	scratchDir string
}

// New creates a sandbox over the given profiles. scratchDir is the only
// writable root under the scratch_fs profile.
func New(scratchDir string, profiles ...Profile) *Sandbox {
	return &Sandbox{profiles: profiles, scratchDir: filepath.Clean(scratchDir)}
}

// Profiles returns the profile stack, in order.
func (s *Sandbox) Profiles() []Profile {
	return s.profiles
}

// CheckAccess evaluates one access kind plus its detail (command line,
// path, or host) against every profile in the stack.
func (s *Sandbox) CheckAccess(kind guard.AccessKind, detail string) AccessResult {
	for _, p := range s.profiles {
		if res := Check(p, kind, detail, s.scratchDir); !res.Allowed {
			return res
		}
	}
	return AccessResult{Allowed: true}
}

// Check evaluates one access against a single profile. scratchDir only
// matters for scratch_fs writes.
func Check(p Profile, kind guard.AccessKind, detail, scratchDir string) AccessResult {
	if !p.Allows(kind) {
		return AccessResult{
			Allowed: false,
			Reason:  fmt.Sprintf("%s blocked by %s profile", kind, p),
		}
	}

	switch {
	case p == ProfileNoNet && kind == guard.AccessCommand:
		if name, found := firstNetworkCommand(detail); found {
			return AccessResult{
				Allowed: false,
				Reason:  fmt.Sprintf("network-reaching command %q blocked by %s profile", name, p),
			}
		}
	case p == ProfileScratchFs && kind == guard.AccessFileWrite:
		return checkScratchWrite(detail, scratchDir)
	}

	return AccessResult{Allowed: true}
}

// firstNetworkCommand scans the command line for a network-reaching
// program name. Tokens are compared by base name so "/usr/bin/curl"
// and "sudo curl" are both caught.
func firstNetworkCommand(command string) (string, bool) {
	for _, tok := range strings.Fields(command) {
		if networkCommands[filepath.Base(tok)] {
			return filepath.Base(tok), true
		}
	}
	return "", false
}

// checkScratchWrite confines a write path to the scratch directory.
// Paths carrying ".." segments are rejected before any prefix
// comparison, even when the resolved path would land inside scratch.
func checkScratchWrite(path, scratchDir string) AccessResult {
	if path == "" {
		return AccessResult{Allowed: false, Reason: "write path is empty"}
	}
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return AccessResult{
				Allowed: false,
				Reason:  fmt.Sprintf("path traversal in %q", path),
			}
		}
	}
	if !filepath.IsAbs(path) {
		// Relative paths resolve under scratch.
		return AccessResult{Allowed: true}
	}
	clean := filepath.Clean(path)
	if clean == scratchDir || strings.HasPrefix(clean, scratchDir+string(filepath.Separator)) {
		return AccessResult{Allowed: true}
	}
	return AccessResult{
		Allowed: false,
		Reason:  fmt.Sprintf("write outside scratch directory: %q", path),
	}
}

// ScratchPath resolves a relative write path under the scratch directory.
// Absolute paths are returned unchanged.
func (s *Sandbox) ScratchPath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.scratchDir, path)
}
