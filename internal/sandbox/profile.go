// Package sandbox enforces process-level access profiles over tool
// invocations. This is policy enforcement, not kernel isolation; a
// stricter kernel-level backend can be substituted behind the same
// Checker contract where the host platform supports one.
package sandbox

import (
	"fmt"

	"github.com/brainstem-ai/brainstem/internal/domain"
	"github.com/brainstem-ai/brainstem/internal/domain/guard"
)

// Profile is one of the four named access profiles. Each maps to a fixed
// set of allowed access kinds; detail rules further scope commands and
// write paths.
type Profile string

const (
	ProfileNoNet      Profile = "no_net"
	ProfileNet        Profile = "net"
	ProfileReadOnlyFs Profile = "read_only_fs"
	ProfileScratchFs  Profile = "scratch_fs"
)

// allowedKinds declares, per profile, which access kinds pass the
// kind-level check. Detail rules still apply on top.
var allowedKinds = map[Profile]map[guard.AccessKind]bool{
	ProfileNoNet: {
		guard.AccessNetwork:   false,
		guard.AccessFileRead:  true,
		guard.AccessFileWrite: true,
		guard.AccessCommand:   true,
	},
	ProfileNet: {
		guard.AccessNetwork:   true,
		guard.AccessFileRead:  true,
		guard.AccessFileWrite: true,
		guard.AccessCommand:   true,
	},
	ProfileReadOnlyFs: {
		guard.AccessNetwork:   true,
		guard.AccessFileRead:  true,
		guard.AccessFileWrite: false,
		guard.AccessCommand:   true,
	},
	ProfileScratchFs: {
		guard.AccessNetwork:   true,
		guard.AccessFileRead:  true,
		guard.AccessFileWrite: true, // confined to the scratch directory
		guard.AccessCommand:   true,
	},
}

// Allows reports whether the profile's declared allowed-kind set includes
// the given kind, before any detail rule is applied.
func (p Profile) Allows(kind guard.AccessKind) bool {
	kinds, ok := allowedKinds[p]
	if !ok {
		return false
	}
	return kinds[kind]
}

// Parse maps a profile name to a Profile. Returns a
// domain.ErrValidation-wrapped error for unknown names.
func Parse(name string) (Profile, error) {
	switch Profile(name) {
	case ProfileNoNet, ProfileNet, ProfileReadOnlyFs, ProfileScratchFs:
		return Profile(name), nil
	default:
		return "", fmt.Errorf("%w: unknown sandbox profile %q", domain.ErrValidation, name)
	}
}

// ParseAll maps a list of profile names, failing on the first unknown one.
func ParseAll(names []string) ([]Profile, error) {
	out := make([]Profile, 0, len(names))
	for _, name := range names {
		p, err := Parse(name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
