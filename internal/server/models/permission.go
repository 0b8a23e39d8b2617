package models

import (
	"fmt"
	"strings"

	"github.com/pmfstudio/reportgate/internal/common"
)

// Permission is the feature tier a token unlocks downstream.
type Permission string

const (
	PermissionTrial    Permission = "trial"
	PermissionFull     Permission = "full"
	PermissionInternal Permission = "internal"
)

// KnownPermissions lists every tag the system understands, in display order.
var KnownPermissions = []Permission{PermissionTrial, PermissionFull, PermissionInternal}

// ParsePermission returns the Permission named by s. Unknown tags yield
// common.ErrUnknownPermission.
func ParsePermission(s string) (Permission, error) {
	p := Permission(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range KnownPermissions {
		if p == k {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", common.ErrUnknownPermission, s)
}

// ParsePermissions parses a list of tags, failing on the first unknown one.
func ParsePermissions(tags []string) ([]Permission, error) {
	out := make([]Permission, 0, len(tags))
	for _, tag := range tags {
		p, err := ParsePermission(tag)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (p Permission) String() string { return string(p) }
