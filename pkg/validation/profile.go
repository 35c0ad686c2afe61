// Package validation checks node configurations and whole workflow graphs against the catalog.
package validation

import (
	"errors"
	"fmt"

	"github.com/dukex/flowguard/pkg/models"
)

var (
	ErrInvalidProfile = errors.New("invalid validation profile")
	ErrNilWorkflow    = errors.New("workflow cannot be nil")
)

// Profile is a validation strictness level.
type Profile string

const (
	// ProfileMinimal checks only required properties without a default.
	ProfileMinimal Profile = "minimal"
	// ProfileRuntime also requires every property the execution path reads and type-checks those values.
	ProfileRuntime Profile = "runtime"
	// ProfileAIFriendly is runtime with type mismatches reported as warnings.
	ProfileAIFriendly Profile = "ai-friendly"
	// ProfileStrict type-checks every declared property and flags undeclared ones.
	ProfileStrict Profile = "strict"
)

// Profiles lists every profile from loosest to strictest.
var Profiles = []Profile{ProfileMinimal, ProfileRuntime, ProfileAIFriendly, ProfileStrict}

// ParseProfile validates a profile name. There is no default: an empty name is an error.
func ParseProfile(s string) (Profile, error) {
	for _, p := range Profiles {
		if string(p) == s {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w: %q (allowed: minimal, runtime, ai-friendly, strict)", ErrInvalidProfile, s)
}

// requiresExecutionReads reports whether properties read at execution must have a value.
func (p Profile) requiresExecutionReads() bool {
	return p != ProfileMinimal
}

// typeMismatchSeverity is the severity of a wrong value type, or "" when values are not checked.
func (p Profile) typeMismatchSeverity() models.Severity {
	switch p {
	case ProfileRuntime, ProfileStrict:
		return models.SeverityError
	case ProfileAIFriendly:
		return models.SeverityWarning
	default:
		return ""
	}
}

// checksProperty reports whether the value of prop is type-checked under the profile.
func (p Profile) checksProperty(prop models.PropertyDefinition) bool {
	switch p {
	case ProfileStrict:
		return true
	case ProfileRuntime, ProfileAIFriendly:
		return prop.Required || prop.ExecutionRead
	default:
		return false
	}
}
