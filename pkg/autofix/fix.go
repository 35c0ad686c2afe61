// Package autofix turns validation findings into confidence-scored patch operations and applies
// the ones the caller trusts.
package autofix

import (
	"errors"
	"fmt"

	"github.com/dukex/flowguard/pkg/models"
	"github.com/dukex/flowguard/pkg/patch"
)

var (
	ErrNilWorkflow       = errors.New("workflow cannot be nil")
	ErrInvalidConfidence = errors.New("invalid confidence threshold")
	ErrUnknownFixType    = errors.New("unknown fix type")
)

// Confidence expresses how certain a fix is to be correct.
type Confidence string

const (
	// ConfidenceHigh fixes are deterministic and lossless.
	ConfidenceHigh Confidence = "high"
	// ConfidenceMedium fixes rely on a heuristic choice.
	ConfidenceMedium Confidence = "medium"
	// ConfidenceLow fixes pick one of several equally plausible corrections.
	ConfidenceLow Confidence = "low"
)

// Rank orders confidences: low < medium < high.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether c meets the threshold.
func (c Confidence) AtLeast(threshold Confidence) bool {
	return c.Rank() >= threshold.Rank()
}

// ParseConfidence validates a confidence threshold. There is no default: an empty value is an error.
func ParseConfidence(s string) (Confidence, error) {
	c := Confidence(s)
	if c.Rank() == 0 {
		return "", fmt.Errorf("%w: %q (allowed: high, medium, low)", ErrInvalidConfidence, s)
	}

	return c, nil
}

// FixType names a family of corrections. Findings point at the fix type able to correct them.
type FixType string

const (
	FixTypeVersionUpgrade FixType = models.FixTypeVersionUpgrade
	FixBranchInference    FixType = models.FixBranchInference
	FixExpressionFormat   FixType = models.FixExpressionFormat
	FixStaleConnection    FixType = models.FixStaleConnection
	FixNodeTypeCorrection FixType = models.FixNodeTypeCorrection
)

// FixTypes lists every known fix type.
var FixTypes = []FixType{
	FixTypeVersionUpgrade,
	FixBranchInference,
	FixExpressionFormat,
	FixStaleConnection,
	FixNodeTypeCorrection,
}

// ParseFixType validates a fix type name.
func ParseFixType(s string) (FixType, error) {
	for _, t := range FixTypes {
		if string(t) == s {
			return t, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownFixType, s)
}

// Fix is one proposed correction, expressed as patch operations.
type Fix struct {
	Type        FixType           `json:"type"`
	Confidence  Confidence        `json:"confidence"`
	Description string            `json:"description"`
	Finding     models.Finding    `json:"finding"`
	Operations  []patch.Operation `json:"operations"`
	Error       string            `json:"error,omitempty"` // Set when applying the fix failed
}
