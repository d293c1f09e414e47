// Package ident generates collision-resistant node identifiers scoped by a
// memory-type prefix, e.g. "wm_3fa85f64".
package ident

import (
	"strings"

	"github.com/google/uuid"
)

// New returns "<prefix>_<8 hex chars>". Eight hex characters carry ~32 bits
// of entropy; callers that need stronger guarantees should use NewWide.
func New(prefix string) string {
	return prefix + "_" + hexSuffix(8)
}

// NewWide returns "<prefix>_<16 hex chars>" for callers that expect
// cardinalities where a 32-bit suffix is not enough.
func NewWide(prefix string) string {
	return prefix + "_" + hexSuffix(16)
}

func hexSuffix(n int) string {
	h := strings.ReplaceAll(uuid.New().String(), "-", "")
	return h[:n]
}
