// Package analyzer holds the contracts shared by analyses that run over a
// compilation database.
package analyzer

import (
	"context"

	"github.com/panbanda/orphan/pkg/invocation"
)

// InvocationAnalyzer is the interface analyses over prepared compile
// invocations implement.
type InvocationAnalyzer[T any] interface {
	// Analyze processes the invocations and returns the analysis result.
	// The context carries cancellation and an optional progress Tracker.
	Analyze(ctx context.Context, invocations []invocation.Prepared) (T, error)
}
