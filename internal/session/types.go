package session

import (
	"time"

	"chatcore/internal/backend"
)

// StopReason says why a generation call ended.
type StopReason string

const (
	StopNatural   StopReason = "natural"
	StopBoundary  StopReason = "boundary"
	StopMaxTokens StopReason = "max_tokens"
	StopCapacity  StopReason = "capacity_guard"
	StopCanceled  StopReason = "canceled"
)

// Outcome is the result of one Generate call. It is not persisted.
type Outcome struct {
	Text            string
	Reason          StopReason
	PromptTokens    int
	GeneratedTokens int
	Evicted         int
	Duration        time.Duration
}

// TokensPerSecond reports generation throughput for the call.
func (o Outcome) TokensPerSecond() float64 {
	if o.Duration <= 0 {
		return 0
	}
	return float64(o.GeneratedTokens) / o.Duration.Seconds()
}

// TemplateInfo is computed once at model load.
type TemplateInfo struct {
	Present  bool
	Template string
	// Marker is the role-boundary substring found in the template.
	Marker string
	// BoundaryToken is valid only when HasBoundary is set.
	BoundaryToken backend.Token
	HasBoundary   bool
}
