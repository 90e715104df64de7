package core

import "context"

// Capabilities guarding the mutating graduation operations. The core services
// stay authorization-agnostic: callers (the API layer, the admin CLI) must
// satisfy a CapabilityChecker before invoking a mutating operation.
const (
	CapRecordAttendance  = "attendance:record"
	CapGrantDegree       = "degree:grant"
	CapManagePromotions  = "promotion:manage"
	CapRequestPromotions = "promotion:request"
	CapManageRanks       = "rank:manage"
)

type CapabilityChecker interface {
	Can(ctx context.Context, capability string) bool
}
