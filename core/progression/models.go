package progression

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/dojokit/beltway/core"
	"github.com/dojokit/beltway/core/rank"
)

// Record is the live state of a student's standing at their current rank.
// A student has exactly one active Record at a time; the data layer enforces
// this with a partial unique index on (student_id) WHERE is_active.
type Record struct {
	ID        string    `json:"id" db:"id"`
	StudentID string    `json:"student_id" db:"student_id"`
	RankID    string    `json:"rank_id" db:"rank_id"`
	Rank      rank.Rank `json:"rank" db:"-"` // populated by the repository

	IsActive   bool      `json:"is_active" db:"is_active"`
	CycleStart time.Time `json:"cycle_start" db:"cycle_start"`
	CycleEnd   null.Time `json:"cycle_end" db:"cycle_end"` // null while active

	// Degrees is the number of stripes earned at this rank, in [0, Rank.MaxDegrees].
	Degrees int `json:"degrees" db:"degrees"`
	// CycleAttendance counts classes since the last degree grant; it resets to
	// 0 on every grant.
	CycleAttendance int `json:"cycle_attendance" db:"cycle_attendance"`
	// TotalAttendance counts classes over the whole life of this rank. It only
	// decreases when an attendance event is cancelled.
	TotalAttendance int `json:"total_attendance" db:"total_attendance"`

	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// RemainingClasses returns how many classes are left before the next degree,
// 0 once the degree cap is reached.
func (r Record) RemainingClasses() int {
	if r.Degrees >= r.Rank.MaxDegrees {
		return 0
	}
	if left := r.Rank.ClassesPerDegree - r.CycleAttendance; left > 0 {
		return left
	}
	return 0
}

// ReadyForDegree reports whether the current cycle has accumulated enough
// attendance for the next automatic grant.
func (r Record) ReadyForDegree() bool {
	return r.Degrees < r.Rank.MaxDegrees && r.CycleAttendance >= r.Rank.ClassesPerDegree
}

// ReadyForPromotion reports whether the student holds every degree of the rank.
func (r Record) ReadyForPromotion() bool {
	return r.Degrees >= r.Rank.MaxDegrees
}

// GrantOrigin tags how a degree came to be awarded.
type GrantOrigin string

const (
	GrantOriginManual    GrantOrigin = "MANUAL"
	GrantOriginAutomatic GrantOrigin = "AUTOMATIC"
	GrantOriginImported  GrantOrigin = "IMPORTED"
)

// DegreeGrant is one entry of the append-only degree ledger.
type DegreeGrant struct {
	ID       string `json:"id" db:"id"`
	RecordID string `json:"record_id" db:"record_id"`
	// Degree is sequential per Record, 1..Rank.MaxDegrees.
	Degree    int         `json:"degree" db:"degree"`
	GrantedAt time.Time   `json:"granted_at" db:"granted_at"`
	Issuer    null.String `json:"issuer" db:"issuer"` // null means system-automatic
	Origin    GrantOrigin `json:"origin" db:"origin"`
	Note      null.String `json:"note" db:"note"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"` // UTC
}

// RequestStatus is the promotion workflow state: PENDING may move to APPROVED
// or CANCELLED, both terminal.
type RequestStatus string

const (
	StatusPending   RequestStatus = "PENDING"
	StatusApproved  RequestStatus = "APPROVED"
	StatusCancelled RequestStatus = "CANCELLED"
)

type PromotionRequest struct {
	ID         string        `json:"id" db:"id"`
	StudentID  string        `json:"student_id" db:"student_id"`
	FromRankID string        `json:"from_rank_id" db:"from_rank_id"`
	ToRankID   string        `json:"to_rank_id" db:"to_rank_id"`
	Status     RequestStatus `json:"status" db:"status"`

	RequestedAt time.Time   `json:"requested_at" db:"requested_at"`
	RequestedBy string      `json:"requested_by" db:"requested_by"`
	DecidedAt   null.Time   `json:"decided_at" db:"decided_at"` // null while pending
	DecidedBy   null.String `json:"decided_by" db:"decided_by"` // null while pending
	Note        null.String `json:"note" db:"note"`
}

// HistoryEntry records one completed rank transition; FromRankID is null for
// a student's first-ever rank.
type HistoryEntry struct {
	ID         string      `json:"id" db:"id"`
	StudentID  string      `json:"student_id" db:"student_id"`
	FromRankID null.String `json:"from_rank_id" db:"from_rank_id"`
	ToRankID   string      `json:"to_rank_id" db:"to_rank_id"`
	PromotedAt time.Time   `json:"promoted_at" db:"promoted_at"`
	Note       null.String `json:"note" db:"note"`
}

// Inputs

// StartProgression contains information needed to put a student on their first
// (or imported) rank.
type StartProgression struct {
	StudentID string `json:"student_id" validate:"required,uuid4"`
	RankID    string `json:"rank_id" validate:"required,uuid4"`
	// InitialDegrees backfills stripes when importing students mid-rank.
	InitialDegrees int       `json:"initial_degrees" validate:"min=0"`
	StartDate      time.Time `json:"start_date"`
}

func (sp *StartProgression) Validate(validate *validator.Validate) error {
	return validate.Struct(sp)
}

// GrantDegree contains information needed for a manual degree grant.
type GrantDegree struct {
	StudentID string `json:"student_id" validate:"required,uuid4"`
	Issuer    string `json:"issuer" validate:"required"`
	Note      string `json:"note" validate:"max=500"`
}

func (gd *GrantDegree) Validate(validate *validator.Validate) error {
	gd.Issuer = core.CleanString(gd.Issuer)
	gd.Note = core.CleanString(gd.Note)
	return validate.Struct(gd)
}

// NewPromotionRequest contains information needed to open a promotion request.
type NewPromotionRequest struct {
	StudentID   string `json:"student_id" validate:"required,uuid4"`
	TargetRank  string `json:"target_rank_id" validate:"required,uuid4"`
	RequestedBy string `json:"requested_by" validate:"required"`
	Note        string `json:"note" validate:"max=500"`
}

func (pr *NewPromotionRequest) Validate(validate *validator.Validate) error {
	pr.RequestedBy = core.CleanString(pr.RequestedBy)
	pr.Note = core.CleanString(pr.Note)
	return validate.Struct(pr)
}

// Decision carries who decided a pending request and why.
type Decision struct {
	DecidedBy string `json:"decided_by" validate:"required"`
	Note      string `json:"note" validate:"max=500"`
}

func (d *Decision) Validate(validate *validator.Validate) error {
	d.DecidedBy = core.CleanString(d.DecidedBy)
	d.Note = core.CleanString(d.Note)
	return validate.Struct(d)
}

// Projections

// AttendanceResult is returned by RecordAttendance.
type AttendanceResult struct {
	DegreeGranted bool   `json:"degree_granted"`
	Record        Record `json:"record"`
}

// PromotionResult is returned by ApprovePromotion.
type PromotionResult struct {
	Request   PromotionRequest `json:"request"`
	NewRecord Record           `json:"new_record"`
}

// Status is the read-only progression projection consumed by dashboards;
// callers never re-derive the arithmetic.
type Status struct {
	Rank             rank.Rank  `json:"rank"`
	Degrees          int        `json:"degrees"`
	MaxDegrees       int        `json:"max_degrees"`
	CycleAttendance  int        `json:"cycle_attendance"`
	ClassesPerDegree int        `json:"classes_per_degree"`
	RemainingClasses int        `json:"remaining_classes"`
	TotalAttendance  int        `json:"total_attendance"`
	ReadyForDegree   bool       `json:"ready_for_degree"`
	CycleStart       time.Time  `json:"cycle_start"`
	NextRank         *rank.Rank `json:"next_rank,omitempty"` // nil at the category terminus
}

// EligibilityPolicy is supplied by the caller; set fields combine with AND,
// a zero policy matches every active record.
type EligibilityPolicy struct {
	MinDegrees         int `json:"min_degrees"`
	MinTotalAttendance int `json:"min_total_attendance"`
}

func (p EligibilityPolicy) Matches(rec Record) bool {
	if rec.Degrees < p.MinDegrees {
		return false
	}
	return rec.TotalAttendance >= p.MinTotalAttendance
}

// Candidate is one row of the promotion-eligibility listing.
type Candidate struct {
	StudentID         string    `json:"student_id"`
	Rank              rank.Rank `json:"rank"`
	Degrees           int       `json:"degrees"`
	CycleAttendance   int       `json:"cycle_attendance"`
	RemainingClasses  int       `json:"remaining_classes"`
	TotalAttendance   int       `json:"total_attendance"`
	ReadyForDegree    bool      `json:"ready_for_degree"`
	ReadyForPromotion bool      `json:"ready_for_promotion"`
}

// CandidateFilter narrows the eligibility listing.
type CandidateFilter struct {
	Category rank.Category `query:"category"`
	RankCode string        `query:"rank"`
}

// RecordFilter applies AND operation on available fields when querying
// active records.
type RecordFilter struct {
	Category rank.Category
	RankCode string
}

// RequestFilter applies AND operation on available fields.
type RequestFilter struct {
	StudentID string        `query:"student_id"`
	Status    RequestStatus `query:"status"`
}
