package progression

import (
	"context"
	"errors"
	"sort"

	"github.com/volatiletech/null/v8"

	"github.com/dojokit/beltway/core"
	"github.com/dojokit/beltway/core/rank"
)

var (
	// errors
	ErrNotFound           = errors.New("promotion request not found")
	ErrNoActiveRecord     = errors.New("student has no active progression record")
	ErrActiveRecordExists = errors.New("student already has an active progression record")
	ErrMaxDegreesReached  = errors.New("student already holds the maximum number of degrees for this rank")
	ErrInvalidTargetRank  = errors.New("target rank must be an active higher rank in the student's category")
	ErrDuplicateRequest   = errors.New("a pending or approved promotion request already exists for this rank")
	ErrAlreadyDecided     = errors.New("promotion request has already been decided")
)

const autoGrantNote = "degree granted automatically on reaching the attendance threshold"

type (
	// Repository is the persistence contract for progression state. The
	// ...ForUpdate getters must lock the row for the lifetime of the
	// surrounding transaction so concurrent read-modify-write cycles on the
	// same student serialize (lost-update prevention).
	Repository interface {
		CreateRecord(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
		GetActiveRecord(ctx context.Context, studentID string, exec ...core.DBExecutor) (Record, error)
		GetActiveRecordForUpdate(ctx context.Context, studentID string, exec core.DBExecutor) (Record, error)
		UpdateRecord(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
		// QueryActiveRecords returns all active records (ranks populated),
		// filtered per RecordFilter.
		QueryActiveRecords(ctx context.Context, filter *RecordFilter, exec ...core.DBExecutor) ([]Record, error)

		CreateDegreeGrant(ctx context.Context, grant DegreeGrant, exec ...core.DBExecutor) (DegreeGrant, error)
		QueryDegreeGrants(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]DegreeGrant, error)

		CreatePromotionRequest(ctx context.Context, req PromotionRequest, exec ...core.DBExecutor) (PromotionRequest, error)
		GetPromotionRequest(ctx context.Context, id string, exec ...core.DBExecutor) (PromotionRequest, error)
		GetPromotionRequestForUpdate(ctx context.Context, id string, exec core.DBExecutor) (PromotionRequest, error)
		// FindPromotionRequest returns the first request for (student, target)
		// whose status is in statuses, or ErrNotFound.
		FindPromotionRequest(ctx context.Context, studentID, targetRankID string, statuses []RequestStatus, exec ...core.DBExecutor) (PromotionRequest, error)
		UpdatePromotionRequest(ctx context.Context, req PromotionRequest, exec ...core.DBExecutor) (PromotionRequest, error)
		QueryPromotionRequests(ctx context.Context, filter *RequestFilter, exec ...core.DBExecutor) ([]PromotionRequest, error)

		CreateHistoryEntry(ctx context.Context, entry HistoryEntry, exec ...core.DBExecutor) (HistoryEntry, error)
		QueryHistory(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]HistoryEntry, error)
	}

	// Service is the promotion engine and workflow. It owns all writes to
	// progression records, degree grants, promotion requests and rank history;
	// every mutating operation runs as one transaction.
	Service struct {
		db    core.DB
		repo  Repository
		ranks *rank.Service
		clock core.Clock
	}
)

func NewService(db core.DB, repo Repository, ranks *rank.Service, clock core.Clock) *Service {
	return &Service{db: db, repo: repo, ranks: ranks, clock: clock}
}

// Start puts a student on a rank for the first time (or on import). It fails
// with ErrActiveRecordExists if the student already has an active record, and
// writes the first HistoryEntry with a null origin rank.
func (svc *Service) Start(ctx context.Context, sp StartProgression) (Record, error) {
	rnk, err := svc.ranks.GetByID(ctx, sp.RankID)
	if err != nil {
		return Record{}, err
	}

	now := svc.clock.Now()
	start := sp.StartDate
	if start.IsZero() {
		start = now
	}
	degrees := sp.InitialDegrees
	if degrees > rnk.MaxDegrees {
		degrees = rnk.MaxDegrees
	}

	var rec Record
	err = core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		if _, err := svc.repo.GetActiveRecord(ctx, sp.StudentID, tx); err == nil {
			return core.NewValidationError(ErrActiveRecordExists)
		} else if err != ErrNoActiveRecord {
			return err
		}

		rec = Record{
			StudentID:  sp.StudentID,
			RankID:     rnk.ID,
			Rank:       rnk,
			IsActive:   true,
			CycleStart: start,
			Degrees:    degrees,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if rec, err = svc.repo.CreateRecord(ctx, rec, tx); err != nil {
			return err
		}

		for d := 1; d <= degrees; d++ {
			grant := DegreeGrant{
				RecordID:  rec.ID,
				Degree:    d,
				GrantedAt: start,
				Origin:    GrantOriginImported,
				CreatedAt: now,
			}
			if _, err = svc.repo.CreateDegreeGrant(ctx, grant, tx); err != nil {
				return err
			}
		}

		_, err = svc.repo.CreateHistoryEntry(ctx, HistoryEntry{
			StudentID:  sp.StudentID,
			ToRankID:   rnk.ID,
			PromotedAt: start,
		}, tx)
		return err
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// RecordAttendance applies one attendance event to the student's active
// record: both counters go up by 1, and if the cycle has reached the rank's
// threshold (checked with >= so batched or delayed events cannot skip it) and
// the degree cap is not hit, one degree is granted and the cycle resets to 0.
// Surplus attendance is discarded on reset, matching academy policy. At most
// one degree is granted per call.
//
// Calling this twice for the same physical class double-counts; deduplication
// is the check-in collaborator's job.
func (svc *Service) RecordAttendance(ctx context.Context, studentID string) (AttendanceResult, error) {
	var res AttendanceResult
	err := core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		rec, err := svc.repo.GetActiveRecordForUpdate(ctx, studentID, tx)
		if err != nil {
			return err
		}

		now := svc.clock.Now()
		rec.CycleAttendance++
		rec.TotalAttendance++

		if rec.ReadyForDegree() {
			rec.Degrees++
			rec.CycleAttendance = 0
			grant := DegreeGrant{
				RecordID:  rec.ID,
				Degree:    rec.Degrees,
				GrantedAt: now,
				Origin:    GrantOriginAutomatic,
				Note:      null.StringFrom(autoGrantNote),
				CreatedAt: now,
			}
			if _, err = svc.repo.CreateDegreeGrant(ctx, grant, tx); err != nil {
				return err
			}
			res.DegreeGranted = true
		}

		rec.UpdatedAt = now
		if rec, err = svc.repo.UpdateRecord(ctx, rec, tx); err != nil {
			return err
		}
		res.Record = rec
		return nil
	})
	if err != nil {
		return AttendanceResult{}, err
	}
	return res, nil
}

// CancelAttendance reverts one attendance event: both counters go down by 1,
// floored at 0. An already-granted degree is never retracted, even if the
// cancelled event was the one that triggered it.
func (svc *Service) CancelAttendance(ctx context.Context, studentID string) (Record, error) {
	var out Record
	err := core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		rec, err := svc.repo.GetActiveRecordForUpdate(ctx, studentID, tx)
		if err != nil {
			return err
		}
		if rec.CycleAttendance > 0 {
			rec.CycleAttendance--
		}
		if rec.TotalAttendance > 0 {
			rec.TotalAttendance--
		}
		rec.UpdatedAt = svc.clock.Now()
		out, err = svc.repo.UpdateRecord(ctx, rec, tx)
		return err
	})
	if err != nil {
		return Record{}, err
	}
	return out, nil
}

// GrantDegree awards a stripe manually. It fails with ErrMaxDegreesReached at
// the rank's cap; otherwise the degree count goes up, the cycle resets to 0
// and a MANUAL grant is appended with the issuer and note.
func (svc *Service) GrantDegree(ctx context.Context, gd GrantDegree) (DegreeGrant, error) {
	var out DegreeGrant
	err := core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		rec, err := svc.repo.GetActiveRecordForUpdate(ctx, gd.StudentID, tx)
		if err != nil {
			return err
		}
		if rec.Degrees >= rec.Rank.MaxDegrees {
			return core.NewValidationError(ErrMaxDegreesReached)
		}

		now := svc.clock.Now()
		rec.Degrees++
		rec.CycleAttendance = 0
		rec.UpdatedAt = now
		if _, err = svc.repo.UpdateRecord(ctx, rec, tx); err != nil {
			return err
		}

		grant := DegreeGrant{
			RecordID:  rec.ID,
			Degree:    rec.Degrees,
			GrantedAt: now,
			Issuer:    null.StringFrom(gd.Issuer),
			Origin:    GrantOriginManual,
			Note:      null.NewString(gd.Note, gd.Note != ""),
			CreatedAt: now,
		}
		out, err = svc.repo.CreateDegreeGrant(ctx, grant, tx)
		return err
	})
	if err != nil {
		return DegreeGrant{}, err
	}
	return out, nil
}

// RequestPromotion opens a PENDING workflow request. The target must be an
// active higher rank in the student's category; at most one PENDING request
// may exist per (student, target), and an APPROVED one blocks re-requests
// permanently.
func (svc *Service) RequestPromotion(ctx context.Context, npr NewPromotionRequest) (PromotionRequest, error) {
	var out PromotionRequest
	err := core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		rec, err := svc.repo.GetActiveRecordForUpdate(ctx, npr.StudentID, tx)
		if err != nil {
			return err
		}

		target, err := svc.ranks.GetByID(ctx, npr.TargetRank)
		if err != nil {
			return err
		}
		if !rank.IsPromotionTarget(rec.Rank, target) {
			return core.NewValidationError(ErrInvalidTargetRank, core.FieldError{Field: "target_rank_id", Error: ErrInvalidTargetRank.Error()})
		}

		_, err = svc.repo.FindPromotionRequest(ctx, npr.StudentID, target.ID, []RequestStatus{StatusPending, StatusApproved}, tx)
		if err == nil {
			return core.NewValidationError(ErrDuplicateRequest)
		}
		if err != ErrNotFound {
			return err
		}

		out, err = svc.repo.CreatePromotionRequest(ctx, PromotionRequest{
			StudentID:   npr.StudentID,
			FromRankID:  rec.RankID,
			ToRankID:    target.ID,
			Status:      StatusPending,
			RequestedAt: svc.clock.Now(),
			RequestedBy: npr.RequestedBy,
			Note:        null.NewString(npr.Note, npr.Note != ""),
		}, tx)
		return err
	})
	if err != nil {
		return PromotionRequest{}, err
	}
	return out, nil
}

// ApprovePromotion decides a pending request and performs the rank
// transition: request marked APPROVED, the old record closed, a fresh record
// opened at the target rank with zeroed counters, and a HistoryEntry written.
// All four writes commit together or none do.
func (svc *Service) ApprovePromotion(ctx context.Context, requestID string, dec Decision) (PromotionResult, error) {
	var res PromotionResult
	err := core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		req, err := svc.repo.GetPromotionRequestForUpdate(ctx, requestID, tx)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return core.NewValidationError(ErrAlreadyDecided)
		}

		rec, err := svc.repo.GetActiveRecordForUpdate(ctx, req.StudentID, tx)
		if err != nil {
			return err
		}
		target, err := svc.ranks.GetByID(ctx, req.ToRankID)
		if err != nil {
			return err
		}

		now := svc.clock.Now()

		req.Status = StatusApproved
		req.DecidedAt = null.TimeFrom(now)
		req.DecidedBy = null.StringFrom(dec.DecidedBy)
		if dec.Note != "" {
			req.Note = null.StringFrom(dec.Note)
		}
		if req, err = svc.repo.UpdatePromotionRequest(ctx, req, tx); err != nil {
			return err
		}

		rec.IsActive = false
		rec.CycleEnd = null.TimeFrom(now)
		rec.UpdatedAt = now
		if _, err = svc.repo.UpdateRecord(ctx, rec, tx); err != nil {
			return err
		}

		newRec := Record{
			StudentID:  req.StudentID,
			RankID:     target.ID,
			Rank:       target,
			IsActive:   true,
			CycleStart: now,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if newRec, err = svc.repo.CreateRecord(ctx, newRec, tx); err != nil {
			return err
		}

		if _, err = svc.repo.CreateHistoryEntry(ctx, HistoryEntry{
			StudentID:  req.StudentID,
			FromRankID: null.StringFrom(rec.RankID),
			ToRankID:   target.ID,
			PromotedAt: now,
			Note:       req.Note,
		}, tx); err != nil {
			return err
		}

		res = PromotionResult{Request: req, NewRecord: newRec}
		return nil
	})
	if err != nil {
		return PromotionResult{}, err
	}
	return res, nil
}

// CancelPromotion marks a pending request CANCELLED; no other state is
// touched. The decider is recorded for the audit trail.
func (svc *Service) CancelPromotion(ctx context.Context, requestID string, dec Decision) (PromotionRequest, error) {
	var out PromotionRequest
	err := core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		req, err := svc.repo.GetPromotionRequestForUpdate(ctx, requestID, tx)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return core.NewValidationError(ErrAlreadyDecided)
		}

		req.Status = StatusCancelled
		req.DecidedAt = null.TimeFrom(svc.clock.Now())
		req.DecidedBy = null.StringFrom(dec.DecidedBy)
		if dec.Note != "" {
			req.Note = null.StringFrom(dec.Note)
		}
		out, err = svc.repo.UpdatePromotionRequest(ctx, req, tx)
		return err
	})
	if err != nil {
		return PromotionRequest{}, err
	}
	return out, nil
}

// GetRequest returns a single promotion request.
func (svc *Service) GetRequest(ctx context.Context, requestID string) (PromotionRequest, error) {
	return svc.repo.GetPromotionRequest(ctx, requestID)
}

// QueryRequests lists promotion requests, newest first.
func (svc *Service) QueryRequests(ctx context.Context, filter *RequestFilter) ([]PromotionRequest, error) {
	return svc.repo.QueryPromotionRequests(ctx, filter)
}

// ListEligible surfaces students whose active record satisfies the supplied
// policy, ordered by remaining attendance ascending (closest to the next
// degree first); ties break on StudentID for determinism.
func (svc *Service) ListEligible(ctx context.Context, policy EligibilityPolicy, filter *CandidateFilter) ([]Candidate, error) {
	var recFilter *RecordFilter
	if filter != nil {
		recFilter = &RecordFilter{Category: filter.Category, RankCode: filter.RankCode}
	}
	records, err := svc.repo.QueryActiveRecords(ctx, recFilter)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(records))
	for _, rec := range records {
		if !policy.Matches(rec) {
			continue
		}
		candidates = append(candidates, Candidate{
			StudentID:         rec.StudentID,
			Rank:              rec.Rank,
			Degrees:           rec.Degrees,
			CycleAttendance:   rec.CycleAttendance,
			RemainingClasses:  rec.RemainingClasses(),
			TotalAttendance:   rec.TotalAttendance,
			ReadyForDegree:    rec.ReadyForDegree(),
			ReadyForPromotion: rec.ReadyForPromotion(),
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].RemainingClasses != candidates[j].RemainingClasses {
			return candidates[i].RemainingClasses < candidates[j].RemainingClasses
		}
		return candidates[i].StudentID < candidates[j].StudentID
	})
	return candidates, nil
}

// Status returns the read-only progression projection for one student.
func (svc *Service) Status(ctx context.Context, studentID string) (Status, error) {
	rec, err := svc.repo.GetActiveRecord(ctx, studentID)
	if err != nil {
		return Status{}, err
	}

	st := Status{
		Rank:             rec.Rank,
		Degrees:          rec.Degrees,
		MaxDegrees:       rec.Rank.MaxDegrees,
		CycleAttendance:  rec.CycleAttendance,
		ClassesPerDegree: rec.Rank.ClassesPerDegree,
		RemainingClasses: rec.RemainingClasses(),
		TotalAttendance:  rec.TotalAttendance,
		ReadyForDegree:   rec.ReadyForDegree(),
		CycleStart:       rec.CycleStart,
	}

	next, err := svc.ranks.NextRank(ctx, rec.Rank)
	switch err {
	case nil:
		st.NextRank = &next
	case rank.ErrTerminalRank: // terminus; NextRank stays nil
	default:
		return Status{}, err
	}
	return st, nil
}

// DegreeHistory returns all degree grants for a student, newest first.
func (svc *Service) DegreeHistory(ctx context.Context, studentID string) ([]DegreeGrant, error) {
	return svc.repo.QueryDegreeGrants(ctx, studentID)
}

// RankHistory returns all rank transitions for a student, newest first.
func (svc *Service) RankHistory(ctx context.Context, studentID string) ([]HistoryEntry, error) {
	return svc.repo.QueryHistory(ctx, studentID)
}
