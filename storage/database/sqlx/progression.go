package sqlxrepos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/dojokit/beltway/core"
	"github.com/dojokit/beltway/core/progression"
	"github.com/dojokit/beltway/core/rank"
)

var (
	recordColumns = []string{
		"id", "student_id", "rank_id", "is_active", "cycle_start", "cycle_end",
		"degrees", "cycle_attendance", "total_attendance", "created_at", "updated_at",
	}
	grantColumns = []string{
		"id", "record_id", "degree", "granted_at", "issuer", "origin", "note", "created_at",
	}
	requestColumns = []string{
		"id", "student_id", "from_rank_id", "to_rank_id", "status",
		"requested_at", "requested_by", "decided_at", "decided_by", "note",
	}
	historyColumns = []string{
		"id", "student_id", "from_rank_id", "to_rank_id", "promoted_at", "note",
	}
)

type progressionRepository struct {
	exec core.DBExecutor
}

var _ progression.Repository = (*progressionRepository)(nil) // interface compliance check

func NewProgressionRepository(exec core.DBExecutor) *progressionRepository {
	return &progressionRepository{exec: exec}
}

func (repo progressionRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

// loadRank populates rec.Rank from rank_def.
func (repo progressionRepository) loadRank(ctx context.Context, rec *progression.Record, exec core.DBExecutor) error {
	query, args, err := psql.Select(rankColumns...).From("rank_def").Where(sq.Eq{"id": rec.RankID}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building rank query")
	}
	if err = exec.GetContext(ctx, &rec.Rank, query, args...); err != nil {
		return errors.Wrap(err, "loading record rank")
	}
	return nil
}

func (repo progressionRepository) getActiveRecord(ctx context.Context, studentID string, forUpdate bool, exec core.DBExecutor) (progression.Record, error) {
	q := psql.Select(recordColumns...).From("progression_record").
		Where(sq.Eq{"student_id": studentID, "is_active": true})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	query, args, err := q.ToSql()
	if err != nil {
		return progression.Record{}, errors.Wrap(err, "building active record query")
	}

	var rec progression.Record
	if err = exec.GetContext(ctx, &rec, query, args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return progression.Record{}, progression.ErrNoActiveRecord
		}
		return progression.Record{}, errors.Wrap(err, "finding active record")
	}
	if err = repo.loadRank(ctx, &rec, exec); err != nil {
		return progression.Record{}, err
	}
	return rec, nil
}

func (repo progressionRepository) CreateRecord(ctx context.Context, rec progression.Record, exec ...core.DBExecutor) (progression.Record, error) {
	rec.ID = uuid.New().String()
	query, args, err := psql.Insert("progression_record").
		Columns(recordColumns...).
		Values(rec.ID, rec.StudentID, rec.RankID, rec.IsActive, rec.CycleStart, rec.CycleEnd,
			rec.Degrees, rec.CycleAttendance, rec.TotalAttendance, rec.CreatedAt, rec.UpdatedAt).
		ToSql()
	if err != nil {
		return progression.Record{}, errors.Wrap(err, "building record insert")
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return progression.Record{}, progression.ErrActiveRecordExists
		}
		return progression.Record{}, errors.Wrap(err, "inserting record")
	}
	return rec, nil
}

func (repo progressionRepository) GetActiveRecord(ctx context.Context, studentID string, exec ...core.DBExecutor) (progression.Record, error) {
	return repo.getActiveRecord(ctx, studentID, false, repo.getExec(exec))
}

func (repo progressionRepository) GetActiveRecordForUpdate(ctx context.Context, studentID string, exec core.DBExecutor) (progression.Record, error) {
	return repo.getActiveRecord(ctx, studentID, true, exec)
}

func (repo progressionRepository) UpdateRecord(ctx context.Context, rec progression.Record, exec ...core.DBExecutor) (progression.Record, error) {
	query, args, err := psql.Update("progression_record").
		Set("is_active", rec.IsActive).
		Set("cycle_end", rec.CycleEnd).
		Set("degrees", rec.Degrees).
		Set("cycle_attendance", rec.CycleAttendance).
		Set("total_attendance", rec.TotalAttendance).
		Set("updated_at", rec.UpdatedAt).
		Where(sq.Eq{"id": rec.ID}).
		ToSql()
	if err != nil {
		return progression.Record{}, errors.Wrap(err, "building record update")
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, query, args...); err != nil {
		return progression.Record{}, errors.Wrap(err, "updating record")
	}
	return rec, nil
}

func (repo progressionRepository) QueryActiveRecords(ctx context.Context, filter *progression.RecordFilter, exec ...core.DBExecutor) ([]progression.Record, error) {
	exe := repo.getExec(exec)

	q := psql.Select(
		"pr.id", "pr.student_id", "pr.rank_id", "pr.is_active", "pr.cycle_start", "pr.cycle_end",
		"pr.degrees", "pr.cycle_attendance", "pr.total_attendance", "pr.created_at", "pr.updated_at").
		From("progression_record pr").
		Join("rank_def rd ON rd.id = pr.rank_id").
		Where(sq.Eq{"pr.is_active": true})

	if filter != nil {
		if filter.Category != "" {
			q = q.Where(sq.Eq{"rd.category": filter.Category})
		}
		if filter.RankCode != "" {
			q = q.Where(sq.Eq{"rd.code": filter.RankCode})
		}
	}
	q = q.OrderBy("pr.student_id ASC")

	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building active records query")
	}

	records := make([]progression.Record, 0)
	if err = exe.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying active records")
	}

	// batch-load ranks
	ranks, err := NewRankRepository(exe).QueryRanks(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]rank.Rank, len(ranks))
	for _, rnk := range ranks {
		byID[rnk.ID] = rnk
	}
	for i := range records {
		records[i].Rank = byID[records[i].RankID]
	}
	return records, nil
}

func (repo progressionRepository) CreateDegreeGrant(ctx context.Context, grant progression.DegreeGrant, exec ...core.DBExecutor) (progression.DegreeGrant, error) {
	grant.ID = uuid.New().String()
	query, args, err := psql.Insert("degree_grant").
		Columns(grantColumns...).
		Values(grant.ID, grant.RecordID, grant.Degree, grant.GrantedAt,
			grant.Issuer, grant.Origin, grant.Note, grant.CreatedAt).
		ToSql()
	if err != nil {
		return progression.DegreeGrant{}, errors.Wrap(err, "building grant insert")
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, query, args...); err != nil {
		return progression.DegreeGrant{}, errors.Wrap(err, "inserting degree grant")
	}
	return grant, nil
}

func (repo progressionRepository) QueryDegreeGrants(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]progression.DegreeGrant, error) {
	query, args, err := psql.Select(
		"dg.id", "dg.record_id", "dg.degree", "dg.granted_at", "dg.issuer", "dg.origin", "dg.note", "dg.created_at").
		From("degree_grant dg").
		Join("progression_record pr ON pr.id = dg.record_id").
		Where(sq.Eq{"pr.student_id": studentID}).
		OrderBy("dg.granted_at DESC", "dg.degree DESC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building grants query")
	}

	grants := make([]progression.DegreeGrant, 0)
	if err = repo.getExec(exec).SelectContext(ctx, &grants, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying degree grants")
	}
	return grants, nil
}

func (repo progressionRepository) CreatePromotionRequest(ctx context.Context, req progression.PromotionRequest, exec ...core.DBExecutor) (progression.PromotionRequest, error) {
	req.ID = uuid.New().String()
	query, args, err := psql.Insert("promotion_request").
		Columns(requestColumns...).
		Values(req.ID, req.StudentID, req.FromRankID, req.ToRankID, req.Status,
			req.RequestedAt, req.RequestedBy, req.DecidedAt, req.DecidedBy, req.Note).
		ToSql()
	if err != nil {
		return progression.PromotionRequest{}, errors.Wrap(err, "building request insert")
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return progression.PromotionRequest{}, progression.ErrDuplicateRequest
		}
		return progression.PromotionRequest{}, errors.Wrap(err, "inserting promotion request")
	}
	return req, nil
}

func (repo progressionRepository) getPromotionRequest(ctx context.Context, id string, forUpdate bool, exec core.DBExecutor) (progression.PromotionRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return progression.PromotionRequest{}, progression.ErrNotFound
	}
	q := psql.Select(requestColumns...).From("promotion_request").Where(sq.Eq{"id": id})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	query, args, err := q.ToSql()
	if err != nil {
		return progression.PromotionRequest{}, errors.Wrap(err, "building request query")
	}

	var req progression.PromotionRequest
	if err = exec.GetContext(ctx, &req, query, args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return progression.PromotionRequest{}, progression.ErrNotFound
		}
		return progression.PromotionRequest{}, errors.Wrap(err, "finding promotion request")
	}
	return req, nil
}

func (repo progressionRepository) GetPromotionRequest(ctx context.Context, id string, exec ...core.DBExecutor) (progression.PromotionRequest, error) {
	return repo.getPromotionRequest(ctx, id, false, repo.getExec(exec))
}

func (repo progressionRepository) GetPromotionRequestForUpdate(ctx context.Context, id string, exec core.DBExecutor) (progression.PromotionRequest, error) {
	return repo.getPromotionRequest(ctx, id, true, exec)
}

func (repo progressionRepository) FindPromotionRequest(ctx context.Context, studentID, targetRankID string, statuses []progression.RequestStatus, exec ...core.DBExecutor) (progression.PromotionRequest, error) {
	query, args, err := psql.Select(requestColumns...).From("promotion_request").
		Where(sq.Eq{"student_id": studentID, "to_rank_id": targetRankID, "status": statuses}).
		OrderBy("requested_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return progression.PromotionRequest{}, errors.Wrap(err, "building request lookup")
	}

	var req progression.PromotionRequest
	if err = repo.getExec(exec).GetContext(ctx, &req, query, args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return progression.PromotionRequest{}, progression.ErrNotFound
		}
		return progression.PromotionRequest{}, errors.Wrap(err, "finding promotion request")
	}
	return req, nil
}

func (repo progressionRepository) UpdatePromotionRequest(ctx context.Context, req progression.PromotionRequest, exec ...core.DBExecutor) (progression.PromotionRequest, error) {
	query, args, err := psql.Update("promotion_request").
		Set("status", req.Status).
		Set("decided_at", req.DecidedAt).
		Set("decided_by", req.DecidedBy).
		Set("note", req.Note).
		Where(sq.Eq{"id": req.ID}).
		ToSql()
	if err != nil {
		return progression.PromotionRequest{}, errors.Wrap(err, "building request update")
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, query, args...); err != nil {
		return progression.PromotionRequest{}, errors.Wrap(err, "updating promotion request")
	}
	return req, nil
}

func (repo progressionRepository) QueryPromotionRequests(ctx context.Context, filter *progression.RequestFilter, exec ...core.DBExecutor) ([]progression.PromotionRequest, error) {
	q := psql.Select(requestColumns...).From("promotion_request")
	if filter != nil {
		if filter.StudentID != "" {
			q = q.Where(sq.Eq{"student_id": filter.StudentID})
		}
		if filter.Status != "" {
			q = q.Where(sq.Eq{"status": filter.Status})
		}
	}
	query, args, err := q.OrderBy("requested_at DESC").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building requests query")
	}

	reqs := make([]progression.PromotionRequest, 0)
	if err = repo.getExec(exec).SelectContext(ctx, &reqs, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying promotion requests")
	}
	return reqs, nil
}

func (repo progressionRepository) CreateHistoryEntry(ctx context.Context, entry progression.HistoryEntry, exec ...core.DBExecutor) (progression.HistoryEntry, error) {
	entry.ID = uuid.New().String()
	query, args, err := psql.Insert("rank_history").
		Columns(historyColumns...).
		Values(entry.ID, entry.StudentID, entry.FromRankID, entry.ToRankID, entry.PromotedAt, entry.Note).
		ToSql()
	if err != nil {
		return progression.HistoryEntry{}, errors.Wrap(err, "building history insert")
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, query, args...); err != nil {
		return progression.HistoryEntry{}, errors.Wrap(err, "inserting history entry")
	}
	return entry, nil
}

func (repo progressionRepository) QueryHistory(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]progression.HistoryEntry, error) {
	query, args, err := psql.Select(historyColumns...).From("rank_history").
		Where(sq.Eq{"student_id": studentID}).
		OrderBy("promoted_at DESC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building history query")
	}

	entries := make([]progression.HistoryEntry, 0)
	if err = repo.getExec(exec).SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying rank history")
	}
	return entries, nil
}
