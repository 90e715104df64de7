package dummy

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/dojokit/beltway/core"
	"github.com/dojokit/beltway/core/progression"
)

type progressionRepository struct {
	db *DB
}

var _ progression.Repository = (*progressionRepository)(nil) // interface compliance check

func NewProgressionRepository(db *DB) progression.Repository {
	return &progressionRepository{db: db}
}

func (repo *progressionRepository) withRank(rec progression.Record) progression.Record {
	repo.db.rank.RLock()
	defer repo.db.rank.RUnlock()
	if rnk, ok := repo.db.rank.table[rec.RankID]; ok {
		rec.Rank = *rnk
	}
	return rec
}

func (repo *progressionRepository) CreateRecord(ctx context.Context, rec progression.Record, exec ...core.DBExecutor) (progression.Record, error) {
	repo.db.record.Lock()
	defer repo.db.record.Unlock()

	if rec.IsActive {
		for _, existing := range repo.db.record.table {
			if existing.StudentID == rec.StudentID && existing.IsActive {
				return progression.Record{}, progression.ErrActiveRecordExists
			}
		}
	}

	rec.ID = uuid.New().String()
	stored := rec
	repo.db.record.table[rec.ID] = &stored
	return repo.withRank(rec), nil
}

func (repo *progressionRepository) getActiveRecord(studentID string) (progression.Record, error) {
	repo.db.record.RLock()
	defer repo.db.record.RUnlock()

	for _, rec := range repo.db.record.table {
		if rec.StudentID == studentID && rec.IsActive {
			return repo.withRank(*rec), nil
		}
	}
	return progression.Record{}, progression.ErrNoActiveRecord
}

func (repo *progressionRepository) GetActiveRecord(ctx context.Context, studentID string, exec ...core.DBExecutor) (progression.Record, error) {
	return repo.getActiveRecord(studentID)
}

func (repo *progressionRepository) GetActiveRecordForUpdate(ctx context.Context, studentID string, exec core.DBExecutor) (progression.Record, error) {
	return repo.getActiveRecord(studentID)
}

func (repo *progressionRepository) UpdateRecord(ctx context.Context, rec progression.Record, exec ...core.DBExecutor) (progression.Record, error) {
	repo.db.record.Lock()
	defer repo.db.record.Unlock()

	if _, ok := repo.db.record.table[rec.ID]; !ok {
		return progression.Record{}, progression.ErrNotFound
	}
	stored := rec
	repo.db.record.table[rec.ID] = &stored
	return repo.withRank(rec), nil
}

func (repo *progressionRepository) QueryActiveRecords(ctx context.Context, filter *progression.RecordFilter, exec ...core.DBExecutor) ([]progression.Record, error) {
	repo.db.record.RLock()
	records := make([]progression.Record, 0, len(repo.db.record.table))
	for _, rec := range repo.db.record.table {
		if rec.IsActive {
			records = append(records, repo.withRank(*rec))
		}
	}
	repo.db.record.RUnlock()

	if filter != nil {
		filtered := make([]progression.Record, 0, len(records))
		for _, rec := range records {
			if filter.Category != "" && rec.Rank.Category != filter.Category {
				continue
			}
			if filter.RankCode != "" && rec.Rank.Code != filter.RankCode {
				continue
			}
			filtered = append(filtered, rec)
		}
		records = filtered
	}

	sort.Slice(records, func(i, j int) bool { return records[i].StudentID < records[j].StudentID })
	return records, nil
}

func (repo *progressionRepository) CreateDegreeGrant(ctx context.Context, grant progression.DegreeGrant, exec ...core.DBExecutor) (progression.DegreeGrant, error) {
	repo.db.grant.Lock()
	defer repo.db.grant.Unlock()

	grant.ID = uuid.New().String()
	stored := grant
	repo.db.grant.table[grant.ID] = &stored
	return grant, nil
}

func (repo *progressionRepository) QueryDegreeGrants(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]progression.DegreeGrant, error) {
	repo.db.record.RLock()
	recordIDs := make(map[string]bool)
	for _, rec := range repo.db.record.table {
		if rec.StudentID == studentID {
			recordIDs[rec.ID] = true
		}
	}
	repo.db.record.RUnlock()

	repo.db.grant.RLock()
	grants := make([]progression.DegreeGrant, 0)
	for _, grant := range repo.db.grant.table {
		if recordIDs[grant.RecordID] {
			grants = append(grants, *grant)
		}
	}
	repo.db.grant.RUnlock()

	sort.Slice(grants, func(i, j int) bool {
		if !grants[i].GrantedAt.Equal(grants[j].GrantedAt) {
			return grants[i].GrantedAt.After(grants[j].GrantedAt)
		}
		return grants[i].Degree > grants[j].Degree
	})
	return grants, nil
}

func (repo *progressionRepository) CreatePromotionRequest(ctx context.Context, req progression.PromotionRequest, exec ...core.DBExecutor) (progression.PromotionRequest, error) {
	repo.db.request.Lock()
	defer repo.db.request.Unlock()

	for _, existing := range repo.db.request.table {
		if existing.StudentID == req.StudentID && existing.ToRankID == req.ToRankID &&
			(existing.Status == progression.StatusPending || existing.Status == progression.StatusApproved) {
			return progression.PromotionRequest{}, progression.ErrDuplicateRequest
		}
	}

	req.ID = uuid.New().String()
	stored := req
	repo.db.request.table[req.ID] = &stored
	return req, nil
}

func (repo *progressionRepository) getPromotionRequest(id string) (progression.PromotionRequest, error) {
	repo.db.request.RLock()
	defer repo.db.request.RUnlock()

	if req, ok := repo.db.request.table[id]; ok {
		return *req, nil
	}
	return progression.PromotionRequest{}, progression.ErrNotFound
}

func (repo *progressionRepository) GetPromotionRequest(ctx context.Context, id string, exec ...core.DBExecutor) (progression.PromotionRequest, error) {
	return repo.getPromotionRequest(id)
}

func (repo *progressionRepository) GetPromotionRequestForUpdate(ctx context.Context, id string, exec core.DBExecutor) (progression.PromotionRequest, error) {
	return repo.getPromotionRequest(id)
}

func (repo *progressionRepository) FindPromotionRequest(ctx context.Context, studentID, targetRankID string, statuses []progression.RequestStatus, exec ...core.DBExecutor) (progression.PromotionRequest, error) {
	repo.db.request.RLock()
	defer repo.db.request.RUnlock()

	for _, req := range repo.db.request.table {
		if req.StudentID != studentID || req.ToRankID != targetRankID {
			continue
		}
		for _, status := range statuses {
			if req.Status == status {
				return *req, nil
			}
		}
	}
	return progression.PromotionRequest{}, progression.ErrNotFound
}

func (repo *progressionRepository) UpdatePromotionRequest(ctx context.Context, req progression.PromotionRequest, exec ...core.DBExecutor) (progression.PromotionRequest, error) {
	repo.db.request.Lock()
	defer repo.db.request.Unlock()

	if _, ok := repo.db.request.table[req.ID]; !ok {
		return progression.PromotionRequest{}, progression.ErrNotFound
	}
	stored := req
	repo.db.request.table[req.ID] = &stored
	return req, nil
}

func (repo *progressionRepository) QueryPromotionRequests(ctx context.Context, filter *progression.RequestFilter, exec ...core.DBExecutor) ([]progression.PromotionRequest, error) {
	repo.db.request.RLock()
	reqs := make([]progression.PromotionRequest, 0, len(repo.db.request.table))
	for _, req := range repo.db.request.table {
		if filter != nil {
			if filter.StudentID != "" && req.StudentID != filter.StudentID {
				continue
			}
			if filter.Status != "" && req.Status != filter.Status {
				continue
			}
		}
		reqs = append(reqs, *req)
	}
	repo.db.request.RUnlock()

	sort.Slice(reqs, func(i, j int) bool { return reqs[i].RequestedAt.After(reqs[j].RequestedAt) })
	return reqs, nil
}

func (repo *progressionRepository) CreateHistoryEntry(ctx context.Context, entry progression.HistoryEntry, exec ...core.DBExecutor) (progression.HistoryEntry, error) {
	repo.db.history.Lock()
	defer repo.db.history.Unlock()

	entry.ID = uuid.New().String()
	stored := entry
	repo.db.history.table[entry.ID] = &stored
	return entry, nil
}

func (repo *progressionRepository) QueryHistory(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]progression.HistoryEntry, error) {
	repo.db.history.RLock()
	entries := make([]progression.HistoryEntry, 0)
	for _, entry := range repo.db.history.table {
		if entry.StudentID == studentID {
			entries = append(entries, *entry)
		}
	}
	repo.db.history.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].PromotedAt.After(entries[j].PromotedAt) })
	return entries, nil
}
