package dummy

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/dojokit/beltway/core"
	"github.com/dojokit/beltway/core/rank"
)

type rankRepository struct {
	db *rankTable
}

var _ rank.Repository = (*rankRepository)(nil) // interface compliance check

func NewRankRepository(db *DB) rank.Repository {
	return &rankRepository{db: db.rank}
}

func (repo *rankRepository) query() []rank.Rank {
	ranks := make([]rank.Rank, 0, len(repo.db.table))
	for _, rnk := range repo.db.table {
		ranks = append(ranks, *rnk)
	}
	return ranks
}

func (repo *rankRepository) CheckCodeUniqueness(ctx context.Context, code string, exec ...core.DBExecutor) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, rnk := range repo.db.table {
		if rnk.Code == code {
			return rank.ErrCodeExists
		}
	}
	return nil
}

func (repo *rankRepository) CreateRank(ctx context.Context, rnk rank.Rank, exec ...core.DBExecutor) (rank.Rank, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.table {
		if existing.Code == rnk.Code {
			return rank.Rank{}, rank.ErrCodeExists
		}
	}

	rnk.ID = uuid.New().String()
	repo.db.table[rnk.ID] = &rnk
	return rnk, nil
}

func (repo *rankRepository) GetRank(ctx context.Context, filter rank.GetFilter, exec ...core.DBExecutor) (rank.Rank, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if rnk, ok := repo.db.table[filter.ID]; ok {
			return *rnk, nil
		}
		return rank.Rank{}, rank.ErrNotFound
	}
	for _, rnk := range repo.db.table {
		if rnk.Code == filter.Code {
			return *rnk, nil
		}
	}
	return rank.Rank{}, rank.ErrNotFound
}

func (repo *rankRepository) QueryRanks(ctx context.Context, filter *rank.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]rank.Rank, error) {
	repo.db.RLock()
	ranks := repo.query()
	repo.db.RUnlock()

	if filter != nil {
		filtered := make([]rank.Rank, 0, len(ranks))
		for _, rnk := range ranks {
			if filter.Category != "" && rnk.Category != filter.Category {
				continue
			}
			if filter.IsActive != nil && rnk.IsActive != *filter.IsActive {
				continue
			}
			filtered = append(filtered, rnk)
		}
		ranks = filtered
	}

	// default (category, ordinal) ordering; overrides are not needed in tests
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Category != ranks[j].Category {
			return ranks[i].Category < ranks[j].Category
		}
		return ranks[i].Ordinal < ranks[j].Ordinal
	})
	return ranks, nil
}
