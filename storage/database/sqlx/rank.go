package sqlxrepos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/dojokit/beltway/core"
	"github.com/dojokit/beltway/core/rank"
)

// psql builds queries with $N placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// isUniqueViolation reports whether err is a postgres unique_violation.
func isUniqueViolation(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == "23505"
}

var rankColumns = []string{
	"id", "code", "name", "color_hex", "category", "ordinal",
	"max_degrees", "classes_per_degree", "is_active", "created_at", "updated_at",
}

type rankRepository struct {
	exec core.DBExecutor
}

var _ rank.Repository = (*rankRepository)(nil) // interface compliance check

func NewRankRepository(exec core.DBExecutor) *rankRepository {
	return &rankRepository{exec: exec}
}

func (repo rankRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

// trapNoRowsErr maps psql "no rows" err to rank.ErrNotFound
func (repo rankRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return rank.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo rankRepository) CheckCodeUniqueness(ctx context.Context, code string, exec ...core.DBExecutor) error {
	query, args, err := psql.Select("1").From("rank_def").Where(sq.Eq{"code": code}).Limit(1).ToSql()
	if err != nil {
		return errors.Wrap(err, "building rank uniqueness query")
	}
	var one int
	if err = repo.getExec(exec).GetContext(ctx, &one, query, args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return nil
		}
		return errors.Wrap(err, "checking rank code uniqueness")
	}
	return rank.ErrCodeExists
}

func (repo rankRepository) CreateRank(ctx context.Context, rnk rank.Rank, exec ...core.DBExecutor) (rank.Rank, error) {
	rnk.ID = uuid.New().String()
	query, args, err := psql.Insert("rank_def").
		Columns(rankColumns...).
		Values(rnk.ID, rnk.Code, rnk.Name, rnk.ColorHex, rnk.Category, rnk.Ordinal,
			rnk.MaxDegrees, rnk.ClassesPerDegree, rnk.IsActive, rnk.CreatedAt, rnk.UpdatedAt).
		ToSql()
	if err != nil {
		return rank.Rank{}, errors.Wrap(err, "building rank insert")
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return rank.Rank{}, rank.ErrCodeExists
		}
		return rank.Rank{}, errors.Wrap(err, "inserting rank")
	}
	return rnk, nil
}

func (repo rankRepository) GetRank(ctx context.Context, filter rank.GetFilter, exec ...core.DBExecutor) (rank.Rank, error) {
	q := psql.Select(rankColumns...).From("rank_def")
	if filter.ID != "" {
		if _, err := uuid.Parse(filter.ID); err != nil {
			return rank.Rank{}, rank.ErrNotFound
		}
		q = q.Where(sq.Eq{"id": filter.ID})
	} else {
		q = q.Where(sq.Eq{"code": filter.Code})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return rank.Rank{}, errors.Wrap(err, "building rank query")
	}

	var rnk rank.Rank
	if err = repo.getExec(exec).GetContext(ctx, &rnk, query, args...); err != nil {
		return rank.Rank{}, repo.trapNoRowsErr(err, "finding rank")
	}
	return rnk, nil
}

func (repo rankRepository) QueryRanks(ctx context.Context, filter *rank.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]rank.Rank, error) {
	q := psql.Select(rankColumns...).From("rank_def")

	if filter != nil {
		if filter.Category != "" {
			q = q.Where(sq.Eq{"category": filter.Category})
		}
		if filter.IsActive != nil {
			q = q.Where(sq.Eq{"is_active": *filter.IsActive})
		}
	}

	if len(ordering) > 0 {
		for _, ord := range ordering {
			q = q.OrderBy(ord.String())
		}
	} else {
		q = q.OrderBy("category ASC", "ordinal ASC")
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building ranks query")
	}

	ranks := make([]rank.Rank, 0)
	if err = repo.getExec(exec).SelectContext(ctx, &ranks, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying ranks")
	}
	return ranks, nil
}
