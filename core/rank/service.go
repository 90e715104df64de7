package rank

import (
	"context"
	"errors"

	"github.com/dojokit/beltway/core"
)

var (
	// errors
	ErrNotFound     = errors.New("rank not found")
	ErrCodeExists   = errors.New("a rank with this code already exists")
	ErrTerminalRank = errors.New("rank is the terminus of its category")
)

type (
	Repository interface {
		CheckCodeUniqueness(ctx context.Context, code string, exec ...core.DBExecutor) error
		CreateRank(ctx context.Context, rnk Rank, exec ...core.DBExecutor) (Rank, error)
		GetRank(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Rank, error)
		// QueryRanks applies AND operation on available QueryFilter fields;
		// results are ordered by (category, ordinal) ascending unless overridden.
		QueryRanks(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Rank, error)
	}

	Service struct {
		repo  Repository
		clock core.Clock
	}
)

func NewService(repo Repository, clock core.Clock) *Service {
	return &Service{repo: repo, clock: clock}
}

func (svc *Service) checkUniqueness(ctx context.Context, code string) error {
	if err := svc.repo.CheckCodeUniqueness(ctx, code); err != nil {
		if err == ErrCodeExists {
			return core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nr NewRank) (Rank, error) {
	if err := svc.checkUniqueness(ctx, nr.Code); err != nil {
		return Rank{}, err
	}
	now := svc.clock.Now()
	rnk := Rank{
		Code:             nr.Code,
		Name:             nr.Name,
		ColorHex:         nr.ColorHex,
		Category:         nr.Category,
		Ordinal:          nr.Ordinal,
		MaxDegrees:       nr.MaxDegrees,
		ClassesPerDegree: nr.ClassesPerDegree,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return svc.repo.CreateRank(ctx, rnk)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Rank, error) {
	return svc.repo.GetRank(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByCode(ctx context.Context, code string) (Rank, error) {
	return svc.repo.GetRank(ctx, GetFilter{Code: core.CleanString(code, true /* upper */)})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]Rank, error) {
	return svc.repo.QueryRanks(ctx, filter, nil)
}

// NextRank returns the active rank in current's category with the smallest
// ordinal strictly greater than current's, or ErrTerminalRank at the
// category's terminus.
func (svc *Service) NextRank(ctx context.Context, current Rank) (Rank, error) {
	above, err := svc.RanksAbove(ctx, current)
	if err != nil {
		return Rank{}, err
	}
	if len(above) == 0 {
		return Rank{}, ErrTerminalRank
	}
	return above[0], nil
}

// RanksAbove returns all active ranks in current's category with an ordinal
// strictly greater than current's, ascending. Cross-category ordinals are
// never compared.
func (svc *Service) RanksAbove(ctx context.Context, current Rank) ([]Rank, error) {
	active := true
	ranks, err := svc.repo.QueryRanks(ctx, &QueryFilter{Category: current.Category, IsActive: &active}, nil)
	if err != nil {
		return nil, err
	}
	above := make([]Rank, 0, len(ranks))
	for _, rnk := range ranks {
		if rnk.Ordinal > current.Ordinal {
			above = append(above, rnk)
		}
	}
	return above, nil
}

// IsPromotionTarget reports whether target is a valid promotion destination
// from current: active, same category, strictly higher ordinal.
func IsPromotionTarget(current, target Rank) bool {
	return target.IsActive && target.Category == current.Category && target.Ordinal > current.Ordinal
}
