package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/dojokit/beltway/core"
	"github.com/dojokit/beltway/core/rank"
)

type rankApi struct {
	svc        *rank.Service
	validate   *validator.Validate
	translator ut.Translator
}

func registerRankAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := rankApi{
		svc:        deps.RankSvc,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	rg := g.Group("/ranks", jwt)
	rg.GET("", api.query)
	rg.GET("/:id", api.retrieve)
	rg.POST("", api.create, capabilityMiddleware(core.CapManageRanks))
}

// Handlers

func (api *rankApi) create(ctx echo.Context) error {
	var data rank.NewRank
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRank")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rnk, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating rank")
	}
	return ctx.JSON(http.StatusCreated, rnk)
}

func (api *rankApi) query(ctx echo.Context) error {
	filter := new(rank.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []rank.Rank{})
	}

	ranks, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying ranks")
	}
	if ranks == nil {
		ranks = []rank.Rank{}
	}
	return ctx.JSON(http.StatusOK, ranks)
}

func (api *rankApi) retrieve(ctx echo.Context) error {
	rnk, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding rank by ID")
	}
	return ctx.JSON(http.StatusOK, rnk)
}
