package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/dojokit/beltway/core"
	"github.com/dojokit/beltway/core/progression"
)

type progressionApi struct {
	svc        *progression.Service
	policy     progression.EligibilityPolicy
	validate   *validator.Validate
	translator ut.Translator
}

func registerProgressionAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := progressionApi{
		svc: deps.ProgSvc,
		policy: progression.EligibilityPolicy{
			MinDegrees:         deps.Conf.Graduation.EligibilityMinDegrees,
			MinTotalAttendance: deps.Conf.Graduation.EligibilityMinAttendance,
		},
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	sg := g.Group("/students/:id", jwt)
	sg.POST("/progression", api.start, capabilityMiddleware(core.CapManagePromotions))
	sg.GET("/progression", api.status)
	sg.POST("/attendance", api.recordAttendance, capabilityMiddleware(core.CapRecordAttendance))
	sg.DELETE("/attendance", api.cancelAttendance, capabilityMiddleware(core.CapRecordAttendance))
	sg.POST("/degrees", api.grantDegree, capabilityMiddleware(core.CapGrantDegree))
	sg.GET("/degrees", api.degreeHistory)
	sg.GET("/history", api.rankHistory)

	pg := g.Group("/promotions", jwt)
	pg.POST("", api.requestPromotion, capabilityMiddleware(core.CapRequestPromotions))
	pg.GET("", api.queryPromotions)
	pg.GET("/:id", api.retrievePromotion)
	pg.POST("/:id/approve", api.approvePromotion, capabilityMiddleware(core.CapManagePromotions))
	pg.POST("/:id/cancel", api.cancelPromotion, capabilityMiddleware(core.CapManagePromotions))

	g.GET("/graduation/eligible", api.listEligible, jwt)
}

// Handlers

func (api *progressionApi) start(ctx echo.Context) error {
	var data progression.StartProgression
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StartProgression")
	}
	data.StudentID = ctx.Param("id")
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.Start(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "starting progression")
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *progressionApi) status(ctx echo.Context) error {
	status, err := api.svc.Status(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting progression status")
	}
	return ctx.JSON(http.StatusOK, status)
}

func (api *progressionApi) recordAttendance(ctx echo.Context) error {
	res, err := api.svc.RecordAttendance(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "recording attendance")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *progressionApi) cancelAttendance(ctx echo.Context) error {
	rec, err := api.svc.CancelAttendance(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling attendance")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *progressionApi) grantDegree(ctx echo.Context) error {
	var data progression.GrantDegree
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GrantDegree")
	}
	data.StudentID = ctx.Param("id")
	if data.Issuer == "" {
		if claims, err := getContextClaims(ctx); err == nil {
			data.Issuer = claims.Subject
		}
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	grant, err := api.svc.GrantDegree(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "granting degree")
	}
	return ctx.JSON(http.StatusCreated, grant)
}

func (api *progressionApi) degreeHistory(ctx echo.Context) error {
	grants, err := api.svc.DegreeHistory(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying degree history")
	}
	return ctx.JSON(http.StatusOK, grants)
}

func (api *progressionApi) rankHistory(ctx echo.Context) error {
	entries, err := api.svc.RankHistory(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying rank history")
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *progressionApi) requestPromotion(ctx echo.Context) error {
	var data progression.NewPromotionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPromotionRequest")
	}
	if data.RequestedBy == "" {
		if claims, err := getContextClaims(ctx); err == nil {
			data.RequestedBy = claims.Subject
		}
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	req, err := api.svc.RequestPromotion(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "requesting promotion")
	}
	return ctx.JSON(http.StatusCreated, req)
}

func (api *progressionApi) queryPromotions(ctx echo.Context) error {
	filter := new(progression.RequestFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []progression.PromotionRequest{})
	}

	reqs, err := api.svc.QueryRequests(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying promotion requests")
	}
	if reqs == nil {
		reqs = []progression.PromotionRequest{}
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *progressionApi) retrievePromotion(ctx echo.Context) error {
	req, err := api.svc.GetRequest(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding promotion request")
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *progressionApi) decision(ctx echo.Context) (progression.Decision, error) {
	var dec progression.Decision
	if err := ctx.Bind(&dec); err != nil {
		return dec, errors.Wrap(err, "binding to Decision")
	}
	if dec.DecidedBy == "" {
		if claims, err := getContextClaims(ctx); err == nil {
			dec.DecidedBy = claims.Subject
		}
	}
	return dec, dec.Validate(api.validate)
}

func (api *progressionApi) approvePromotion(ctx echo.Context) error {
	dec, err := api.decision(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.ApprovePromotion(ctx.Request().Context(), ctx.Param("id"), dec)
	if err != nil {
		return errors.Wrap(err, "approving promotion")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *progressionApi) cancelPromotion(ctx echo.Context) error {
	dec, err := api.decision(ctx)
	if err != nil {
		return err
	}

	req, err := api.svc.CancelPromotion(ctx.Request().Context(), ctx.Param("id"), dec)
	if err != nil {
		return errors.Wrap(err, "cancelling promotion")
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *progressionApi) listEligible(ctx echo.Context) error {
	filter := new(progression.CandidateFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []progression.Candidate{})
	}

	candidates, err := api.svc.ListEligible(ctx.Request().Context(), api.policy, filter)
	if err != nil {
		return errors.Wrap(err, "listing eligible students")
	}
	if candidates == nil {
		candidates = []progression.Candidate{}
	}
	return ctx.JSON(http.StatusOK, candidates)
}
