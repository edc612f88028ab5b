package echoapi

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/anasaran05/learnsync/core"
	"github.com/anasaran05/learnsync/core/progress"
)

type (
	ListResponse struct {
		Success bool              `json:"success"`
		Data    []progress.Record `json:"data"`
	}

	SuccessResponse struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}

	BatchResponse struct {
		Success bool                   `json:"success"`
		Results []progress.BatchResult `json:"results"`
	}
)

var errBatchBody = core.NewValidationError(errors.New("request body must be a JSON array of progress records"))

type progressHandler struct {
	svc progress.Service
}

func registerProgressAPI(api *echo.Group, auth echo.MiddlewareFunc, svc progress.Service) {
	h := progressHandler{svc: svc}
	grp := api.Group("/progress", auth)

	// static routes win over params in echo's router
	grp.POST("/batch", h.batch)
	grp.GET("/:ownerId", h.list, ownerMiddleware)
	grp.POST("/:ownerId", h.update, ownerMiddleware)
}

func (h progressHandler) list(ctx echo.Context) error {
	records, err := h.svc.List(ctx.Request().Context(), ctx.Param("ownerId"))
	if err != nil {
		return errors.Wrap(err, "listing progress")
	}
	if records == nil {
		records = []progress.Record{}
	}
	return ctx.JSON(http.StatusOK, ListResponse{Success: true, Data: records})
}

func (h progressHandler) update(ctx echo.Context) error {
	var rec progress.Record
	if err := ctx.Bind(&rec); err != nil {
		return err
	}
	if err := h.svc.Update(ctx.Request().Context(), ctx.Param("ownerId"), rec); err != nil {
		return errors.Wrap(err, "updating progress")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Progress updated successfully"})
}

func (h progressHandler) batch(ctx echo.Context) error {
	subject, err := getContextSubject(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context subject")
	}

	var items []progress.BatchItem
	if err = json.NewDecoder(ctx.Request().Body).Decode(&items); err != nil {
		return errBatchBody
	}

	results := h.svc.Batch(ctx.Request().Context(), subject, items)
	if results == nil {
		results = []progress.BatchResult{}
	}
	return ctx.JSON(http.StatusOK, BatchResponse{Success: true, Results: results})
}
