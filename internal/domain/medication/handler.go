package medication

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	reviews := api.Group("/medication-reviews", auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	reviews.POST("", h.CreateReview, auth.RequireRole(auth.RoleDoctor))
	reviews.GET("", h.ListReviews)
	reviews.GET("/:id", h.GetReview)

	recons := api.Group("/reconciliations", auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	recons.POST("", h.CreateReconciliation, auth.RequireRole(auth.RoleDoctor))
	recons.GET("", h.ListReconciliations)
	recons.GET("/:id", h.GetReconciliation)
	recons.POST("/:id/discrepancies", h.AddDiscrepancy, auth.RequireRole(auth.RoleDoctor))
	recons.PATCH("/:id/discrepancies/:discrepancy_id", h.UpdateDiscrepancy, auth.RequireRole(auth.RoleDoctor))
}

type reviewBody struct {
	PatientID      string               `json:"patient_id" validate:"required,uuid"`
	ReviewDate     *time.Time           `json:"review_date"`
	Medications    []ReviewedMedication `json:"medications" validate:"dive"`
	Summary        string               `json:"summary"`
	NextReviewDate *time.Time           `json:"next_review_date"`
}

type discrepancyBody struct {
	Medication  string  `json:"medication" validate:"required"`
	Description string  `json:"description"`
	SourceA     string  `json:"source_a"`
	SourceB     string  `json:"source_b"`
	Status      string  `json:"status" validate:"omitempty,oneof=pending resolved conflict"`
	Resolution  *string `json:"resolution"`
}

func (b discrepancyBody) input() DiscrepancyInput {
	return DiscrepancyInput{
		Medication:  b.Medication,
		Description: b.Description,
		SourceA:     b.SourceA,
		SourceB:     b.SourceB,
		Status:      DiscrepancyStatus(b.Status),
		Resolution:  b.Resolution,
	}
}

type reconciliationBody struct {
	PatientID     string            `json:"patient_id" validate:"required,uuid"`
	Sources       []string          `json:"sources"`
	Discrepancies []discrepancyBody `json:"discrepancies" validate:"dive"`
}

type discrepancyUpdateBody struct {
	Status     string  `json:"status" validate:"required,oneof=pending resolved conflict"`
	Resolution *string `json:"resolution"`
}

func callerOf(c echo.Context) (auth.Caller, error) {
	caller, ok := auth.CallerFromContext(c.Request().Context())
	if !ok {
		return auth.Caller{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return caller, nil
}

func uuidParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func bindValid(c echo.Context, body interface{}) error {
	if err := c.Bind(body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(body); err != nil {
		return apperr.HTTP(err)
	}
	return nil
}

// -- Review handlers --

func (h *Handler) CreateReview(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	var body reviewBody
	if err := bindValid(c, &body); err != nil {
		return err
	}
	in := ReviewInput{
		PatientID:      uuid.MustParse(body.PatientID),
		Medications:    body.Medications,
		Summary:        body.Summary,
		NextReviewDate: body.NextReviewDate,
	}
	if body.ReviewDate != nil {
		in.ReviewDate = body.ReviewDate.UTC()
	}
	v, err := h.svc.CreateReview(c.Request().Context(), caller, in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) GetReview(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	v, err := h.svc.GetReview(c.Request().Context(), caller, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ListReviews(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListReviews(c.Request().Context(), caller, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Review{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

// -- Reconciliation handlers --

func (h *Handler) CreateReconciliation(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	var body reconciliationBody
	if err := bindValid(c, &body); err != nil {
		return err
	}
	in := ReconciliationInput{
		PatientID: uuid.MustParse(body.PatientID),
		Sources:   body.Sources,
	}
	for _, d := range body.Discrepancies {
		in.Discrepancies = append(in.Discrepancies, d.input())
	}
	rc, err := h.svc.CreateReconciliation(c.Request().Context(), caller, in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, rc)
}

func (h *Handler) AddDiscrepancy(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var body discrepancyBody
	if err := bindValid(c, &body); err != nil {
		return err
	}
	rc, err := h.svc.AddDiscrepancy(c.Request().Context(), caller, id, body.input())
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, rc)
}

func (h *Handler) UpdateDiscrepancy(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	discrepancyID, err := uuidParam(c, "discrepancy_id")
	if err != nil {
		return err
	}
	var body discrepancyUpdateBody
	if err := bindValid(c, &body); err != nil {
		return err
	}
	rc, err := h.svc.UpdateDiscrepancy(c.Request().Context(), caller, id, discrepancyID,
		DiscrepancyStatus(body.Status), body.Resolution)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, rc)
}

func (h *Handler) GetReconciliation(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	rc, err := h.svc.GetReconciliation(c.Request().Context(), caller, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, rc)
}

func (h *Handler) ListReconciliations(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListReconciliations(c.Request().Context(), caller, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Reconciliation{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
