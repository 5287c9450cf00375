package prescription

import (
	"net/http"

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
	doctor := api.Group("/prescriptions", auth.RequireRole(auth.RoleDoctor))
	doctor.POST("", h.Create)
	doctor.GET("/doctor", h.ListForDoctor)
	doctor.PATCH("/:id", h.Update)
	doctor.DELETE("/:id", h.Delete)

	patient := api.Group("/prescriptions", auth.RequireRole(auth.RolePatient))
	patient.GET("/patient", h.ListForPatient)

	either := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	either.GET("/prescriptions/:id", h.Read)
	either.GET("/appointments/:id/prescriptions", h.ListForAppointment)
}

// createBody has no patient field; the patient comes from the appointment.
type createBody struct {
	AppointmentID string       `json:"appointment_id" validate:"required,uuid"`
	Diagnosis     string       `json:"diagnosis" validate:"required"`
	Medications   []Medication `json:"medications" validate:"required,min=1,dive"`
	Notes         string       `json:"notes"`
}

type updateBody struct {
	Diagnosis   *string      `json:"diagnosis"`
	Medications []Medication `json:"medications" validate:"omitempty,min=1,dive"`
	Notes       *string      `json:"notes"`
	Status      *string      `json:"status" validate:"omitempty,oneof=active completed cancelled"`
}

func callerOf(c echo.Context) (auth.Caller, error) {
	caller, ok := auth.CallerFromContext(c.Request().Context())
	if !ok {
		return auth.Caller{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return caller, nil
}

func idParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	var body createBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&body); err != nil {
		return apperr.HTTP(err)
	}
	p, err := h.svc.Create(c.Request().Context(), caller, CreateInput{
		AppointmentID: uuid.MustParse(body.AppointmentID),
		Diagnosis:     body.Diagnosis,
		Medications:   body.Medications,
		Notes:         body.Notes,
	})
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Update(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var body updateBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&body); err != nil {
		return apperr.HTTP(err)
	}
	patch := Patch{Diagnosis: body.Diagnosis, Medications: body.Medications, Notes: body.Notes}
	if body.Status != nil {
		st := Status(*body.Status)
		patch.Status = &st
	}
	p, err := h.svc.Update(c.Request().Context(), caller, id, patch)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Delete(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), caller, id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Read(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Read(c.Request().Context(), caller, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func listResponse(c echo.Context, items []*Prescription, total int, pg pagination.Params) error {
	if items == nil {
		items = []*Prescription{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListForPatient(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForPatient(c.Request().Context(), caller, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return listResponse(c, items, total, pg)
}

func (h *Handler) ListForDoctor(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForDoctor(c.Request().Context(), caller, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return listResponse(c, items, total, pg)
}

func (h *Handler) ListForAppointment(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForAppointment(c.Request().Context(), caller, id, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return listResponse(c, items, total, pg)
}
