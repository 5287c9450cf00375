package appointment

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	patient := api.Group("/appointments", auth.RequireRole(auth.RolePatient))
	patient.POST("", h.Request)
	patient.GET("/patient", h.ListForPatient)
	patient.POST("/:id/confirm", h.Confirm)
	patient.PATCH("/:id", h.Update)

	doctor := api.Group("/appointments", auth.RequireRole(auth.RoleDoctor))
	doctor.GET("/doctor", h.ListForDoctor)
	doctor.POST("/:id/respond", h.Respond)
	doctor.POST("/:id/complete", h.Complete)
	doctor.POST("/:id/no-show", h.NoShow)

	either := api.Group("/appointments", auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	either.GET("/:id", h.Get)
	either.GET("/:id/history", h.History)
	either.POST("/:id/cancel", h.Cancel)
}

type requestBody struct {
	DoctorID string `json:"doctor_id" validate:"required,uuid"`
	Date     string `json:"date" validate:"required"`
	Time     string `json:"time" validate:"required,hhmm"`
	Type     string `json:"type" validate:"required,appttype"`
	Reason   string `json:"reason" validate:"required"`
}

type respondBody struct {
	Action string  `json:"action" validate:"required,oneof=accept decline"`
	Notes  *string `json:"notes"`
}

type updateBody struct {
	Notes  *string `json:"notes"`
	Status *string `json:"status"`
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, bool) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
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

func (h *Handler) Request(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	var body requestBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&body); err != nil {
		return apperr.HTTP(err)
	}
	date, ok := parseDate(body.Date)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD or RFC 3339")
	}

	a, err := h.svc.Request(c.Request().Context(), caller, RequestInput{
		DoctorID: uuid.MustParse(body.DoctorID),
		Date:     date,
		Time:     body.Time,
		Type:     VisitType(body.Type),
		Reason:   body.Reason,
	})
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Respond(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var body respondBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&body); err != nil {
		return apperr.HTTP(err)
	}
	a, err := h.svc.DoctorRespond(c.Request().Context(), caller, id, Response(body.Action), body.Notes)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
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
	in := UpdateInput{Notes: body.Notes}
	if body.Status != nil {
		st := Status(*body.Status)
		in.Status = &st
	}
	a, err := h.svc.PatientUpdate(c.Request().Context(), caller, id, in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

type transitionFunc func(svc *Service, ctx context.Context, caller auth.Caller, id uuid.UUID) (*Appointment, error)

func (h *Handler) act(c echo.Context, fn transitionFunc) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	a, err := fn(h.svc, c.Request().Context(), caller, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Confirm(c echo.Context) error  { return h.act(c, (*Service).PatientConfirm) }
func (h *Handler) Complete(c echo.Context) error { return h.act(c, (*Service).Complete) }
func (h *Handler) NoShow(c echo.Context) error   { return h.act(c, (*Service).MarkNoShow) }

// Cancel dispatches on the caller's role. Each side may only cancel its own
// appointments.
func (h *Handler) Cancel(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	if caller.Is(auth.RoleDoctor) {
		return h.act(c, (*Service).DoctorCancel)
	}
	return h.act(c, (*Service).PatientCancel)
}

func (h *Handler) Get(c echo.Context) error { return h.act(c, (*Service).Get) }

func (h *Handler) History(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	items, err := h.svc.History(c.Request().Context(), caller, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListForPatient(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	view, err := h.svc.ListForPatient(c.Request().Context(), caller)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) ListForDoctor(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	view, err := h.svc.ListForDoctor(c.Request().Context(), caller)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, view)
}
