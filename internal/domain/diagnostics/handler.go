package diagnostics

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
	doctor := api.Group("/diagnostics", auth.RequireRole(auth.RoleDoctor))
	doctor.POST("", h.Request)
	doctor.GET("/doctor", h.ListForDoctor)
	doctor.POST("/:id/results", h.UploadResults)
	doctor.POST("/:id/cancel", h.Cancel)

	patient := api.Group("/diagnostics", auth.RequireRole(auth.RolePatient))
	patient.GET("/patient", h.ListForPatient)
	patient.POST("/:id/accept", h.Accept)
	patient.POST("/:id/decline", h.Decline)

	either := api.Group("/diagnostics", auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	either.GET("/:id", h.Get)
}

type requestBody struct {
	PatientID string `json:"patient_id" validate:"required,uuid"`
	TestType  string `json:"test_type" validate:"required"`
	Priority  string `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	Notes     string `json:"notes"`
}

type resultBody struct {
	ResultDate     *time.Time `json:"result_date"`
	Findings       string     `json:"findings" validate:"required"`
	Interpretation string     `json:"interpretation"`
	Technician     string     `json:"technician"`
	AttachmentRef  string     `json:"attachment_ref"`
	Notes          string     `json:"notes"`
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
	t, err := h.svc.RequestTest(c.Request().Context(), caller, RequestInput{
		PatientID: uuid.MustParse(body.PatientID),
		TestType:  body.TestType,
		Priority:  Priority(body.Priority),
		Notes:     body.Notes,
	})
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) UploadResults(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var body resultBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&body); err != nil {
		return apperr.HTTP(err)
	}
	r := Result{
		Findings:       body.Findings,
		Interpretation: body.Interpretation,
		Technician:     body.Technician,
		AttachmentRef:  body.AttachmentRef,
		Notes:          body.Notes,
	}
	if body.ResultDate != nil {
		r.ResultDate = body.ResultDate.UTC()
	}
	t, err := h.svc.UploadResults(c.Request().Context(), caller, id, r)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

type transitionFunc func(c echo.Context, caller auth.Caller, id uuid.UUID) (*DiagnosticTest, error)

func (h *Handler) act(c echo.Context, fn transitionFunc) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	t, err := fn(c, caller, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) Accept(c echo.Context) error {
	return h.act(c, func(c echo.Context, caller auth.Caller, id uuid.UUID) (*DiagnosticTest, error) {
		return h.svc.PatientAccept(c.Request().Context(), caller, id)
	})
}

func (h *Handler) Decline(c echo.Context) error {
	return h.act(c, func(c echo.Context, caller auth.Caller, id uuid.UUID) (*DiagnosticTest, error) {
		return h.svc.PatientDecline(c.Request().Context(), caller, id)
	})
}

func (h *Handler) Cancel(c echo.Context) error {
	return h.act(c, func(c echo.Context, caller auth.Caller, id uuid.UUID) (*DiagnosticTest, error) {
		return h.svc.Cancel(c.Request().Context(), caller, id)
	})
}

func (h *Handler) Get(c echo.Context) error {
	return h.act(c, func(c echo.Context, caller auth.Caller, id uuid.UUID) (*DiagnosticTest, error) {
		return h.svc.Get(c.Request().Context(), caller, id)
	})
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
	if items == nil {
		items = []*DiagnosticTest{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
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
	if items == nil {
		items = []*DiagnosticTest{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
