package diagnostics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/validate"
	"github.com/telecare/telecare/pkg/pagination"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	e := echo.New()
	e.Validator = validate.New()
	return NewHandler(f.svc), f, e
}

func contextAs(e *echo.Echo, req *http.Request, caller auth.Caller) (echo.Context, *httptest.ResponseRecorder) {
	req = req.WithContext(auth.WithCaller(req.Context(), caller))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	return he.Code
}

func withID(c echo.Context, id uuid.UUID) {
	c.SetParamNames("id")
	c.SetParamValues(id.String())
}

func TestHandler_Request(t *testing.T) {
	h, f, e := newTestHandler()
	body := `{"patient_id":"` + f.profileID.String() + `","test_type":"Lipid panel","priority":"high"}`

	c, rec := contextAs(e, jsonRequest(http.MethodPost, body), f.doctor)
	if err := h.Request(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var got DiagnosticTest
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Priority != PriorityHigh || got.DoctorID != f.doctor.ID {
		t.Errorf("unexpected test %+v", got)
	}
}

func TestHandler_Request_Invalid(t *testing.T) {
	h, f, e := newTestHandler()
	cases := map[string]string{
		"bad patient":  `{"patient_id":"nope","test_type":"CBC"}`,
		"no test type": `{"patient_id":"` + f.profileID.String() + `"}`,
		"bad priority": `{"patient_id":"` + f.profileID.String() + `","test_type":"CBC","priority":"asap"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			c, _ := contextAs(e, jsonRequest(http.MethodPost, body), f.doctor)
			if code := statusOf(t, h.Request(c)); code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", code)
			}
		})
	}
}

func TestHandler_AcceptTwice(t *testing.T) {
	h, f, e := newTestHandler()
	d := f.request(t)

	c, rec := contextAs(e, httptest.NewRequest(http.MethodPost, "/", nil), f.patient)
	withID(c, d.ID)
	if err := h.Accept(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	c, _ = contextAs(e, httptest.NewRequest(http.MethodPost, "/", nil), f.patient)
	withID(c, d.ID)
	if code := statusOf(t, h.Decline(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_UploadResults(t *testing.T) {
	h, f, e := newTestHandler()
	d := f.request(t)

	c, _ := contextAs(e, jsonRequest(http.MethodPost, `{"interpretation":"no findings"}`), f.doctor)
	withID(c, d.ID)
	if code := statusOf(t, h.UploadResults(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400 without findings, got %d", code)
	}

	c, rec := contextAs(e, jsonRequest(http.MethodPost, `{"findings":"LDL 3.1 mmol/L","result_date":"2026-03-02T09:00:00Z"}`), f.doctor)
	withID(c, d.ID)
	if err := h.UploadResults(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got DiagnosticTest
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCompleted || !got.HasResults || got.Result.ResultDate.Year() != 2026 {
		t.Errorf("unexpected test %+v", got)
	}
}

func TestHandler_Get_BadID(t *testing.T) {
	h, f, e := newTestHandler()
	c, _ := contextAs(e, httptest.NewRequest(http.MethodGet, "/", nil), f.patient)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	if code := statusOf(t, h.Get(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_ListForDoctor(t *testing.T) {
	h, f, e := newTestHandler()
	f.request(t)

	c, rec := contextAs(e, httptest.NewRequest(http.MethodGet, "/", nil), f.doctor)
	if err := h.ListForDoctor(c); err != nil {
		t.Fatal(err)
	}
	var resp pagination.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 {
		t.Errorf("expected 1 test, got %+v", resp)
	}
}

func TestHandler_Unauthenticated(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if code := statusOf(t, h.ListForPatient(c)); code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", code)
	}
}
