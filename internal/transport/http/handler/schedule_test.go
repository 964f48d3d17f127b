package handler_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/internal/cron"
	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
	"github.com/ganeshmittapally/ReportScheduler/internal/repository"
	"github.com/ganeshmittapally/ReportScheduler/internal/transport/http/handler"
	"github.com/ganeshmittapally/ReportScheduler/internal/transport/http/middleware"
	"github.com/ganeshmittapally/ReportScheduler/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "schedule-handler-test-secret-32!"

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeScheduleRepo and friends are the handler_test mirrors of
// usecase.fakeScheduleRepo/fakeDefinitionRepo/fakeTenantRepo — duplicated
// here since those are unexported to their own package.
type fakeScheduleRepo struct {
	schedules map[string]*domain.Schedule
	nextID    int
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{schedules: make(map[string]*domain.Schedule)}
}

func (f *fakeScheduleRepo) Create(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	f.nextID++
	s.ID = string(rune('a' + f.nextID))
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	f.schedules[s.ID] = &cp
	return &cp, nil
}

func (f *fakeScheduleRepo) Find(ctx context.Context, id, tenantID string) (*domain.Schedule, error) {
	s, ok := f.schedules[id]
	if !ok || s.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeScheduleRepo) List(ctx context.Context, input repository.ListSchedulesInput) ([]*domain.Schedule, error) {
	var out []*domain.Schedule
	for _, s := range f.schedules {
		if s.TenantID == input.TenantID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeScheduleRepo) Update(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	if _, ok := f.schedules[s.ID]; !ok {
		return nil, domain.ErrNotFound
	}
	s.UpdatedAt = time.Now().UTC()
	cp := *s
	f.schedules[s.ID] = &cp
	return &cp, nil
}

func (f *fakeScheduleRepo) Delete(ctx context.Context, id, tenantID string) (bool, error) {
	s, ok := f.schedules[id]
	if !ok || s.TenantID != tenantID {
		return false, nil
	}
	delete(f.schedules, id)
	return true, nil
}

func (f *fakeScheduleRepo) Count(ctx context.Context, tenantID string, active *bool) (int, error) {
	count := 0
	for _, s := range f.schedules {
		if s.TenantID != tenantID {
			continue
		}
		if active != nil && s.Active != *active {
			continue
		}
		count++
	}
	return count, nil
}

func (f *fakeScheduleRepo) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.Schedule, error) {
	return nil, nil
}

func (f *fakeScheduleRepo) AdvanceBatch(ctx context.Context, schedules []*domain.Schedule) error {
	return nil
}

type fakeDefinitionRepo struct {
	definitions map[string]*domain.ReportDefinition
}

func (f *fakeDefinitionRepo) Find(ctx context.Context, id, tenantID string) (*domain.ReportDefinition, error) {
	d, ok := f.definitions[id]
	if !ok || d.TenantID != tenantID {
		return nil, domain.ErrDefinitionMissing
	}
	return d, nil
}

type fakeTenantRepo struct {
	tenants map[string]*domain.Tenant
}

func (f *fakeTenantRepo) Find(ctx context.Context, id string) (*domain.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

// newTestRouter wires a real ScheduleUsecase over in-memory fakes behind the
// real Auth middleware, mirroring how cmd/api assembles the router.
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	schedules := newFakeScheduleRepo()
	definitions := &fakeDefinitionRepo{definitions: map[string]*domain.ReportDefinition{
		"def-1": {ID: "def-1", TenantID: "tenant-a"},
	}}
	tenants := &fakeTenantRepo{tenants: map[string]*domain.Tenant{
		"tenant-a": {ID: "tenant-a", Tier: domain.TierStandard, Active: true},
	}}

	uc := usecase.NewScheduleUsecase(schedules, definitions, tenants, cron.NewEvaluator())
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	h := handler.NewScheduleHandler(uc, cron.NewEvaluator(), logger)

	r := gin.New()
	v1 := r.Group("/v1", middleware.Auth(middleware.AuthConfig{Secret: []byte(testSecret)}))
	sch := v1.Group("/schedules")
	sch.POST("", h.Create)
	sch.GET("", h.List)
	sch.POST("/cron/preview", h.PreviewCron)
	sch.GET("/:id", h.GetByID)
	sch.PUT("/:id", h.Update)
	sch.DELETE("/:id", h.Delete)
	sch.PATCH("/:id/pause", h.Pause)
	sch.PATCH("/:id/resume", h.Resume)
	return r
}

func bearerFor(t *testing.T, tenantID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"tenant_id": tenantID,
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	return "Bearer " + s
}

func doRequest(r *gin.Engine, method, path, body, auth string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestCreate_NoToken_Returns401(t *testing.T) {
	r := newTestRouter(t)
	w := doRequest(r, http.MethodPost, "/v1/schedules", `{}`, "")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestCreate_MissingFields_Returns400(t *testing.T) {
	r := newTestRouter(t)
	w := doRequest(r, http.MethodPost, "/v1/schedules", `{}`, bearerFor(t, "tenant-a"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreate_Success_Returns201(t *testing.T) {
	r := newTestRouter(t)
	body := `{"report_definition_id":"def-1","name":"weekly","cron_expression":"0 9 * * MON","timezone":"UTC"}`
	w := doRequest(r, http.MethodPost, "/v1/schedules", body, bearerFor(t, "tenant-a"))

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201, body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"is_active":true`) {
		t.Errorf("body = %s, want is_active true", w.Body.String())
	}
}

func TestCreate_InvalidCron_Returns400(t *testing.T) {
	r := newTestRouter(t)
	body := `{"report_definition_id":"def-1","name":"weekly","cron_expression":"not a cron","timezone":"UTC"}`
	w := doRequest(r, http.MethodPost, "/v1/schedules", body, bearerFor(t, "tenant-a"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400, body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "INVALID_CRON") {
		t.Errorf("body = %s, want INVALID_CRON code", w.Body.String())
	}
}

func TestCreate_UnknownDefinition_Returns404(t *testing.T) {
	r := newTestRouter(t)
	body := `{"report_definition_id":"missing","name":"weekly","cron_expression":"0 9 * * MON","timezone":"UTC"}`
	w := doRequest(r, http.MethodPost, "/v1/schedules", body, bearerFor(t, "tenant-a"))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404, body=%s", w.Code, w.Body.String())
	}
}

func TestGetByID_CrossTenant_Returns404(t *testing.T) {
	r := newTestRouter(t)
	body := `{"report_definition_id":"def-1","name":"weekly","cron_expression":"0 9 * * MON","timezone":"UTC"}`
	createResp := doRequest(r, http.MethodPost, "/v1/schedules", body, bearerFor(t, "tenant-a"))
	if createResp.Code != http.StatusCreated {
		t.Fatalf("setup create failed: %d %s", createResp.Code, createResp.Body.String())
	}

	w := doRequest(r, http.MethodGet, "/v1/schedules/b", "", bearerFor(t, "tenant-b"))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for cross-tenant access", w.Code)
	}
}

func TestPauseThenResume_RoundTrip(t *testing.T) {
	r := newTestRouter(t)
	body := `{"report_definition_id":"def-1","name":"weekly","cron_expression":"0 9 * * MON","timezone":"UTC"}`
	created := doRequest(r, http.MethodPost, "/v1/schedules", body, bearerFor(t, "tenant-a"))
	if created.Code != http.StatusCreated {
		t.Fatalf("setup create failed: %d %s", created.Code, created.Body.String())
	}

	paused := doRequest(r, http.MethodPatch, "/v1/schedules/b/pause", "", bearerFor(t, "tenant-a"))
	if paused.Code != http.StatusOK {
		t.Fatalf("pause: %d %s", paused.Code, paused.Body.String())
	}
	if !strings.Contains(paused.Body.String(), `"is_active":false`) {
		t.Errorf("body = %s, want is_active false after pause", paused.Body.String())
	}

	resumed := doRequest(r, http.MethodPatch, "/v1/schedules/b/resume", "", bearerFor(t, "tenant-a"))
	if resumed.Code != http.StatusOK {
		t.Fatalf("resume: %d %s", resumed.Code, resumed.Body.String())
	}
	if !strings.Contains(resumed.Body.String(), `"is_active":true`) {
		t.Errorf("body = %s, want is_active true after resume", resumed.Body.String())
	}
}

func TestDelete_Success_Returns204(t *testing.T) {
	r := newTestRouter(t)
	body := `{"report_definition_id":"def-1","name":"weekly","cron_expression":"0 9 * * MON","timezone":"UTC"}`
	created := doRequest(r, http.MethodPost, "/v1/schedules", body, bearerFor(t, "tenant-a"))
	if created.Code != http.StatusCreated {
		t.Fatalf("setup create failed: %d %s", created.Code, created.Body.String())
	}

	w := doRequest(r, http.MethodDelete, "/v1/schedules/b", "", bearerFor(t, "tenant-a"))
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}

	getAfter := doRequest(r, http.MethodGet, "/v1/schedules/b", "", bearerFor(t, "tenant-a"))
	if getAfter.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 after delete", getAfter.Code)
	}
}

func TestPreviewCron_Success_Returns200(t *testing.T) {
	r := newTestRouter(t)
	body := `{"cron_expression":"0 9 * * MON","timezone":"UTC","count":3}`
	w := doRequest(r, http.MethodPost, "/v1/schedules/cron/preview", body, bearerFor(t, "tenant-a"))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "next_runs") {
		t.Errorf("body = %s, want next_runs field", w.Body.String())
	}
}

func TestPreviewCron_InvalidExpression_Returns400(t *testing.T) {
	r := newTestRouter(t)
	body := `{"cron_expression":"garbage","timezone":"UTC"}`
	w := doRequest(r, http.MethodPost, "/v1/schedules/cron/preview", body, bearerFor(t, "tenant-a"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
