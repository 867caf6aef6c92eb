package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/crowdforge/launcher/internal/core"
	"github.com/crowdforge/launcher/internal/escrow"
	"github.com/crowdforge/launcher/internal/orchestrator"
	"github.com/crowdforge/launcher/internal/scheduler"
	"github.com/crowdforge/launcher/internal/store"
	"github.com/crowdforge/launcher/internal/webhook"
)

func testRouter(t *testing.T) (http.Handler, *store.JobRepository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	jobs := store.NewJobRepository(db)
	delivery := webhook.NewService(store.NewWebhookRepository(db),
		webhook.NewStaticRegistry(map[core.OracleType]string{}),
		core.RetryPolicy{MaxRetries: 3}, "", 1)
	orch := orchestrator.New(jobs, scheduler.NewLockManager(store.NewLockRepository(db)),
		nil, nil, delivery, orchestrator.Config{MaxRetries: 3})

	return New(orch).Router(), jobs
}

func TestHealth(t *testing.T) {
	router, _ := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", rec.Code)
	}
}

func TestMetricsExposed(t *testing.T) {
	router, _ := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", rec.Code)
	}
}

func TestWebhook_MalformedBody(t *testing.T) {
	router, _ := testRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte("{not json")))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("POST /webhook with garbage = %d, want 400", rec.Code)
	}
}

func TestWebhook_UnknownEscrow(t *testing.T) {
	router, _ := testRouter(t)

	body, _ := json.Marshal(map[string]any{
		"chain_id":       137,
		"escrow_address": "0x00000000000000000000000000000000000000ff",
		"event_type":     "escrow_completed",
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body)))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("POST /webhook for unknown escrow = %d, want 404", rec.Code)
	}
}

func TestWebhook_CompletesJob(t *testing.T) {
	router, jobs := testRouter(t)

	address := escrow.NormalizeAddress("0x00000000000000000000000000000000000000aa")
	job := &store.Job{
		Status:        core.JobStatusLaunched,
		WaitUntil:     time.Now(),
		ChainID:       137,
		EscrowAddress: &address,
	}
	if err := jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("seeding job: %v", err)
	}

	body, _ := json.Marshal(map[string]any{
		"chain_id":       137,
		"escrow_address": address,
		"event_type":     "escrow_completed",
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("POST /webhook = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	got, err := jobs.FindByID(context.Background(), job.ID)
	if err != nil || got == nil {
		t.Fatalf("reloading job: %v", err)
	}
	if got.Status != core.JobStatusCompleted {
		t.Errorf("job status = %s, want completed", got.Status)
	}
}
