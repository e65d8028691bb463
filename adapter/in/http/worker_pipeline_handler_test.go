package http

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"campaign_worker/adapter/out/persistence"
	"campaign_worker/core/domain"
	"campaign_worker/core/port/out"
	"campaign_worker/core/service/experiment"
	"campaign_worker/core/service/pipeline"
	"campaign_worker/core/service/review"
	"campaign_worker/infra/middleware"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type fakeJobs struct {
	jobs []*out.PipelineRunJob
	err  error
}

func (f *fakeJobs) PublishPipelineRun(_ context.Context, job *out.PipelineRunJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func newTestServer(t *testing.T, jobs out.JobProducer) *fiber.App {
	t.Helper()

	store := persistence.NewMemoryStateStore()
	reviews := review.NewService(store)
	coord, err := pipeline.NewCoordinator(pipeline.Config{Store: store, Review: reviews})
	if err != nil {
		t.Fatal(err)
	}
	assigner, err := experiment.NewAssigner(experiment.DefaultSplit(), "", "")
	if err != nil {
		t.Fatal(err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		DisableStartupMessage: true,
	})
	app.Use(middleware.RequestID())

	h := NewPipelineHandler(PipelineHandlerConfig{
		Pipeline: coord,
		Assigner: assigner,
		Reviews:  reviews,
		Jobs:     jobs,
	})
	h.Register(app.Group("/api/v1"))
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	return resp.StatusCode, env
}

const paymentPlansBody = `{"customer":{
	"id":"c-100","email":"ana@example.com","first_name":"Ana",
	"viewed_page":"payment_plans","form_started":"yes","scheduled":"no","attended":"no"}}`

func TestOrchestrate(t *testing.T) {
	app := newTestServer(t, nil)

	status, env := do(t, app, "POST", "/api/v1/orchestrate", paymentPlansBody)
	if status != 200 || !env.Success {
		t.Fatalf("status = %d, success = %v, error = %+v", status, env.Success, env.Error)
	}

	var state domain.PipelineState
	if err := json.Unmarshal(env.Data, &state); err != nil {
		t.Fatal(err)
	}
	if state.Outcome != domain.OutcomeCompletedWithWinner {
		t.Errorf("outcome = %s", state.Outcome)
	}
	if state.Segment == nil || state.Segment.Segment != "payment_plans:StartedFormOrFlow" {
		t.Errorf("segment = %+v", state.Segment)
	}
	if len(state.Variants) < 2 {
		t.Errorf("expected at least 2 variants, got %d", len(state.Variants))
	}
	if state.Delivery == nil || state.Delivery.Status != domain.DeliveryDryRun {
		t.Errorf("delivery = %+v", state.Delivery)
	}
}

func TestOrchestrateValidation(t *testing.T) {
	app := newTestServer(t, nil)

	tests := []struct {
		name     string
		body     string
		wantCode string
		status   int
	}{
		{"missing customer", `{}`, "MISSING_FIELD", 400},
		{"bad json", `{"customer":`, "BAD_REQUEST", 400},
		{"async without queue", `{"customer":{"id":"x"},"async":true}`, "UNAVAILABLE", 503},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, app, "POST", "/api/v1/orchestrate", tt.body)
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if env.Error.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", env.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestOrchestrateAsync(t *testing.T) {
	jobs := &fakeJobs{}
	app := newTestServer(t, jobs)

	status, env := do(t, app, "POST", "/api/v1/orchestrate",
		`{"customer":{"email":"bo@example.com"},"dry_run":false,"async":true}`)
	if status != 202 {
		t.Fatalf("status = %d, want 202", status)
	}
	if len(jobs.jobs) != 1 {
		t.Fatalf("expected 1 queued job, got %d", len(jobs.jobs))
	}
	job := jobs.jobs[0]
	if job.Customer.Email != "bo@example.com" || job.DryRun == nil || *job.DryRun {
		t.Errorf("unexpected job %+v", job)
	}

	var data map[string]any
	_ = json.Unmarshal(env.Data, &data)
	if data["customer_id"] != "bo@example.com" {
		t.Errorf("customer_id = %v", data["customer_id"])
	}

	jobs.err = errors.New("redis down")
	if status, _ := do(t, app, "POST", "/api/v1/orchestrate", `{"customer":{"id":"x"},"async":true}`); status != 502 {
		t.Errorf("queue failure status = %d, want 502", status)
	}
}

func TestSegmentEndpoint(t *testing.T) {
	app := newTestServer(t, nil)

	status, env := do(t, app, "POST", "/api/v1/segment",
		`{"customer":{"Viewed_Page":"Loans","Attended":"Y"}}`)
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	var seg domain.SegmentResult
	_ = json.Unmarshal(env.Data, &seg)
	if seg.Segment != "loans:CompletedScheduledStep" {
		t.Errorf("segment = %q", seg.Segment)
	}
}

func TestAssignEndpoint(t *testing.T) {
	app := newTestServer(t, nil)

	_, first := do(t, app, "POST", "/api/v1/assign", `{"user_id":"user-1"}`)
	_, second := do(t, app, "POST", "/api/v1/assign", `{"user_id":"user-1"}`)
	var a, b domain.Assignment
	_ = json.Unmarshal(first.Data, &a)
	_ = json.Unmarshal(second.Data, &b)
	if a.VariantID == "" || a.VariantID != b.VariantID || a.HashValue != b.HashValue {
		t.Errorf("assignment not deterministic: %+v vs %+v", a, b)
	}

	status, env := do(t, app, "POST", "/api/v1/assign",
		`{"user_id":"user-1","split":[{"variant_id":"A","fraction":0.7},{"variant_id":"B","fraction":0.2}]}`)
	if status != 400 || env.Error.Code != "INVALID_INPUT" {
		t.Errorf("bad split: status = %d, code = %s", status, env.Error.Code)
	}

	status, env = do(t, app, "POST", "/api/v1/assign", `{"user_id":"  "}`)
	if status != 400 || env.Error.Code != "MISSING_FIELD" {
		t.Errorf("blank user: status = %d, code = %s", status, env.Error.Code)
	}
}

func TestSafetyEndpoint(t *testing.T) {
	app := newTestServer(t, nil)

	status, env := do(t, app, "POST", "/api/v1/safety", `{"variants":[
		{"id":"A","subject":"Hello","body":"A calm note."},
		{"id":"B","subject":"Guaranteed approval!","body":"Apply now."}]}`)
	if status != 200 {
		t.Fatalf("status = %d", status)
	}

	var res domain.SafetyResult
	_ = json.Unmarshal(env.Data, &res)
	if len(res.Safe) != 1 || res.Safe[0].ID != "A" {
		t.Errorf("safe = %+v", res.Safe)
	}
	if len(res.Blocked) != 1 || res.Blocked[0].Reason != "prohibited_term:guaranteed approval" {
		t.Errorf("blocked = %+v", res.Blocked)
	}
}

func TestRunsEndpoints(t *testing.T) {
	app := newTestServer(t, nil)
	do(t, app, "POST", "/api/v1/orchestrate", paymentPlansBody)

	status, env := do(t, app, "GET", "/api/v1/runs/c-100/segment", "")
	if status != 200 {
		t.Fatalf("status = %d, error = %+v", status, env.Error)
	}
	var stage StageResponse
	_ = json.Unmarshal(env.Data, &stage)
	out, _ := stage.Output.(map[string]any)
	if stage.Stage != domain.StageSegment || out["use_case"] != "payment_plans" {
		t.Errorf("stage response = %+v", stage)
	}

	status, env = do(t, app, "GET", "/api/v1/runs/c-100", "")
	if status != 200 {
		t.Fatalf("summary status = %d", status)
	}
	var summary domain.Summary
	_ = json.Unmarshal(env.Data, &summary)
	if summary.Outcome != domain.OutcomeCompletedWithWinner || summary.WinnerID == "" {
		t.Errorf("summary = %+v", summary)
	}

	tests := []struct {
		path   string
		status int
		code   string
	}{
		{"/api/v1/runs/c-100/bogus", 400, "INVALID_INPUT"},
		{"/api/v1/runs/nobody/segment", 404, "NOT_FOUND"},
		{"/api/v1/runs/nobody", 404, "NOT_FOUND"},
		{"/api/v1/archive/run_1", 503, "UNAVAILABLE"},
	}
	for _, tt := range tests {
		status, env := do(t, app, "GET", tt.path, "")
		if status != tt.status || env.Error.Code != tt.code {
			t.Errorf("GET %s: status = %d code = %s, want %d %s", tt.path, status, env.Error.Code, tt.status, tt.code)
		}
	}
}

func TestReviewEndpoints(t *testing.T) {
	app := newTestServer(t, nil)

	_, env := do(t, app, "POST", "/api/v1/orchestrate", paymentPlansBody)
	var state domain.PipelineState
	if err := json.Unmarshal(env.Data, &state); err != nil {
		t.Fatal(err)
	}
	if state.Review == nil || state.Review.Status != domain.ReviewPending || state.Review.ReviewID == "" {
		t.Fatalf("hitl = %+v", state.Review)
	}
	path := "/api/v1/hitl/" + state.Review.ReviewID

	status, env := do(t, app, "GET", path, "")
	if status != 200 {
		t.Fatalf("status = %d, error = %+v", status, env.Error)
	}
	var r domain.Review
	_ = json.Unmarshal(env.Data, &r)
	if r.Status != domain.ReviewPending || len(r.Variants) == 0 || len(r.Variants) != state.Review.NumVariants {
		t.Fatalf("review = %+v", r)
	}

	approved := r.Variants[0].ID
	status, env = do(t, app, "POST", path+"/decision", `{"approved_variant_id":"`+approved+`","notes":"ok"}`)
	if status != 200 {
		t.Fatalf("decision status = %d, error = %+v", status, env.Error)
	}
	_ = json.Unmarshal(env.Data, &r)
	if r.Status != domain.ReviewApproved || r.ApprovedVariantID != approved {
		t.Errorf("decided review = %+v", r)
	}

	tests := []struct {
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"POST", path + "/decision", `{"status":"rejected"}`, 409, "CONFLICT"},
		{"POST", path + "/decision", `{not json`, 400, "BAD_REQUEST"},
		{"GET", "/api/v1/hitl/review_missing", "", 404, "NOT_FOUND"},
		{"POST", "/api/v1/hitl/review_missing/decision", `{}`, 400, "MISSING_FIELD"},
	}
	for _, tt := range tests {
		status, env := do(t, app, tt.method, tt.path, tt.body)
		if status != tt.status || env.Error.Code != tt.code {
			t.Errorf("%s %s: status = %d code = %s, want %d %s", tt.method, tt.path, status, env.Error.Code, tt.status, tt.code)
		}
	}
}
