package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/prok20/faulty-server-poller/internal/logger"
	"github.com/prok20/faulty-server-poller/internal/run"
	"github.com/prok20/faulty-server-poller/internal/service"
)

type fakeService struct {
	startID   run.ID
	startErr  error
	seconds   []uint64
	runs      map[run.ID]run.Run
	getErr    error
	getCalled int
}

func (f *fakeService) StartRun(_ context.Context, seconds uint64) (run.ID, error) {
	f.seconds = append(f.seconds, seconds)
	return f.startID, f.startErr
}

func (f *fakeService) GetRun(_ context.Context, id run.ID) (run.Run, error) {
	f.getCalled++
	if f.getErr != nil {
		return run.Run{}, f.getErr
	}
	r, ok := f.runs[id]
	if !ok {
		return run.Run{}, service.ErrInternal
	}
	return r, nil
}

func serve(t *testing.T, svc PollingService, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("poller_runs_accepted_total 1\n"))
	})
	rr := httptest.NewRecorder()
	NewHandler(svc, metrics, logger.Discard()).ServeHTTP(rr, req)
	return rr
}

func postRuns(body, contentType string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req
}

func decodeString(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var msg string
	if err := json.Unmarshal(rr.Body.Bytes(), &msg); err != nil {
		t.Fatalf("body %q is not a JSON string: %v", rr.Body.String(), err)
	}
	return msg
}

func TestStartRun_Success(t *testing.T) {
	id := uuid.New()
	svc := &fakeService{startID: id}

	rr := serve(t, svc, postRuns(`{"seconds": 3}`, "application/json"))

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var resp service.StartRunResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != id {
		t.Errorf("got id %s, want %s", resp.ID, id)
	}
	if len(svc.seconds) != 1 || svc.seconds[0] != 3 {
		t.Errorf("service called with %v", svc.seconds)
	}
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

func TestStartRun_ContentTypeWithCharset(t *testing.T) {
	svc := &fakeService{startID: uuid.New()}
	rr := serve(t, svc, postRuns(`{"seconds": 1}`, "application/json; charset=utf-8"))
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rr.Code)
	}
}

func TestStartRun_ServiceErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"queue full", service.ErrTooManyRequests, http.StatusTooManyRequests, service.MessageTooManyRequests},
		{"internal", service.ErrInternal, http.StatusInternalServerError, service.MessageInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(t, &fakeService{startErr: tt.err}, postRuns(`{"seconds": 1}`, "application/json"))
			if rr.Code != tt.code {
				t.Fatalf("got status %d, want %d", rr.Code, tt.code)
			}
			if got := decodeString(t, rr); got != tt.message {
				t.Errorf("got message %q, want %q", got, tt.message)
			}
		})
	}
}

func TestStartRun_BadRequests(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		code        int
	}{
		{"missing content type", `{"seconds": 1}`, "", http.StatusUnsupportedMediaType},
		{"wrong content type", `{"seconds": 1}`, "text/plain", http.StatusUnsupportedMediaType},
		{"malformed json", `{"seconds": `, "application/json", http.StatusBadRequest},
		{"negative seconds", `{"seconds": -1}`, "application/json", http.StatusBadRequest},
		{"fractional seconds", `{"seconds": 1.5}`, "application/json", http.StatusBadRequest},
		{"missing seconds", `{}`, "application/json", http.StatusBadRequest},
		{"trailing data", `{"seconds": 1} {"seconds": 2}`, "application/json", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			rr := serve(t, svc, postRuns(tt.body, tt.contentType))
			if rr.Code != tt.code {
				t.Fatalf("got status %d, want %d", rr.Code, tt.code)
			}
			if len(svc.seconds) != 0 {
				t.Errorf("service should not be called, got %v", svc.seconds)
			}
		})
	}
}

func TestGetRun_Success(t *testing.T) {
	id := uuid.New()
	svc := &fakeService{runs: map[run.ID]run.Run{
		id: {ID: id, Status: run.StatusFinished, SuccessfulResponsesCount: 4, Sum: 200},
	}}

	rr := serve(t, svc, httptest.NewRequest(http.MethodGet, "/runs/"+id.String(), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["id"] != id.String() {
		t.Errorf("id = %v", body["id"])
	}
	if body["status"] != "Finished" {
		t.Errorf("status = %v", body["status"])
	}
	if body["successful_responses_count"] != float64(4) || body["sum"] != float64(200) {
		t.Errorf("counters = %v/%v", body["successful_responses_count"], body["sum"])
	}
}

func TestGetRun_InProgress(t *testing.T) {
	id := uuid.New()
	svc := &fakeService{runs: map[run.ID]run.Run{id: {ID: id, Status: run.StatusInProgress}}}

	rr := serve(t, svc, httptest.NewRequest(http.MethodGet, "/runs/"+id.String(), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte(`"status":"InProgress"`)) {
		t.Errorf("unexpected body %s", rr.Body.String())
	}
}

func TestGetRun_UnknownIsInternal(t *testing.T) {
	svc := &fakeService{runs: map[run.ID]run.Run{}}
	rr := serve(t, svc, httptest.NewRequest(http.MethodGet, "/runs/"+uuid.NewString(), nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500", rr.Code)
	}
	if got := decodeString(t, rr); got != service.MessageInternal {
		t.Errorf("got message %q", got)
	}
}

func TestGetRun_InvalidID(t *testing.T) {
	svc := &fakeService{}
	rr := serve(t, svc, httptest.NewRequest(http.MethodGet, "/runs/not-a-uuid", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rr.Code)
	}
	if svc.getCalled != 0 {
		t.Error("service should not be called for an invalid id")
	}
}

func TestHealthCheck(t *testing.T) {
	rr := serve(t, &fakeService{}, httptest.NewRequest(http.MethodGet, "/health_check", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rr.Body.String())
	}
}

func TestMetricsRoute(t *testing.T) {
	rr := serve(t, &fakeService{}, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "poller_runs_accepted_total") {
		t.Fatalf("metrics route: %d %q", rr.Code, rr.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rr := serve(t, &fakeService{}, httptest.NewRequest(http.MethodDelete, "/runs", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("got status %d, want 405", rr.Code)
	}
}
