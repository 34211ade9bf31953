package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"scitrek/internal/servicetoken"
	"scitrek/internal/util"
	"scitrek/pkg/queue"
)

type recordingQueue struct {
	mu   sync.Mutex
	jobs map[string]queue.JobStatus
}

func (r *recordingQueue) Enqueue(ctx context.Context, kind, targetID string) (queue.JobStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jobs == nil {
		r.jobs = make(map[string]queue.JobStatus)
	}
	job := queue.JobStatus{ID: util.NewID(), Kind: kind, TargetID: targetID, Status: queue.StatusQueued}
	r.jobs[job.ID] = job
	return job, nil
}

func (r *recordingQueue) GetJob(ctx context.Context, jobID string) (queue.JobStatus, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	return job, ok, nil
}

func (r *recordingQueue) Start(ctx context.Context, concurrency int, handler func(context.Context, queue.JobStatus) error) {
}

const testSecret = "internal-test-secret"

func newTestServer(t *testing.T) (*httptest.Server, *recordingQueue) {
	t.Helper()
	q := &recordingQueue{}
	srv, err := New(Config{Queue: q, InternalTokenSecret: testSecret})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, q
}

func serviceToken(t *testing.T, secret, issuer string) string {
	t.Helper()
	iss, err := servicetoken.NewIssuer(secret, issuer, "worker", time.Minute)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	token, err := iss.Issue()
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return token
}

func postTask(t *testing.T, ts *httptest.Server, token, kind, targetID string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"kind": kind, "targetId": targetID})
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/tasks", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func TestEnqueueRequiresServiceToken(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postTask(t, ts, "", queue.KindInboxSeedAll, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postTask(t, ts, serviceToken(t, "wrong-secret", "scitrek-api"), queue.KindInboxSeedAll, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong secret status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postTask(t, ts, serviceToken(t, testSecret, "unknown-service"), queue.KindInboxSeedAll, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong issuer status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestEnqueueAndFetchJob(t *testing.T) {
	ts, q := newTestServer(t)
	token := serviceToken(t, testSecret, "scitrek-api")

	resp := postTask(t, ts, token, queue.KindWorkbookImport, "wb-1")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("enqueue status = %d", resp.StatusCode)
	}
	var job queue.JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if job.Kind != queue.KindWorkbookImport || job.TargetID != "wb-1" {
		t.Fatalf("job = %+v", job)
	}
	if _, ok := q.jobs[job.ID]; !ok {
		t.Fatal("job not recorded in queue")
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/tasks/"+job.ID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	getResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", getResp.StatusCode)
	}
	var fetched queue.JobStatus
	if err := json.NewDecoder(getResp.Body).Decode(&fetched); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fetched.ID != job.ID {
		t.Fatalf("fetched = %+v", fetched)
	}
}

func TestEnqueueRejectsUnknownKind(t *testing.T) {
	ts, _ := newTestServer(t)
	token := serviceToken(t, testSecret, "scitrek-api")

	resp := postTask(t, ts, token, "reindex_everything", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}
