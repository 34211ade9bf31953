// Command seedinbox asks a running worker to reconcile the welcome
// messages of every active student, or of a single user.
//
// Usage:
//
//	seedinbox -worker http://localhost:8091 [-user <user-id>] [-wait]
//
// The shared internal token secret is read from
// SCITREK_INTERNAL_TOKEN_SECRET.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"scitrek/internal/servicetoken"
	"scitrek/pkg/queue"
)

func main() {
	workerURL := flag.String("worker", "http://localhost:8091", "base URL of the worker service")
	userID := flag.String("user", "", "seed a single user instead of all active students")
	wait := flag.Bool("wait", false, "poll until the job finishes")
	timeout := flag.Duration("timeout", 5*time.Minute, "how long to wait with -wait")
	flag.Parse()

	secret := os.Getenv("SCITREK_INTERNAL_TOKEN_SECRET")
	if secret == "" {
		fatalf("SCITREK_INTERNAL_TOKEN_SECRET is not set")
	}
	issuer, err := servicetoken.NewIssuer(secret, "scitrek-api", "worker", 5*time.Minute)
	if err != nil {
		fatalf("init token issuer: %v", err)
	}

	kind := queue.KindInboxSeedAll
	if *userID != "" {
		kind = queue.KindInboxSeed
	}
	job, err := enqueue(*workerURL, issuer, kind, *userID)
	if err != nil {
		fatalf("enqueue: %v", err)
	}
	fmt.Printf("queued %s job %s\n", job.Kind, job.ID)

	if !*wait {
		return
	}
	final, err := waitForJob(*workerURL, issuer, job.ID, *timeout)
	if err != nil {
		fatalf("wait: %v", err)
	}
	if final.Status == queue.StatusFailed {
		fatalf("job %s failed: %s", final.ID, final.ErrorMessage)
	}
	fmt.Printf("job %s finished with status %s\n", final.ID, final.Status)
}

func enqueue(baseURL string, issuer *servicetoken.Issuer, kind, targetID string) (queue.JobStatus, error) {
	body, err := json.Marshal(map[string]string{"kind": kind, "targetId": targetID})
	if err != nil {
		return queue.JobStatus{}, err
	}
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(baseURL, "/")+"/tasks", bytes.NewReader(body))
	if err != nil {
		return queue.JobStatus{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := authorize(req, issuer); err != nil {
		return queue.JobStatus{}, err
	}
	var job queue.JobStatus
	if err := doJSON(req, http.StatusCreated, &job); err != nil {
		return queue.JobStatus{}, err
	}
	return job, nil
}

func waitForJob(baseURL string, issuer *servicetoken.Issuer, jobID string, timeout time.Duration) (queue.JobStatus, error) {
	deadline := time.Now().Add(timeout)
	for {
		req, err := http.NewRequest(http.MethodGet, strings.TrimRight(baseURL, "/")+"/tasks/"+jobID, nil)
		if err != nil {
			return queue.JobStatus{}, err
		}
		if err := authorize(req, issuer); err != nil {
			return queue.JobStatus{}, err
		}
		var job queue.JobStatus
		if err := doJSON(req, http.StatusOK, &job); err != nil {
			return queue.JobStatus{}, err
		}
		if job.Status == queue.StatusDone || job.Status == queue.StatusFailed {
			return job, nil
		}
		if time.Now().After(deadline) {
			return job, fmt.Errorf("job %s still %s after %s", jobID, job.Status, timeout)
		}
		time.Sleep(2 * time.Second)
	}
}

func authorize(req *http.Request, issuer *servicetoken.Issuer) error {
	token, err := issuer.Issue()
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func doJSON(req *http.Request, wantStatus int, dst any) error {
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("worker returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("worker returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
