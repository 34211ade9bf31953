package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"scitrek/internal/usertoken"
	"scitrek/internal/util"
	"scitrek/pkg/auth"
	"scitrek/pkg/domain"
	"scitrek/pkg/queue"
	"scitrek/pkg/storage"
	"scitrek/pkg/store"
	"scitrek/services/api/internal/app"
)

type nullQueue struct {
	mu    sync.Mutex
	tasks []queue.JobStatus
}

func (n *nullQueue) Enqueue(ctx context.Context, kind, targetID string) (queue.JobStatus, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	job := queue.JobStatus{ID: util.NewID(), Kind: kind, TargetID: targetID, Status: queue.StatusQueued}
	n.tasks = append(n.tasks, job)
	return job, nil
}

func (n *nullQueue) GetJob(ctx context.Context, jobID string) (queue.JobStatus, bool, error) {
	return queue.JobStatus{}, false, nil
}

func (n *nullQueue) Start(ctx context.Context, concurrency int, handler func(context.Context, queue.JobStatus) error) {
}

type testEnv struct {
	server  *httptest.Server
	store   *store.MemoryStore
	tokens  *usertoken.Manager
	teacher domain.User
	student domain.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemoryStore()
	blobs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	tokens, err := usertoken.NewManager("test-secret-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	application, err := app.New(app.Config{Store: mem, Blobs: blobs, Queue: &nullQueue{}, Tokens: tokens})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	srv, err := New(Config{App: application, Tokens: tokens})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	env := &testEnv{
		server: httptest.NewServer(srv.Router()),
		store:  mem,
		tokens: tokens,
	}
	t.Cleanup(env.server.Close)
	env.teacher = env.seedUser(t, "teach", "password-1", false, true)
	env.student = env.seedUser(t, "kid", "password-1", true, false)
	return env
}

func (e *testEnv) seedUser(t *testing.T, username, password string, student, teacher bool) domain.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := domain.User{
		ID: util.NewID(), Username: username, PasswordHash: hash,
		IsStudent: student, IsTeacher: teacher, IsActive: true,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.CreateUser(user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func (e *testEnv) tokenFor(t *testing.T, user domain.User) string {
	t.Helper()
	token, err := e.tokens.Issue(usertoken.Claims{UserID: user.ID, IsStudent: user.IsStudent, IsTeacher: user.IsTeacher})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestLoginEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "kid", "password": "password-1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody[map[string]json.RawMessage](t, resp)
	if len(body["token"]) == 0 {
		t.Fatal("no token in response")
	}

	resp = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "kid", "password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/me", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/me", "not-a-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/me", env.tokenFor(t, env.student), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("valid token status = %d", resp.StatusCode)
	}
	user := decodeBody[domain.User](t, resp)
	if user.Username != "kid" {
		t.Fatalf("user = %q", user.Username)
	}
}

func TestTeacherGuard(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/classrooms", env.tokenFor(t, env.student), map[string]string{"name": "Nope"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("student create status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/classrooms", env.tokenFor(t, env.teacher), map[string]string{"name": "Period 1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("teacher create status = %d", resp.StatusCode)
	}
	classroom := decodeBody[domain.Classroom](t, resp)
	if classroom.Name != "Period 1" {
		t.Fatalf("classroom = %+v", classroom)
	}
}

func TestWorkbookUploadMultipart(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("title", "Student Workbook"); err != nil {
		t.Fatalf("field: %v", err)
	}
	if err := form.WriteField("strategy", "text"); err != nil {
		t.Fatalf("field: %v", err)
	}
	part, err := form.CreateFormFile("file", "workbook.pdf")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := part.Write([]byte("%PDF-1.4 test")); err != nil {
		t.Fatalf("write: %v", err)
	}
	form.Close()

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/workbooks", &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.tokenFor(t, env.teacher))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	wb := decodeBody[domain.Workbook](t, resp)
	if wb.Title != "Student Workbook" || wb.Strategy != domain.StrategyText {
		t.Fatalf("workbook = %+v", wb)
	}

	listResp := env.do(t, http.MethodGet, "/workbooks/"+wb.ID+"/sections", env.tokenFor(t, env.student), nil)
	if listResp.StatusCode != http.StatusOK {
		t.Fatalf("sections status = %d", listResp.StatusCode)
	}
	listResp.Body.Close()
}

func TestInboxEndpoints(t *testing.T) {
	env := newTestEnv(t)

	msg := domain.Message{
		ID: util.NewID(), SenderID: env.teacher.ID, RecipientID: env.student.ID,
		Subject: "Welcome", Body: "Hi", Timestamp: time.Now().UTC(),
	}
	if err := env.store.CreateMessage(msg); err != nil {
		t.Fatalf("seed: %v", err)
	}
	token := env.tokenFor(t, env.student)

	resp := env.do(t, http.MethodGet, "/me/inbox", token, nil)
	messages := decodeBody[[]domain.Message](t, resp)
	if len(messages) != 1 || messages[0].Subject != "Welcome" {
		t.Fatalf("inbox = %+v", messages)
	}

	resp = env.do(t, http.MethodGet, "/me/inbox/unread", token, nil)
	unread := decodeBody[map[string]int](t, resp)
	if unread["unread"] != 1 {
		t.Fatalf("unread = %d", unread["unread"])
	}

	resp = env.do(t, http.MethodPost, "/me/inbox/"+msg.ID+"/read", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mark read status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Another user cannot mark someone else's message.
	resp = env.do(t, http.MethodPost, "/me/inbox/"+msg.ID+"/read", env.tokenFor(t, env.teacher), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign mark status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestQuizAttemptConflict(t *testing.T) {
	env := newTestEnv(t)
	teacherToken := env.tokenFor(t, env.teacher)

	resp := env.do(t, http.MethodPost, "/classrooms", teacherToken, map[string]string{"name": "Period 2"})
	classroom := decodeBody[domain.Classroom](t, resp)

	resp = env.do(t, http.MethodPost, "/classrooms/"+classroom.ID+"/quiz/questions", teacherToken, map[string]any{
		"quizType":     "pre",
		"questionText": "Pick A",
		"choices":      map[string]string{"A": "yes", "B": "no"},
		"answer":       "A",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("question status = %d", resp.StatusCode)
	}
	question := decodeBody[domain.QuizQuestion](t, resp)

	studentToken := env.tokenFor(t, env.student)
	attempt := map[string]any{
		"quizType":   "pre",
		"selections": map[string]string{question.ID: "A"},
	}
	resp = env.do(t, http.MethodPost, "/classrooms/"+classroom.ID+"/quiz/attempts", studentToken, attempt)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first attempt status = %d", resp.StatusCode)
	}
	result := decodeBody[app.QuizResult](t, resp)
	if result.Score != 100 {
		t.Fatalf("score = %v", result.Score)
	}

	resp = env.do(t, http.MethodPost, "/classrooms/"+classroom.ID+"/quiz/attempts", studentToken, attempt)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second attempt status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestStudentQuizListHidesAnswers(t *testing.T) {
	env := newTestEnv(t)
	teacherToken := env.tokenFor(t, env.teacher)

	resp := env.do(t, http.MethodPost, "/classrooms", teacherToken, map[string]string{"name": "Period 3"})
	classroom := decodeBody[domain.Classroom](t, resp)

	resp = env.do(t, http.MethodPost, "/classrooms/"+classroom.ID+"/quiz/questions", teacherToken, map[string]any{
		"quizType":     "post",
		"questionText": "Q",
		"choices":      map[string]string{"A": "x", "B": "y"},
		"answer":       "B",
	})
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/classrooms/"+classroom.ID+"/quiz?type=post", env.tokenFor(t, env.student), nil)
	raw := decodeBody[[]map[string]json.RawMessage](t, resp)
	if len(raw) != 1 {
		t.Fatalf("questions = %d", len(raw))
	}
	if answer, ok := raw[0]["answer"]; ok && !strings.Contains(string(answer), `""`) {
		t.Fatalf("student response leaked answer: %s", answer)
	}
}
