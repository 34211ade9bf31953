package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"scitrek/internal/ratelimit"
	"scitrek/internal/usertoken"
	"scitrek/internal/util"
	"scitrek/pkg/domain"
	"scitrek/services/api/internal/app"
)

const defaultMaxUploadBytes = 50 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Tokens         *usertoken.Manager
	LoginLimiter   *ratelimit.FixedWindowLimiter // nil disables login rate limiting
	MaxUploadBytes int64
	TrustForwarded bool
}

// Server exposes the platform's public HTTP API.
type Server struct {
	app            *app.App
	tokens         *usertoken.Manager
	loginLimiter   *ratelimit.FixedWindowLimiter
	maxUploadBytes int64
	trustForwarded bool
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token manager is required")
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	s := &Server{
		app:            cfg.App,
		tokens:         cfg.Tokens,
		loginLimiter:   cfg.LoginLimiter,
		maxUploadBytes: maxUpload,
		trustForwarded: cfg.TrustForwarded,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in the shared
// middleware chain.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.Handle("/me", s.withUser(s.handleMe))
	s.mux.Handle("/me/", s.withUser(s.handleMeSubtree))
	s.mux.Handle("/classrooms", s.withUser(s.handleClassrooms))
	s.mux.Handle("/classrooms/", s.withUser(s.handleClassroomSubtree))
	s.mux.Handle("/workbooks", s.withUser(s.handleWorkbooks))
	s.mux.Handle("/workbooks/", s.withUser(s.handleWorkbookSubtree))
	s.mux.Handle("/sections/", s.withUser(s.handleSection))
	s.mux.Handle("/questions/", s.withUser(s.handleQuestionAnswer))
	s.mux.Handle("/modules/", s.withUser(s.handleModuleSubtree))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// userHandler is a handler with the authenticated user resolved.
type userHandler func(w http.ResponseWriter, r *http.Request, user domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := s.tokens.Verify(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, err := s.app.GetUser(claims.UserID)
		if err != nil || !user.IsActive {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func requireTeacher(w http.ResponseWriter, user domain.User) bool {
	if !user.IsTeacher {
		writeError(w, http.StatusForbidden, "teacher role required")
		return false
	}
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.loginLimiter != nil && !s.loginLimiter.Allow(util.ClientIP(r, s.trustForwarded)) {
		writeError(w, http.StatusTooManyRequests, "too many login attempts")
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token, user, err := s.app.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleMeSubtree serves /me/inbox, /me/inbox/unread,
// /me/inbox/{id}/read and /me/quiz/{type}/attempt.
func (s *Server) handleMeSubtree(w http.ResponseWriter, r *http.Request, user domain.User) {
	parts := pathParts(r.URL.Path, "/me/")
	switch {
	case len(parts) == 1 && parts[0] == "inbox" && r.Method == http.MethodGet:
		messages, err := s.app.ListInbox(user)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, messages)
	case len(parts) == 2 && parts[0] == "inbox" && parts[1] == "unread" && r.Method == http.MethodGet:
		count, err := s.app.UnreadCount(user)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"unread": count})
	case len(parts) == 3 && parts[0] == "inbox" && parts[2] == "read" && r.Method == http.MethodPost:
		if err := s.app.MarkMessageRead(user, parts[1]); err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case len(parts) == 3 && parts[0] == "quiz" && parts[2] == "attempt" && r.Method == http.MethodGet:
		attempt, err := s.app.GetQuizAttempt(user.ID, domain.QuizType(parts[1]))
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, attempt)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleClassrooms(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		classrooms, err := s.app.ListClassrooms()
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, classrooms)
	case http.MethodPost:
		if !requireTeacher(w, user) {
			return
		}
		var in app.CreateClassroomInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		classroom, err := s.app.CreateClassroom(user, in)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, classroom)
	default:
		methodNotAllowed(w)
	}
}

type assignModuleRequest struct {
	ModuleID    string     `json:"moduleId"`
	ReleaseDate *time.Time `json:"releaseDate"`
}

type assignQuizRequest struct {
	QuizType    domain.QuizType `json:"quizType"`
	ReleaseDate *time.Time      `json:"releaseDate"`
}

type quizAttemptRequest struct {
	QuizType   domain.QuizType   `json:"quizType"`
	Selections map[string]string `json:"selections"`
}

func (s *Server) handleClassroomSubtree(w http.ResponseWriter, r *http.Request, user domain.User) {
	parts := pathParts(r.URL.Path, "/classrooms/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	classroomID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		classroom, err := s.app.GetClassroom(classroomID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, classroom)

	case len(parts) == 2 && parts[1] == "roster" && r.Method == http.MethodGet:
		if !requireTeacher(w, user) {
			return
		}
		roster, err := s.app.ListRoster(classroomID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, roster)

	case len(parts) == 2 && parts[1] == "students" && r.Method == http.MethodPost:
		if !requireTeacher(w, user) {
			return
		}
		var in app.CreateStudentInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		in.ClassroomID = classroomID
		student, err := s.app.CreateStudent(r.Context(), in)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, student)

	case len(parts) == 2 && parts[1] == "modules":
		switch r.Method {
		case http.MethodGet:
			modules, err := s.app.ListModules(classroomID)
			if err != nil {
				s.writeAppError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, modules)
		case http.MethodPost:
			if !requireTeacher(w, user) {
				return
			}
			var in app.CreateModuleInput
			if err := decodeJSON(r, &in); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
			in.ClassroomID = classroomID
			module, err := s.app.CreateModule(in)
			if err != nil {
				s.writeAppError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, module)
		default:
			methodNotAllowed(w)
		}

	case len(parts) == 3 && parts[1] == "assignments" && parts[2] == "module" && r.Method == http.MethodPost:
		if !requireTeacher(w, user) {
			return
		}
		var req assignModuleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		assignment, err := s.app.AssignModule(classroomID, req.ModuleID, req.ReleaseDate)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, assignment)

	case len(parts) == 3 && parts[1] == "assignments" && parts[2] == "quiz" && r.Method == http.MethodPost:
		if !requireTeacher(w, user) {
			return
		}
		var req assignQuizRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		assignment, err := s.app.AssignQuiz(classroomID, req.QuizType, req.ReleaseDate)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, assignment)

	case len(parts) == 2 && parts[1] == "quiz" && r.Method == http.MethodGet:
		quizType := domain.QuizType(r.URL.Query().Get("type"))
		questions, err := s.app.ListQuizQuestions(user, classroomID, quizType)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, questions)

	case len(parts) == 3 && parts[1] == "quiz" && parts[2] == "questions" && r.Method == http.MethodPost:
		if !requireTeacher(w, user) {
			return
		}
		var in app.CreateQuizQuestionInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		in.ClassroomID = classroomID
		question, err := s.app.CreateQuizQuestion(in)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, question)

	case len(parts) == 3 && parts[1] == "quiz" && parts[2] == "attempts" && r.Method == http.MethodPost:
		var req quizAttemptRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		result, err := s.app.SubmitQuizAttempt(user, classroomID, req.QuizType, req.Selections)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)

	case len(parts) == 2 && parts[1] == "announcements":
		if !requireTeacher(w, user) {
			return
		}
		switch r.Method {
		case http.MethodGet:
			messages, err := s.app.ListScheduledMessages(classroomID)
			if err != nil {
				s.writeAppError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, messages)
		case http.MethodPost:
			var in app.ScheduleMessageInput
			if err := decodeJSON(r, &in); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
			in.ClassroomID = classroomID
			msg, err := s.app.ScheduleMessage(r.Context(), user, in)
			if err != nil {
				s.writeAppError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, msg)
		default:
			methodNotAllowed(w)
		}

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleWorkbooks(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		workbooks, err := s.app.ListWorkbooks()
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, workbooks)
	case http.MethodPost:
		if !requireTeacher(w, user) {
			return
		}
		s.handleWorkbookUpload(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleWorkbookUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field required")
		return
	}
	defer file.Close()

	wb, err := s.app.UploadWorkbook(r.Context(), app.UploadWorkbookInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Role:        domain.WorkbookRole(r.FormValue("role")),
		Strategy:    domain.ImportStrategy(r.FormValue("strategy")),
		File:        file,
		FileSize:    header.Size,
		FileName:    header.Filename,
	})
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wb)
}

type saveResponseRequest struct {
	Answers json.RawMessage `json:"answers"`
}

func (s *Server) handleWorkbookSubtree(w http.ResponseWriter, r *http.Request, user domain.User) {
	parts := pathParts(r.URL.Path, "/workbooks/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	workbookID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		wb, err := s.app.GetWorkbook(workbookID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, wb)

	case len(parts) == 1 && (r.Method == http.MethodPut || r.Method == http.MethodPatch):
		if !requireTeacher(w, user) {
			return
		}
		s.handleWorkbookUpdate(w, r, workbookID)

	case len(parts) == 2 && parts[1] == "import" && r.Method == http.MethodPost:
		if !requireTeacher(w, user) {
			return
		}
		wb, err := s.app.RetryImport(r.Context(), workbookID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, wb)

	case len(parts) == 2 && parts[1] == "file" && r.Method == http.MethodGet:
		url, err := s.app.WorkbookFileURL(r.Context(), workbookID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})

	case len(parts) == 2 && parts[1] == "sections" && r.Method == http.MethodGet:
		sections, err := s.app.ListSections(workbookID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sections)

	case len(parts) == 2 && parts[1] == "questions":
		switch r.Method {
		case http.MethodGet:
			questions, err := s.app.ListWorkbookQuestions(workbookID)
			if err != nil {
				s.writeAppError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, questions)
		case http.MethodPost:
			if !requireTeacher(w, user) {
				return
			}
			var in app.CreateWorkbookQuestionInput
			if err := decodeJSON(r, &in); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
			in.WorkbookID = workbookID
			question, err := s.app.CreateWorkbookQuestion(in)
			if err != nil {
				s.writeAppError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, question)
		default:
			methodNotAllowed(w)
		}

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleWorkbookUpdate(w http.ResponseWriter, r *http.Request, workbookID string) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	in := app.UpdateWorkbookInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
	}
	if file, header, err := r.FormFile("file"); err == nil {
		defer file.Close()
		in.File = file
		in.FileSize = header.Size
		in.FileName = header.Filename
	}
	wb, err := s.app.UpdateWorkbook(r.Context(), workbookID, in)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wb)
}

type updateSectionRequest struct {
	ContentHTML string `json:"contentHtml"`
}

func (s *Server) handleSection(w http.ResponseWriter, r *http.Request, user domain.User) {
	parts := pathParts(r.URL.Path, "/sections/")
	if len(parts) != 1 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	sectionID := parts[0]
	switch r.Method {
	case http.MethodGet:
		section, err := s.app.GetSection(sectionID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, section)
	case http.MethodPut:
		if !requireTeacher(w, user) {
			return
		}
		var req updateSectionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		section, err := s.app.UpdateSectionContent(sectionID, req.ContentHTML)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, section)
	default:
		methodNotAllowed(w)
	}
}

type answerRequest struct {
	Answer string `json:"answer"`
}

func (s *Server) handleQuestionAnswer(w http.ResponseWriter, r *http.Request, user domain.User) {
	parts := pathParts(r.URL.Path, "/questions/")
	if len(parts) != 2 || parts[1] != "answer" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.SaveWorkbookAnswer(user, parts[0], req.Answer); err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleModuleSubtree(w http.ResponseWriter, r *http.Request, user domain.User) {
	parts := pathParts(r.URL.Path, "/modules/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	moduleID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		module, err := s.app.GetModule(user, moduleID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, module)

	case len(parts) == 2 && parts[1] == "response" && r.Method == http.MethodPost:
		var req saveResponseRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		response, err := s.app.SaveModuleResponse(user, moduleID, req.Answers)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, response)

	case len(parts) == 2 && parts[1] == "response" && r.Method == http.MethodGet:
		response, err := s.app.GetModuleResponse(user.ID, moduleID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, response)

	default:
		http.NotFound(w, r)
	}
}

// writeAppError maps application errors onto HTTP statuses.
func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, app.ErrAccountDisabled):
		writeError(w, http.StatusForbidden, "account disabled")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, app.ErrAlreadySubmitted):
		writeError(w, http.StatusConflict, "already submitted")
	case errors.Is(err, app.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathParts(path, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
