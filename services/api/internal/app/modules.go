package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"scitrek/internal/util"
	"scitrek/pkg/domain"
	"scitrek/pkg/store"
)

// CreateModuleInput defines one day of classroom content.
type CreateModuleInput struct {
	ClassroomID string `json:"classroomId"`
	Day         int    `json:"day"`
	Title       string `json:"title"`
	Content     string `json:"content"`
}

func (a *App) CreateModule(in CreateModuleInput) (domain.LearningModule, error) {
	if in.Day < 1 || in.Day > 5 {
		return domain.LearningModule{}, fmt.Errorf("%w: day must be between 1 and 5", ErrValidation)
	}
	if strings.TrimSpace(in.Title) == "" {
		return domain.LearningModule{}, fmt.Errorf("%w: title required", ErrValidation)
	}
	if _, err := a.GetClassroom(in.ClassroomID); err != nil {
		return domain.LearningModule{}, fmt.Errorf("%w: unknown classroom", ErrValidation)
	}
	module := domain.LearningModule{
		ID:          util.NewID(),
		Day:         in.Day,
		Title:       strings.TrimSpace(in.Title),
		Content:     in.Content,
		ClassroomID: in.ClassroomID,
	}
	if err := a.store.CreateModule(module); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.LearningModule{}, fmt.Errorf("%w: day %d already has a module", ErrValidation, in.Day)
		}
		return domain.LearningModule{}, err
	}
	return module, nil
}

func (a *App) ListModules(classroomID string) ([]domain.LearningModule, error) {
	return a.store.ListModules(classroomID)
}

// GetModule loads a module, enforcing release gating for students: a
// student only sees a module after its classroom assignment's release
// date has passed.
func (a *App) GetModule(user domain.User, id string) (domain.LearningModule, error) {
	module, err := a.store.GetModule(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LearningModule{}, ErrNotFound
		}
		return domain.LearningModule{}, err
	}
	if user.IsTeacher {
		return module, nil
	}
	released, err := a.moduleReleased(module)
	if err != nil {
		return domain.LearningModule{}, err
	}
	if !released {
		return domain.LearningModule{}, ErrForbidden
	}
	return module, nil
}

func (a *App) moduleReleased(module domain.LearningModule) (bool, error) {
	assignments, err := a.store.ListModuleAssignments(module.ClassroomID)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	for _, as := range assignments {
		if as.ModuleID != module.ID {
			continue
		}
		if as.ReleaseDate == nil || !as.ReleaseDate.After(now) {
			return true, nil
		}
	}
	return false, nil
}

// AssignModule releases a module to its classroom, immediately or at a
// future date.
func (a *App) AssignModule(classroomID, moduleID string, releaseDate *time.Time) (domain.ModuleAssignment, error) {
	if _, err := a.GetClassroom(classroomID); err != nil {
		return domain.ModuleAssignment{}, fmt.Errorf("%w: unknown classroom", ErrValidation)
	}
	if _, err := a.store.GetModule(moduleID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ModuleAssignment{}, fmt.Errorf("%w: unknown module", ErrValidation)
		}
		return domain.ModuleAssignment{}, err
	}
	assignment := domain.ModuleAssignment{
		ID:          util.NewID(),
		ClassroomID: classroomID,
		ModuleID:    moduleID,
		ReleaseDate: releaseDate,
		CreatedAt:   time.Now().UTC(),
	}
	if err := a.store.CreateModuleAssignment(assignment); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.ModuleAssignment{}, fmt.Errorf("%w: module already assigned", ErrValidation)
		}
		return domain.ModuleAssignment{}, err
	}
	return assignment, nil
}

// AssignQuiz releases a pre- or post-module quiz to a classroom.
func (a *App) AssignQuiz(classroomID string, quizType domain.QuizType, releaseDate *time.Time) (domain.QuizAssignment, error) {
	if quizType != domain.QuizPre && quizType != domain.QuizPost {
		return domain.QuizAssignment{}, fmt.Errorf("%w: unknown quiz type %q", ErrValidation, quizType)
	}
	if _, err := a.GetClassroom(classroomID); err != nil {
		return domain.QuizAssignment{}, fmt.Errorf("%w: unknown classroom", ErrValidation)
	}
	assignment := domain.QuizAssignment{
		ID:          util.NewID(),
		ClassroomID: classroomID,
		QuizType:    quizType,
		ReleaseDate: releaseDate,
		CreatedAt:   time.Now().UTC(),
	}
	if err := a.store.CreateQuizAssignment(assignment); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.QuizAssignment{}, fmt.Errorf("%w: quiz already assigned", ErrValidation)
		}
		return domain.QuizAssignment{}, err
	}
	return assignment, nil
}

// SaveModuleResponse upserts a student's answers for one module. A
// resubmission replaces the previous answers.
func (a *App) SaveModuleResponse(student domain.User, moduleID string, answers json.RawMessage) (domain.StudentResponse, error) {
	if _, err := a.store.GetModule(moduleID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.StudentResponse{}, ErrNotFound
		}
		return domain.StudentResponse{}, err
	}
	if len(answers) == 0 || !json.Valid(answers) {
		return domain.StudentResponse{}, fmt.Errorf("%w: answers must be valid JSON", ErrValidation)
	}
	response := domain.StudentResponse{
		ID:          util.NewID(),
		StudentID:   student.ID,
		ModuleID:    moduleID,
		Answers:     answers,
		CompletedAt: time.Now().UTC(),
	}
	if err := a.store.UpsertStudentResponse(response); err != nil {
		return domain.StudentResponse{}, err
	}
	saved, err := a.store.GetStudentResponse(student.ID, moduleID)
	if err != nil {
		return domain.StudentResponse{}, err
	}
	return saved, nil
}

// GetModuleResponse returns a student's saved answers for a module.
func (a *App) GetModuleResponse(studentID, moduleID string) (domain.StudentResponse, error) {
	response, err := a.store.GetStudentResponse(studentID, moduleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.StudentResponse{}, ErrNotFound
		}
		return domain.StudentResponse{}, err
	}
	return response, nil
}
