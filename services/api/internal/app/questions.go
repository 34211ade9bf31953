package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"scitrek/internal/util"
	"scitrek/pkg/domain"
	"scitrek/pkg/store"
)

var workbookInputTypes = map[string]bool{
	"text":     true,
	"textarea": true,
	"number":   true,
}

// CreateWorkbookQuestionInput adds a prompt to a workbook.
type CreateWorkbookQuestionInput struct {
	WorkbookID string `json:"workbookId"`
	Order      int    `json:"order"`
	Prompt     string `json:"prompt"`
	InputType  string `json:"inputType"`
}

func (a *App) CreateWorkbookQuestion(in CreateWorkbookQuestionInput) (domain.WorkbookQuestion, error) {
	if strings.TrimSpace(in.Prompt) == "" {
		return domain.WorkbookQuestion{}, fmt.Errorf("%w: prompt required", ErrValidation)
	}
	if in.Order < 1 {
		return domain.WorkbookQuestion{}, fmt.Errorf("%w: order must be positive", ErrValidation)
	}
	inputType := in.InputType
	if inputType == "" {
		inputType = "text"
	}
	if !workbookInputTypes[inputType] {
		return domain.WorkbookQuestion{}, fmt.Errorf("%w: unknown input type %q", ErrValidation, in.InputType)
	}
	if _, err := a.GetWorkbook(in.WorkbookID); err != nil {
		return domain.WorkbookQuestion{}, fmt.Errorf("%w: unknown workbook", ErrValidation)
	}
	question := domain.WorkbookQuestion{
		ID:         util.NewID(),
		WorkbookID: in.WorkbookID,
		Order:      in.Order,
		Prompt:     strings.TrimSpace(in.Prompt),
		InputType:  inputType,
	}
	if err := a.store.CreateWorkbookQuestion(question); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.WorkbookQuestion{}, fmt.Errorf("%w: order %d already taken", ErrValidation, in.Order)
		}
		return domain.WorkbookQuestion{}, err
	}
	return question, nil
}

func (a *App) ListWorkbookQuestions(workbookID string) ([]domain.WorkbookQuestion, error) {
	if _, err := a.GetWorkbook(workbookID); err != nil {
		return nil, err
	}
	return a.store.ListWorkbookQuestions(workbookID)
}

// SaveWorkbookAnswer upserts a student's answer to one workbook
// question; later saves overwrite earlier ones.
func (a *App) SaveWorkbookAnswer(student domain.User, questionID, answer string) error {
	record := domain.StudentAnswer{
		ID:         util.NewID(),
		QuestionID: questionID,
		StudentID:  student.ID,
		Answer:     answer,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := a.store.UpsertStudentAnswer(record); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
