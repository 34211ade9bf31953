package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"scitrek/internal/util"
	"scitrek/pkg/domain"
	"scitrek/pkg/store"
)

// CreateQuizQuestionInput defines one multiple-choice question.
type CreateQuizQuestionInput struct {
	ClassroomID  string            `json:"classroomId"`
	QuizType     domain.QuizType   `json:"quizType"`
	QuestionText string            `json:"questionText"`
	Choices      map[string]string `json:"choices"`
	Answer       string            `json:"answer"`
}

func (a *App) CreateQuizQuestion(in CreateQuizQuestionInput) (domain.QuizQuestion, error) {
	if in.QuizType != domain.QuizPre && in.QuizType != domain.QuizPost {
		return domain.QuizQuestion{}, fmt.Errorf("%w: unknown quiz type %q", ErrValidation, in.QuizType)
	}
	if strings.TrimSpace(in.QuestionText) == "" {
		return domain.QuizQuestion{}, fmt.Errorf("%w: question text required", ErrValidation)
	}
	if len(in.Choices) < 2 {
		return domain.QuizQuestion{}, fmt.Errorf("%w: at least two choices required", ErrValidation)
	}
	if _, ok := in.Choices[in.Answer]; !ok {
		return domain.QuizQuestion{}, fmt.Errorf("%w: answer must be one of the choice keys", ErrValidation)
	}
	if _, err := a.GetClassroom(in.ClassroomID); err != nil {
		return domain.QuizQuestion{}, fmt.Errorf("%w: unknown classroom", ErrValidation)
	}
	question := domain.QuizQuestion{
		ID:           util.NewID(),
		QuizType:     in.QuizType,
		ClassroomID:  in.ClassroomID,
		QuestionText: strings.TrimSpace(in.QuestionText),
		Choices:      in.Choices,
		Answer:       in.Answer,
	}
	if err := a.store.CreateQuizQuestion(question); err != nil {
		return domain.QuizQuestion{}, err
	}
	return question, nil
}

// ListQuizQuestions returns a classroom's quiz. Students get the
// questions with the correct answers blanked out.
func (a *App) ListQuizQuestions(user domain.User, classroomID string, quizType domain.QuizType) ([]domain.QuizQuestion, error) {
	if quizType != domain.QuizPre && quizType != domain.QuizPost {
		return nil, fmt.Errorf("%w: unknown quiz type %q", ErrValidation, quizType)
	}
	questions, err := a.store.ListQuizQuestions(classroomID, quizType)
	if err != nil {
		return nil, err
	}
	if !user.IsTeacher {
		for i := range questions {
			questions[i].Answer = ""
		}
	}
	return questions, nil
}

// QuizResult is the outcome of a submitted attempt.
type QuizResult struct {
	AttemptID string    `json:"attemptId"`
	Score     float64   `json:"score"`
	Correct   int       `json:"correct"`
	Total     int       `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

// SubmitQuizAttempt scores a student's selected choices against the
// classroom's quiz and records a single attempt per quiz type. The
// score is the percentage of questions answered correctly, rounded to
// one decimal place.
func (a *App) SubmitQuizAttempt(student domain.User, classroomID string, quizType domain.QuizType, selections map[string]string) (QuizResult, error) {
	questions, err := a.store.ListQuizQuestions(classroomID, quizType)
	if err != nil {
		return QuizResult{}, err
	}
	if len(questions) == 0 {
		return QuizResult{}, fmt.Errorf("%w: no quiz published for this classroom", ErrValidation)
	}
	correct := 0
	for _, q := range questions {
		if selections[q.ID] == q.Answer {
			correct++
		}
	}
	score := math.Round(float64(correct)/float64(len(questions))*1000) / 10

	attemptData, err := json.Marshal(selections)
	if err != nil {
		return QuizResult{}, fmt.Errorf("encode attempt: %w", err)
	}
	attempt := domain.QuizAttempt{
		ID:          util.NewID(),
		StudentID:   student.ID,
		QuizType:    quizType,
		Score:       score,
		AttemptData: attemptData,
		Timestamp:   time.Now().UTC(),
	}
	if err := a.store.CreateQuizAttempt(attempt); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return QuizResult{}, ErrAlreadySubmitted
		}
		return QuizResult{}, err
	}
	return QuizResult{
		AttemptID: attempt.ID,
		Score:     score,
		Correct:   correct,
		Total:     len(questions),
		Timestamp: attempt.Timestamp,
	}, nil
}

// GetQuizAttempt returns a student's recorded attempt for a quiz type.
func (a *App) GetQuizAttempt(studentID string, quizType domain.QuizType) (domain.QuizAttempt, error) {
	attempt, err := a.store.GetQuizAttempt(studentID, quizType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.QuizAttempt{}, ErrNotFound
		}
		return domain.QuizAttempt{}, err
	}
	return attempt, nil
}
