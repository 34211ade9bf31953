package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"scitrek/internal/util"
	"scitrek/pkg/auth"
	"scitrek/pkg/domain"
	"scitrek/pkg/queue"
	"scitrek/pkg/store"
)

// CreateClassroomInput carries teacher-supplied classroom fields.
type CreateClassroomInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (a *App) CreateClassroom(teacher domain.User, in CreateClassroomInput) (domain.Classroom, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Classroom{}, fmt.Errorf("%w: name required", ErrValidation)
	}
	classroom := domain.Classroom{
		ID:          util.NewID(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		TeacherID:   teacher.ID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := a.store.CreateClassroom(classroom); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Classroom{}, fmt.Errorf("%w: classroom name taken", ErrValidation)
		}
		return domain.Classroom{}, err
	}
	return classroom, nil
}

func (a *App) ListClassrooms() ([]domain.Classroom, error) {
	return a.store.ListClassrooms()
}

func (a *App) GetClassroom(id string) (domain.Classroom, error) {
	classroom, err := a.store.GetClassroom(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Classroom{}, ErrNotFound
		}
		return domain.Classroom{}, err
	}
	return classroom, nil
}

// CreateStudentInput enrolls a new student into a classroom.
type CreateStudentInput struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	ClassroomID string `json:"classroomId"`
}

// CreateStudent creates the user plus profile and queues inbox seeding
// so the new student's welcome messages exist before first login.
func (a *App) CreateStudent(ctx context.Context, in CreateStudentInput) (domain.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return domain.User{}, fmt.Errorf("%w: username required", ErrValidation)
	}
	if len(in.Password) < 8 {
		return domain.User{}, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	if in.ClassroomID != "" {
		if _, err := a.GetClassroom(in.ClassroomID); err != nil {
			return domain.User{}, fmt.Errorf("%w: unknown classroom", ErrValidation)
		}
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := domain.User{
		ID:           util.NewID(),
		Username:     username,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: hash,
		IsStudent:    true,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	err = a.store.Transact(func(tx store.Store) error {
		if err := tx.CreateUser(user); err != nil {
			return err
		}
		profile := domain.StudentProfile{
			ID:          util.NewID(),
			UserID:      user.ID,
			ClassroomID: in.ClassroomID,
			FirstName:   user.FirstName,
			LastName:    user.LastName,
			CreatedAt:   user.CreatedAt,
		}
		return tx.CreateStudentProfile(profile)
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.User{}, fmt.Errorf("%w: username taken", ErrValidation)
		}
		return domain.User{}, err
	}
	a.enqueue(ctx, queue.KindInboxSeed, user.ID)
	return user, nil
}

// ListRoster returns the student profiles of one classroom.
func (a *App) ListRoster(classroomID string) ([]domain.StudentProfile, error) {
	if _, err := a.GetClassroom(classroomID); err != nil {
		return nil, err
	}
	return a.store.ListStudentsByClassroom(classroomID)
}
