package services

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/yuns-backend/apiserver/types"
)

// UserRepository defines persistence operations for user accounts.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByStudentNumber(ctx context.Context, studentNumber string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	List(ctx context.Context, offset, limit int) ([]types.User, int, error)
	Delete(ctx context.Context, id int) error
}

// RegisterParams carries the fields of a registration request. The
// password arrives in plaintext and is hashed here; it is never stored.
type RegisterParams struct {
	StudentNumber string
	Name          string
	Password      string
	PhoneNumber   string
	Email         string
}

// UserService encapsulates account use-cases: registration, identity
// resolution, self-service deletion, and administrative listing.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

// Register creates a regular account. Student-number uniqueness is
// enforced by the store's constraint and surfaces as
// store.ErrAlreadyExists.
func (s *UserService) Register(ctx context.Context, params RegisterParams) (types.User, error) {
	return s.create(ctx, params, types.RoleRegular)
}

// CreateAdmin creates an account with the ADMIN role. Callers are
// responsible for restricting who may invoke this.
func (s *UserService) CreateAdmin(ctx context.Context, params RegisterParams) (types.User, error) {
	return s.create(ctx, params, types.RoleAdmin)
}

func (s *UserService) create(ctx context.Context, params RegisterParams, role types.Role) (types.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}

	return s.repo.Create(ctx, types.User{
		StudentNumber: params.StudentNumber,
		Name:          params.Name,
		PhoneNumber:   params.PhoneNumber,
		Email:         params.Email,
		Role:          role,
		RentalStatus:  false,
		PasswordHash:  string(hashed),
	})
}

// GetByStudentNumber resolves an account by its external identity token.
// Returns store.ErrNotFound if absent; callers must handle the failure.
func (s *UserService) GetByStudentNumber(ctx context.Context, studentNumber string) (types.User, error) {
	return s.repo.GetByStudentNumber(ctx, studentNumber)
}

// GetByID resolves an account by its numeric id.
func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// Unregister deletes the account with targetID. Self-service only: the
// requesting principal's id must equal the target id or ErrForbidden is
// returned without touching the store. Deletion is irreversible.
func (s *UserService) Unregister(ctx context.Context, requesterID, targetID int) error {
	if requesterID != targetID {
		return ErrForbidden
	}
	return s.repo.Delete(ctx, targetID)
}

// List returns a page of accounts with the total count, 0-based offset.
// Intended for administrative use; role enforcement happens at the
// request boundary.
func (s *UserService) List(ctx context.Context, offset, limit int) ([]types.User, int, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return s.repo.List(ctx, offset, limit)
}
