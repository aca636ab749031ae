package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/yuns-backend/apiserver/internal/services"
	"github.com/yuns-backend/apiserver/internal/store"
	"github.com/yuns-backend/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// UserHandler provides HTTP handlers for accounts.
type UserHandler struct {
	userService *services.UserService
	secret      []byte
	tokenTTL    time.Duration
}

// NewUserHandler constructs a UserHandler with the provided dependencies.
func NewUserHandler(userService *services.UserService, jwtSecret string) *UserHandler {
	return &UserHandler{
		userService: userService,
		secret:      []byte(jwtSecret),
		tokenTTL:    defaultTokenTTL,
	}
}

// UserRouter registers account routes on the given router.
func UserRouter(
	r chi.Router,
	userService *services.UserService,
	jwtSecret string,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewUserHandler(userService, jwtSecret)
	adminMiddleware := RequireAdmin(userService)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.With(authMiddleware, adminMiddleware).Post("/createAdmin", handler.CreateAdmin)
	r.With(authMiddleware).Delete("/users/{userID}", handler.Unregister)
	r.Route("/admin", func(r chi.Router) {
		r.Use(authMiddleware, adminMiddleware)
		r.Get("/userlist", handler.ListUsers)
		r.Get("/userlist/{userID}", handler.GetUser)
	})
}

// Register creates a regular account.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	params, err := decodeRegisterRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.userService.Register(r.Context(), params); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			writeError(w, http.StatusBadRequest, "student number already registered")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to register user")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "registration complete"})
}

// Login verifies credentials and returns a JWT whose subject is the
// student number.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.StudentNumber = strings.TrimSpace(req.StudentNumber)
	if req.StudentNumber == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.userService.GetByStudentNumber(r.Context(), req.StudentNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := issueToken(user.StudentNumber, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

// CreateAdmin creates an ADMIN account. Routed behind RequireAdmin.
func (h *UserHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	params, err := decodeRegisterRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.userService.CreateAdmin(r.Context(), params)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			writeError(w, http.StatusBadRequest, "student number already registered")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create admin")
		return
	}

	writeJSON(w, http.StatusOK, created)
}

// Unregister deletes the caller's own account.
func (h *UserHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	targetID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	principal, err := h.resolvePrincipal(w, r)
	if err != nil {
		return
	}

	if err := h.userService.Unregister(r.Context(), principal.ID, targetID); err != nil {
		if errors.Is(err, services.ErrForbidden) {
			writeError(w, http.StatusForbidden, "not allowed to delete this account")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to delete account")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "account deleted"})
}

// ListUsers returns a page of accounts, 0-based page index.
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, size, err := parseListParams(r, 0)
	if err != nil || page < 0 {
		writeError(w, http.StatusBadRequest, "invalid pagination")
		return
	}

	items, total, err := h.userService.List(r.Context(), page*size, size)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, UserListResponse{
		Items: items,
		Page:  page,
		Limit: size,
		Total: total,
	})
}

// GetUser returns a single account by id.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) resolvePrincipal(w http.ResponseWriter, r *http.Request) (types.User, error) {
	studentNumber, err := studentNumberFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return types.User{}, err
	}

	user, err := h.userService.GetByStudentNumber(r.Context(), studentNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return types.User{}, err
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return types.User{}, err
	}
	return user, nil
}

// RegisterRequest is the JSON payload for register and createAdmin.
type RegisterRequest struct {
	StudentNumber string `json:"student_number"`
	Name          string `json:"name"`
	Password      string `json:"password"`
	PhoneNumber   string `json:"phone_number"`
	Email         string `json:"email"`
}

type LoginRequest struct {
	StudentNumber string `json:"student_number"`
	Password      string `json:"password"`
}

type AuthResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

// UserListResponse is the paginated list response payload.
type UserListResponse struct {
	Items []types.User `json:"items"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Total int          `json:"total"`
}

func decodeRegisterRequest(r *http.Request) (services.RegisterParams, error) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return services.RegisterParams{}, errors.New("invalid request")
	}

	req.StudentNumber = strings.TrimSpace(req.StudentNumber)
	req.Name = strings.TrimSpace(req.Name)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.Email = strings.TrimSpace(req.Email)
	if req.StudentNumber == "" || req.Name == "" || req.Password == "" || req.Email == "" {
		return services.RegisterParams{}, errors.New("missing required fields")
	}

	return services.RegisterParams{
		StudentNumber: req.StudentNumber,
		Name:          req.Name,
		Password:      req.Password,
		PhoneNumber:   req.PhoneNumber,
		Email:         req.Email,
	}, nil
}

func parseUserID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "userID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid user id")
	}
	return id, nil
}
