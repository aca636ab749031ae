package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/yuns-backend/apiserver/internal/services"
	"github.com/yuns-backend/apiserver/internal/store"
	"github.com/yuns-backend/apiserver/types"
)

const (
	defaultPage        = 1
	defaultSize        = 10
	maxMultipartMemory = 32 << 20
	maxImageBytes      = 10 << 20
	formFieldTitle     = "title"
	formFieldContent   = "content"
	formFieldImage     = "image"
)

// QuestionHandler provides HTTP handlers for support questions.
type QuestionHandler struct {
	questionService *services.QuestionService
	userService     *services.UserService
}

// NewQuestionHandler constructs a handler with the provided services.
func NewQuestionHandler(questionService *services.QuestionService, userService *services.UserService) *QuestionHandler {
	return &QuestionHandler{
		questionService: questionService,
		userService:     userService,
	}
}

// QuestionRouter registers question routes on the given router.
func QuestionRouter(
	r chi.Router,
	questionService *services.QuestionService,
	userService *services.UserService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewQuestionHandler(questionService, userService)

	r.Get("/questions/read", handler.ListQuestions)
	r.With(authMiddleware).Post("/questions/create", handler.CreateQuestion)
	r.Route("/questions/{questionID}", func(r chi.Router) {
		r.Get("/read", handler.GetQuestion)
		r.With(authMiddleware).Put("/update", handler.UpdateQuestion)
		r.With(authMiddleware).Delete("/delete", handler.DeleteQuestion)
	})
}

func (h *QuestionHandler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	page, size, err := parseListParams(r, defaultPage)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.questionService.ListPage(r.Context(), page, size)
	if err != nil {
		if errors.Is(err, services.ErrInvalidPage) {
			writeError(w, http.StatusBadRequest, "invalid page")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list questions")
		return
	}

	writeJSON(w, http.StatusOK, QuestionListResponse{
		Items: items,
		Page:  page,
		Limit: size,
		Total: total,
	})
}

func (h *QuestionHandler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := parseQuestionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	question, err := h.questionService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "question not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch question")
		return
	}

	writeJSON(w, http.StatusOK, question)
}

func (h *QuestionHandler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	owner, err := h.resolvePrincipal(w, r)
	if err != nil {
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	title := strings.TrimSpace(r.FormValue(formFieldTitle))
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	content := strings.TrimSpace(r.FormValue(formFieldContent))
	if content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	image, err := parseImageFile(r.MultipartForm)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.questionService.Create(r.Context(), title, content, image, owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create question")
		return
	}

	writeJSON(w, http.StatusOK, created)
}

func (h *QuestionHandler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := parseQuestionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	studentNumber, err := studentNumberFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	patch, err := parseQuestionPatch(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.questionService.Update(r.Context(), id, studentNumber, patch)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "question not found")
		case errors.Is(err, services.ErrForbidden):
			writeError(w, http.StatusForbidden, "not the question owner")
		default:
			writeError(w, http.StatusInternalServerError, "failed to update question")
		}
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *QuestionHandler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := parseQuestionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	studentNumber, err := studentNumberFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.questionService.Delete(r.Context(), id, studentNumber); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "question not found")
		case errors.Is(err, services.ErrForbidden):
			writeError(w, http.StatusForbidden, "not the question owner")
		default:
			writeError(w, http.StatusInternalServerError, "failed to delete question")
		}
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "question deleted"})
}

// resolvePrincipal loads the authenticated account. On failure it writes
// the response itself and returns a non-nil error.
func (h *QuestionHandler) resolvePrincipal(w http.ResponseWriter, r *http.Request) (types.User, error) {
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

// QuestionListResponse is the paginated list response payload.
type QuestionListResponse struct {
	Items []types.Question `json:"items"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
	Total int              `json:"total"`
}

func parseListParams(r *http.Request, pageDefault int) (page, size int, err error) {
	page = pageDefault
	size = defaultSize

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, errors.New("invalid page")
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("size")); raw != "" {
		size, err = strconv.Atoi(raw)
		if err != nil || size < 1 {
			return 0, 0, errors.New("invalid size")
		}
	}
	return page, size, nil
}

func parseQuestionID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "questionID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid question id")
	}
	return id, nil
}

// parseQuestionPatch builds the partial update from a multipart form.
// A field is part of the patch only when its form key is present, so an
// empty submitted value replaces the stored one while an omitted key
// keeps it.
func parseQuestionPatch(r *http.Request) (services.QuestionPatch, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return services.QuestionPatch{}, errors.New("invalid multipart form")
	}

	var patch services.QuestionPatch
	form := r.MultipartForm
	if values, ok := form.Value[formFieldTitle]; ok && len(values) > 0 {
		title := values[0]
		patch.Title = &title
	}
	if values, ok := form.Value[formFieldContent]; ok && len(values) > 0 {
		content := values[0]
		patch.Content = &content
	}

	image, err := parseImageFile(form)
	if err != nil {
		return services.QuestionPatch{}, err
	}
	patch.Image = image

	return patch, nil
}

// parseImageFile reads the optional image attachment. Returns nil when
// no image was submitted.
func parseImageFile(form *multipart.Form) (*services.ImageUpload, error) {
	if form == nil {
		return nil, nil
	}

	files := form.File[formFieldImage]
	if len(files) == 0 {
		return nil, nil
	}
	if len(files) > 1 {
		return nil, errors.New("only one image is allowed")
	}

	fileHeader := files[0]
	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}

	data, err := readFileLimited(file, maxImageBytes)
	_ = file.Close()
	if err != nil {
		return nil, err
	}

	return &services.ImageUpload{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}
