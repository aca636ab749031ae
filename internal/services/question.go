package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/yuns-backend/apiserver/internal/events"
	"github.com/yuns-backend/apiserver/internal/storage"
	"github.com/yuns-backend/apiserver/types"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// QuestionRepository defines persistence operations for questions.
type QuestionRepository interface {
	List(ctx context.Context, offset, limit int) ([]types.Question, int, error)
	Get(ctx context.Context, id int) (types.Question, error)
	Create(ctx context.Context, question types.Question) (types.Question, error)
	Update(ctx context.Context, question types.Question) (types.Question, error)
	Delete(ctx context.Context, id int) error
}

// ImageUpload is an image attachment received with a create or update.
type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// QuestionPatch carries the partial fields of an update. Nil fields were
// not supplied and fall back to the stored value; a non-nil empty string
// is a supplied value and replaces the stored one.
type QuestionPatch struct {
	Title   *string
	Content *string
	Image   *ImageUpload
}

// QuestionService encapsulates the question lifecycle: creation with blob
// upload, ownership-gated update and delete, and paginated listing.
type QuestionService struct {
	repo    QuestionRepository
	storage *storage.Storage
	events  *events.Emitter
	log     *zap.Logger
}

// NewQuestionService constructs a QuestionService. The emitter may be nil
// when event publishing is disabled.
func NewQuestionService(repo QuestionRepository, blobStore *storage.Storage, emitter *events.Emitter, logger *zap.Logger) *QuestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionService{
		repo:    repo,
		storage: blobStore,
		events:  emitter,
		log:     logger,
	}
}

// ListPage returns the page-th page of questions, 1-based. The store is
// 0-based, so the offset is translated by subtracting one page.
func (s *QuestionService) ListPage(ctx context.Context, page, size int) ([]types.Question, int, error) {
	if page < 1 {
		return nil, 0, ErrInvalidPage
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return s.repo.List(ctx, (page-1)*size, size)
}

// Get returns the question with the given id, or store.ErrNotFound.
func (s *QuestionService) Get(ctx context.Context, id int) (types.Question, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a new question owned by the given account. An attached
// image is uploaded to the blob store first; upload failure aborts the
// create with no record written. The owner's student number is captured
// from the argument, not re-looked-up.
func (s *QuestionService) Create(ctx context.Context, title, content string, image *ImageUpload, owner types.User) (types.Question, error) {
	var imageURL *string
	if image != nil && len(image.Data) > 0 {
		url, err := s.uploadImage(ctx, image)
		if err != nil {
			return types.Question{}, fmt.Errorf("upload image: %w", err)
		}
		imageURL = &url
	}

	question := types.Question{
		Title:         title,
		Content:       content,
		ImageURL:      imageURL,
		State:         false,
		StudentNumber: owner.StudentNumber,
	}

	created, err := s.repo.Create(ctx, question)
	if err != nil {
		return types.Question{}, err
	}

	if s.events != nil {
		if err := s.events.QuestionCreated(ctx, created); err != nil {
			s.log.Warn("publish question created event",
				zap.Int("question_id", created.ID), zap.Error(err))
		}
	}

	return created, nil
}

// Update applies a partial update to the question with the given id.
// The acting student number must match the stored owner before anything
// is mutated; otherwise ErrForbidden. Timestamp, state, and answer are
// always carried over unchanged.
func (s *QuestionService) Update(ctx context.Context, id int, actingStudentNumber string, patch QuestionPatch) (types.Question, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Question{}, err
	}

	if existing.StudentNumber != actingStudentNumber {
		return types.Question{}, ErrForbidden
	}

	var imageURL *string
	if patch.Image != nil && len(patch.Image.Data) > 0 {
		url, err := s.uploadImage(ctx, patch.Image)
		if err != nil {
			return types.Question{}, fmt.Errorf("upload image: %w", err)
		}
		imageURL = &url
	}

	return s.repo.Update(ctx, mergeQuestion(existing, patch, imageURL))
}

// Delete removes the question with the given id. Existence is checked
// first, then ownership; a missing record is store.ErrNotFound, a
// non-owner actor is ErrForbidden.
func (s *QuestionService) Delete(ctx context.Context, id int, actingStudentNumber string) error {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if existing.StudentNumber != actingStudentNumber {
		return ErrForbidden
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	if s.events != nil {
		if err := s.events.QuestionDeleted(ctx, existing); err != nil {
			s.log.Warn("publish question deleted event",
				zap.Int("question_id", existing.ID), zap.Error(err))
		}
	}

	return nil
}

// mergeQuestion combines an existing question with a patch. Unsupplied
// patch fields keep the existing values; identity, owner, timestamp,
// state, and answer always carry over from the existing record.
func mergeQuestion(existing types.Question, patch QuestionPatch, imageURL *string) types.Question {
	updated := existing
	if patch.Title != nil {
		updated.Title = *patch.Title
	}
	if patch.Content != nil {
		updated.Content = *patch.Content
	}
	if imageURL != nil {
		updated.ImageURL = imageURL
	}
	return updated
}

func (s *QuestionService) uploadImage(ctx context.Context, image *ImageUpload) (string, error) {
	key := imageObjectKey(image.Filename)
	reader := bytes.NewReader(image.Data)
	if err := s.storage.Put(ctx, key, reader, int64(len(image.Data)), image.ContentType); err != nil {
		return "", err
	}
	return s.storage.ObjectURL(key), nil
}

func imageObjectKey(filename string) string {
	var buf [16]byte
	_, _ = rand.Read(buf[:])
	return "questions/" + hex.EncodeToString(buf[:]) + path.Ext(filename)
}
