package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/yuns-backend/apiserver/internal/events"
	"github.com/yuns-backend/apiserver/internal/storage"
	"github.com/yuns-backend/apiserver/internal/store"
	"github.com/yuns-backend/apiserver/types"
)

type fakeQuestionRepo struct {
	questions map[int]types.Question
	nextID    int
}

func newFakeQuestionRepo() *fakeQuestionRepo {
	return &fakeQuestionRepo{questions: make(map[int]types.Question), nextID: 1}
}

func (r *fakeQuestionRepo) List(ctx context.Context, offset, limit int) ([]types.Question, int, error) {
	ids := make([]int, 0, len(r.questions))
	for id := range r.questions {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	items := make([]types.Question, 0, limit)
	for i := offset; i < len(ids) && len(items) < limit; i++ {
		items = append(items, r.questions[ids[i]])
	}
	return items, len(r.questions), nil
}

func (r *fakeQuestionRepo) Get(ctx context.Context, id int) (types.Question, error) {
	question, ok := r.questions[id]
	if !ok {
		return types.Question{}, store.ErrNotFound
	}
	return question, nil
}

func (r *fakeQuestionRepo) Create(ctx context.Context, question types.Question) (types.Question, error) {
	question.ID = r.nextID
	question.CreatedAt = time.Now()
	r.nextID++
	r.questions[question.ID] = question
	return question, nil
}

func (r *fakeQuestionRepo) Update(ctx context.Context, question types.Question) (types.Question, error) {
	if _, ok := r.questions[question.ID]; !ok {
		return types.Question{}, store.ErrNotFound
	}
	r.questions[question.ID] = question
	return question, nil
}

func (r *fakeQuestionRepo) Delete(ctx context.Context, id int) error {
	if _, ok := r.questions[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.questions, id)
	return nil
}

type fakeObjectStorage struct {
	objects map[string][]byte
	failPut bool
}

func newFakeObjectStorage() *fakeObjectStorage {
	return &fakeObjectStorage{objects: make(map[string][]byte)}
}

func (f *fakeObjectStorage) EnsureBucket(ctx context.Context) error { return nil }

func (f *fakeObjectStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if f.failPut {
		return errors.New("put failed")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeObjectStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjectStorage) Delete(ctx context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeObjectStorage) ObjectURL(key string) string {
	return fmt.Sprintf("http://blobs.test/uploads/%s", key)
}

func (f *fakeObjectStorage) Bucket() string { return "uploads" }

type publishedMessage struct {
	channel string
	data    []byte
}

// recordingPublisher captures published messages; fails every publish
// when failPublish is set.
type recordingPublisher struct {
	messages    []publishedMessage
	failPublish bool
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if p.failPublish {
		return "", errors.New("broker unavailable")
	}
	p.messages = append(p.messages, publishedMessage{channel: channel, data: data})
	return "msg-1", nil
}

func (p *recordingPublisher) Close() error { return nil }

func newTestQuestionService(repo *fakeQuestionRepo, blobs *fakeObjectStorage) *QuestionService {
	return NewQuestionService(repo, storage.NewStorage(blobs), nil, nil)
}

func testOwner() types.User {
	return types.User{ID: 1, StudentNumber: "20230001", Role: types.RoleRegular}
}

func TestCreateSetsDefaults(t *testing.T) {
	repo := newFakeQuestionRepo()
	svc := newTestQuestionService(repo, newFakeObjectStorage())

	before := time.Now()
	created, err := svc.Create(context.Background(), "T1", "C1", nil, testOwner())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if created.Title != "T1" || created.Content != "C1" {
		t.Fatalf("unexpected fields: %+v", created)
	}
	if created.StudentNumber != "20230001" {
		t.Fatalf("owner not captured: %q", created.StudentNumber)
	}
	if created.State {
		t.Fatalf("new question must be unanswered")
	}
	if created.Answer != nil {
		t.Fatalf("new question must have no answer")
	}
	if created.ImageURL != nil {
		t.Fatalf("expected no image url, got %q", *created.ImageURL)
	}
	if created.CreatedAt.IsZero() || created.CreatedAt.Before(before) || created.CreatedAt.After(time.Now()) {
		t.Fatalf("unexpected creation timestamp: %v", created.CreatedAt)
	}

	fetched, err := svc.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get after create: %v", err)
	}
	if fetched.Title != "T1" || fetched.Content != "C1" {
		t.Fatalf("unexpected stored fields: %+v", fetched)
	}
}

func TestCreateUploadsImage(t *testing.T) {
	repo := newFakeQuestionRepo()
	blobs := newFakeObjectStorage()
	svc := newTestQuestionService(repo, blobs)

	image := &ImageUpload{
		Filename:    "broken-screen.png",
		ContentType: "image/png",
		Data:        []byte("png-bytes"),
	}
	created, err := svc.Create(context.Background(), "T1", "C1", image, testOwner())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if created.ImageURL == nil {
		t.Fatalf("expected image url to be set")
	}
	if len(blobs.objects) != 1 {
		t.Fatalf("expected one uploaded object, got %d", len(blobs.objects))
	}
	for key, data := range blobs.objects {
		if string(data) != "png-bytes" {
			t.Fatalf("uploaded data mismatch")
		}
		want := blobs.ObjectURL(key)
		if *created.ImageURL != want {
			t.Fatalf("image url %q, want %q", *created.ImageURL, want)
		}
	}
}

func TestCreateUploadFailureWritesNothing(t *testing.T) {
	repo := newFakeQuestionRepo()
	blobs := newFakeObjectStorage()
	blobs.failPut = true
	svc := newTestQuestionService(repo, blobs)

	image := &ImageUpload{Filename: "x.png", Data: []byte("data")}
	if _, err := svc.Create(context.Background(), "T1", "C1", image, testOwner()); err == nil {
		t.Fatalf("expected upload failure")
	}
	if len(repo.questions) != 0 {
		t.Fatalf("no record must be committed after a failed upload")
	}
}

func TestUpdateMergesPartialFields(t *testing.T) {
	repo := newFakeQuestionRepo()
	blobs := newFakeObjectStorage()
	svc := newTestQuestionService(repo, blobs)

	image := &ImageUpload{Filename: "a.jpg", Data: []byte("jpg")}
	created, err := svc.Create(context.Background(), "T1", "C1", image, testOwner())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	title := "T2"
	updated, err := svc.Update(context.Background(), created.ID, "20230001", QuestionPatch{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if updated.Title != "T2" {
		t.Fatalf("title not updated: %q", updated.Title)
	}
	if updated.Content != "C1" {
		t.Fatalf("content must be retained, got %q", updated.Content)
	}
	if updated.ImageURL == nil || *updated.ImageURL != *created.ImageURL {
		t.Fatalf("image url must be retained")
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("creation timestamp must not change")
	}
	if updated.State != created.State || updated.Answer != nil {
		t.Fatalf("state and answer must carry over unchanged")
	}
}

func TestUpdateAllFields(t *testing.T) {
	repo := newFakeQuestionRepo()
	blobs := newFakeObjectStorage()
	svc := newTestQuestionService(repo, blobs)

	created, err := svc.Create(context.Background(), "T1", "C1", nil, testOwner())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	title, content := "T2", "C2"
	patch := QuestionPatch{
		Title:   &title,
		Content: &content,
		Image:   &ImageUpload{Filename: "new.png", Data: []byte("new")},
	}
	updated, err := svc.Update(context.Background(), created.ID, "20230001", patch)
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if updated.Title != "T2" || updated.Content != "C2" || updated.ImageURL == nil {
		t.Fatalf("expected all three fields changed: %+v", updated)
	}
	if updated.StudentNumber != created.StudentNumber {
		t.Fatalf("owner must not change")
	}
}

func TestUpdateEmptyStringReplaces(t *testing.T) {
	repo := newFakeQuestionRepo()
	svc := newTestQuestionService(repo, newFakeObjectStorage())

	created, err := svc.Create(context.Background(), "T1", "C1", nil, testOwner())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// A supplied empty value is a real value, only absence falls back.
	empty := ""
	updated, err := svc.Update(context.Background(), created.ID, "20230001", QuestionPatch{Title: &empty})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "" {
		t.Fatalf("supplied empty title must replace, got %q", updated.Title)
	}
	if updated.Content != "C1" {
		t.Fatalf("content must be retained")
	}
}

func TestUpdateForbiddenForNonOwner(t *testing.T) {
	repo := newFakeQuestionRepo()
	svc := newTestQuestionService(repo, newFakeObjectStorage())

	created, err := svc.Create(context.Background(), "T1", "C1", nil, testOwner())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	title := "hijack"
	for i := 0; i < 2; i++ {
		_, err := svc.Update(context.Background(), created.ID, "20239999", QuestionPatch{Title: &title})
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("attempt %d: expected ErrForbidden, got %v", i, err)
		}
	}

	stored := repo.questions[created.ID]
	if stored.Title != "T1" {
		t.Fatalf("record must be unchanged after forbidden update")
	}
}

func TestUpdateNotFound(t *testing.T) {
	svc := newTestQuestionService(newFakeQuestionRepo(), newFakeObjectStorage())

	title := "T"
	_, err := svc.Update(context.Background(), 42, "20230001", QuestionPatch{Title: &title})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteChecksExistenceThenOwnership(t *testing.T) {
	repo := newFakeQuestionRepo()
	svc := newTestQuestionService(repo, newFakeObjectStorage())

	created, err := svc.Create(context.Background(), "T1", "C1", nil, testOwner())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Delete(context.Background(), created.ID, "20239999"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-owner, got %v", err)
	}
	if _, ok := repo.questions[created.ID]; !ok {
		t.Fatalf("record must survive a forbidden delete")
	}

	if err := svc.Delete(context.Background(), created.ID, "20230001"); err != nil {
		t.Fatalf("owner delete: %v", err)
	}

	// A second delete reports NotFound, not Forbidden.
	if err := svc.Delete(context.Background(), created.ID, "20239999"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on repeat delete, got %v", err)
	}
	if _, err := svc.Get(context.Background(), created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected record to be gone")
	}
}

func TestCreateAndDeletePublishEvents(t *testing.T) {
	repo := newFakeQuestionRepo()
	publisher := &recordingPublisher{}
	svc := NewQuestionService(repo, storage.NewStorage(newFakeObjectStorage()), events.NewEmitter(publisher), nil)

	created, err := svc.Create(context.Background(), "T1", "C1", nil, testOwner())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Delete(context.Background(), created.ID, "20230001"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if len(publisher.messages) != 2 {
		t.Fatalf("expected 2 published messages, got %d", len(publisher.messages))
	}
	if publisher.messages[0].channel != events.ChannelQuestionCreated {
		t.Fatalf("first channel = %q, want %q", publisher.messages[0].channel, events.ChannelQuestionCreated)
	}
	if publisher.messages[1].channel != events.ChannelQuestionDeleted {
		t.Fatalf("second channel = %q, want %q", publisher.messages[1].channel, events.ChannelQuestionDeleted)
	}

	for i, msg := range publisher.messages {
		var event events.QuestionEvent
		if err := json.Unmarshal(msg.data, &event); err != nil {
			t.Fatalf("message %d: decode payload: %v", i, err)
		}
		if event.QuestionID != created.ID {
			t.Fatalf("message %d: question id = %d, want %d", i, event.QuestionID, created.ID)
		}
		if event.StudentNumber != "20230001" {
			t.Fatalf("message %d: student number = %q", i, event.StudentNumber)
		}
		if event.Title != "T1" {
			t.Fatalf("message %d: title = %q", i, event.Title)
		}
		if event.OccurredAt.IsZero() {
			t.Fatalf("message %d: missing occurrence timestamp", i)
		}
	}
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	repo := newFakeQuestionRepo()
	publisher := &recordingPublisher{failPublish: true}
	svc := NewQuestionService(repo, storage.NewStorage(newFakeObjectStorage()), events.NewEmitter(publisher), nil)

	// Publishing is best effort: a dead broker must not block the write.
	created, err := svc.Create(context.Background(), "T1", "C1", nil, testOwner())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := repo.questions[created.ID]; !ok {
		t.Fatalf("record must be committed despite publish failure")
	}

	if err := svc.Delete(context.Background(), created.ID, "20230001"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := repo.questions[created.ID]; ok {
		t.Fatalf("record must be removed despite publish failure")
	}
}

func TestListPageTranslatesToZeroBasedOffset(t *testing.T) {
	repo := newFakeQuestionRepo()
	svc := newTestQuestionService(repo, newFakeObjectStorage())

	for i := 0; i < 5; i++ {
		if _, err := svc.Create(context.Background(), fmt.Sprintf("T%d", i), "C", nil, testOwner()); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	first, total, err := svc.ListPage(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if total != 5 {
		t.Fatalf("total = %d, want 5", total)
	}
	if len(first) != 2 || first[0].Title != "T0" || first[1].Title != "T1" {
		t.Fatalf("page 1 mismatch: %+v", first)
	}

	second, _, err := svc.ListPage(context.Background(), 2, 2)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(second) != 2 || second[0].Title != "T2" {
		t.Fatalf("page 2 mismatch: %+v", second)
	}

	last, _, err := svc.ListPage(context.Background(), 3, 2)
	if err != nil {
		t.Fatalf("list page 3: %v", err)
	}
	if len(last) != 1 || last[0].Title != "T4" {
		t.Fatalf("page 3 mismatch: %+v", last)
	}
}

func TestListPageRejectsInvalidPage(t *testing.T) {
	svc := newTestQuestionService(newFakeQuestionRepo(), newFakeObjectStorage())

	for _, page := range []int{0, -1} {
		if _, _, err := svc.ListPage(context.Background(), page, 10); !errors.Is(err, ErrInvalidPage) {
			t.Fatalf("page %d: expected ErrInvalidPage, got %v", page, err)
		}
	}
}
