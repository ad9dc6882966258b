package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/noah-isme/essay-correction-api/internal/models"
	"github.com/noah-isme/essay-correction-api/internal/repository"
)

// essayStoreFake mirrors the conditional writes of the essays repository in memory.
type essayStoreFake struct {
	mu     sync.Mutex
	essays map[string]*models.Essay

	setPDFCalls int
	createErr   error
}

func newEssayStoreFake(essays ...*models.Essay) *essayStoreFake {
	f := &essayStoreFake{essays: map[string]*models.Essay{}}
	for _, e := range essays {
		f.essays[e.ID] = e
	}
	return f
}

func (f *essayStoreFake) Create(ctx context.Context, essay *models.Essay) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	essay.Status = models.EssayStatusPending
	copied := *essay
	f.essays[essay.ID] = &copied
	return nil
}

func (f *essayStoreFake) FindByID(ctx context.Context, id string) (*models.Essay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	essay, ok := f.essays[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *essay
	return &copied, nil
}

func (f *essayStoreFake) OpenCorrection(ctx context.Context, id string, draft models.CorrectionDraft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	essay, ok := f.essays[id]
	if !ok || !canOpenCorrection(essay.Status) {
		return sql.ErrNoRows
	}
	essay.Status = models.EssayStatusGrading
	if essay.TeacherID == nil {
		teacher := draft.TeacherID
		essay.TeacherID = &teacher
	}
	if draft.GeneralComments != nil {
		essay.GeneralComments = draft.GeneralComments
	}
	essay.RubricDraft = draft.RubricDraft
	return nil
}

func (f *essayStoreFake) SaveGrade(ctx context.Context, id string, update models.GradeUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	essay, ok := f.essays[id]
	if !ok || essay.Status != models.EssayStatusGrading {
		return sql.ErrNoRows
	}
	essay.Status = models.EssayStatusGraded
	essay.RubricResult = update.RubricResult
	essay.PAS = update.PAS
	raw, scaled := update.RawScore, update.ScaledScore
	essay.RawScore = &raw
	essay.ScaledScore = &scaled
	essay.BimesterScore = update.BimesterScore
	essay.AnnulmentActive = update.AnnulmentActive
	essay.AnnulmentReasons = update.AnnulmentReasons
	return nil
}

func (f *essayStoreFake) SetCorrectedPDF(ctx context.Context, id, url, key string, finalComments *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setPDFCalls++
	essay, ok := f.essays[id]
	if !ok || essay.CorrectedPDFURL != nil || !canDeliver(essay.Status) {
		return sql.ErrNoRows
	}
	essay.CorrectedPDFURL = &url
	essay.CorrectedPDFKey = &key
	if finalComments != nil {
		essay.FinalComments = finalComments
	}
	return nil
}

func (f *essayStoreFake) MarkSent(ctx context.Context, id string, sentAt time.Time, finalComments *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	essay, ok := f.essays[id]
	if !ok || !canDeliver(essay.Status) || essay.CorrectedPDFURL == nil {
		return sql.ErrNoRows
	}
	essay.Status = models.EssayStatusSent
	essay.EmailLastSentAt = &sentAt
	essay.EmailSendCount++
	if finalComments != nil {
		essay.FinalComments = finalComments
	}
	return nil
}

// highlightStoreFake assigns order numbers the way the sequence table does.
type highlightStoreFake struct {
	mu      sync.Mutex
	items   map[string][]models.Highlight
	last    map[string]int
	listErr error
	lists   int
}

func newHighlightStoreFake() *highlightStoreFake {
	return &highlightStoreFake{items: map[string][]models.Highlight{}, last: map[string]int{}}
}

func (f *highlightStoreFake) Append(ctx context.Context, highlight *models.Highlight, requested *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.last[highlight.EssayID] + 1
	f.last[highlight.EssayID] = next
	if requested != nil && *requested != next {
		f.last[highlight.EssayID] = next - 1
		return fmt.Errorf("%w: expected %d, got %d", repository.ErrOrderNumberMismatch, next, *requested)
	}
	if highlight.ID == "" {
		highlight.ID = fmt.Sprintf("hl-%d", next)
	}
	highlight.GlobalOrderNumber = next
	f.items[highlight.EssayID] = append(f.items[highlight.EssayID], *highlight)
	return nil
}

func (f *highlightStoreFake) ListByEssay(ctx context.Context, essayID string) ([]models.Highlight, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.Highlight(nil), f.items[essayID]...), nil
}

func (f *highlightStoreFake) add(essayID string, category models.HighlightCategory) {
	_ = f.Append(context.Background(), &models.Highlight{
		EssayID:  essayID,
		Page:     1,
		Rects:    models.Rects{{X: 0.1, Y: 0.1, W: 0.2, H: 0.05}},
		Color:    "#ffcc00",
		Category: category,
		Comment:  "ver",
	}, nil)
}

type auditRecorder struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (a *auditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditRecorder) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, log := range a.logs {
		out = append(out, log.Action)
	}
	return out
}

type userDirectoryFake map[string]*models.User

func (f userDirectoryFake) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := f[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

// memoryCache is a payloadCache that keeps JSON encoded values in a map.
type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
	gets  int
	hits  int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string][]byte{}}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	raw, ok := c.items[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	c.hits++
	return true, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.items[key] = raw
	return nil
}

func (c *memoryCache) Invalidate(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.items, key)
	}
	return nil
}

func teacherClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleTeacher, Email: id + "@example.com"}
}

func studentClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent, Email: id + "@example.com"}
}

func strPtr(v string) *string { return &v }

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
