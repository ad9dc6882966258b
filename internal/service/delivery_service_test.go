package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/essay-correction-api/internal/dto"
	"github.com/noah-isme/essay-correction-api/internal/models"
	appErrors "github.com/noah-isme/essay-correction-api/pkg/errors"
	"github.com/noah-isme/essay-correction-api/pkg/storage"
)

type rendererFake struct {
	mu      sync.Mutex
	renders int32
	stored  map[string][]byte
	delay   time.Duration
	err     error
	started chan struct{}
	release chan struct{}
}

func newRendererFake() *rendererFake {
	return &rendererFake{stored: map[string][]byte{}}
}

func (r *rendererFake) Render(ctx context.Context, input CorrectionInput) (*Artifact, error) {
	atomic.AddInt32(&r.renders, 1)
	if r.started != nil {
		close(r.started)
	}
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fmt.Sprintf("corrected/%s/%d.pdf", input.Essay.ID, len(r.stored)+1)
	content := []byte("%PDF-1.4 " + input.Essay.ID)
	r.stored[key] = content
	return &Artifact{Key: key, URL: "http://api.test/api/v1/essays/" + input.Essay.ID + "/corrected-pdf", Content: content}, nil
}

func (r *rendererFake) Load(ctx context.Context, key string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	content, ok := r.stored[key]
	if !ok {
		return nil, errors.New("artifact not found")
	}
	return content, nil
}

func (r *rendererFake) count() int {
	return int(atomic.LoadInt32(&r.renders))
}

type dispatcherFake struct {
	mu     sync.Mutex
	emails []CorrectionEmail
	err    error
}

func (d *dispatcherFake) Dispatch(ctx context.Context, email CorrectionEmail) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.emails = append(d.emails, email)
	return nil
}

func (d *dispatcherFake) sent() []CorrectionEmail {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]CorrectionEmail(nil), d.emails...)
}

type deliveryFixture struct {
	svc        *DeliveryService
	essays     *essayStoreFake
	highlights *highlightStoreFake
	renderer   *rendererFake
	dispatcher *dispatcherFake
	audit      *auditRecorder
}

func gradedEssay(id string) *models.Essay {
	essay := gradingEssay(id, models.EssayTypeENEM)
	essay.Status = models.EssayStatusGraded
	score, scaled := 800.0, 8.0
	essay.RawScore = &score
	essay.ScaledScore = &scaled
	return essay
}

func newDeliveryFixture(essays ...*models.Essay) *deliveryFixture {
	f := &deliveryFixture{
		essays:     newEssayStoreFake(essays...),
		highlights: newHighlightStoreFake(),
		renderer:   newRendererFake(),
		dispatcher: &dispatcherFake{},
		audit:      &auditRecorder{},
	}
	users := userDirectoryFake{
		"student-1": {ID: "student-1", Email: "aluno@example.com", FullName: "Ana Aluna", Role: models.RoleStudent},
		"student-2": {ID: "student-2", FullName: "Sem Email", Role: models.RoleStudent},
	}
	signer := storage.NewSignedURLSigner("delivery-secret", time.Hour)
	f.svc = NewDeliveryService(f.essays, f.highlights, users, f.renderer, f.dispatcher, signer, f.audit, nil, nil, DeliveryConfig{Signature: "Equipe"})
	return f
}

func TestDeliveryServiceRendersOnceAndResends(t *testing.T) {
	f := newDeliveryFixture(gradedEssay("essay-1"))
	f.highlights.add("essay-1", models.HighlightCategoryGrammar)
	ctx := context.Background()

	first, err := f.svc.Deliver(ctx, teacherClaims("teacher-1"), "essay-1", dto.DeliverRequest{FinalComments: strPtr("Parabéns")})
	require.NoError(t, err)
	assert.Equal(t, models.EssayStatusSent, first.Status)
	assert.Equal(t, 1, first.EmailSendCount)
	require.NotNil(t, first.CorrectedPDFURL)
	url := *first.CorrectedPDFURL

	second, err := f.svc.Deliver(ctx, teacherClaims("teacher-1"), "essay-1", dto.DeliverRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.EssayStatusSent, second.Status)
	assert.Equal(t, 2, second.EmailSendCount)
	assert.Equal(t, url, *second.CorrectedPDFURL)

	assert.Equal(t, 1, f.renderer.count())
	emails := f.dispatcher.sent()
	require.Len(t, emails, 2)
	assert.Equal(t, "aluno@example.com", emails[0].To)
	assert.Equal(t, "Redação Corrigida - Desafios da mobilidade urbana", emails[0].Subject)
	assert.NotEmpty(t, emails[1].Attachment)
	assert.True(t, strings.HasPrefix(emails[1].Link, url+"?token="))
	assert.Equal(t, []string{models.AuditActionEssayDeliver, models.AuditActionEssayDeliver}, f.audit.actions())
}

func TestDeliveryServiceRequiresAnnotations(t *testing.T) {
	f := newDeliveryFixture(gradedEssay("essay-1"))

	_, err := f.svc.Deliver(context.Background(), teacherClaims("teacher-1"), "essay-1", dto.DeliverRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrMissingAnnotations.Code, errorCode(err))

	assert.Zero(t, f.renderer.count())
	assert.Empty(t, f.dispatcher.sent())
	stored, _ := f.essays.FindByID(context.Background(), "essay-1")
	assert.Equal(t, models.EssayStatusGraded, stored.Status)
	assert.Nil(t, stored.CorrectedPDFURL)
	assert.Empty(t, f.audit.actions())
}

func TestDeliveryServiceDispatchFailureKeepsArtifact(t *testing.T) {
	f := newDeliveryFixture(gradedEssay("essay-1"))
	f.highlights.add("essay-1", models.HighlightCategoryArgumentation)
	f.dispatcher.err = errors.New("smtp unavailable")
	ctx := context.Background()

	_, err := f.svc.Deliver(ctx, teacherClaims("teacher-1"), "essay-1", dto.DeliverRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDispatch.Code, errorCode(err))

	stored, _ := f.essays.FindByID(ctx, "essay-1")
	assert.Equal(t, models.EssayStatusGraded, stored.Status)
	require.NotNil(t, stored.CorrectedPDFURL)
	assert.Zero(t, stored.EmailSendCount)

	f.dispatcher.err = nil
	delivered, err := f.svc.Deliver(ctx, teacherClaims("teacher-1"), "essay-1", dto.DeliverRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.EssayStatusSent, delivered.Status)
	assert.Equal(t, 1, f.renderer.count())
}

func TestDeliveryServiceConcurrentDeliveriesRenderOnce(t *testing.T) {
	f := newDeliveryFixture(gradedEssay("essay-1"))
	f.highlights.add("essay-1", models.HighlightCategoryGrammar)
	f.renderer.delay = 20 * time.Millisecond

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Deliver(context.Background(), teacherClaims("teacher-1"), "essay-1", dto.DeliverRequest{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 1, f.renderer.count())
	assert.Len(t, f.dispatcher.sent(), callers)
	stored, _ := f.essays.FindByID(context.Background(), "essay-1")
	assert.Equal(t, callers, stored.EmailSendCount)
}

func TestDeliveryServiceCancelledCallerDoesNotFailSharedRender(t *testing.T) {
	f := newDeliveryFixture(gradedEssay("essay-1"))
	f.highlights.add("essay-1", models.HighlightCategoryGrammar)
	f.renderer.started = make(chan struct{})
	f.renderer.release = make(chan struct{})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.svc.Deliver(firstCtx, teacherClaims("teacher-1"), "essay-1", dto.DeliverRequest{})
		firstErr <- err
	}()
	<-f.renderer.started

	secondErr := make(chan error, 1)
	go func() {
		_, err := f.svc.Deliver(context.Background(), teacherClaims("teacher-1"), "essay-1", dto.DeliverRequest{})
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(f.renderer.release)
	require.NoError(t, <-secondErr)

	assert.Equal(t, 1, f.renderer.count())
	assert.Len(t, f.dispatcher.sent(), 1)
	stored, _ := f.essays.FindByID(context.Background(), "essay-1")
	assert.Equal(t, models.EssayStatusSent, stored.Status)
	require.NotNil(t, stored.CorrectedPDFURL)
}

func TestDeliveryServiceRenderFailure(t *testing.T) {
	f := newDeliveryFixture(gradedEssay("essay-1"))
	f.highlights.add("essay-1", models.HighlightCategoryGrammar)
	f.renderer.err = errors.New("font missing")

	_, err := f.svc.Deliver(context.Background(), teacherClaims("teacher-1"), "essay-1", dto.DeliverRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrArtifactGeneration.Code, errorCode(err))
	assert.Empty(t, f.dispatcher.sent())

	stored, _ := f.essays.FindByID(context.Background(), "essay-1")
	assert.Nil(t, stored.CorrectedPDFURL)
}

func TestDeliveryServiceGuards(t *testing.T) {
	grading := gradingEssay("essay-1", models.EssayTypeENEM)
	noEmail := gradedEssay("essay-2")
	noEmail.StudentID = "student-2"
	f := newDeliveryFixture(grading, noEmail)
	f.highlights.add("essay-1", models.HighlightCategoryGrammar)
	f.highlights.add("essay-2", models.HighlightCategoryGrammar)

	_, err := f.svc.Deliver(context.Background(), teacherClaims("teacher-1"), "essay-1", dto.DeliverRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, errorCode(err))

	_, err = f.svc.Deliver(context.Background(), teacherClaims("teacher-1"), "essay-2", dto.DeliverRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))

	_, err = f.svc.Deliver(context.Background(), teacherClaims("teacher-2"), "essay-2", dto.DeliverRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))

	assert.Zero(t, f.renderer.count())
}

func TestDeliveryServiceOpenCorrectedPDF(t *testing.T) {
	f := newDeliveryFixture(gradedEssay("essay-1"), gradedEssay("essay-2"))
	f.highlights.add("essay-1", models.HighlightCategoryGrammar)
	ctx := context.Background()

	_, err := f.svc.Deliver(ctx, teacherClaims("teacher-1"), "essay-1", dto.DeliverRequest{})
	require.NoError(t, err)
	link := f.dispatcher.sent()[0].Link
	token := link[strings.Index(link, "?token=")+len("?token="):]

	pdf, err := f.svc.OpenCorrectedPDF(ctx, "essay-1", token)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 essay-1"), pdf.Content)
	assert.Equal(t, "redacao-corrigida-essay-1.pdf", pdf.Filename)

	_, err = f.svc.OpenCorrectedPDF(ctx, "essay-2", token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))

	_, err = f.svc.OpenCorrectedPDF(ctx, "essay-1", "garbage")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errorCode(err))
}
