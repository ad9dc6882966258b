package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/essay-correction-api/internal/dto"
	"github.com/noah-isme/essay-correction-api/internal/models"
	appErrors "github.com/noah-isme/essay-correction-api/pkg/errors"
	"github.com/noah-isme/essay-correction-api/pkg/storage"
)

type deliveryStore interface {
	FindByID(ctx context.Context, id string) (*models.Essay, error)
	SetCorrectedPDF(ctx context.Context, id, url, key string, finalComments *string) error
	MarkSent(ctx context.Context, id string, sentAt time.Time, finalComments *string) error
}

type recipientDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type linkSigner interface {
	Generate(resourceID, key string) (string, time.Time, error)
	Parse(token string) (resourceID, key string, expiresAt time.Time, err error)
}

// DeliveryConfig bounds the downstream calls made during delivery.
type DeliveryConfig struct {
	RenderTimeout   time.Duration
	DispatchTimeout time.Duration
	Signature       string
}

// CorrectedPDF is a downloadable corrected essay.
type CorrectedPDF struct {
	Filename string
	Content  []byte
}

// DeliveryService renders the corrected PDF at most once per essay and dispatches it by email on every call.
type DeliveryService struct {
	essays     deliveryStore
	highlights highlightLister
	users      recipientDirectory
	renderer   ArtifactRenderer
	dispatcher EmailDispatcher
	signer     linkSigner
	audit      auditLogger
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	config     DeliveryConfig
	renders    singleflight.Group
	now        func() time.Time
}

// NewDeliveryService constructs a DeliveryService.
func NewDeliveryService(essays deliveryStore, highlights highlightLister, users recipientDirectory, renderer ArtifactRenderer, dispatcher EmailDispatcher, signer linkSigner, audit auditLogger, metrics *MetricsService, logger *zap.Logger, config DeliveryConfig) *DeliveryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RenderTimeout <= 0 {
		config.RenderTimeout = 30 * time.Second
	}
	if config.DispatchTimeout <= 0 {
		config.DispatchTimeout = 15 * time.Second
	}
	return &DeliveryService{
		essays:     essays,
		highlights: highlights,
		users:      users,
		renderer:   renderer,
		dispatcher: dispatcher,
		signer:     signer,
		audit:      audit,
		metrics:    metrics,
		validator:  validator.New(),
		logger:     logger,
		config:     config,
		now:        time.Now,
	}
}

// Deliver resolves the corrected PDF and emails it to the student.
// A dispatch failure keeps the stored PDF and leaves the essay GRADED.
func (s *DeliveryService) Deliver(ctx context.Context, claims *models.JWTClaims, essayID string, req dto.DeliverRequest) (*models.Essay, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid delivery payload")
	}
	essay, err := loadEssay(ctx, s.essays, essayID)
	if err != nil {
		return nil, err
	}
	if err := ensureGrader(claims, essay); err != nil {
		return nil, err
	}
	if !canDeliver(essay.Status) {
		return nil, invalidState("deliver", essay.Status)
	}

	var (
		highlights []models.Highlight
		recipient  *models.User
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		list, err := s.highlights.ListByEssay(groupCtx, essayID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load highlights")
		}
		highlights = list
		return nil
	})
	group.Go(func() error {
		user, err := s.users.FindByID(groupCtx, essay.StudentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		recipient = user
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := requireAnnotations(highlights); err != nil {
		return nil, err
	}
	if recipient == nil || recipient.Email == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student has no email address")
	}

	artifact, reused, err := s.resolveArtifact(ctx, essay, highlights, recipient, req.FinalComments)
	if err != nil {
		return nil, err
	}

	link, err := s.signedLink(essayID, artifact)
	if err != nil {
		return nil, err
	}
	current, err := loadEssay(ctx, s.essays, essayID)
	if err != nil {
		return nil, err
	}
	email := buildCorrectionEmail(current, recipient, link, s.config.Signature, artifact.Content)

	dispatchCtx, cancel := context.WithTimeout(ctx, s.config.DispatchTimeout)
	start := time.Now()
	err = s.dispatcher.Dispatch(dispatchCtx, email)
	cancel()
	s.metrics.ObserveDispatch(err == nil, time.Since(start))
	if err != nil {
		s.logger.Sugar().Warnw("email_dispatch_failed", "essay_id", essayID, "to", recipient.Email, "error", err.Error())
		return nil, appErrors.Wrap(err, appErrors.ErrDispatch.Code, appErrors.ErrDispatch.Status, "failed to dispatch corrected essay email: "+err.Error())
	}

	if err := s.essays.MarkSent(ctx, essayID, s.now().UTC(), req.FinalComments); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invalidState("deliver", current.Status)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record delivery")
	}
	if current.Status != models.EssayStatusSent {
		s.metrics.RecordTransition(models.EssayStatusSent)
	}
	recordAudit(ctx, s.audit, s.logger, claims, models.AuditActionEssayDeliver, models.AuditResourceEssay, essayID, map[string]interface{}{
		"to":              recipient.Email,
		"artifact_reused": reused,
		"send_count":      current.EmailSendCount + 1,
	})
	s.logger.Sugar().Infow("essay_delivered", "essay_id", essayID, "to", recipient.Email, "artifact_reused", reused, "send_count", current.EmailSendCount+1)
	return loadEssay(ctx, s.essays, essayID)
}

// resolveArtifact reuses the stored PDF or renders it once. Concurrent calls for one essay share a render,
// and the conditional write keeps the first stored artifact when another writer got there first.
// The shared render is detached from the caller that started it; a cancelled caller only stops waiting.
func (s *DeliveryService) resolveArtifact(ctx context.Context, essay *models.Essay, highlights []models.Highlight, recipient *models.User, finalComments *string) (*Artifact, bool, error) {
	if essay.CorrectedPDFURL != nil && essay.CorrectedPDFKey != nil {
		artifact, err := s.reuse(ctx, essay)
		return artifact, true, err
	}

	type resolved struct {
		artifact *Artifact
		reused   bool
	}
	reuseStored := func(ctx context.Context, stored *models.Essay) (interface{}, error) {
		artifact, err := s.reuse(ctx, stored)
		if err != nil {
			return nil, err
		}
		return resolved{artifact: artifact, reused: true}, nil
	}

	flight := s.renders.DoChan(essay.ID, func() (interface{}, error) {
		flightCtx := context.WithoutCancel(ctx)
		latest, err := loadEssay(flightCtx, s.essays, essay.ID)
		if err != nil {
			return nil, err
		}
		if latest.CorrectedPDFURL != nil && latest.CorrectedPDFKey != nil {
			return reuseStored(flightCtx, latest)
		}

		renderCtx, cancel := context.WithTimeout(flightCtx, s.config.RenderTimeout)
		defer cancel()
		start := time.Now()
		artifact, err := s.renderer.Render(renderCtx, CorrectionInput{Essay: latest, Highlights: highlights, Student: recipient, FinalComments: finalComments})
		s.metrics.ObserveRender(err == nil, time.Since(start))
		if err != nil {
			s.logger.Sugar().Warnw("artifact_generation_failed", "essay_id", essay.ID, "error", err.Error())
			return nil, appErrors.Wrap(err, appErrors.ErrArtifactGeneration.Code, appErrors.ErrArtifactGeneration.Status, "failed to generate corrected pdf")
		}
		if err := s.essays.SetCorrectedPDF(flightCtx, essay.ID, artifact.URL, artifact.Key, finalComments); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				stored, loadErr := loadEssay(flightCtx, s.essays, essay.ID)
				if loadErr != nil {
					return nil, loadErr
				}
				if stored.CorrectedPDFURL != nil && stored.CorrectedPDFKey != nil {
					return reuseStored(flightCtx, stored)
				}
				return nil, invalidState("deliver", stored.Status)
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store corrected pdf location")
		}
		s.logger.Sugar().Infow("artifact_generated", "essay_id", essay.ID, "key", artifact.Key, "bytes", len(artifact.Content))
		return resolved{artifact: artifact}, nil
	})

	var result singleflight.Result
	select {
	case result = <-flight:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
	if result.Err != nil {
		return nil, false, result.Err
	}
	out := result.Val.(resolved)
	return out.artifact, out.reused, nil
}

// reuse loads the stored PDF for attachment. A missing file still allows a link-only email.
func (s *DeliveryService) reuse(ctx context.Context, essay *models.Essay) (*Artifact, error) {
	s.metrics.RecordArtifactReuse()
	artifact := &Artifact{Key: *essay.CorrectedPDFKey, URL: *essay.CorrectedPDFURL}
	content, err := s.renderer.Load(ctx, artifact.Key)
	if err != nil {
		s.logger.Warn("corrected pdf unavailable for attachment", zap.String("essay_id", essay.ID), zap.Error(err))
	}
	artifact.Content = content
	s.logger.Sugar().Infow("artifact_reused", "essay_id", essay.ID, "key", artifact.Key)
	return artifact, nil
}

func (s *DeliveryService) signedLink(essayID string, artifact *Artifact) (string, error) {
	if s.signer == nil {
		return artifact.URL, nil
	}
	token, _, err := s.signer.Generate(essayID, artifact.Key)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign corrected pdf link")
	}
	return artifact.URL + "?token=" + token, nil
}

// OpenCorrectedPDF validates a signed download token and returns the stored PDF.
func (s *DeliveryService) OpenCorrectedPDF(ctx context.Context, essayID, token string) (*CorrectedPDF, error) {
	if token == "" || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "download token required")
	}
	resourceID, key, _, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "download token expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	if resourceID != essayID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download token not valid for this essay")
	}
	essay, err := loadEssay(ctx, s.essays, essayID)
	if err != nil {
		return nil, err
	}
	if essay.CorrectedPDFKey == nil || *essay.CorrectedPDFKey != key {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "corrected pdf not found")
	}
	content, err := s.renderer.Load(ctx, key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "corrected pdf not found")
	}
	return &CorrectedPDF{Filename: "redacao-corrigida-" + essayID + ".pdf", Content: content}, nil
}
