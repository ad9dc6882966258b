package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/essay-correction-api/internal/dto"
	"github.com/noah-isme/essay-correction-api/internal/models"
	"github.com/noah-isme/essay-correction-api/internal/rubric"
	appErrors "github.com/noah-isme/essay-correction-api/pkg/errors"
)

type essayStore interface {
	Create(ctx context.Context, essay *models.Essay) error
	FindByID(ctx context.Context, id string) (*models.Essay, error)
	OpenCorrection(ctx context.Context, id string, draft models.CorrectionDraft) error
	SaveGrade(ctx context.Context, id string, update models.GradeUpdate) error
}

type highlightLister interface {
	ListByEssay(ctx context.Context, essayID string) ([]models.Highlight, error)
}

type essayFileStore interface {
	SaveStream(key string, r io.Reader) (int64, error)
	Open(key string) (*os.File, int64, error)
	Delete(key string) error
}

type fileTokenService interface {
	IssueFileToken(essayID, userID string) (string, time.Time, error)
	ValidateFileToken(token, essayID string) (*models.FileTokenClaims, error)
}

const sniffLength = 3072

// EssayConfig carries the limits applied to submissions and grading.
type EssayConfig struct {
	MaxUploadBytes      int64
	AllowedMIMEs        []string
	MaxAnnulmentReasons int
	PublicBaseURL       string
	APIPrefix           string
}

// EssayFileStream is an opened original essay file.
type EssayFileStream struct {
	Reader   io.ReadCloser
	Size     int64
	MIME     string
	Filename string
}

// EssayService drives essays through submission, correction and grading.
type EssayService struct {
	essays     essayStore
	highlights highlightLister
	files      essayFileStore
	tokens     fileTokenService
	audit      auditLogger
	engine     *rubric.Engine
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	config     EssayConfig
}

// NewEssayService constructs an EssayService.
func NewEssayService(essays essayStore, highlights highlightLister, files essayFileStore, tokens fileTokenService, audit auditLogger, engine *rubric.Engine, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config EssayConfig) *EssayService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = rubric.NewEngine(nil)
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = 15 << 20
	}
	if len(config.AllowedMIMEs) == 0 {
		config.AllowedMIMEs = []string{"application/pdf", "image/jpeg", "image/png"}
	}
	if config.MaxAnnulmentReasons <= 0 {
		config.MaxAnnulmentReasons = rubric.DefaultMaxAnnulmentReasons
	}
	return &EssayService{
		essays:     essays,
		highlights: highlights,
		files:      files,
		tokens:     tokens,
		audit:      audit,
		engine:     engine,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		config:     config,
	}
}

// Submit stores the uploaded file and creates a PENDING essay.
func (s *EssayService) Submit(ctx context.Context, claims *models.JWTClaims, req dto.SubmitEssayRequest, upload dto.EssayUpload) (*models.Essay, error) {
	if err := requireClaims(claims); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid essay payload")
	}
	studentID, err := submissionStudent(claims, req.StudentID)
	if err != nil {
		return nil, err
	}
	themeID := strings.TrimSpace(req.ThemeID)
	themeText := strings.TrimSpace(req.ThemeText)
	if themeID == "" && themeText == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "themeId or themeText is required")
	}
	if upload.Reader == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "essay file is required")
	}
	if upload.Size > s.config.MaxUploadBytes {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("essay file exceeds %d bytes", s.config.MaxUploadBytes))
	}

	header := make([]byte, sniffLength)
	n, err := io.ReadFull(upload.Reader, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read essay file")
	}
	if n == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "essay file is empty")
	}
	header = header[:n]
	detected := mimetype.Detect(header)
	if !s.mimeAllowed(detected) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported file type %s", detected.String()))
	}

	essay := &models.Essay{
		ID:              uuid.NewString(),
		StudentID:       studentID,
		ClassID:         optionalString(req.ClassID),
		Type:            models.EssayType(req.Type),
		ThemeID:         optionalString(themeID),
		ThemeText:       optionalString(themeText),
		Bimester:        req.Bimester,
		CountInBimester: req.CountInBimester,
		FileMIME:        baseMIME(detected),
		FilePages:       req.Pages,
	}
	if claims.Role == models.RoleTeacher {
		essay.TeacherID = optionalString(claims.UserID)
	}
	essay.FileKey = fmt.Sprintf("uploads/%s/original%s", essay.ID, detected.Extension())

	body := io.LimitReader(io.MultiReader(bytes.NewReader(header), upload.Reader), s.config.MaxUploadBytes+1)
	written, err := s.files.SaveStream(essay.FileKey, body)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store essay file")
	}
	if written > s.config.MaxUploadBytes {
		s.discardFile(essay.FileKey)
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("essay file exceeds %d bytes", s.config.MaxUploadBytes))
	}
	essay.FileSize = written
	essay.FileURL = s.essayURL(essay.ID, "file")

	if err := s.essays.Create(ctx, essay); err != nil {
		s.discardFile(essay.FileKey)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create essay")
	}
	s.metrics.RecordTransition(models.EssayStatusPending)
	recordAudit(ctx, s.audit, s.logger, claims, models.AuditActionEssaySubmit, models.AuditResourceEssay, essay.ID, map[string]interface{}{
		"student_id": essay.StudentID,
		"type":       essay.Type,
		"file_mime":  essay.FileMIME,
		"file_size":  essay.FileSize,
	})
	s.logger.Sugar().Infow("essay_submitted", "essay_id", essay.ID, "student_id", essay.StudentID, "type", essay.Type)
	return essay, nil
}

// Get returns an essay visible to the caller.
func (s *EssayService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.Essay, error) {
	essay, err := loadEssay(ctx, s.essays, id)
	if err != nil {
		return nil, err
	}
	if err := ensureCanView(claims, essay); err != nil {
		return nil, err
	}
	return essay, nil
}

// OpenCorrection moves the essay to GRADING and stores the teacher's draft.
// Draft picks are checked against the catalog but not justified; changing a level drops its stored reason ids.
func (s *EssayService) OpenCorrection(ctx context.Context, claims *models.JWTClaims, id string, req dto.OpenCorrectionRequest) (*models.Essay, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid correction payload")
	}
	essay, err := loadEssay(ctx, s.essays, id)
	if err != nil {
		return nil, err
	}
	if err := ensureGrader(claims, essay); err != nil {
		return nil, err
	}
	if !canOpenCorrection(essay.Status) {
		return nil, invalidState("open a correction for", essay.Status)
	}

	draft := models.RubricSelections{}
	for key, sel := range essay.RubricDraft {
		draft[key] = sel
	}
	for key, in := range req.RubricSelections {
		if _, err := s.engine.Catalog().Level(key, in.Level); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		draft[key] = mergeSelection(essay.RubricDraft, key, in)
	}

	update := models.CorrectionDraft{
		TeacherID:       claims.UserID,
		GeneralComments: req.GeneralComments,
		RubricDraft:     draft,
	}
	if err := s.essays.OpenCorrection(ctx, id, update); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invalidState("open a correction for", essay.Status)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open correction")
	}
	if essay.Status == models.EssayStatusPending {
		s.metrics.RecordTransition(models.EssayStatusGrading)
		recordAudit(ctx, s.audit, s.logger, claims, models.AuditActionCorrectionOpen, models.AuditResourceEssay, id, map[string]interface{}{
			"from": essay.Status,
			"to":   models.EssayStatusGrading,
		})
	}
	return loadEssay(ctx, s.essays, id)
}

// SubmitGrade scores the essay, applies any annulment and moves it to GRADED.
func (s *EssayService) SubmitGrade(ctx context.Context, claims *models.JWTClaims, id string, req dto.SubmitGradeRequest) (*models.Essay, error) {
	checked := req
	if req.Annulment != nil && req.Annulment.Active {
		// Annulled essays may carry placeholder scores.
		checked.RubricSelections = nil
		checked.PAS = nil
	}
	if err := s.validator.Struct(checked); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	essay, err := loadEssay(ctx, s.essays, id)
	if err != nil {
		return nil, err
	}
	if err := ensureGrader(claims, essay); err != nil {
		return nil, err
	}
	if !canSubmitGrade(essay.Status) {
		return nil, invalidState("grade", essay.Status)
	}

	var update models.GradeUpdate
	if req.Annulment != nil && req.Annulment.Active {
		reasons, err := rubric.NormalizeAnnulmentReasons(req.Annulment.Reasons, s.config.MaxAnnulmentReasons)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "annulment requires at least one reason")
		}
		update.AnnulmentActive = true
		update.AnnulmentReasons = reasons
	}

	var score rubric.Score
	switch essay.Type {
	case models.EssayTypeENEM:
		score, err = s.gradeENEM(essay, req, &update)
	case models.EssayTypePAS:
		score, err = s.gradePAS(ctx, essay, req, &update)
	default:
		err = appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported essay type %s", essay.Type))
	}
	if err != nil {
		return nil, err
	}
	if update.AnnulmentActive {
		score = rubric.Score{}
	}
	update.RawScore = score.Raw
	update.ScaledScore = score.Scaled
	update.BimesterScore = rubric.BimesterScore(score.Scaled, essay.CountInBimester, update.AnnulmentActive)

	if err := s.essays.SaveGrade(ctx, id, update); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invalidState("grade", essay.Status)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save grade")
	}
	s.metrics.RecordTransition(models.EssayStatusGraded)
	recordAudit(ctx, s.audit, s.logger, claims, models.AuditActionEssayGrade, models.AuditResourceEssay, id, map[string]interface{}{
		"raw_score":         update.RawScore,
		"scaled_score":      update.ScaledScore,
		"annulment_active":  update.AnnulmentActive,
		"annulment_reasons": update.AnnulmentReasons,
	})
	s.logger.Sugar().Infow("essay_graded", "essay_id", id, "raw_score", update.RawScore, "scaled_score", update.ScaledScore, "annulled", update.AnnulmentActive)
	return loadEssay(ctx, s.essays, id)
}

func (s *EssayService) gradeENEM(essay *models.Essay, req dto.SubmitGradeRequest, update *models.GradeUpdate) (rubric.Score, error) {
	selections := make(map[string]rubric.Selection, len(req.CompetencyScores)+len(req.RubricSelections))
	for key, pts := range req.CompetencyScores {
		var ids []string
		if in, ok := req.RubricSelections[key]; ok {
			ids = in.ReasonIDs
		}
		sel, err := rubric.SelectionFromPoints(pts, ids)
		if err != nil {
			if update.AnnulmentActive {
				continue
			}
			return rubric.Score{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("%s: %v", key, err))
		}
		selections[key] = mergeSelection(essay.RubricDraft, key, dto.RubricSelectionInput{Level: sel.Level, ReasonIDs: sel.ReasonIDs})
	}
	for key, in := range req.RubricSelections {
		if _, done := selections[key]; done {
			continue
		}
		selections[key] = mergeSelection(essay.RubricDraft, key, in)
	}

	if update.AnnulmentActive {
		result := models.RubricResult{}
		for key, sel := range selections {
			if res, err := s.engine.Resolve(key, sel); err == nil {
				result[key] = res
			}
		}
		update.RubricResult = result
		return rubric.Score{}, nil
	}

	resolutions, err := s.engine.ResolveAll(selections)
	if err != nil {
		return rubric.Score{}, rubricError(err)
	}
	result := make(models.RubricResult, len(resolutions))
	for _, res := range resolutions {
		result[res.Competency] = res
	}
	update.RubricResult = result
	return rubric.ScoreENEM(resolutions), nil
}

func (s *EssayService) gradePAS(ctx context.Context, essay *models.Essay, req dto.SubmitGradeRequest, update *models.GradeUpdate) (rubric.Score, error) {
	if update.AnnulmentActive {
		update.PAS = annulledPAS(req.PAS)
		return rubric.Score{}, nil
	}
	if req.PAS == nil {
		return rubric.Score{}, appErrors.Clone(appErrors.ErrValidation, "pas counters are required")
	}
	nl := 1.0
	if req.PAS.NL != nil {
		nl = *req.PAS.NL
	}
	var ne float64
	if req.PAS.NE != nil {
		ne = *req.PAS.NE
	} else {
		highlights, err := s.highlights.ListByEssay(ctx, essay.ID)
		if err != nil {
			return rubric.Score{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count grammar highlights")
		}
		ne = float64(models.CountByCategory(highlights, models.HighlightCategoryGrammar))
	}
	score, err := rubric.ScorePAS(*req.PAS.NC, ne, nl)
	if err != nil {
		return rubric.Score{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	if nl < 1 {
		nl = 1
	}
	update.PAS = &models.PASResult{NC: *req.PAS.NC, NE: ne, NL: nl, RawScore: score.Raw}
	return score, nil
}

// annulledPAS keeps the counters of an annulled PAS essay when they are usable, with a zero raw score.
func annulledPAS(in *dto.PASInput) *models.PASResult {
	if in == nil || in.NC == nil || *in.NC < 0 {
		return nil
	}
	out := &models.PASResult{NC: *in.NC, NL: 1}
	if in.NE != nil && *in.NE >= 0 {
		out.NE = *in.NE
	}
	if in.NL != nil && *in.NL >= 1 {
		out.NL = *in.NL
	}
	return out
}

// IssueFileToken returns a short-lived link to the original essay file.
func (s *EssayService) IssueFileToken(ctx context.Context, claims *models.JWTClaims, id string) (*models.FileToken, error) {
	essay, err := s.Get(ctx, claims, id)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.tokens.IssueFileToken(essay.ID, claims.UserID)
	if err != nil {
		return nil, err
	}
	recordAudit(ctx, s.audit, s.logger, claims, models.AuditActionFileTokenIssue, models.AuditResourceEssay, essay.ID, nil)
	return &models.FileToken{
		Token:     token,
		URL:       s.essayURL(essay.ID, "file") + "?token=" + token,
		ExpiresAt: expiresAt,
	}, nil
}

// OpenFile validates a file token and opens the original essay file.
func (s *EssayService) OpenFile(ctx context.Context, id, token string) (*EssayFileStream, error) {
	if _, err := s.tokens.ValidateFileToken(token, id); err != nil {
		return nil, err
	}
	essay, err := loadEssay(ctx, s.essays, id)
	if err != nil {
		return nil, err
	}
	file, size, err := s.files.Open(essay.FileKey)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "essay file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open essay file")
	}
	return &EssayFileStream{Reader: file, Size: size, MIME: essay.FileMIME, Filename: fileName(essay.FileKey)}, nil
}

func (s *EssayService) mimeAllowed(detected *mimetype.MIME) bool {
	for _, allowed := range s.config.AllowedMIMEs {
		if detected.Is(allowed) {
			return true
		}
	}
	return false
}

func (s *EssayService) discardFile(key string) {
	if err := s.files.Delete(key); err != nil {
		s.logger.Warn("failed to discard essay file", zap.String("key", key), zap.Error(err))
	}
}

func (s *EssayService) essayURL(id, resource string) string {
	return strings.TrimRight(s.config.PublicBaseURL, "/") + s.config.APIPrefix + "/essays/" + id + "/" + resource
}

// mergeSelection keeps the draft's reason ids when the request omits them and the level is unchanged.
func mergeSelection(draft models.RubricSelections, key string, in dto.RubricSelectionInput) rubric.Selection {
	if in.ReasonIDs != nil {
		ids := make([]string, len(in.ReasonIDs))
		copy(ids, in.ReasonIDs)
		return rubric.Selection{Level: in.Level, ReasonIDs: ids}
	}
	if prev, ok := draft[key]; ok {
		return rubric.Reselect(&prev, in.Level)
	}
	return rubric.Reselect(nil, in.Level)
}

func rubricError(err error) error {
	var justification rubric.JustificationErrors
	if errors.As(err, &justification) {
		return appErrors.Wrap(err, appErrors.ErrIncompleteJustification.Code, appErrors.ErrIncompleteJustification.Status, err.Error())
	}
	switch {
	case errors.Is(err, rubric.ErrMissingCompetency), errors.Is(err, rubric.ErrUnknownCompetency), errors.Is(err, rubric.ErrUnknownLevel):
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve rubric")
	}
}

func submissionStudent(claims *models.JWTClaims, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	switch claims.Role {
	case models.RoleStudent:
		if requested != "" && requested != claims.UserID {
			return "", appErrors.Clone(appErrors.ErrForbidden, "students can only submit their own essays")
		}
		return claims.UserID, nil
	case models.RoleTeacher, models.RoleAdmin, models.RoleSuperAdmin:
		if requested == "" {
			return "", appErrors.Clone(appErrors.ErrValidation, "studentId is required")
		}
		return requested, nil
	default:
		return "", appErrors.Clone(appErrors.ErrForbidden, "role cannot submit essays")
	}
}

func baseMIME(detected *mimetype.MIME) string {
	value := detected.String()
	if idx := strings.Index(value, ";"); idx >= 0 {
		value = value[:idx]
	}
	return value
}

func fileName(key string) string {
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		return key[idx+1:]
	}
	return key
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
