package service

import (
	"context"
	"crypto/md5" //nolint:gosec
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/essay-correction-api/internal/dto"
	"github.com/noah-isme/essay-correction-api/internal/models"
	appErrors "github.com/noah-isme/essay-correction-api/pkg/errors"
)

const (
	// AIProviderMock is the deterministic demonstration provider.
	AIProviderMock = "mock"

	defaultMaxRawText = 12000
	mockTruncateAt    = 8000
	mockDisclaimer    = "Sugestão automática (modo demonstração). Revise antes de aplicar."
)

type suggestionStore interface {
	Create(ctx context.Context, suggestion *models.AISuggestion) error
	FindByID(ctx context.Context, id string) (*models.AISuggestion, error)
	MarkApplied(ctx context.Context, id string, update models.SuggestionApplyUpdate) error
}

// SuggestionInput is what a provider receives.
type SuggestionInput struct {
	Type          models.EssayType
	ThemeText     string
	RawText       string
	CurrentScores map[string]float64
}

// Suggestion is a provider answer.
type Suggestion struct {
	Mode       string
	Disclaimer string
	Sections   models.SuggestionSections
	Metadata   models.SuggestionMetadata
}

// SuggestionProvider produces correction suggestions.
type SuggestionProvider interface {
	Generate(ctx context.Context, input SuggestionInput) (*Suggestion, error)
}

// AIConfig gates the suggestion adjunct.
type AIConfig struct {
	Enabled    bool
	Provider   string
	MaxRawText int
}

// ApplyResult reports which flags a call changed.
type ApplyResult struct {
	OK      bool                         `json:"ok"`
	Updated models.SuggestionApplyUpdate `json:"updated"`
}

// AISuggestionService serves AI-assisted correction suggestions behind a feature flag.
type AISuggestionService struct {
	suggestions suggestionStore
	essays      essayReader
	provider    SuggestionProvider
	audit       auditLogger
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	config      AIConfig
	now         func() time.Time
}

// NewAISuggestionService constructs the service. The enable flag is read once here.
func NewAISuggestionService(suggestions suggestionStore, essays essayReader, provider SuggestionProvider, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config AIConfig) *AISuggestionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if provider == nil {
		provider = NewMockSuggestionProvider()
	}
	if config.MaxRawText <= 0 {
		config.MaxRawText = defaultMaxRawText
	}
	if config.Provider == "" {
		config.Provider = AIProviderMock
	}
	return &AISuggestionService{
		suggestions: suggestions,
		essays:      essays,
		provider:    provider,
		audit:       audit,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		config:      config,
		now:         time.Now,
	}
}

// Suggest generates and persists a suggestion for an essay.
func (s *AISuggestionService) Suggest(ctx context.Context, claims *models.JWTClaims, req dto.AISuggestionRequest) (*models.AISuggestion, error) {
	if err := requireClaims(claims); err != nil {
		return nil, err
	}
	if !claims.HasRole(models.RoleTeacher) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers can request suggestions")
	}
	if !s.config.Enabled {
		return nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "ai correction suggestions are disabled")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid suggestion payload")
	}
	if utf8.RuneCountInString(req.RawText) > s.config.MaxRawText {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("raw text exceeds %d characters", s.config.MaxRawText))
	}

	essay, err := loadEssay(ctx, s.essays, req.EssayID)
	if err != nil {
		return nil, err
	}

	essayType := models.EssayType(req.Type)
	theme := req.ThemeText
	if theme == "" {
		theme = essay.Theme()
	}
	scores := req.CurrentScores
	if len(scores) == 0 {
		scores = currentScores(essay)
	}

	start := s.now()
	suggestion, err := s.provider.Generate(ctx, SuggestionInput{
		Type:          essayType,
		ThemeText:     theme,
		RawText:       stripControl(req.RawText),
		CurrentScores: scores,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate suggestion")
	}
	elapsed := s.now().Sub(start)

	record := &models.AISuggestion{
		EssayID:      essay.ID,
		TeacherID:    claims.UserID,
		Provider:     s.config.Provider,
		Mode:         suggestion.Mode,
		Type:         essayType,
		Hash:         suggestion.Metadata.Hash,
		GenerationMs: suggestion.Metadata.GenerationMs,
		RawTextChars: suggestion.Metadata.RawTextChars,
		Sections:     suggestion.Sections,
		Disclaimer:   suggestion.Disclaimer,
	}
	if err := s.suggestions.Create(ctx, record); err != nil {
		s.logger.Error("ai_suggestion_persist_error", zap.String("essay_id", essay.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store suggestion")
	}

	s.metrics.RecordAISuggestion(essayType)
	s.logger.Sugar().Infow("ai_suggestion_generated",
		"user_id", claims.UserID,
		"essay_id", essay.ID,
		"type", essayType,
		"ms", elapsed.Milliseconds(),
		"has_raw", req.RawText != "",
		"provider", s.config.Provider,
		"mode", suggestion.Mode,
		"hash", suggestion.Metadata.Hash,
	)
	return record, nil
}

// Apply marks the feedback and/or the scores of a suggestion as applied. Only the requesting teacher may apply it.
func (s *AISuggestionService) Apply(ctx context.Context, claims *models.JWTClaims, id string, req dto.ApplySuggestionRequest) (*ApplyResult, error) {
	if err := requireClaims(claims); err != nil {
		return nil, err
	}
	if !claims.HasRole(models.RoleTeacher) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers can apply suggestions")
	}
	suggestion, err := s.suggestions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "suggestion not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load suggestion")
	}
	if suggestion.TeacherID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "suggestion belongs to another teacher")
	}

	now := s.now().UTC()
	var update models.SuggestionApplyUpdate
	if req.ApplyFeedback && !suggestion.AppliedFeedback {
		update.AppliedFeedback = true
		update.AppliedFeedbackAt = &now
	}
	if req.ApplyScores && !suggestion.AppliedScores {
		update.AppliedScores = true
		update.AppliedScoresAt = &now
	}
	if !update.Empty() {
		if err := s.suggestions.MarkApplied(ctx, id, update); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply suggestion")
		}
		recordAudit(ctx, s.audit, s.logger, claims, models.AuditActionSuggestionApply, models.AuditResourceAISuggestion, id, update)
	}
	return &ApplyResult{OK: true, Updated: update}, nil
}

// currentScores maps stored ENEM points onto the c1..c5 keys the provider understands.
func currentScores(essay *models.Essay) map[string]float64 {
	scores := map[string]float64{}
	for key, res := range essay.RubricResult {
		scores[strings.ToLower(key)] = float64(res.Points)
	}
	return scores
}

// stripControl drops control characters other than tab, newline and carriage return.
func stripControl(raw string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, raw)
}

// MockSuggestionProvider answers deterministically from a hash of its input.
type MockSuggestionProvider struct {
	truncateAt int
	now        func() time.Time
}

// NewMockSuggestionProvider constructs the mock provider.
func NewMockSuggestionProvider() *MockSuggestionProvider {
	return &MockSuggestionProvider{truncateAt: mockTruncateAt, now: time.Now}
}

var (
	mockStrengths = []string{
		"Boa organização estrutural do texto.",
		"Clareza na formulação da tese.",
		"Uso consistente de operadores argumentativos.",
		"Vocabulário adequado ao registro formal.",
		"Coerência global mantida ao longo dos parágrafos.",
	}
	mockImprovements = []string{
		"Aprofundar exemplificação para sustentar argumentos.",
		"Reduzir repetições lexicais.",
		"Melhorar transições entre parágrafos intermediários.",
		"Refinar conclusões para maior impacto.",
		"Evitar construções excessivamente longas.",
	}
	mockGeneralImprovements = []string{
		"Reforce a coesão entre parágrafos utilizando conectores adequados.",
		"Aprofunde a argumentação com dados concretos ou referências contextualizadas.",
		"Revise concordância verbal e nominal em trechos críticos.",
		"Considere elaborar uma conclusão que retome a tese com proposta mais específica.",
	}
	pasCompetencies = []struct{ id, label string }{
		{"arg", "Argumentação"},
		{"type", "Tipologia"},
		{"lang", "Linguagem"},
	}
)

// Generate builds the suggestion.
func (p *MockSuggestionProvider) Generate(ctx context.Context, input SuggestionInput) (*Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := p.now()
	raw := truncateRunes(input.RawText, p.truncateAt)
	essayType := input.Type
	if essayType == "" {
		essayType = models.EssayTypeENEM
	}

	sum := md5.Sum([]byte(raw + input.ThemeText + string(essayType))) //nolint:gosec
	hash := hex.EncodeToString(sum[:])[:8]
	rawChars := utf8.RuneCountInString(raw)

	return &Suggestion{
		Mode:       AIProviderMock,
		Disclaimer: mockDisclaimer,
		Sections: models.SuggestionSections{
			GeneralFeedback: mockGeneralFeedback(essayType, input.ThemeText, hash, rawChars),
			Competencies:    mockCompetencies(essayType, input.CurrentScores),
			Improvements:    append([]string(nil), mockGeneralImprovements...),
		},
		Metadata: models.SuggestionMetadata{
			GenerationMs: p.now().Sub(start).Milliseconds(),
			Hash:         hash,
			RawTextChars: rawChars,
		},
	}, nil
}

func mockCompetencies(essayType models.EssayType, current map[string]float64) []models.SuggestionCompetency {
	var out []models.SuggestionCompetency
	if essayType == models.EssayTypeENEM {
		for i := 1; i <= 5; i++ {
			id := fmt.Sprintf("c%d", i)
			score, ok := current[id]
			if !ok {
				score = float64(minInt(120+i*40, 200))
			}
			out = append(out, models.SuggestionCompetency{
				ID:             id,
				Label:          fmt.Sprintf("Competência %d", i),
				Strength:       mockStrengths[i%len(mockStrengths)],
				Improvement:    mockImprovements[i%len(mockImprovements)],
				SuggestedScore: score,
			})
		}
		return out
	}
	for idx, c := range pasCompetencies {
		score, ok := current[c.id]
		if !ok {
			score = float64(2 + idx)
		}
		out = append(out, models.SuggestionCompetency{
			ID:             c.id,
			Label:          c.label,
			Strength:       mockStrengths[(idx+1)%len(mockStrengths)],
			Improvement:    mockImprovements[(idx+1)%len(mockImprovements)],
			SuggestedScore: score,
		})
	}
	return out
}

func mockGeneralFeedback(essayType models.EssayType, theme, hash string, rawChars int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Análise gerada em modo demonstração (ref: %s).", hash)
	fmt.Fprintf(&b, " Formato identificado: %s.", essayType)
	if theme != "" {
		fmt.Fprintf(&b, " Tema abordado: \"%s\".", truncateRunes(theme, 80))
	}
	if rawChars > 0 {
		fmt.Fprintf(&b, " Texto fornecido com %d caracteres.", rawChars)
	} else {
		b.WriteString(" Nenhum texto bruto fornecido.")
	}
	b.WriteString("\nForam identificados pontos fortes estruturais e oportunidades de refinamento conforme competências selecionadas.")
	return b.String()
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
