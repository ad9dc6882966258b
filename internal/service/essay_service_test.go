package service

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/essay-correction-api/internal/dto"
	"github.com/noah-isme/essay-correction-api/internal/models"
	"github.com/noah-isme/essay-correction-api/internal/rubric"
	appErrors "github.com/noah-isme/essay-correction-api/pkg/errors"
	"github.com/noah-isme/essay-correction-api/pkg/storage"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

type essayFixture struct {
	svc        *EssayService
	essays     *essayStoreFake
	highlights *highlightStoreFake
	audit      *auditRecorder
	dir        string
}

func newEssayFixture(t *testing.T, config EssayConfig, essays ...*models.Essay) *essayFixture {
	t.Helper()
	dir := t.TempDir()
	files, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)

	f := &essayFixture{
		essays:     newEssayStoreFake(essays...),
		highlights: newHighlightStoreFake(),
		audit:      &auditRecorder{},
		dir:        dir,
	}
	if config.PublicBaseURL == "" {
		config.PublicBaseURL = "http://api.test"
		config.APIPrefix = "/api/v1"
	}
	tokens := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret"})
	f.svc = NewEssayService(f.essays, f.highlights, files, tokens, f.audit, nil, nil, nil, nil, config)
	return f
}

func gradingEssay(id string, essayType models.EssayType) *models.Essay {
	return &models.Essay{
		ID:              id,
		StudentID:       "student-1",
		TeacherID:       strPtr("teacher-1"),
		Type:            essayType,
		ThemeText:       strPtr("Desafios da mobilidade urbana"),
		CountInBimester: true,
		Status:          models.EssayStatusGrading,
	}
}

func fullRubricInput() map[string]dto.RubricSelectionInput {
	return map[string]dto.RubricSelectionInput{
		rubric.C1: {Level: 5},
		rubric.C2: {Level: 5, ReasonIDs: []string{"c2_l5_abordagem_completa", "c2_l5_3partes_nenhuma_embrionaria", "c2_l5_repertorio_legitimado", "c2_l5_pertinente_com_produtivo"}},
		rubric.C3: {Level: 4},
		rubric.C4: {Level: 3, ReasonIDs: []string{"c4_l3_intra_inter"}},
		rubric.C5: {Level: 3},
	}
}

func errorCode(err error) string {
	return appErrors.FromError(err).Code
}

func TestEssayServiceSubmitStoresPDF(t *testing.T) {
	f := newEssayFixture(t, EssayConfig{})

	essay, err := f.svc.Submit(context.Background(), studentClaims("student-1"), dto.SubmitEssayRequest{
		Type:      "ENEM",
		ThemeText: "Desafios da mobilidade urbana",
		Bimester:  intPtr(2),
	}, dto.EssayUpload{Filename: "redacao.pdf", Size: int64(len(samplePDF)), Reader: bytes.NewReader(samplePDF)})
	require.NoError(t, err)

	assert.Equal(t, models.EssayStatusPending, essay.Status)
	assert.Equal(t, "student-1", essay.StudentID)
	assert.Equal(t, "application/pdf", essay.FileMIME)
	assert.Equal(t, int64(len(samplePDF)), essay.FileSize)
	assert.Equal(t, "http://api.test/api/v1/essays/"+essay.ID+"/file", essay.FileURL)

	stored, err := os.ReadFile(filepath.Join(f.dir, filepath.FromSlash(essay.FileKey)))
	require.NoError(t, err)
	assert.Equal(t, samplePDF, stored)
	assert.Equal(t, []string{models.AuditActionEssaySubmit}, f.audit.actions())
}

func TestEssayServiceSubmitRejectsUnsupportedType(t *testing.T) {
	f := newEssayFixture(t, EssayConfig{})

	body := []byte("apenas texto simples, sem assinatura de arquivo")
	_, err := f.svc.Submit(context.Background(), studentClaims("student-1"), dto.SubmitEssayRequest{Type: "ENEM", ThemeText: "tema"},
		dto.EssayUpload{Size: int64(len(body)), Reader: bytes.NewReader(body)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))
	assert.Empty(t, f.essays.essays)
}

func TestEssayServiceSubmitEnforcesSizeWhileStreaming(t *testing.T) {
	f := newEssayFixture(t, EssayConfig{MaxUploadBytes: 32})

	_, err := f.svc.Submit(context.Background(), studentClaims("student-1"), dto.SubmitEssayRequest{Type: "PAS", ThemeID: "tema-1"},
		dto.EssayUpload{Reader: bytes.NewReader(samplePDF)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPayloadTooLarge.Code, errorCode(err))
	assert.Empty(t, f.essays.essays)

	uploads, _ := filepath.Glob(filepath.Join(f.dir, "uploads", "*", "*"))
	assert.Empty(t, uploads)
}

func TestEssayServiceSubmitDeclaredSizeTooLarge(t *testing.T) {
	f := newEssayFixture(t, EssayConfig{MaxUploadBytes: 32})

	_, err := f.svc.Submit(context.Background(), studentClaims("student-1"), dto.SubmitEssayRequest{Type: "ENEM", ThemeText: "tema"},
		dto.EssayUpload{Size: 33, Reader: bytes.NewReader(samplePDF)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPayloadTooLarge.Code, errorCode(err))
}

func TestEssayServiceSubmitOwnership(t *testing.T) {
	f := newEssayFixture(t, EssayConfig{})

	_, err := f.svc.Submit(context.Background(), studentClaims("student-1"), dto.SubmitEssayRequest{Type: "ENEM", ThemeText: "tema", StudentID: "student-2"},
		dto.EssayUpload{Reader: bytes.NewReader(samplePDF)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))

	_, err = f.svc.Submit(context.Background(), teacherClaims("teacher-1"), dto.SubmitEssayRequest{Type: "ENEM", ThemeText: "tema"},
		dto.EssayUpload{Reader: bytes.NewReader(samplePDF)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))
}

func TestEssayServiceOpenCorrection(t *testing.T) {
	pending := &models.Essay{ID: "essay-1", StudentID: "student-1", Type: models.EssayTypeENEM, Status: models.EssayStatusPending}
	f := newEssayFixture(t, EssayConfig{}, pending)

	essay, err := f.svc.OpenCorrection(context.Background(), teacherClaims("teacher-1"), "essay-1", dto.OpenCorrectionRequest{
		GeneralComments:  strPtr("Bom início"),
		RubricSelections: map[string]dto.RubricSelectionInput{rubric.C4: {Level: 3, ReasonIDs: []string{"c4_l3_intra_inter"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.EssayStatusGrading, essay.Status)
	require.NotNil(t, essay.TeacherID)
	assert.Equal(t, "teacher-1", *essay.TeacherID)
	assert.Equal(t, []string{"c4_l3_intra_inter"}, essay.RubricDraft[rubric.C4].ReasonIDs)

	_, err = f.svc.OpenCorrection(context.Background(), teacherClaims("teacher-2"), "essay-1", dto.OpenCorrectionRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))

	_, err = f.svc.OpenCorrection(context.Background(), teacherClaims("teacher-1"), "essay-1", dto.OpenCorrectionRequest{
		RubricSelections: map[string]dto.RubricSelectionInput{"C9": {Level: 1}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))

	assert.Equal(t, []string{models.AuditActionCorrectionOpen}, f.audit.actions())
}

func TestEssayServiceOpenCorrectionRejectsStudentsAndGradedEssays(t *testing.T) {
	graded := gradingEssay("essay-1", models.EssayTypeENEM)
	graded.Status = models.EssayStatusGraded
	f := newEssayFixture(t, EssayConfig{}, graded)

	_, err := f.svc.OpenCorrection(context.Background(), studentClaims("student-1"), "essay-1", dto.OpenCorrectionRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))

	_, err = f.svc.OpenCorrection(context.Background(), teacherClaims("teacher-1"), "essay-1", dto.OpenCorrectionRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, errorCode(err))
}

func TestEssayServiceSubmitGradeENEM(t *testing.T) {
	f := newEssayFixture(t, EssayConfig{}, gradingEssay("essay-1", models.EssayTypeENEM))

	essay, err := f.svc.SubmitGrade(context.Background(), teacherClaims("teacher-1"), "essay-1", dto.SubmitGradeRequest{
		RubricSelections: fullRubricInput(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.EssayStatusGraded, essay.Status)
	require.NotNil(t, essay.RawScore)
	assert.Equal(t, float64(800), *essay.RawScore)
	assert.Equal(t, 8.0, *essay.ScaledScore)
	require.NotNil(t, essay.BimesterScore)
	assert.Equal(t, 8.0, *essay.BimesterScore)
	assert.Len(t, essay.RubricResult, 5)
	assert.Equal(t, 200, essay.RubricResult[rubric.C2].Points)
}

func TestEssayServiceSubmitGradeFromCompetencyScores(t *testing.T) {
	f := newEssayFixture(t, EssayConfig{}, gradingEssay("essay-1", models.EssayTypeENEM))
	selections := fullRubricInput()

	essay, err := f.svc.SubmitGrade(context.Background(), teacherClaims("teacher-1"), "essay-1", dto.SubmitGradeRequest{
		CompetencyScores: map[string]int{rubric.C1: 200, rubric.C2: 200, rubric.C3: 160, rubric.C4: 120, rubric.C5: 120},
		RubricSelections: map[string]dto.RubricSelectionInput{rubric.C2: selections[rubric.C2], rubric.C4: selections[rubric.C4]},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(800), *essay.RawScore)

	_, err = newEssayFixture(t, EssayConfig{}, gradingEssay("essay-2", models.EssayTypeENEM)).svc.SubmitGrade(context.Background(), teacherClaims("teacher-1"), "essay-2", dto.SubmitGradeRequest{
		CompetencyScores: map[string]int{rubric.C1: 130},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))
}

func TestEssayServiceSubmitGradeIncompleteJustification(t *testing.T) {
	f := newEssayFixture(t, EssayConfig{}, gradingEssay("essay-1", models.EssayTypeENEM))
	selections := fullRubricInput()
	selections[rubric.C2] = dto.RubricSelectionInput{Level: 5, ReasonIDs: []string{"c2_l5_abordagem_completa"}}

	_, err := f.svc.SubmitGrade(context.Background(), teacherClaims("teacher-1"), "essay-1", dto.SubmitGradeRequest{RubricSelections: selections})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrIncompleteJustification.Code, errorCode(err))

	stored, _ := f.essays.FindByID(context.Background(), "essay-1")
	assert.Equal(t, models.EssayStatusGrading, stored.Status)
	assert.Nil(t, stored.RawScore)
}

func TestEssayServiceSubmitGradeReusesDraftReasons(t *testing.T) {
	essay := gradingEssay("essay-1", models.EssayTypeENEM)
	full := fullRubricInput()
	essay.RubricDraft = models.RubricSelections{
		rubric.C2: {Level: 5, ReasonIDs: full[rubric.C2].ReasonIDs},
		rubric.C4: {Level: 3, ReasonIDs: full[rubric.C4].ReasonIDs},
	}
	f := newEssayFixture(t, EssayConfig{}, essay)

	graded, err := f.svc.SubmitGrade(context.Background(), teacherClaims("teacher-1"), "essay-1", dto.SubmitGradeRequest{
		RubricSelections: map[string]dto.RubricSelectionInput{
			rubric.C1: {Level: 5},
			rubric.C2: {Level: 5},
			rubric.C3: {Level: 4},
			rubric.C4: {Level: 3},
			rubric.C5: {Level: 3},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(800), *graded.RawScore)
}

func TestMergeSelectionDropsReasonsOnLevelChange(t *testing.T) {
	draft := models.RubricSelections{rubric.C4: {Level: 3, ReasonIDs: []string{"c4_l3_intra_inter"}}}

	same := mergeSelection(draft, rubric.C4, dto.RubricSelectionInput{Level: 3})
	assert.Equal(t, []string{"c4_l3_intra_inter"}, same.ReasonIDs)

	changed := mergeSelection(draft, rubric.C4, dto.RubricSelectionInput{Level: 4})
	assert.Equal(t, 4, changed.Level)
	assert.Empty(t, changed.ReasonIDs)

	explicit := mergeSelection(draft, rubric.C4, dto.RubricSelectionInput{Level: 3, ReasonIDs: []string{}})
	assert.Empty(t, explicit.ReasonIDs)
}

func TestEssayServiceSubmitGradeAnnulment(t *testing.T) {
	f := newEssayFixture(t, EssayConfig{}, gradingEssay("essay-1", models.EssayTypeENEM))

	essay, err := f.svc.SubmitGrade(context.Background(), teacherClaims("teacher-1"), "essay-1", dto.SubmitGradeRequest{
		RubricSelections: map[string]dto.RubricSelectionInput{rubric.C2: {Level: 5}},
		Annulment:        &dto.AnnulmentInput{Active: true, Reasons: []string{"Fuga ao tema", " Texto ilegível ", "Fuga ao tema", ""}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.EssayStatusGraded, essay.Status)
	assert.Equal(t, 0.0, *essay.RawScore)
	assert.Equal(t, 0.0, *essay.ScaledScore)
	require.NotNil(t, essay.BimesterScore)
	assert.Equal(t, 0.0, *essay.BimesterScore)
	assert.True(t, essay.Annulment().Active)
	assert.Equal(t, []string{"Fuga ao tema", "Texto ilegível"}, essay.Annulment().Reasons)
}

func TestEssayServiceSubmitGradeAnnulmentRequiresReason(t *testing.T) {
	f := newEssayFixture(t, EssayConfig{}, gradingEssay("essay-1", models.EssayTypeENEM))

	_, err := f.svc.SubmitGrade(context.Background(), teacherClaims("teacher-1"), "essay-1", dto.SubmitGradeRequest{
		Annulment: &dto.AnnulmentInput{Active: true, Reasons: []string{"  "}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))
}

func TestEssayServiceSubmitGradeAnnulmentAcceptsPlaceholderScores(t *testing.T) {
	f := newEssayFixture(t, EssayConfig{}, gradingEssay("essay-1", models.EssayTypeENEM))

	essay, err := f.svc.SubmitGrade(context.Background(), teacherClaims("teacher-1"), "essay-1", dto.SubmitGradeRequest{
		CompetencyScores: map[string]int{rubric.C1: 35, rubric.C2: 0, rubric.C3: 160},
		Annulment:        &dto.AnnulmentInput{Active: true, Reasons: []string{"Fuga ao tema"}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.EssayStatusGraded, essay.Status)
	assert.Equal(t, 0.0, *essay.RawScore)
	assert.Equal(t, 0.0, *essay.ScaledScore)
	require.Contains(t, essay.RubricResult, rubric.C3)
	assert.NotContains(t, essay.RubricResult, rubric.C1)
	assert.NotContains(t, essay.RubricResult, rubric.C2)
}

func TestEssayServiceSubmitGradeAnnulledPASWithoutCounters(t *testing.T) {
	f := newEssayFixture(t, EssayConfig{}, gradingEssay("essay-1", models.EssayTypePAS))

	essay, err := f.svc.SubmitGrade(context.Background(), teacherClaims("teacher-1"), "essay-1", dto.SubmitGradeRequest{
		PAS:       &dto.PASInput{},
		Annulment: &dto.AnnulmentInput{Active: true, Reasons: []string{"Texto ilegível"}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.EssayStatusGraded, essay.Status)
	assert.Equal(t, 0.0, *essay.RawScore)
	assert.Nil(t, essay.PAS)

	f = newEssayFixture(t, EssayConfig{}, gradingEssay("essay-2", models.EssayTypePAS))
	essay, err = f.svc.SubmitGrade(context.Background(), teacherClaims("teacher-1"), "essay-2", dto.SubmitGradeRequest{
		PAS:       &dto.PASInput{NC: floatPtr(7), NE: floatPtr(1)},
		Annulment: &dto.AnnulmentInput{Active: true, Reasons: []string{"Texto ilegível"}},
	})
	require.NoError(t, err)
	require.NotNil(t, essay.PAS)
	assert.Equal(t, 7.0, essay.PAS.NC)
	assert.Equal(t, 0.0, essay.PAS.RawScore)
	assert.Equal(t, 0.0, *essay.ScaledScore)
}

func TestEssayServiceSubmitGradeC2ZeroRequiresAnnulment(t *testing.T) {
	f := newEssayFixture(t, EssayConfig{}, gradingEssay("essay-1", models.EssayTypeENEM))

	_, err := f.svc.SubmitGrade(context.Background(), teacherClaims("teacher-1"), "essay-1", dto.SubmitGradeRequest{
		CompetencyScores: map[string]int{rubric.C1: 200, rubric.C2: 0, rubric.C3: 160, rubric.C4: 120, rubric.C5: 120},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))

	stored, _ := f.essays.FindByID(context.Background(), "essay-1")
	assert.Equal(t, models.EssayStatusGrading, stored.Status)
}

func TestEssayServiceSubmitGradePASCountsGrammarHighlights(t *testing.T) {
	f := newEssayFixture(t, EssayConfig{}, gradingEssay("essay-1", models.EssayTypePAS))
	f.highlights.add("essay-1", models.HighlightCategoryGrammar)
	f.highlights.add("essay-1", models.HighlightCategoryGrammar)
	f.highlights.add("essay-1", models.HighlightCategoryCohesion)

	essay, err := f.svc.SubmitGrade(context.Background(), teacherClaims("teacher-1"), "essay-1", dto.SubmitGradeRequest{
		PAS: &dto.PASInput{NC: floatPtr(8), NL: floatPtr(2)},
	})
	require.NoError(t, err)
	require.NotNil(t, essay.PAS)
	assert.Equal(t, 2.0, essay.PAS.NE)
	assert.Equal(t, 6.0, essay.PAS.RawScore)
	assert.Equal(t, 6.0, *essay.ScaledScore)
}

func TestEssayServiceSubmitGradePASRequiresCounters(t *testing.T) {
	f := newEssayFixture(t, EssayConfig{}, gradingEssay("essay-1", models.EssayTypePAS))

	_, err := f.svc.SubmitGrade(context.Background(), teacherClaims("teacher-1"), "essay-1", dto.SubmitGradeRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))
}

func TestEssayServiceSubmitGradeInvalidState(t *testing.T) {
	pending := gradingEssay("essay-1", models.EssayTypeENEM)
	pending.Status = models.EssayStatusPending
	f := newEssayFixture(t, EssayConfig{}, pending)

	_, err := f.svc.SubmitGrade(context.Background(), teacherClaims("teacher-1"), "essay-1", dto.SubmitGradeRequest{RubricSelections: fullRubricInput()})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, errorCode(err))
}

func TestEssayServiceGetVisibility(t *testing.T) {
	f := newEssayFixture(t, EssayConfig{}, gradingEssay("essay-1", models.EssayTypeENEM))

	_, err := f.svc.Get(context.Background(), studentClaims("student-1"), "essay-1")
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), studentClaims("student-2"), "essay-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))

	_, err = f.svc.Get(context.Background(), teacherClaims("teacher-9"), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(err))
}

func TestEssayServiceFileTokenRoundTrip(t *testing.T) {
	f := newEssayFixture(t, EssayConfig{})
	essay, err := f.svc.Submit(context.Background(), studentClaims("student-1"), dto.SubmitEssayRequest{Type: "ENEM", ThemeText: "tema"},
		dto.EssayUpload{Reader: bytes.NewReader(samplePDF)})
	require.NoError(t, err)

	token, err := f.svc.IssueFileToken(context.Background(), studentClaims("student-1"), essay.ID)
	require.NoError(t, err)
	assert.Contains(t, token.URL, "/essays/"+essay.ID+"/file?token=")

	stream, err := f.svc.OpenFile(context.Background(), essay.ID, token.Token)
	require.NoError(t, err)
	defer stream.Reader.Close()
	data, err := io.ReadAll(stream.Reader)
	require.NoError(t, err)
	assert.Equal(t, samplePDF, data)
	assert.Equal(t, "application/pdf", stream.MIME)
	assert.Equal(t, "original.pdf", stream.Filename)

	_, err = f.svc.OpenFile(context.Background(), "other-essay", token.Token)
	require.Error(t, err)
}
