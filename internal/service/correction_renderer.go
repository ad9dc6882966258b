package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/essay-correction-api/internal/models"
	"github.com/noah-isme/essay-correction-api/internal/rubric"
	"github.com/noah-isme/essay-correction-api/pkg/export"
)

// CorrectionInput is what the renderer needs to draw a corrected essay.
type CorrectionInput struct {
	Essay         *models.Essay
	Highlights    []models.Highlight
	Student       *models.User
	FinalComments *string
}

// Artifact is a stored corrected PDF.
type Artifact struct {
	Key     string
	URL     string
	Content []byte
}

// ArtifactRenderer generates and reloads corrected PDFs.
type ArtifactRenderer interface {
	Render(ctx context.Context, input CorrectionInput) (*Artifact, error)
	Load(ctx context.Context, key string) ([]byte, error)
}

type pdfDrawer interface {
	Render(doc export.CorrectionDocument) ([]byte, error)
}

type artifactFileStore interface {
	Save(key string, data []byte) (string, error)
	Open(key string) (*os.File, int64, error)
}

// PDFArtifactRenderer draws corrections with the export package and stores them on disk.
type PDFArtifactRenderer struct {
	drawer  pdfDrawer
	files   artifactFileStore
	catalog *rubric.Catalog
	baseURL string
	now     func() time.Time
}

// NewPDFArtifactRenderer constructs the renderer. baseURL is the public API root including its prefix.
func NewPDFArtifactRenderer(drawer pdfDrawer, files artifactFileStore, catalog *rubric.Catalog, baseURL string) *PDFArtifactRenderer {
	if drawer == nil {
		drawer = export.NewCorrectionRenderer()
	}
	if catalog == nil {
		catalog = rubric.ENEM2024()
	}
	return &PDFArtifactRenderer{
		drawer:  drawer,
		files:   files,
		catalog: catalog,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// Render draws and stores the corrected PDF. Drawing is abandoned when ctx expires.
func (r *PDFArtifactRenderer) Render(ctx context.Context, input CorrectionInput) (*Artifact, error) {
	if input.Essay == nil {
		return nil, fmt.Errorf("render correction: essay required")
	}
	doc := r.document(input)

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := r.drawer.Render(doc)
		done <- result{data: data, err: err}
	}()

	var out result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("render correction: %w", ctx.Err())
	case out = <-done:
	}
	if out.err != nil {
		return nil, out.err
	}

	key := fmt.Sprintf("corrected/%s/%s.pdf", input.Essay.ID, uuid.NewString())
	if _, err := r.files.Save(key, out.data); err != nil {
		return nil, fmt.Errorf("store corrected pdf: %w", err)
	}
	return &Artifact{Key: key, URL: r.ArtifactURL(input.Essay.ID), Content: out.data}, nil
}

// Load reads a stored corrected PDF.
func (r *PDFArtifactRenderer) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, _, err := r.files.Open(key)
	if err != nil {
		return nil, err
	}
	defer file.Close() //nolint:errcheck
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read corrected pdf: %w", err)
	}
	return data, nil
}

// ArtifactURL is the stable download location of an essay's corrected PDF.
func (r *PDFArtifactRenderer) ArtifactURL(essayID string) string {
	return r.baseURL + "/essays/" + essayID + "/corrected-pdf"
}

func (r *PDFArtifactRenderer) document(input CorrectionInput) export.CorrectionDocument {
	essay := input.Essay
	doc := export.CorrectionDocument{
		EssayID:          essay.ID,
		Theme:            essay.Theme(),
		EssayType:        string(essay.Type),
		Annulled:         essay.AnnulmentActive,
		AnnulmentReasons: essay.Annulment().Reasons,
		GeneratedAt:      r.now(),
	}
	if input.Student != nil {
		doc.StudentName = input.Student.FullName
	}
	if essay.RawScore != nil {
		doc.RawScore = *essay.RawScore
	}
	if essay.ScaledScore != nil {
		doc.ScaledScore = *essay.ScaledScore
	}
	if essay.GeneralComments != nil {
		doc.GeneralComments = *essay.GeneralComments
	}
	switch {
	case input.FinalComments != nil:
		doc.FinalComments = *input.FinalComments
	case essay.FinalComments != nil:
		doc.FinalComments = *essay.FinalComments
	}
	if essay.FilePages != nil {
		doc.Pages = *essay.FilePages
	}

	if essay.Type == models.EssayTypePAS && essay.PAS != nil {
		doc.PAS = &export.PASMirror{NC: essay.PAS.NC, NE: essay.PAS.NE, NL: essay.PAS.NL, NR: essay.PAS.RawScore}
	} else {
		for _, competency := range r.catalog.Competencies {
			res, ok := essay.RubricResult[competency.Key]
			if !ok {
				continue
			}
			doc.Competencies = append(doc.Competencies, export.CompetencyLine{
				Key:     competency.Key,
				Title:   competency.Title,
				Level:   res.Level,
				Points:  res.Points,
				Reasons: res.ReasonIDs,
			})
		}
	}

	for _, h := range input.Highlights {
		rects := make([]export.Rect, 0, len(h.Rects))
		for _, rect := range h.Rects {
			rects = append(rects, export.Rect{X: rect.X, Y: rect.Y, W: rect.W, H: rect.H})
		}
		doc.Marks = append(doc.Marks, export.Mark{
			Number:   h.GlobalOrderNumber,
			Page:     h.Page,
			Rects:    rects,
			Color:    h.Color,
			Category: string(h.Category),
			Comment:  h.Comment,
		})
	}
	return doc
}
