package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Rect is a highlight rectangle in page coordinates normalised to 0..1.
type Rect struct {
	X, Y, W, H float64
}

// Mark is a numbered highlight drawn on a document page.
type Mark struct {
	Number   int
	Page     int
	Rects    []Rect
	Color    string
	Category string
	Comment  string
}

// CompetencyLine is one row of the ENEM correction mirror.
type CompetencyLine struct {
	Key     string
	Title   string
	Level   int
	Points  int
	Reasons []string
}

// PASMirror holds the PAS counters shown instead of the competency table.
type PASMirror struct {
	NC float64
	NE float64
	NL float64
	NR float64
}

// CorrectionDocument is everything drawn into a corrected essay PDF.
type CorrectionDocument struct {
	EssayID          string
	StudentName      string
	Theme            string
	EssayType        string
	Competencies     []CompetencyLine
	PAS              *PASMirror
	RawScore         float64
	ScaledScore      float64
	GeneralComments  string
	FinalComments    string
	Annulled         bool
	AnnulmentReasons []string
	Pages            int
	Marks            []Mark
	GeneratedAt      time.Time
}

// CorrectionRenderer draws corrected essays with gofpdf.
type CorrectionRenderer struct{}

// NewCorrectionRenderer constructs a renderer.
func NewCorrectionRenderer() *CorrectionRenderer {
	return &CorrectionRenderer{}
}

const (
	pageMarginX = 15.0
	pageMarginY = 20.0
	frameWidth  = 180.0
	frameHeight = 250.0
)

// Render produces the corrected PDF: cover and mirror, annulment section, one page per
// document page with the numbered rectangles, and the numbered comment list.
func (r *CorrectionRenderer) Render(doc CorrectionDocument) ([]byte, error) {
	if doc.EssayID == "" {
		return nil, fmt.Errorf("correction pdf requires an essay id")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMarginX, pageMarginY, pageMarginX)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	r.drawCover(pdf, tr, doc)
	r.drawPages(pdf, tr, doc)
	r.drawComments(pdf, tr, doc)

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render correction pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *CorrectionRenderer) drawCover(pdf *gofpdf.Fpdf, tr func(string) string, doc CorrectionDocument) {
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr("Redação Corrigida"), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 7, tr("Aluno: "+doc.StudentName), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 7, tr("Tema: "+doc.Theme), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 7, tr("Modelo: "+doc.EssayType), "", 1, "", false, 0, "")
	if !doc.GeneratedAt.IsZero() {
		pdf.CellFormat(0, 7, tr("Gerado em: "+doc.GeneratedAt.Format("02/01/2006 15:04")), "", 1, "", false, 0, "")
	}
	pdf.Ln(4)

	if doc.Annulled {
		pdf.SetTextColor(200, 0, 0)
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 9, tr("REDAÇÃO ANULADA"), "", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 11)
		for _, reason := range doc.AnnulmentReasons {
			pdf.MultiCell(0, 6, tr("- "+reason), "", "", false)
		}
		pdf.SetTextColor(0, 0, 0)
		pdf.Ln(4)
	}

	switch {
	case doc.PAS != nil:
		r.drawPASMirror(pdf, tr, *doc.PAS)
	case len(doc.Competencies) > 0:
		r.drawCompetencyTable(pdf, tr, doc.Competencies)
	}

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, tr(fmt.Sprintf("Nota: %s (bruta %s)", formatScore(doc.ScaledScore), formatScore(doc.RawScore))), "", 1, "", false, 0, "")
	pdf.Ln(2)

	if doc.GeneralComments != "" {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 7, tr("Comentários gerais"), "", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 5, tr(doc.GeneralComments), "", "", false)
		pdf.Ln(2)
	}
	if doc.FinalComments != "" {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 7, tr("Comentários finais"), "", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 5, tr(doc.FinalComments), "", "", false)
	}
}

func (r *CorrectionRenderer) drawCompetencyTable(pdf *gofpdf.Fpdf, tr func(string) string, lines []CompetencyLine) {
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(25, 7, tr("Competência"), "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 7, tr("Nível"), "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 7, "Pontos", "1", 0, "C", false, 0, "")
	pdf.CellFormat(0, 7, tr("Justificativas"), "1", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	for _, line := range lines {
		pdf.CellFormat(25, 7, tr(line.Key), "1", 0, "C", false, 0, "")
		pdf.CellFormat(20, 7, strconv.Itoa(line.Level), "1", 0, "C", false, 0, "")
		pdf.CellFormat(20, 7, strconv.Itoa(line.Points), "1", 0, "C", false, 0, "")
		pdf.CellFormat(0, 7, tr(strings.Join(line.Reasons, ", ")), "1", 1, "", false, 0, "")
	}
	pdf.Ln(4)
}

func (r *CorrectionRenderer) drawPASMirror(pdf *gofpdf.Fpdf, tr func(string) string, pas PASMirror) {
	pdf.SetFont("Arial", "B", 10)
	for _, header := range []string{"NC", "NE", "NL", "NR"} {
		pdf.CellFormat(30, 7, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, value := range []float64{pas.NC, pas.NE, pas.NL, pas.NR} {
		pdf.CellFormat(30, 7, tr(formatScore(value)), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.Ln(4)
}

func (r *CorrectionRenderer) drawPages(pdf *gofpdf.Fpdf, tr func(string) string, doc CorrectionDocument) {
	for page := 1; page <= pageCount(doc); page++ {
		pdf.AddPage()
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 8, tr(fmt.Sprintf("Página %d", page)), "", 1, "", false, 0, "")
		top := pdf.GetY()
		pdf.SetDrawColor(120, 120, 120)
		pdf.Rect(pageMarginX, top, frameWidth, frameHeight, "D")

		pdf.SetFont("Arial", "B", 8)
		for _, mark := range doc.Marks {
			if mark.Page != page {
				continue
			}
			red, green, blue := parseHexColor(mark.Color)
			pdf.SetDrawColor(red, green, blue)
			pdf.SetTextColor(red, green, blue)
			for i, rect := range mark.Rects {
				x := pageMarginX + rect.X*frameWidth
				y := top + rect.Y*frameHeight
				pdf.Rect(x, y, rect.W*frameWidth, rect.H*frameHeight, "D")
				if i == 0 {
					pdf.Text(x, y-0.8, fmt.Sprintf("#%d", mark.Number))
				}
			}
		}
		pdf.SetDrawColor(0, 0, 0)
		pdf.SetTextColor(0, 0, 0)
	}
}

func (r *CorrectionRenderer) drawComments(pdf *gofpdf.Fpdf, tr func(string) string, doc CorrectionDocument) {
	if len(doc.Marks) == 0 {
		return
	}
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, tr("Comentários"), "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	for _, mark := range doc.Marks {
		text := fmt.Sprintf("#%d (p. %d, %s) %s", mark.Number, mark.Page, mark.Category, mark.Comment)
		pdf.MultiCell(0, 6, tr(strings.TrimSpace(text)), "", "", false)
	}
}

func pageCount(doc CorrectionDocument) int {
	pages := doc.Pages
	for _, mark := range doc.Marks {
		if mark.Page > pages {
			pages = mark.Page
		}
	}
	if pages < 1 {
		pages = 1
	}
	return pages
}

// parseHexColor accepts #rgb or #rrggbb and falls back to yellow.
func parseHexColor(value string) (int, int, int) {
	hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return 230, 190, 0
	}
	parsed, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 230, 190, 0
	}
	return int(parsed >> 16 & 0xff), int(parsed >> 8 & 0xff), int(parsed & 0xff)
}

func formatScore(value float64) string {
	return strings.Replace(strconv.FormatFloat(value, 'f', 2, 64), ".", ",", 1)
}
