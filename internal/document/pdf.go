package document

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/gerrot/api/internal/apperr"
	"github.com/gerrot/api/internal/model"
)

const MimeTypePDF = "application/pdf"

// Page geometry in points (A4).
const (
	margin        = 50.0
	headerLogoY   = 30.0
	headerLogoH   = 40.0
	headerLogoMax = 160.0
	bodyTop       = headerLogoY + headerLogoH + 10
	footerOffset  = -35.0
	lineHeight    = 14.0
	headerHeight  = 18.0
)

const defaultMinVisibleChars = 20

// fontFamily names the embedded UTF-8 TrueType font. The core PDF fonts are
// limited to cp1252 and would drop the rest of the script text.
const fontFamily = "go"

// Image is a decoded-enough logo: raw bytes plus the fpdf image type
// ("PNG", "JPG" or "GIF").
type Image struct {
	Data []byte
	Type string
}

// LogoLoader resolves a logo reference to image bytes.
type LogoLoader interface {
	LoadLogo(ctx context.Context, ref string) (*Image, error)
}

type Options struct {
	// MinVisibleChars is the minimum count of non-whitespace characters.
	MinVisibleChars int
	// DisableCompression leaves page streams uncompressed.
	DisableCompression bool
	// DebugDir, when set, receives a plain-text dump of every layout.
	DebugDir string
}

// Renderer turns layouts into PDF bytes. It is safe for concurrent use.
type Renderer struct {
	logos LogoLoader
	opts  Options
	log   zerolog.Logger
}

func NewRenderer(logos LogoLoader, opts Options, log zerolog.Logger) *Renderer {
	if opts.MinVisibleChars <= 0 {
		opts.MinVisibleChars = defaultMinVisibleChars
	}
	return &Renderer{
		logos: logos,
		opts:  opts,
		log:   log.With().Str("component", "renderer").Logger(),
	}
}

// RenderArtifact lays out the cover page followed by the body and returns the
// encoded document. Content below the visible minimum fails with
// InvalidInput before any logo is loaded.
func (r *Renderer) RenderArtifact(ctx context.Context, layout *Layout) ([]byte, error) {
	if layout == nil {
		return nil, apperr.InvalidInput("document.render", "layout is required")
	}
	if n := visibleLength(layout.Content); n < r.opts.MinVisibleChars {
		return nil, apperr.Newf(apperr.CodeInvalidInput, "document.render",
			"script content too short: %d visible characters, minimum is %d", n, r.opts.MinVisibleChars)
	}

	if r.opts.DebugDir != "" {
		r.writeDebug(layout)
	}

	owner := r.loadLogo(ctx, layout.Owner.Ref)
	client := r.loadLogo(ctx, layout.Client.Ref)

	if err := ctx.Err(); err != nil {
		return nil, apperr.WrapWithCode(err, apperr.CodeRenderFailure, "document.render", "render cancelled")
	}

	data, err := r.build(layout, owner, client)
	if err != nil {
		return nil, apperr.WrapWithCode(err, apperr.CodeRenderFailure, "document.render", "could not generate pdf")
	}

	r.log.Debug().
		Str("version_id", layout.VersionID).
		Int("blocks", len(layout.Blocks)).
		Int("bytes", len(data)).
		Msg("pdf generated")
	return data, nil
}

func (r *Renderer) build(layout *Layout, owner, client *Image) ([]byte, error) {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin+10)
	pdf.SetCompression(!r.opts.DisableCompression)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(layout.Cover.GeneratedAt)
	pdf.SetModificationDate(layout.Cover.GeneratedAt)
	pdf.SetTitle(layout.Cover.Title, true)
	pdf.SetCreator("gerrot", true)
	pdf.AliasNbPages("")
	pdf.AddUTF8FontFromBytes(fontFamily, "", goregular.TTF)
	pdf.AddUTF8FontFromBytes(fontFamily, "B", gobold.TTF)

	pageW, _ := pdf.GetPageSize()

	ownerDrawn := registerLogo(pdf, "logo-owner", owner)
	clientDrawn := registerLogo(pdf, "logo-client", client)

	pdf.SetHeaderFunc(func() {
		if ownerDrawn != nil {
			pdf.ImageOptions("logo-owner", margin, headerLogoY, ownerDrawn.w, ownerDrawn.h, false, fpdf.ImageOptions{}, 0, "")
		} else if layout.Owner.Name != "" {
			pdf.SetFont(fontFamily, "B", 10)
			pdf.SetXY(margin, headerLogoY+15)
			pdf.CellFormat(200, 12, layout.Owner.Name, "", 0, "L", false, 0, "")
		}

		if clientDrawn != nil {
			pdf.ImageOptions("logo-client", pageW-margin-clientDrawn.w, headerLogoY, clientDrawn.w, clientDrawn.h, false, fpdf.ImageOptions{}, 0, "")
		} else if layout.Client.Name != "" {
			pdf.SetFont(fontFamily, "B", 10)
			pdf.SetXY(pageW-margin-200, headerLogoY+15)
			pdf.CellFormat(200, 12, layout.Client.Name, "", 0, "R", false, 0, "")
		}

		pdf.SetXY(margin, bodyTop)
	})

	pdf.SetFooterFunc(func() {
		pdf.SetY(footerOffset)
		pdf.SetFont(fontFamily, "", 9)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	writeCover(pdf, layout.Cover)

	// The body always starts on a fresh page.
	pdf.AddPage()
	pdf.SetFont(fontFamily, "B", 24)
	pdf.MultiCell(0, 28, layout.Cover.Title, "", "C", false)
	pdf.Ln(16)

	for _, block := range layout.Blocks {
		writeBlock(pdf, block)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCover(pdf *fpdf.Fpdf, cover Cover) {
	pdf.AddPage()
	pdf.SetY(260)

	pdf.SetFont(fontFamily, "B", 28)
	pdf.MultiCell(0, 34, cover.Title, "", "C", false)
	pdf.Ln(10)

	if cover.ScriptType != "" {
		pdf.SetFont(fontFamily, "", 14)
		pdf.MultiCell(0, 18, cover.ScriptType, "", "C", false)
		pdf.Ln(6)
	}

	pdf.SetFont(fontFamily, "", 14)
	pdf.MultiCell(0, 18, "Client: "+cover.ClientName, "", "C", false)
	pdf.Ln(4)

	pdf.SetFont(fontFamily, "", 12)
	line := fmt.Sprintf("Version %d", cover.VersionNumber)
	if !cover.GeneratedAt.IsZero() {
		line += " - " + cover.GeneratedAt.Format("02/01/2006")
	}
	pdf.MultiCell(0, 16, line, "", "C", false)
}

func writeBlock(pdf *fpdf.Fpdf, block model.TimedBlock) {
	if block.Timed {
		pdf.Ln(6)
		pdf.SetFont(fontFamily, "B", 14)
		pdf.MultiCell(0, headerHeight, block.Header, "", "L", false)
		pdf.Ln(4)
	}

	pdf.SetFont(fontFamily, "", 11)
	for _, line := range block.BodyLines {
		if strings.TrimSpace(line) == "" {
			pdf.Ln(lineHeight)
			continue
		}
		pdf.MultiCell(0, lineHeight, line, "", "J", false)
	}
	pdf.Ln(8)
}

type logoBox struct {
	w, h float64
}

// registerLogo adds img to pdf and returns its drawn size, or nil when the
// image is missing or unreadable. Images are validated on a scratch
// document first because fpdf errors are sticky.
func registerLogo(pdf *fpdf.Fpdf, name string, img *Image) *logoBox {
	if img == nil || len(img.Data) == 0 {
		return nil
	}
	opts := fpdf.ImageOptions{ImageType: img.Type}

	scratch := fpdf.New("P", "pt", "A4", "")
	if info := scratch.RegisterImageOptionsReader(name, opts, bytes.NewReader(img.Data)); info == nil || !scratch.Ok() {
		return nil
	}

	info := pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img.Data))
	if info == nil || info.Height() == 0 {
		return nil
	}

	h := headerLogoH
	w := h * info.Width() / info.Height()
	if w > headerLogoMax {
		w = headerLogoMax
		h = w * info.Height() / info.Width()
	}
	return &logoBox{w: w, h: h}
}

func (r *Renderer) loadLogo(ctx context.Context, ref string) *Image {
	if r.logos == nil || strings.TrimSpace(ref) == "" {
		return nil
	}
	img, err := r.logos.LoadLogo(ctx, ref)
	if err != nil {
		r.log.Warn().Err(err).Str("ref", ref).Msg("logo unavailable, using name")
		return nil
	}
	return img
}

func (r *Renderer) writeDebug(layout *Layout) {
	var b strings.Builder
	fmt.Fprintf(&b, "title: %s\nclient: %s\nversion: %d\n\n", layout.Cover.Title, layout.Cover.ClientName, layout.Cover.VersionNumber)
	for i, block := range layout.Blocks {
		fmt.Fprintf(&b, "--- block %d timed=%t header=%q\n", i, block.Timed, block.Header)
		for _, line := range block.BodyLines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	name := layout.VersionID
	if name == "" {
		name = "layout"
	}
	path := filepath.Join(r.opts.DebugDir, name+"-layout.txt")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		r.log.Warn().Err(err).Str("path", path).Msg("could not write layout dump")
		return
	}
	r.log.Debug().Str("path", path).Msg("layout dump written")
}

func visibleLength(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
