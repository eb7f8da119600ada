package document

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/gerrot/api/internal/apperr"
	"github.com/gerrot/api/internal/model"
)

const defaultTitle = "Script"

// LogoSlot is a header logo position. Ref may be empty; Name is drawn when
// the image cannot be resolved.
type LogoSlot struct {
	Ref  string
	Name string
}

// Cover is the first page of the document.
type Cover struct {
	Title         string
	ScriptType    string
	ClientName    string
	VersionNumber int
	GeneratedAt   time.Time
}

// Layout is the intermediate representation between segmentation and PDF
// output.
type Layout struct {
	VersionID string
	Cover     Cover
	// Owner is drawn in the left header slot, Client in the right one.
	Owner  LogoSlot
	Client LogoSlot
	Blocks []model.TimedBlock
	// Content is the raw script text, kept for the visible-length check.
	Content string
}

// GenerateLayout builds the cover and body sections for input.
func GenerateLayout(in model.RenderInput) (*Layout, error) {
	clientName := strings.TrimSpace(in.ClientName)
	if clientName == "" {
		return nil, apperr.InvalidInput("document.layout", "client name is required")
	}

	title := strings.TrimSpace(in.ProjectTitle)
	if title == "" {
		title = defaultTitle
	}

	return &Layout{
		VersionID: in.VersionID,
		Cover: Cover{
			Title:         title,
			ScriptType:    scriptTypeLabel(in.ScriptType),
			ClientName:    clientName,
			VersionNumber: in.VersionNumber,
			GeneratedAt:   in.GeneratedAt,
		},
		Owner:   LogoSlot{Ref: in.OwnerLogoRef, Name: strings.TrimSpace(in.OwnerName)},
		Client:  LogoSlot{Ref: in.ClientLogoRef, Name: clientName},
		Blocks:  Segment(in.Content),
		Content: in.Content,
	}, nil
}

// scriptTypeLabel turns identifiers like "social_media" into "Social Media".
func scriptTypeLabel(scriptType string) string {
	s := strings.TrimSpace(strings.ReplaceAll(scriptType, "_", " "))
	if s == "" {
		return ""
	}
	return cases.Title(language.BrazilianPortuguese).String(s)
}
