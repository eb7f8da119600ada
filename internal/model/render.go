package model

import (
	"strings"
	"time"
)

// RenderRequest asks for one script version to be rendered.
type RenderRequest struct {
	ProjectID        string `json:"projectId"`
	VersionID        string `json:"versionId"`
	RequestingUserID string `json:"requestingUserId"`
}

// Validate reports the first missing field, or "" when complete.
func (r RenderRequest) Validate() string {
	switch {
	case strings.TrimSpace(r.ProjectID) == "":
		return "projectId is required"
	case strings.TrimSpace(r.VersionID) == "":
		return "versionId is required"
	case strings.TrimSpace(r.RequestingUserID) == "":
		return "requestingUserId is required"
	}
	return ""
}

// RenderInput is everything the renderer needs. It is assembled from
// collaborator data; the renderer never fetches anything itself.
type RenderInput struct {
	ProjectTitle  string
	ScriptType    string
	ClientName    string
	ClientLogoRef string
	OwnerName     string
	OwnerLogoRef  string
	VersionID     string
	VersionNumber int
	Content       string
	GeneratedAt   time.Time
}

// TimedBlock is one segment of script content. Unlabeled blocks have
// Timed == false and an empty Header.
type TimedBlock struct {
	Header       string
	Timed        bool
	StartSeconds int
	EndSeconds   int
	BodyLines    []string
}

// ArtifactRef points at a stored, immutable artifact.
type ArtifactRef struct {
	Key       string `json:"key"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"sizeBytes"`
	MimeType  string `json:"mimeType"`
}

// RenderRequestBody is the HTTP body of POST /render-requests.
type RenderRequestBody struct {
	ProjectID string `json:"projectId" validate:"required,max=128"`
	VersionID string `json:"versionId" validate:"required,max=128"`
}

// RenderAcceptedResponse is returned when a job was enqueued.
type RenderAcceptedResponse struct {
	Status  JobState `json:"status"`
	Message string   `json:"message"`
	JobID   string   `json:"jobId"`
}
