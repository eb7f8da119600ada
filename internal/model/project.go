package model

// Project is the collaborator record for a script project.
type Project struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	ScriptType   string `json:"scriptType"`
	ClientID     string `json:"clientId"`
	OwnerID      string `json:"ownerId"`
	OwnerName    string `json:"ownerName"`
	OwnerEmail   string `json:"ownerEmail"`
	OwnerLogoURL string `json:"ownerLogoUrl"`
}

// ScriptVersion is one saved revision of a project's script.
type ScriptVersion struct {
	ID              string `json:"id"`
	ProjectID       string `json:"projectId"`
	VersionNumber   int    `json:"versionNumber"`
	Content         string `json:"content"`
	GeneratedPDFURL string `json:"generatedPdfUrl,omitempty"`
}

// Client is the customer a project is produced for.
type Client struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	LogoURL string `json:"logoUrl"`
}
