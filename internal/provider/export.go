package provider

import "strings"

const (
	// WorkspacePrefix marks DRIVE documents that have no raw byte form.
	WorkspacePrefix = "application/vnd.google-apps."

	// WorkspaceFolderMIME is how DRIVE reports folders.
	WorkspaceFolderMIME = "application/vnd.google-apps.folder"
)

// ExportProfile is the target format used when materializing a
// workspace-native document.
type ExportProfile struct {
	MIMEType  string
	Extension string
}

var exportProfiles = map[string]ExportProfile{
	"application/vnd.google-apps.document": {
		MIMEType:  "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Extension: ".docx",
	},
	"application/vnd.google-apps.spreadsheet": {
		MIMEType:  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Extension: ".xlsx",
	},
	"application/vnd.google-apps.presentation": {
		MIMEType:  "application/vnd.openxmlformats-officedocument.presentationml.presentation",
		Extension: ".pptx",
	},
	"application/vnd.google-apps.drawing": {
		MIMEType:  "image/png",
		Extension: ".png",
	},
}

var pdfExport = ExportProfile{MIMEType: "application/pdf", Extension: ".pdf"}

// IsWorkspaceNative reports whether mime is a DRIVE document that must be
// exported before download or preview. Folders are excluded.
func IsWorkspaceNative(mime string) bool {
	return strings.HasPrefix(mime, WorkspacePrefix) && mime != WorkspaceFolderMIME
}

// ExportFor returns the export profile for a workspace-native mime type.
// Types without a dedicated mapping export as PDF.
func ExportFor(mime string) ExportProfile {
	if p, ok := exportProfiles[mime]; ok {
		return p
	}
	return pdfExport
}

// EnsureExtension appends ext to name unless it already ends with it.
func EnsureExtension(name, ext string) string {
	if strings.TrimSpace(name) == "" {
		return "copied-file" + ext
	}
	if ext != "" && !strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext)) {
		return name + ext
	}
	return name
}
