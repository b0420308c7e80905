package provider

import "testing"

func TestExportFor(t *testing.T) {
	tests := []struct {
		mime    string
		wantExt string
	}{
		{"application/vnd.google-apps.document", ".docx"},
		{"application/vnd.google-apps.spreadsheet", ".xlsx"},
		{"application/vnd.google-apps.presentation", ".pptx"},
		{"application/vnd.google-apps.drawing", ".png"},
		{"application/vnd.google-apps.form", ".pdf"},
	}
	for _, tt := range tests {
		if got := ExportFor(tt.mime).Extension; got != tt.wantExt {
			t.Errorf("ExportFor(%q).Extension = %q, want %q", tt.mime, got, tt.wantExt)
		}
	}
}

func TestIsWorkspaceNative(t *testing.T) {
	tests := map[string]bool{
		"application/vnd.google-apps.spreadsheet": true,
		"application/vnd.google-apps.folder":      false,
		"application/pdf":                         false,
		"":                                        false,
	}
	for mime, want := range tests {
		if got := IsWorkspaceNative(mime); got != want {
			t.Errorf("IsWorkspaceNative(%q) = %v, want %v", mime, got, want)
		}
	}
}

func TestEnsureExtension(t *testing.T) {
	tests := []struct {
		name, ext, want string
	}{
		{"Budget", ".xlsx", "Budget.xlsx"},
		{"Budget.XLSX", ".xlsx", "Budget.XLSX"},
		{"notes", "", "notes"},
		{"  ", ".pdf", "copied-file.pdf"},
	}
	for _, tt := range tests {
		if got := EnsureExtension(tt.name, tt.ext); got != tt.want {
			t.Errorf("EnsureExtension(%q, %q) = %q, want %q", tt.name, tt.ext, got, tt.want)
		}
	}
}
