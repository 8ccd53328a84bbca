package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	safeDir := filepath.Join(tmpDir, "safe")
	outsideDir := filepath.Join(tmpDir, "outside")
	for _, dir := range []string{safeDir, outsideDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	if err := os.WriteFile(filepath.Join(outsideDir, "secret.txt"), []byte("secret"), 0644); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	// Symlink inside the safe directory pointing out of it.
	escapeLink := filepath.Join(safeDir, "escape")
	if err := os.Symlink(outsideDir, escapeLink); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	cases := []struct {
		name     string
		filePath string
		safeDir  string
		wantErr  bool
	}{
		{"contained file", filepath.Join(tmpDir, "file.txt"), tmpDir, false},
		{"contained nested file", filepath.Join(tmpDir, "sub", "file.txt"), tmpDir, false},
		{"dot-dot inside path", filepath.Join(tmpDir, "..", "file.txt"), tmpDir, true},
		{"relative dot-dot escape", "../../../etc/passwd", tmpDir, true},
		{"absolute path elsewhere", "/etc/passwd", tmpDir, true},
		{"file through escaping symlink", filepath.Join(escapeLink, "secret.txt"), safeDir, true},
		{"the escaping symlink itself", escapeLink, safeDir, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tc.filePath, tc.safeDir)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidatePathWithinDirectory(%q, %q) = %v, wantErr %v",
					tc.filePath, tc.safeDir, err, tc.wantErr)
			}
		})
	}
}

func TestValidatePathWithinAllowedDirs(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()

	if err := ValidatePathWithinAllowedDirs(filepath.Join(dirA, "a.asc"), []string{dirA, dirB}); err != nil {
		t.Errorf("path in first allowed dir rejected: %v", err)
	}
	if err := ValidatePathWithinAllowedDirs(filepath.Join(dirB, "b.asc"), []string{dirA, dirB}); err != nil {
		t.Errorf("path in second allowed dir rejected: %v", err)
	}
	if err := ValidatePathWithinAllowedDirs("/etc/passwd", []string{dirA, dirB}); err == nil {
		t.Error("path outside every allowed dir accepted")
	}
	if err := ValidatePathWithinAllowedDirs(filepath.Join(dirA, "a.asc"), nil); err == nil {
		t.Error("empty allowed-dir list accepted")
	}
}

func TestValidateExportPath(t *testing.T) {
	if err := ValidateExportPath(filepath.Join(os.TempDir(), "export.asc")); err != nil {
		t.Errorf("temp dir export rejected: %v", err)
	}
	if err := ValidateExportPath("/etc/passwd"); err == nil {
		t.Error("export outside temp and cwd accepted")
	}

	// Relative paths resolve against the working directory.
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(origWd); err != nil {
			t.Errorf("restore wd: %v", err)
		}
	})
	if err := ValidateExportPath("export.asc"); err != nil {
		t.Errorf("cwd-relative export rejected: %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"scene-1.v2", "scene-1.v2"},
		{"night render: final!", "night_render_final"},
		{"../../etc/passwd", "etc_passwd"},
		{"", "unknown"},
		{"///", "unknown"},
		{strings.Repeat("x", 300), strings.Repeat("x", 128)},
	}
	for _, tc := range cases {
		if got := SanitizeFilename(tc.in); got != tc.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
