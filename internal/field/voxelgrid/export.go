package voxelgrid

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/banshee-data/radiance.report/internal/security"
)

// defaultExportDir is the base directory for all grid point exports.
// It is intentionally restricted to a single directory to avoid writing
// outside controlled locations, even if callers provide arbitrary paths.
var defaultExportDir = func() string {
	tmp := os.TempDir()
	abs, err := filepath.Abs(tmp)
	if err != nil {
		// Fall back to tmp as-is but log for visibility.
		log.Printf("export: could not resolve absolute temp dir from %q: %v", tmp, err)
		return tmp
	}
	return filepath.Clean(abs)
}()

// exportSeq disambiguates export filenames generated within the same
// nanosecond.
var exportSeq atomic.Uint64

// generateExportFilename returns a unique export filename. The stem, when
// non-empty, is sanitized and embedded so operators can tell exports apart;
// ext defaults to ".asc".
func generateExportFilename(stem, ext string) string {
	if ext == "" {
		ext = ".asc"
	}
	seq := exportSeq.Add(1)
	if stem == "" {
		return fmt.Sprintf("export_%d_%d%s", time.Now().UnixNano(), seq, ext)
	}
	return fmt.Sprintf("export_%s_%d_%d%s", security.SanitizeFilename(stem), time.Now().UnixNano(), seq, ext)
}

// safeExportPath constructs a safe absolute path for an export file based on a
// caller-supplied path string. It restricts exports to defaultExportDir and
// validates the final path with the shared security.ValidateExportPath helper.
func safeExportPath(userPath string) (string, error) {
	if userPath == "" {
		return "", fmt.Errorf("empty export path")
	}
	// Use only the last path component to avoid any directory traversal and
	// to ensure we control the export root directory.
	base := filepath.Base(userPath)
	if base == "." || base == ".." || base == "" {
		return "", fmt.Errorf("invalid export filename")
	}

	joined := filepath.Join(defaultExportDir, base)
	absPath, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("cannot resolve export path: %w", err)
	}
	cleanPath := filepath.Clean(absPath)

	// Ensure the cleaned absolute path is still within the defaultExportDir.
	if !strings.HasPrefix(cleanPath, defaultExportDir+string(os.PathSeparator)) && cleanPath != defaultExportDir {
		return "", fmt.Errorf("export path escapes base directory")
	}

	if err := security.ValidateExportPath(cleanPath); err != nil {
		log.Printf("Security: rejected export path %s (from %s): %v", cleanPath, userPath, err)
		return "", fmt.Errorf("invalid export path: %w", err)
	}
	return cleanPath, nil
}

// ExportASC writes the grid's occupied cells to a CloudCompare-compatible
// .asc file named fileName under the export directory. Each line carries
// the grid point's world position (the corner-sampled i/(n-1) convention
// Query interpolates between) followed by density and color. Returns the
// path written.
func (f *VoxelRadianceField) ExportASC(fileName string) (string, error) {
	nx, ny, nz := f.Resolution()
	bmin, bmax := f.Bounds()

	occupied := 0
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			for k := 0; k < nz; k++ {
				density, _, _ := f.Cell(i, j, k)
				if density > 0 {
					occupied++
				}
			}
		}
	}
	if occupied == 0 {
		return "", fmt.Errorf("no occupied cells to export")
	}

	safePath, err := safeExportPath(fileName)
	if err != nil {
		return "", err
	}

	out, err := os.Create(safePath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	fmt.Fprintf(out, "# Exported radiance grid cells\n")
	fmt.Fprintf(out, "# Format: X Y Z Density R G B\n")

	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			for k := 0; k < nz; k++ {
				density, c, _ := f.Cell(i, j, k)
				if density <= 0 {
					continue
				}
				fmt.Fprintf(out, "%.6f %.6f %.6f %.6f %.4f %.4f %.4f\n",
					gridPointPos(bmin.X, bmax.X, i, nx),
					gridPointPos(bmin.Y, bmax.Y, j, ny),
					gridPointPos(bmin.Z, bmax.Z, k, nz),
					density, c.R, c.G, c.B)
			}
		}
	}
	log.Printf("Exported %d cells to %s", occupied, safePath)
	return safePath, nil
}

// gridPointPos maps grid index i on an axis of n corner samples to its
// world coordinate. A collapsed axis (n == 1) reports the axis midpoint,
// the position its single sample represents.
func gridPointPos(min, max float64, i, n int) float64 {
	if n == 1 {
		return (min + max) / 2
	}
	return min + float64(i)/float64(n-1)*(max-min)
}

// ExportSnapshotASC exports grid's occupied cells to a uniquely named file
// in the export directory, embedding the snapshot name. The path is
// generated internally so caller-controlled data never reaches filesystem
// operations directly.
func ExportSnapshotASC(grid *VoxelRadianceField, snapshotName string) (string, error) {
	return grid.ExportASC(generateExportFilename(snapshotName, ".asc"))
}
