package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/banshee-data/radiance.report/internal/field/voxelgrid"
)

// handleExportGridASC writes the resolved grid snapshot's occupied cells to
// an .asc point file for inspection in external tooling. The export path is
// generated internally by ExportSnapshotASC to prevent user-controlled data
// from flowing into file system operations.
func (ws *WebServer) handleExportGridASC(w http.ResponseWriter, r *http.Request) {
	grid, snap, err := ws.resolveGrid(r)
	if err != nil {
		ws.writeGridError(w, err)
		return
	}

	if _, err := voxelgrid.ExportSnapshotASC(grid, snap.Name); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("export error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "note": "File exported to temp directory"})
}
