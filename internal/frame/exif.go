package frame

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sidereal-data/drift.report/internal/monitoring"
)

// exiftoolBin can be overridden in tests.
var exiftoolBin = "exiftool"

// ReadEXIF extracts metadata from a raw camera file (CR2) by shelling out to
// exiftool in JSON mode. Keys are lowercased to match FITS header handling.
// A missing exiftool binary degrades to an empty map with a warning; raw
// metadata is useful but never required.
func ReadEXIF(ctx context.Context, path string) (map[string]interface{}, error) {
	cmd := exec.CommandContext(ctx, exiftoolBin, "-j", path)
	out, err := cmd.Output()
	if err != nil {
		if execErr, ok := err.(*exec.Error); ok && execErr.Err == exec.ErrNotFound {
			monitoring.Warnf("exiftool not installed, skipping EXIF for %s", path)
			return map[string]interface{}{}, nil
		}
		return nil, fmt.Errorf("exiftool %s: %w", path, err)
	}

	// exiftool -j emits a JSON array with one object per input file.
	var records []map[string]interface{}
	if err := json.Unmarshal(out, &records); err != nil {
		return nil, fmt.Errorf("parse exiftool output for %s: %w", path, err)
	}
	if len(records) == 0 {
		return map[string]interface{}{}, nil
	}

	meta := make(map[string]interface{}, len(records[0]))
	for k, v := range records[0] {
		meta[strings.ToLower(k)] = v
	}
	return meta, nil
}
