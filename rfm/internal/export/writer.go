package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/obsidianstack/rfmstack/rfm/internal/compute"
)

// Report base names inside the output directory.
const (
	SegmentsFile = "customer_segments"
	ProfilesFile = "segment_profiles"
)

// Write stores res in dir once per format ("csv" or "json") and returns the
// paths it wrote, in order. dir is created if needed.
func Write(dir string, formats []string, res *compute.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create %s: %w", dir, err)
	}

	records := make([]recordRow, len(res.Records))
	for i, r := range res.Records {
		records[i] = toRecordRow(r)
	}
	profiles := make([]profileRow, len(res.Profiles))
	for i, p := range res.Profiles {
		profiles[i] = toProfileRow(p)
	}

	var written []string
	for _, format := range formats {
		var segments, profs func(io.Writer) error
		switch format {
		case "csv":
			segments = func(w io.Writer) error { return writeCSV(w, recordHeader, records, recordRow.fields) }
			profs = func(w io.Writer) error { return writeCSV(w, profileHeader, profiles, profileRow.fields) }
		case "json":
			segments = func(w io.Writer) error { return writeJSON(w, records) }
			profs = func(w io.Writer) error {
				return writeJSON(w, struct {
					Summary     summaryRow     `json:"summary"`
					Segments    []profileRow   `json:"segments"`
					Correlation correlationRow `json:"correlation"`
				}{toSummaryRow(res.Summary), profiles, toCorrelationRow(res.Correlation)})
			}
		default:
			return written, fmt.Errorf("export: unknown format %q", format)
		}

		for _, f := range []struct {
			name  string
			write func(io.Writer) error
		}{{SegmentsFile, segments}, {ProfilesFile, profs}} {
			path := filepath.Join(dir, f.name+"."+format)
			if err := writeFile(path, f.write); err != nil {
				return written, err
			}
			written = append(written, path)
		}
	}

	slog.Info("export: reports written",
		"dir", dir,
		"files", len(written),
		"customers", len(records),
		"segments", len(profiles),
	)
	return written, nil
}

func writeCSV[T any](w io.Writer, header []string, rows []T, fields func(T) []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(fields(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeFile writes through a temp file in the same directory and renames it
// over path once write succeeds.
func writeFile(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("export: create temp for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("export: close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("export: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("export: rename %s: %w", path, err)
	}
	return nil
}
