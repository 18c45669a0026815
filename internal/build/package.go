package build

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"fmt"
	"io"
)

// Package writes the files of a complete build into a zip archive compressed
// at the highest deflate level. Entry names are the files' repository paths.
// The archive is identical every time for the same build.
func Package(result *Result) ([]byte, error) {
	if result.Status != StatusComplete {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotComplete, result.ID, result.Status)
	}

	modified := result.CreatedAt
	if result.CompletedAt != nil {
		modified = *result.CompletedAt
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	for _, f := range result.Files {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.FilePath,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("add %s to archive: %w", f.FilePath, err)
		}
		if _, err := io.WriteString(w, f.Content); err != nil {
			return nil, fmt.Errorf("write %s to archive: %w", f.FilePath, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}
