// Package reportio persists assembled report documents as
// zstd-compressed JSON, the stable serialized form renderers consume
// without touching the snapshot store.
package reportio

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/elsehow/civrealm/internal/analysis/report"
)

// DocumentPath returns the conventional output path for a target turn.
func DocumentPath(outputDir string, targetTurn int) string {
	return filepath.Join(outputDir, fmt.Sprintf("turn_%03d_data.json.zst", targetTurn))
}

// WriteDocument writes the document to path. A ".zst" suffix selects
// zstd framing; otherwise plain JSON is written.
func WriteDocument(path string, doc *report.Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if !strings.HasSuffix(path, ".zst") {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}

	zenc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer zenc.Close()

	bw := bufio.NewWriterSize(zenc, 256*1024)
	defer bw.Flush()

	if err := json.NewEncoder(bw).Encode(doc); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return nil
}

// ReadDocument loads a serialized document back.
func ReadDocument(path string) (*report.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var doc report.Document
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		if err := json.NewDecoder(bufio.NewReaderSize(dec, 256*1024)).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		return &doc, nil
	}
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}
