package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// Raw archive kinds. The names match the files the ingestor reads from disk.
const (
	KindMarkets = "markets_snapshot"
	KindLive    = "live_prices"
	KindHistory = "historical_prices"
)

const stampLayout = "20060102T150405Z"

// Archiver writes collector output and reports to object storage.
//
//	raw/markets_snapshot/20240601T120000Z.json
//	reports/2024-06/<run id>.json
//	reports/2024-06/<run id>.edges.jsonl
type Archiver struct {
	writer domain.BlobWriter
}

// NewArchiver creates an Archiver on top of writer.
func NewArchiver(writer domain.BlobWriter) *Archiver {
	return &Archiver{writer: writer}
}

// RawPath is the object key of a raw archive of kind taken at at.
func RawPath(kind string, at time.Time) string {
	return fmt.Sprintf("raw/%s/%s.json", kind, at.UTC().Format(stampLayout))
}

// RawPrefix is the listing prefix of every archive of kind.
func RawPrefix(kind string) string {
	return "raw/" + kind + "/"
}

// reportPath partitions reports by the month they were generated.
func reportPath(report domain.Report, ext string) string {
	return fmt.Sprintf("reports/%s/%s%s", report.GeneratedAt.UTC().Format("2006-01"), report.RunID, ext)
}

// PutRaw stores v as the kind archive taken at at and returns its key.
func (a *Archiver) PutRaw(ctx context.Context, kind string, at time.Time, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal %s archive: %w", kind, err)
	}
	path := RawPath(kind, at)
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive %s: %w", kind, err)
	}
	return path, nil
}

// PutReport stores the report document and its edges as JSONL.
func (a *Archiver) PutReport(ctx context.Context, report domain.Report) error {
	doc, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("s3blob: marshal report %s: %w", report.RunID, err)
	}
	if err := a.writer.Put(ctx, reportPath(report, ".json"), bytes.NewReader(doc), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive report %s: %w", report.RunID, err)
	}

	if len(report.Edges) == 0 {
		return nil
	}
	lines, err := marshalJSONL(report.Edges)
	if err != nil {
		return fmt.Errorf("s3blob: marshal edges %s: %w", report.RunID, err)
	}
	if err := a.writer.Put(ctx, reportPath(report, ".edges.jsonl"), bytes.NewReader(lines), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive edges %s: %w", report.RunID, err)
	}
	return nil
}

// LatestRaw returns the newest archive key of kind. Keys sort by their
// timestamp, so the greatest key wins.
func LatestRaw(ctx context.Context, reader domain.BlobReader, kind string) (string, error) {
	infos, err := reader.List(ctx, RawPrefix(kind))
	if err != nil {
		return "", err
	}
	paths := make([]string, 0, len(infos))
	for _, info := range infos {
		if strings.HasSuffix(info.Path, ".json") {
			paths = append(paths, info.Path)
		}
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("s3blob: no %s archive: %w", kind, domain.ErrNotFound)
	}
	sort.Strings(paths)
	return paths[len(paths)-1], nil
}

// marshalJSONL encodes records one compact JSON value per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
