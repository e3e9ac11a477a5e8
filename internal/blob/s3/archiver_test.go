package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

type memBlobs struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	m.types[path] = contentType
	return nil
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	return out, nil
}

func TestRawPath(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 30, 5, 0, time.FixedZone("x", 3600))
	if got := RawPath(KindLive, at); got != "raw/live_prices/20240601T113005Z.json" {
		t.Fatalf("RawPath = %q", got)
	}
}

func TestArchiverPutRawAndLatest(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	a := NewArchiver(blobs)

	first := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range []string{"a", "b", "c"} {
		if _, err := a.PutRaw(ctx, KindMarkets, first.Add(time.Duration(i)*time.Hour), []string{v}); err != nil {
			t.Fatalf("PutRaw: %v", err)
		}
	}

	latest, err := LatestRaw(ctx, blobs, KindMarkets)
	if err != nil {
		t.Fatalf("LatestRaw: %v", err)
	}
	if want := RawPath(KindMarkets, first.Add(2*time.Hour)); latest != want {
		t.Fatalf("LatestRaw = %q, want %q", latest, want)
	}
	if got := string(blobs.objects[latest]); got != `["c"]` {
		t.Fatalf("latest body = %s", got)
	}

	if _, err := LatestRaw(ctx, blobs, KindHistory); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("LatestRaw on empty kind = %v, want ErrNotFound", err)
	}
}

func TestArchiverPutReport(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	a := NewArchiver(blobs)

	report := domain.Report{
		RunID:       "run-1",
		GeneratedAt: time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC),
		BucketCount: 10,
		Edges: []domain.EdgeRecord{
			{MarketID: "m1", Side: domain.SideYes, Recommendation: domain.BuyThisSide},
			{MarketID: "m2", Side: domain.SideNo, Recommendation: domain.BuyOtherSide},
		},
	}
	if err := a.PutReport(ctx, report); err != nil {
		t.Fatalf("PutReport: %v", err)
	}

	doc := "reports/2024-07/run-1.json"
	if _, ok := blobs.objects[doc]; !ok {
		t.Fatalf("missing %s", doc)
	}
	lines := string(blobs.objects["reports/2024-07/run-1.edges.jsonl"])
	if n := strings.Count(lines, "\n"); n != 2 {
		t.Fatalf("edges jsonl has %d lines, want 2", n)
	}
	if blobs.types["reports/2024-07/run-1.edges.jsonl"] != "application/x-ndjson" {
		t.Fatal("edges archive has wrong content type")
	}
}

func TestArchiverReportWithoutEdges(t *testing.T) {
	blobs := newMemBlobs()
	report := domain.Report{RunID: "empty", GeneratedAt: time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC)}
	if err := NewArchiver(blobs).PutReport(context.Background(), report); err != nil {
		t.Fatalf("PutReport: %v", err)
	}
	if len(blobs.objects) != 1 {
		t.Fatalf("stored %d objects, want 1", len(blobs.objects))
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		useSSL   bool
		want     string
	}{
		{"localhost:9000", false, "http://localhost:9000"},
		{"localhost:9000", true, "https://localhost:9000"},
		{"minio:9000", true, "https://minio:9000"},
		{"127.0.0.1:9000", false, "http://127.0.0.1:9000"},
		{"s3.example.com", false, "http://s3.example.com"},
		{"https://s3.example.com", false, "https://s3.example.com"},
		{"http://minio:9000", true, "http://minio:9000"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.endpoint, tt.useSSL); got != tt.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.endpoint, tt.useSSL, got, tt.want)
		}
	}
}

func TestObjectKeyPrefix(t *testing.T) {
	tests := []struct {
		prefix  string
		path    string
		wantKey string
	}{
		{"", "raw/markets/x.json", "raw/markets/x.json"},
		{"prod", "raw/markets/x.json", "prod/raw/markets/x.json"},
		{"/prod/", "/reports/r.json", "prod/reports/r.json"},
		{" team/prod// ", "reports/r.json", "team/prod/reports/r.json"},
	}
	for _, tt := range tests {
		c := &Client{prefix: normalisePrefix(tt.prefix)}
		key := c.objectKey(tt.path)
		if key != tt.wantKey {
			t.Errorf("objectKey(%q) with prefix %q = %q, want %q", tt.path, tt.prefix, key, tt.wantKey)
		}
		if got := c.logicalPath(key); got != strings.TrimPrefix(tt.path, "/") {
			t.Errorf("logicalPath(%q) = %q", key, got)
		}
	}
}

func TestReaderInfoSkipsPlaceholders(t *testing.T) {
	r := NewReader(&Client{prefix: "prod/"})
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	info, ok := r.info(types.Object{Key: aws.String("prod/raw/live_prices/a.json"), Size: aws.Int64(42), LastModified: &at})
	if !ok || info.Path != "raw/live_prices/a.json" || info.Size != 42 || !info.LastModified.Equal(at) {
		t.Fatalf("info = %+v, %v", info, ok)
	}
	if _, ok := r.info(types.Object{Key: aws.String("prod/raw/")}); ok {
		t.Fatal("directory placeholder listed as a blob")
	}
}
