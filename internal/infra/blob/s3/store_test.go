package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"nucleicore/internal/blob/core"
)

func TestMockStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMockForTests()
	if s.Driver() != core.DriverS3 || s.Bucket() != "mock-bucket" {
		t.Fatalf("unexpected store %s/%s", s.Driver(), s.Bucket())
	}
	info, err := s.Put(ctx, "datasets/a.json", strings.NewReader(`{"id":"a"}`), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"name": "sample"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 10 || info.ContentType != "application/json" || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.Metadata["name"] != "sample" {
		t.Fatalf("expected metadata, got %+v", info.Metadata)
	}
	got, rc, err := s.Get(ctx, "datasets/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != `{"id":"a"}` || got.Size != 10 {
		t.Fatalf("unexpected body %q %+v", b, got)
	}
}

func TestMockStoreCreateOnlyAndOverwrite(t *testing.T) {
	ctx := context.Background()
	s := NewMockForTests()
	if _, err := s.Put(ctx, "k", strings.NewReader("one"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Put(ctx, "k", strings.NewReader("two"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected exists, got %v", err)
	}
	info, err := s.Put(ctx, "k", strings.NewReader("three"), core.PutOptions{Overwrite: true})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if info.Size != 5 {
		t.Fatalf("expected overwritten size, got %d", info.Size)
	}
}

func TestMockStoreListDeleteMissing(t *testing.T) {
	ctx := context.Background()
	s := NewMockForTests()
	for _, k := range []string{"datasets/b.json", "datasets/a.json", "other/c"} {
		if _, err := s.Put(ctx, k, strings.NewReader(k), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, err := s.List(ctx, "datasets/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "datasets/a.json" || list[1].Size != int64(len("datasets/b.json")) {
		t.Fatalf("unexpected list %+v", list)
	}
	if ok, err := s.Delete(ctx, "datasets/a.json"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := s.Delete(ctx, "datasets/a.json"); err != nil || ok {
		t.Fatalf("delete missing: %v %v", ok, err)
	}
	if _, err := s.Head(ctx, "datasets/a.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected head not found, got %v", err)
	}
	if _, _, err := s.Get(ctx, "datasets/a.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected get not found, got %v", err)
	}
}

func TestPresignURL(t *testing.T) {
	s := NewMockForTests()
	u, err := s.PresignURL(context.Background(), "datasets/a.json", core.SignedURLOptions{Expiry: time.Minute})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(u, "datasets/a.json") || !strings.Contains(u, "X-Amz-Expires=60") {
		t.Fatalf("unexpected presigned url %s", u)
	}
	if _, err := s.PresignURL(context.Background(), "k", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
	t.Setenv("NUCLEICORE_BLOB_S3_BUCKET", "")
	if _, err := OpenFromEnv(context.Background()); err == nil {
		t.Fatalf("expected env bucket error")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("NUCLEICORE_BLOB_S3_BUCKET", "exports")
	t.Setenv("NUCLEICORE_BLOB_S3_REGION", "eu-west-2")
	t.Setenv("NUCLEICORE_BLOB_S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("NUCLEICORE_BLOB_S3_PATH_STYLE", "TRUE")
	cfg := ConfigFromEnv()
	if cfg.Bucket != "exports" || cfg.Region != "eu-west-2" || cfg.Endpoint != "http://localhost:9000" || !cfg.PathStyle {
		t.Fatalf("unexpected config %+v", cfg)
	}
	s, err := New(context.Background(), Config{Bucket: "exports", AccessKeyID: "AKIA", SecretAccessKey: "secret", Endpoint: cfg.Endpoint, PathStyle: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Bucket() != "exports" {
		t.Fatalf("unexpected bucket %s", s.Bucket())
	}
}

func TestDecodeAWSChunked(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"5\r\nhello\r\n0\r\n\r\n", "hello", true},
		{"5;chunk-signature=abc\r\nhello\r\n0\r\n", "hello", true},
		{"plain body", "", false},
		{"zz\r\nhello\r\n0\r\n", "", false},
		{"9\r\nhello\r\n0\r\n", "", false},
	}
	for _, tc := range tests {
		got, ok := decodeAWSChunked([]byte(tc.in))
		if ok != tc.ok || string(got) != tc.want {
			t.Fatalf("decodeAWSChunked(%q) = %q/%v, want %q/%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
