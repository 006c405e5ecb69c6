package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var uuidPattern = `[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`

func TestObjectKey(t *testing.T) {
	tests := []struct {
		folder, filename string
		pattern          string
	}{
		{"uploads", "a.png", `^uploads/` + uuidPattern + `\.png$`},
		{"uploads", "Photo.JPG", `^uploads/` + uuidPattern + `\.jpg$`},
		{"uploads", "noext", `^uploads/` + uuidPattern + `$`},
		{"uploads", "weird.p n g", `^uploads/` + uuidPattern + `$`},
		{"", "a.webp", `^` + uuidPattern + `\.webp$`},
		{"uploads", `..\..\evil.gif`, `^uploads/` + uuidPattern + `\.gif$`},
	}
	for _, tt := range tests {
		got := objectKey(tt.folder, tt.filename)
		if !regexp.MustCompile(tt.pattern).MatchString(got) {
			t.Errorf("objectKey(%q, %q) = %q, want match %s", tt.folder, tt.filename, got, tt.pattern)
		}
	}
}

func TestObjectKeyIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		k := objectKey("uploads", "a.png")
		if seen[k] {
			t.Fatalf("duplicate key %q", k)
		}
		seen[k] = true
	}
}

func TestPublicURL(t *testing.T) {
	s := &MinioStorage{publicBase: "https://cdn.example.com/images"}
	if got := s.PublicURL("uploads/x.png"); got != "https://cdn.example.com/images/uploads/x.png" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestPublicReadPolicy(t *testing.T) {
	var policy struct {
		Version   string
		Statement []struct {
			Effect   string
			Action   string
			Resource string
		}
	}
	if err := json.Unmarshal([]byte(publicReadPolicy("images")), &policy); err != nil {
		t.Fatalf("unmarshal policy: %v", err)
	}
	if len(policy.Statement) != 1 {
		t.Fatalf("expected one statement, got %d", len(policy.Statement))
	}
	st := policy.Statement[0]
	if st.Effect != "Allow" || st.Action != "s3:GetObject" || st.Resource != "arn:aws:s3:::images/*" {
		t.Fatalf("unexpected statement %+v", st)
	}
}

// s3Request is what the fake S3 endpoint saw.
type s3Request struct {
	Method      string
	Path        string
	ContentType string
	Filename    string
}

// newS3Server answers object PUT and DELETE like an S3 bucket would. With
// deny set, DELETE fails with AccessDenied.
func newS3Server(t *testing.T, deny bool) (*httptest.Server, func() []s3Request) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []s3Request
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		seen = append(seen, s3Request{
			Method:      r.Method,
			Path:        r.URL.Path,
			ContentType: r.Header.Get("Content-Type"),
			Filename:    r.Header.Get("X-Amz-Meta-Original-Filename"),
		})
		mu.Unlock()

		switch r.Method {
		case http.MethodPut:
			w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
			w.WriteHeader(http.StatusOK)
		case http.MethodDelete:
			if deny {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusForbidden)
				_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>`+
					`<Error><Code>AccessDenied</Code><Message>Access Denied.</Message></Error>`)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() []s3Request {
		mu.Lock()
		defer mu.Unlock()
		return append([]s3Request(nil), seen...)
	}
}

func newTestMinio(t *testing.T, srv *httptest.Server) *MinioStorage {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4("test-key", "test-secret", ""),
		Secure: false,
		Region: "us-east-1",
	})
	if err != nil {
		t.Fatalf("new minio client: %v", err)
	}
	return &MinioStorage{
		client:     client,
		bucket:     "images",
		folder:     "uploads",
		publicBase: "https://cdn.example.com/images",
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestMinioSave(t *testing.T) {
	srv, requests := newS3Server(t, false)
	s := newTestMinio(t, srv)
	content := []byte("\x89PNG\r\n\x1a\nab")

	obj, err := s.Save(context.Background(), File{
		Name:        "foto.png",
		Body:        bytes.NewReader(content),
		Size:        int64(len(content)),
		ContentType: "image/png",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !regexp.MustCompile(`^uploads/` + uuidPattern + `\.png$`).MatchString(obj.ID) {
		t.Fatalf("unexpected id %q", obj.ID)
	}
	if obj.URL != "https://cdn.example.com/images/"+obj.ID {
		t.Fatalf("expected url built from id, got %q", obj.URL)
	}

	var put *s3Request
	for _, r := range requests() {
		if r.Method == http.MethodPut {
			req := r
			put = &req
		}
	}
	if put == nil {
		t.Fatal("expected a PUT request")
	}
	if put.Path != "/images/"+obj.ID {
		t.Fatalf("expected PUT to /images/%s, got %s", obj.ID, put.Path)
	}
	if put.ContentType != "image/png" {
		t.Fatalf("expected content type forwarded, got %q", put.ContentType)
	}
	if put.Filename != "foto.png" {
		t.Fatalf("expected original filename metadata, got %q", put.Filename)
	}
}

func TestMinioDelete(t *testing.T) {
	srv, requests := newS3Server(t, false)
	s := newTestMinio(t, srv)

	if err := s.Delete(context.Background(), "uploads/abc.png"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got := requests()
	if len(got) != 1 || got[0].Method != http.MethodDelete || got[0].Path != "/images/uploads/abc.png" {
		t.Fatalf("unexpected requests %+v", got)
	}
}

func TestMinioDeleteWrapsStoreError(t *testing.T) {
	srv, _ := newS3Server(t, true)
	s := newTestMinio(t, srv)

	err := s.Delete(context.Background(), "uploads/abc.png")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), `remove object "uploads/abc.png"`) {
		t.Fatalf("expected key in error, got %v", err)
	}
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) || resp.Code != "AccessDenied" {
		t.Fatalf("expected wrapped AccessDenied response, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("store failures must not read as not found")
	}
}
