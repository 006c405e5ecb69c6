package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioOptions configures a MinioStorage.
type MinioOptions struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	Folder     string // fixed logical folder every object key is placed under
	PublicBase string // browser-accessible base URL of the bucket
	UseSSL     bool
}

// MinioStorage implements Storage using a MinIO (or any S3-compatible) backend.
// Objects are keyed "<folder>/<uuid><ext>"; the key is the identifier
// returned to callers.
type MinioStorage struct {
	client     *minio.Client
	bucket     string
	folder     string
	publicBase string
	log        *slog.Logger
}

// NewMinioStorage creates a MinIO client, ensures the bucket exists with a public-read
// policy, and returns a ready-to-use MinioStorage.
func NewMinioStorage(ctx context.Context, opts MinioOptions, log *slog.Logger) (*MinioStorage, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", opts.Bucket, err)
		}
		log.Info("storage: created bucket", "bucket", opts.Bucket)
	}

	if err := client.SetBucketPolicy(ctx, opts.Bucket, publicReadPolicy(opts.Bucket)); err != nil {
		return nil, fmt.Errorf("set bucket policy: %w", err)
	}

	return &MinioStorage{
		client:     client,
		bucket:     opts.Bucket,
		folder:     strings.Trim(opts.Folder, "/"),
		publicBase: strings.TrimRight(opts.PublicBase, "/"),
		log:        log,
	}, nil
}

// Save streams f.Body to the bucket under a fresh key. f.Size must be the
// exact byte count, or -1 if unknown (MinIO will buffer it).
func (s *MinioStorage) Save(ctx context.Context, f File) (*Object, error) {
	key := objectKey(s.folder, f.Name)
	_, err := s.client.PutObject(ctx, s.bucket, key, f.Body, f.Size, minio.PutObjectOptions{
		ContentType: f.ContentType,
		UserMetadata: map[string]string{
			"original-filename": path.Base(f.Name),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("put object %q: %w", key, err)
	}
	return &Object{URL: s.PublicURL(key), ID: key}, nil
}

// Delete removes the object at key. Whether deleting a missing key is an
// error is left to the store; S3 treats it as success.
func (s *MinioStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %q: %w", key, err)
	}
	return nil
}

// PublicURL returns the browser-accessible URL for the given key.
// For local MinIO: "http://localhost:9000/images/uploads/<uuid>.png"
// For a CDN in front of the bucket: "https://cdn.example.com/uploads/<uuid>.png"
func (s *MinioStorage) PublicURL(key string) string {
	return s.publicBase + "/" + key
}

// objectKey builds "<folder>/<uuid><ext>", keeping the lower-cased extension
// of the original filename when it looks like one.
func objectKey(folder, filename string) string {
	name := uuid.NewString() + fileExt(filename)
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

func fileExt(filename string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(filename, `\`, "/")))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}

// publicReadPolicy returns an S3 bucket policy JSON that allows anonymous GET on all objects.
func publicReadPolicy(bucket string) string {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":    "Allow",
				"Principal": "*",
				"Action":    "s3:GetObject",
				"Resource":  fmt.Sprintf("arn:aws:s3:::%s/*", bucket),
			},
		},
	}
	b, _ := json.Marshal(policy)
	return string(b)
}
