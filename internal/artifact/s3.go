package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/AnEntrypoint/sequential-gui/internal/errs"
)

// S3Config selects an S3-compatible bucket.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3Backend stores artifacts as objects whose keys mirror the disk layout.
// Directories are implied by key prefixes; an empty directory does not exist.
type S3Backend struct {
	client     *minio.Client
	bucketName string
	region     string
	initOnce   sync.Once
	initErr    error
}

// NewS3Backend builds a client. No request is made until first use.
func NewS3Backend(cfg S3Config) (*S3Backend, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Backend{client: client, bucketName: bucket, region: region}, nil
}

func (s *S3Backend) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region})
	})
	if s.initErr != nil {
		return fmt.Errorf("ensure bucket: %w", s.initErr)
	}
	return nil
}

// Stat implements Backend.
func (s *S3Backend) Stat(ctx context.Context, key Key) (Entry, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return Entry{}, err
	}
	if !key.IsRoot() {
		info, err := s.client.StatObject(ctx, s.bucketName, objectKey(key), minio.StatObjectOptions{})
		if err == nil {
			return entryFromObject(key.Path, info), nil
		}
		if !isNoSuchKey(err) {
			return Entry{}, fmt.Errorf("stat %s: %w", key.Path, err)
		}
	}
	hasChildren, err := s.hasChildren(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	if !hasChildren {
		return Entry{}, fmt.Errorf("%s %s: %w", key.Scope, key.Path, errs.ErrNotFound)
	}
	return Entry{Name: dirName(key.Path), Path: key.Path, IsDir: true}, nil
}

// List implements Backend.
func (s *S3Backend) List(ctx context.Context, key Key) ([]Entry, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	prefix := dirPrefix(key)

	var out []Entry
	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: false,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("listing %s: %w", key.Path, obj.Err)
		}
		rel := strings.TrimPrefix(obj.Key, prefix)
		if rel == "" {
			continue
		}
		if strings.HasSuffix(rel, "/") {
			name := strings.TrimSuffix(rel, "/")
			out = append(out, Entry{Name: name, Path: joinPath(key.Path, name), IsDir: true})
			continue
		}
		out = append(out, entryFromObject(joinPath(key.Path, rel), obj))
	}
	if len(out) == 0 {
		if !key.IsRoot() {
			if _, err := s.client.StatObject(ctx, s.bucketName, objectKey(key), minio.StatObjectOptions{}); err == nil {
				return nil, fmt.Errorf("listing %s: not a directory: %w", key.Path, errs.ErrInvalidPath)
			}
		}
		return nil, fmt.Errorf("%s %s: %w", key.Scope, key.Path, errs.ErrNotFound)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Read implements Backend.
func (s *S3Backend) Read(ctx context.Context, key Key) ([]byte, Entry, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, Entry{}, err
	}
	if key.IsRoot() {
		return nil, Entry{}, fmt.Errorf("reading %s: is a directory: %w", key.Path, errs.ErrInvalidPath)
	}
	obj, err := s.client.GetObject(ctx, s.bucketName, objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, Entry{}, s.mapErr(key, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, Entry{}, s.mapErr(key, err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, Entry{}, s.mapErr(key, err)
	}
	return data, entryFromObject(key.Path, info), nil
}

// Write implements Backend. A PUT replaces the object atomically.
func (s *S3Backend) Write(ctx context.Context, key Key, data []byte) (Entry, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return Entry{}, err
	}
	if data == nil {
		data = []byte{}
	}
	up, err := s.client.PutObject(ctx, s.bucketName, objectKey(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return Entry{}, fmt.Errorf("writing %s: %w", key.Path, err)
	}
	return Entry{
		Name:       baseName(key.Path),
		Path:       key.Path,
		Size:       int64(len(data)),
		ModifiedAt: up.LastModified,
		CreatedAt:  up.LastModified,
	}, nil
}

// Delete implements Backend.
func (s *S3Backend) Delete(ctx context.Context, key Key) error {
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}
	name := objectKey(key)
	if _, err := s.client.StatObject(ctx, s.bucketName, name, minio.StatObjectOptions{}); err != nil {
		return s.mapErr(key, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucketName, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("deleting %s: %w", key.Path, err)
	}
	return nil
}

func (s *S3Backend) hasChildren(ctx context.Context, key Key) (bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	obj, ok := <-s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:  dirPrefix(key),
		MaxKeys: 1,
	})
	if !ok {
		return false, nil
	}
	if obj.Err != nil {
		return false, fmt.Errorf("listing %s: %w", key.Path, obj.Err)
	}
	return true, nil
}

func (s *S3Backend) mapErr(key Key, err error) error {
	if isNoSuchKey(err) {
		return fmt.Errorf("%s %s: %w", key.Scope, key.Path, errs.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", key.Scope, key.Path, err)
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

// objectKey is the object name of a file.
func objectKey(key Key) string {
	return scopePrefix(key) + key.Path
}

// dirPrefix is the listing prefix of a directory, always ending in "/".
func dirPrefix(key Key) string {
	if key.IsRoot() {
		return scopePrefix(key) + "/"
	}
	return scopePrefix(key) + key.Path + "/"
}

func dirName(p string) string {
	if p == "/" {
		return "/"
	}
	return baseName(p)
}

func entryFromObject(logical string, info minio.ObjectInfo) Entry {
	return Entry{
		Name:       baseName(logical),
		Path:       logical,
		Size:       info.Size,
		ModifiedAt: info.LastModified,
		CreatedAt:  info.LastModified,
	}
}
