package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig addresses an S3-compatible endpoint.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOStore keeps each source file as one object named by its ID. File
// name, digest and uploader travel as user metadata.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

const (
	metaFileName  = "Filename"
	metaSHA256    = "Sha256"
	metaCreatedBy = "Created-By"
	metaCreatedAt = "Created-At"
)

// NewMinIOStore connects and makes sure the bucket exists.
func NewMinIOStore(ctx context.Context, cfg MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	s := &MinIOStore{client: client, bucket: cfg.Bucket}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinIOStore) ensureBucket(ctx context.Context) error {
	found, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if found {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

// Ping reports whether the bucket is reachable.
func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func (s *MinIOStore) Put(ctx context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	data, err := readBounded(&meta, content)
	if err != nil {
		return nil, err
	}
	_, err = s.client.PutObject(ctx, s.bucket, meta.ID, bytes.NewReader(data), meta.Size, minio.PutObjectOptions{
		ContentType:  meta.ContentType,
		UserMetadata: toUserMetadata(meta),
	})
	if err != nil {
		return nil, fmt.Errorf("put object %s: %w", meta.ID, err)
	}
	return &meta, nil
}

func (s *MinIOStore) Get(ctx context.Context, id string) (io.ReadCloser, *Metadata, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, id, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, s.mapErr(id, err)
	}
	// GetObject is lazy; Stat surfaces a missing key.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, nil, s.mapErr(id, err)
	}
	return obj, fromObjectInfo(info), nil
}

func (s *MinIOStore) Stat(ctx context.Context, id string) (*Metadata, error) {
	info, err := s.client.StatObject(ctx, s.bucket, id, minio.StatObjectOptions{})
	if err != nil {
		return nil, s.mapErr(id, err)
	}
	return fromObjectInfo(info), nil
}

func (s *MinIOStore) Delete(ctx context.Context, id string) error {
	if _, err := s.Stat(ctx, id); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, id, minio.RemoveObjectOptions{}); err != nil {
		return s.mapErr(id, err)
	}
	return nil
}

func (s *MinIOStore) mapErr(id string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject":
		return ErrBlobNotFound
	}
	return fmt.Errorf("object %s: %w", id, err)
}

func toUserMetadata(m Metadata) map[string]string {
	um := map[string]string{
		// Header values must be ASCII.
		metaFileName:  url.QueryEscape(m.FileName),
		metaSHA256:    m.SHA256,
		metaCreatedAt: m.CreatedAt.Format(time.RFC3339Nano),
	}
	if m.CreatedBy != "" {
		um[metaCreatedBy] = url.QueryEscape(m.CreatedBy)
	}
	return um
}

func fromObjectInfo(info minio.ObjectInfo) *Metadata {
	get := func(key string) string {
		for k, v := range info.UserMetadata {
			if strings.EqualFold(k, key) || strings.EqualFold(k, "X-Amz-Meta-"+key) {
				return v
			}
		}
		return ""
	}
	unescape := func(s string) string {
		if u, err := url.QueryUnescape(s); err == nil {
			return u
		}
		return s
	}

	m := &Metadata{
		ID:          info.Key,
		FileName:    unescape(get(metaFileName)),
		ContentType: info.ContentType,
		Size:        info.Size,
		SHA256:      get(metaSHA256),
		CreatedBy:   unescape(get(metaCreatedBy)),
		CreatedAt:   info.LastModified.UTC(),
	}
	if t, err := time.Parse(time.RFC3339Nano, get(metaCreatedAt)); err == nil {
		m.CreatedAt = t
	}
	return m
}
