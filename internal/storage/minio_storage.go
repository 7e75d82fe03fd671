package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	TempDir   string
}

// MinIOStorage keeps videos and slide images as objects in one bucket.
type MinIOStorage struct {
	client  *miniogo.Client
	bucket  string
	tempDir string
}

func NewMinIOStorage(cfg MinIOConfig) (*MinIOStorage, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	return &MinIOStorage{client: client, bucket: cfg.Bucket, tempDir: tempDir}, nil
}

func (s *MinIOStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

func (s *MinIOStorage) SaveFile(ctx context.Context, r io.Reader, info FileInfo) (string, error) {
	name := objectName(info)

	size := info.Size
	if size <= 0 {
		size = -1
	}
	if b, ok := r.(*bytes.Reader); ok {
		size = b.Size()
	}

	_, err := s.client.PutObject(ctx, s.bucket, name, r, size, miniogo.PutObjectOptions{
		ContentType: info.ContentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload object: %w", err)
	}
	return name, nil
}

func (s *MinIOStorage) OpenFile(ctx context.Context, name string) (io.ReadSeekCloser, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, name, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("stat object: %w", err)
	}
	return obj, nil
}

func (s *MinIOStorage) ReadFile(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.OpenFile(ctx, name)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

func (s *MinIOStorage) DeleteFile(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, name, miniogo.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

func (s *MinIOStorage) LocalPath(ctx context.Context, name string) (string, func(), error) {
	if err := checkName(name); err != nil {
		return "", func() {}, err
	}

	dest := filepath.Join(s.tempDir, "vslides-"+name)
	if err := s.client.FGetObject(ctx, s.bucket, name, dest, miniogo.GetObjectOptions{}); err != nil {
		return "", func() {}, fmt.Errorf("download object: %w", err)
	}
	return dest, func() { os.Remove(dest) }, nil
}

func checkName(name string) error {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return ErrInvalidPath
	}
	return nil
}
