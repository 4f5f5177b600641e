package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Mirror receives copies of written files, addressed by their path
// relative to the storage base directory.
type Mirror interface {
	Put(ctx context.Context, relPath, localPath string) error
}

const mirrorTimeout = 2 * time.Minute

// mirror copies written files to the configured Mirror. Failures are
// logged; the local save has already succeeded.
func (s *Storage) mirror(paths []string) {
	if s.Mirror == nil || len(paths) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	for _, p := range paths {
		rel, err := filepath.Rel(s.BaseDir, p)
		if err != nil {
			rel = filepath.Base(p)
		}
		if err := s.Mirror.Put(ctx, filepath.ToSlash(rel), p); err != nil {
			s.log.Warn().Err(err).Str("path", p).Msg("Failed to mirror file")
		}
	}
}

// S3Mirror uploads files to s3://Bucket/Prefix/<relPath>.
type S3Mirror struct {
	Bucket   string
	Prefix   string
	uploader *manager.Uploader
}

// NewS3Mirror builds an S3Mirror from the default AWS credential chain.
func NewS3Mirror(ctx context.Context, bucket, prefix string) (*S3Mirror, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Mirror{
		Bucket:   bucket,
		Prefix:   prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

// Key returns the object key for relPath.
func (m *S3Mirror) Key(relPath string) string {
	return path.Join(m.Prefix, relPath)
}

func (m *S3Mirror) Put(ctx context.Context, relPath, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = m.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.Bucket),
		Key:         aws.String(m.Key(relPath)),
		Body:        f,
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", relPath, err)
	}
	return nil
}
