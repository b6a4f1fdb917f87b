/*
Package backup writes timestamped copies of the stock database.

PURPOSE:
  Takes a consistent snapshot of the database into a local directory and
  optionally uploads it to S3. Used by cmd/backup; the server never calls it.

USAGE:
  b := &backup.Backup{Source: store, Dir: "./data/backups", Clock: stock.RealClock{}}
  res, err := b.Run(ctx)

SEE ALSO:
  - store/sqlstore: Snapshot (VACUUM INTO)
*/
package backup

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/oliverbenduhn/tabletto/stock"
)

// Snapshotter writes a consistent copy of the database to dest.
type Snapshotter interface {
	Snapshot(ctx context.Context, dest string) error
}

// Uploader is the subset of *s3.Client used for uploads.
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Backup struct {
	Source Snapshotter
	Dir    string

	// Upload is skipped when S3 or Bucket is empty.
	S3     Uploader
	Bucket string
	Prefix string

	Clock  stock.Clock
	Logger *zap.Logger
}

type Result struct {
	Path string
	// Key is the S3 object key, empty when not uploaded.
	Key string
}

func (b *Backup) Run(ctx context.Context) (Result, error) {
	logger := b.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := b.Clock
	if clock == nil {
		clock = stock.RealClock{}
	}

	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create backup dir: %w", err)
	}
	name := FileName(clock)
	dest := filepath.Join(b.Dir, name)
	if err := b.Source.Snapshot(ctx, dest); err != nil {
		return Result{}, err
	}
	res := Result{Path: dest}
	logger.Info("backup created", zap.String("path", dest))

	if b.S3 == nil || b.Bucket == "" {
		return res, nil
	}
	key := path.Join(b.Prefix, name)
	if err := b.upload(ctx, dest, key); err != nil {
		return res, err
	}
	res.Key = key
	logger.Info("backup uploaded", zap.String("bucket", b.Bucket), zap.String("key", key))
	return res, nil
}

func (b *Backup) upload(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}
	defer f.Close()

	_, err = b.S3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/vnd.sqlite3"),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return fmt.Errorf("upload backup to s3://%s/%s: %w", b.Bucket, key, err)
	}
	return nil
}

// FileName is "backup-<UTC timestamp>.db" with ':' and '.' replaced by '-'.
func FileName(clock stock.Clock) string {
	ts := clock.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return "backup-" + ts + ".db"
}

// NewS3Client builds a client from the default AWS credential chain.
// Path-style addressing keeps it working against local S3 emulators.
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.New(s3.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: cfg.BaseEndpoint,
		UsePathStyle: true,
	}), nil
}
