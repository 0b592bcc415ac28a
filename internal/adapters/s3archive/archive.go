package s3archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"marketing_sync/internal/adapters/observability"
	"marketing_sync/internal/domain"
)

const service = "s3"

// uploader is the part of manager.Uploader the archive uses.
type uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Archive writes raw API payloads under bucket/prefix/YYYY/MM/DD/key.
type Archive struct {
	up     uploader
	bucket string
	prefix string
	now    func() time.Time
}

var _ domain.Archive = (*Archive)(nil)

// New loads the default AWS config chain for region.
func New(ctx context.Context, bucket, prefix, region string) (*Archive, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return newArchive(manager.NewUploader(s3.NewFromConfig(cfg)), bucket, prefix), nil
}

func newArchive(up uploader, bucket, prefix string) *Archive {
	return &Archive{up: up, bucket: bucket, prefix: prefix, now: time.Now}
}

func (a *Archive) Put(ctx context.Context, key string, body []byte) error {
	full := a.objectKey(key)
	start := time.Now()
	_, err := a.up.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(full),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	status := 200
	if err != nil {
		status = 0
	}
	observability.ObserveExternal(service, "upload", status, time.Since(start))
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", a.bucket, full, err)
	}
	log.Debug().Str("bucket", a.bucket).Str("key", full).Int("bytes", len(body)).Msg("payload archived")
	return nil
}

func (a *Archive) objectKey(key string) string {
	return path.Join(a.prefix, a.now().UTC().Format("2006/01/02"), key)
}
