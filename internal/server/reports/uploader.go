package reports

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/pmfstudio/reportgate/internal/netx"
)

const (
	htmlContentType = "text/html; charset=utf-8"
	putURLValidity  = 15 * time.Minute
)

// Presigner is the part of *s3.PresignClient the uploader needs.
type Presigner interface {
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Seams for tests.
var (
	uploadToPresignedURL = netx.UploadToPresignedURL
	newObjectID          = func() string { return uuid.NewString() }
)

// Uploader stores rendered reports under a prefix and hands out presigned
// GET links for them.
type Uploader struct {
	presigner    Presigner
	client       *http.Client
	bucket       string
	prefix       string
	linkValidity time.Duration
	now          func() time.Time
}

// NewUploader builds an uploader that sends report bodies with client; a nil
// client means netx.DefaultClient.
func NewUploader(p Presigner, client *http.Client, bucket, prefix string, linkValidity time.Duration) *Uploader {
	if client == nil {
		client = netx.DefaultClient
	}
	return &Uploader{
		presigner:    p,
		client:       client,
		bucket:       bucket,
		prefix:       prefix,
		linkValidity: linkValidity,
		now:          time.Now,
	}
}

// ObjectKey returns a fresh key of the form prefix/YYYY/MM/DD/<uuid>.html.
func (u *Uploader) ObjectKey() string {
	d := u.now().UTC()
	return path.Join(u.prefix, fmt.Sprintf("%04d/%02d/%02d", d.Year(), d.Month(), d.Day()), newObjectID()+".html")
}

// Upload PUTs an HTML report through a presigned URL and returns a link
// that stays valid for the configured link validity.
func (u *Uploader) Upload(ctx context.Context, body []byte) (key, link string, err error) {
	key = u.ObjectKey()

	put, err := u.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      &u.bucket,
		Key:         &key,
		ContentType: strPtr(htmlContentType),
	}, s3.WithPresignExpires(putURLValidity))
	if err != nil {
		return "", "", fmt.Errorf("presign put: %w", err)
	}

	if err := uploadToPresignedURL(ctx, u.client, put.URL, htmlContentType, body); err != nil {
		return "", "", fmt.Errorf("upload report: %w", err)
	}

	get, err := u.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &u.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(u.linkValidity))
	if err != nil {
		return "", "", fmt.Errorf("presign get: %w", err)
	}
	return key, get.URL, nil
}

func strPtr(s string) *string { return &s }
