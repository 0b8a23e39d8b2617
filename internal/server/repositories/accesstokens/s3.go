package accesstokens

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/pmfstudio/reportgate/internal/server/models"
)

// ObjectAPI is the part of *s3.Client the S3 store needs.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// maxUpdateAttempts bounds how often Update re-reads the object after a
// concurrent writer won the conditional put.
const maxUpdateAttempts = 5

// S3Store keeps the token document as a single object in an S3-compatible
// bucket. A PutObject replaces the object as a whole, so readers never see a
// partial document. Update writes with If-Match on the ETag it read (or
// If-None-Match when the object was missing) and starts over on conflict.
type S3Store struct {
	client ObjectAPI
	bucket string
	key    string
}

func NewS3Store(client ObjectAPI, bucket, key string) *S3Store {
	return &S3Store{client: client, bucket: bucket, key: key}
}

func (s *S3Store) Load(ctx context.Context) ([]models.AccessToken, error) {
	tokens, _, err := s.load(ctx)
	return tokens, err
}

// load returns the records and the ETag they were read at; the ETag is
// empty when the object does not exist.
func (s *S3Store) load(ctx context.Context) ([]models.AccessToken, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, "", nil
		}
		return nil, "", unavailable(fmt.Errorf("get s3://%s/%s: %w", s.bucket, s.key, err))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", unavailable(fmt.Errorf("read s3://%s/%s: %w", s.bucket, s.key, err))
	}
	tokens, err := DecodeDocument(data)
	if err != nil {
		return nil, "", err
	}
	return tokens, aws.ToString(out.ETag), nil
}

func (s *S3Store) Save(ctx context.Context, tokens []models.AccessToken) error {
	return s.put(ctx, tokens, nil)
}

func (s *S3Store) Update(ctx context.Context, fn UpdateFunc) error {
	for attempt := 1; ; attempt++ {
		tokens, etag, err := s.load(ctx)
		if err != nil {
			return err
		}
		next, err := fn(tokens)
		if err != nil || next == nil {
			return err
		}

		err = s.put(ctx, next, func(in *s3.PutObjectInput) {
			if etag == "" {
				in.IfNoneMatch = aws.String("*")
			} else {
				in.IfMatch = aws.String(etag)
			}
		})
		if err == nil || !isWriteConflict(err) {
			return err
		}
		if attempt == maxUpdateAttempts {
			return fmt.Errorf("%w after %d attempts", err, attempt)
		}
	}
}

func (s *S3Store) put(ctx context.Context, tokens []models.AccessToken, condition func(*s3.PutObjectInput)) error {
	data, err := EncodeDocument(tokens)
	if err != nil {
		return unavailable(err)
	}
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	}
	if condition != nil {
		condition(in)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return unavailable(fmt.Errorf("put s3://%s/%s: %w", s.bucket, s.key, err))
	}
	return nil
}

// isWriteConflict reports whether a conditional put lost to another writer.
func isWriteConflict(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}
