package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3 stores files in one bucket. Credentials come from the default AWS chain.
type S3 struct {
	bucket   string
	client   *s3.S3
	uploader *s3manager.Uploader
}

// NewS3 connects to bucket in region. A non-empty endpoint targets an
// S3-compatible service such as MinIO.
func NewS3(bucket, region, endpoint string) (*S3, error) {
	if bucket == "" {
		return nil, errors.New("filestore: S3_BUCKET is required")
	}
	cfg := &aws.Config{Region: aws.String(region)}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("filestore: aws session: %w", err)
	}
	client := s3.New(sess)
	return &S3{
		bucket:   bucket,
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
	}, nil
}

func (s *S3) Put(ctx context.Context, name, contentType string, r io.Reader) (Object, error) {
	key := newKey(name)
	counter := &countingReader{r: r}
	in := &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   counter,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.uploader.UploadWithContext(ctx, in); err != nil {
		return Object{}, fmt.Errorf("filestore: s3 upload %s: %w", key, err)
	}
	return Object{Key: key, Size: counter.n}, nil
}

func (s *S3) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return nil, 0, ErrNotExist
		}
		return nil, 0, fmt.Errorf("filestore: s3 get %s: %w", key, err)
	}
	return out.Body, aws.Int64Value(out.ContentLength), nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("filestore: s3 delete %s: %w", key, err)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
