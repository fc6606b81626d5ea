// Package proofs validates and stores payment-proof images.
package proofs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/komugi/bakery-checkout/internal/aws"
)

// MaxSize caps proof uploads at 5 MB.
const MaxSize = 5 * 1024 * 1024

const keyPrefix = "payment-proofs"

var (
	// ErrNotImage rejects uploads whose MIME type is not image/*.
	ErrNotImage = errors.New("only image files allowed")

	// ErrTooLarge rejects uploads over MaxSize.
	ErrTooLarge = errors.New("max file size is 5MB")
)

// Validate checks the proof locally. It runs before any network call; a
// failure here means nothing was uploaded.
func Validate(contentType string, size int64) error {
	if !strings.HasPrefix(contentType, "image/") {
		return ErrNotImage
	}
	if size > MaxSize {
		return ErrTooLarge
	}
	return nil
}

// Uploader stores proof images in S3 and returns their public URL.
type Uploader struct {
	client  aws.S3API
	bucket  string
	baseURL string // e.g. https://<bucket>.s3.amazonaws.com
	nowFunc func() time.Time
}

// NewUploader returns an Uploader bound to a bucket. baseURL is the public
// prefix under which uploaded keys are reachable.
func NewUploader(client aws.S3API, bucket, baseURL string) *Uploader {
	return &Uploader{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		nowFunc: time.Now,
	}
}

// Upload validates and stores the proof, keyed by the order token and the
// upload time, and returns the public URL.
func (u *Uploader) Upload(ctx context.Context, orderToken, filename, contentType string, body io.Reader, size int64) (string, error) {
	if err := Validate(contentType, size); err != nil {
		return "", err
	}

	ext := path.Ext(filename)
	key := fmt.Sprintf("%s/%s_%d%s", keyPrefix, orderToken, u.nowFunc().Unix(), ext)

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &u.bucket,
		Key:           &key,
		Body:          body,
		ContentType:   &contentType,
		ContentLength: &size,
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	return u.baseURL + "/" + key, nil
}
