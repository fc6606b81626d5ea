package proofs

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		size        int64
		wantErr     error
	}{
		{"jpeg ok", "image/jpeg", 2 * 1024 * 1024, nil},
		{"png ok", "image/png", 100, nil},
		{"exactly max", "image/jpeg", MaxSize, nil},
		{"pdf rejected", "application/pdf", 100, ErrNotImage},
		{"text rejected", "text/plain", 100, ErrNotImage},
		{"empty type rejected", "", 100, ErrNotImage},
		{"oversize rejected", "image/jpeg", MaxSize + 1, ErrTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.contentType, tc.size)
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

type captureS3 struct {
	mu          sync.Mutex
	bucket      string
	key         string
	contentType string
	size        int64
}

func (c *captureS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bucket = *params.Bucket
	c.key = *params.Key
	c.contentType = *params.ContentType
	c.size = *params.ContentLength
	return &s3.PutObjectOutput{}, nil
}

func TestUpload(t *testing.T) {
	capture := &captureS3{}
	u := NewUploader(capture, "proof-bucket", "https://proof-bucket.s3.amazonaws.com/")
	u.nowFunc = func() time.Time { return time.Unix(1748779200, 0) }

	body := bytes.NewReader([]byte("fake image bytes"))
	url, err := u.Upload(context.Background(), "ABC123DEF456", "receipt.jpg", "image/jpeg", body, 16)
	require.NoError(t, err)

	assert.Equal(t, "proof-bucket", capture.bucket)
	assert.Equal(t, "payment-proofs/ABC123DEF456_1748779200.jpg", capture.key)
	assert.Equal(t, "image/jpeg", capture.contentType)
	assert.Equal(t, int64(16), capture.size)
	assert.Equal(t, "https://proof-bucket.s3.amazonaws.com/"+capture.key, url)
	assert.False(t, strings.Contains(url, "//payment-proofs"), "base URL trailing slash must be trimmed")
}

func TestUpload_RejectsInvalidBeforePut(t *testing.T) {
	capture := &captureS3{}
	u := NewUploader(capture, "proof-bucket", "https://proof-bucket.s3.amazonaws.com")

	_, err := u.Upload(context.Background(), "ABC123DEF456", "doc.pdf", "application/pdf", bytes.NewReader(nil), 10)
	assert.ErrorIs(t, err, ErrNotImage)
	assert.Empty(t, capture.key, "nothing may reach S3 on validation failure")
}
