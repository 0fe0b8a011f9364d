package provider

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	_, pathErr := os.Open("/definitely/not/here")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindNone},
		{name: "canceled", err: fmt.Errorf("list: %w", context.Canceled), want: KindCanceled},
		{name: "deadline", err: context.DeadlineExceeded, want: KindCanceled},
		{name: "config", err: fmt.Errorf("%w: bad", ErrInvalidConfig), want: KindConfiguration},
		{name: "bucket name", err: ErrInvalidBucketName, want: KindConfiguration},
		{name: "transport", err: &ProviderError{Op: "GetObject", Err: ErrTransport}, want: KindTransport},
		{name: "unavailable", err: &ProviderError{Op: "ListObjectsV2", Err: ErrProviderUnavailable}, want: KindTransport},
		{name: "local file", err: pathErr, want: KindIO},
		{name: "rename", err: &os.LinkError{Op: "rename", Old: "a", New: "b", Err: fs.ErrPermission}, want: KindIO},
		{name: "not found", err: &ProviderError{Op: "GetObject", Err: ErrNotFound}, want: KindRequest},
		{name: "unknown", err: errors.New("boom"), want: KindRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "configuration", KindConfiguration.String())
	assert.Equal(t, "io", KindIO.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}

func TestProviderError_Unwrap(t *testing.T) {
	cause := &fs.PathError{Op: "open", Path: "x", Err: fs.ErrNotExist}
	err := &ProviderError{Op: "Upload", Provider: ProviderS3, Bucket: "b", Key: "k", Err: ErrAccessDenied, Cause: cause}

	assert.True(t, IsAccessDenied(err))
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, "s3 Upload: b/k: access denied (open x: file does not exist)", err.Error())

	plain := &ProviderError{Op: "ListBuckets", Provider: ProviderS3, Err: ErrThrottled}
	assert.True(t, IsThrottled(plain))
	assert.Equal(t, "s3 ListBuckets: request throttled", plain.Error())
}
