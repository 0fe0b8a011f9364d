package cmd

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gobucket/internal/config"
	"github.com/3leaps/gobucket/internal/testutil"
	"github.com/3leaps/gobucket/pkg/bucket"
	"github.com/3leaps/gobucket/pkg/object"
	"github.com/3leaps/gobucket/pkg/output"
)

// drainFailWriter fails every drain record and accepts the rest.
type drainFailWriter struct {
	output.Writer
	err error
}

func (w drainFailWriter) WriteDrain(context.Context, *output.DrainRecord) error {
	return w.err
}

func TestDemo_DrainRecordWriteFailure(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := config.LoadFrom(t.Context(), viper.New(), "")
	require.NoError(t, err)

	store := testutil.NewMemoryStore()
	objects, err := object.NewManager(store)
	require.NoError(t, err)
	buckets, err := bucket.NewManager(store, bucket.WithDrainer(objects))
	require.NoError(t, err)

	errBroken := errors.New("broken pipe")
	s := &session{
		cfg:     cfg,
		jobID:   "job",
		out:     drainFailWriter{Writer: output.NewTextWriter(io.Discard, io.Discard), err: errBroken},
		buckets: buckets,
		objects: objects,
	}

	err = runDemo(t.Context(), s, nil)
	require.ErrorIs(t, err, errBroken)

	// The deferred cleanup still removes the bucket.
	out, err := store.ListBuckets(t.Context(), &s3.ListBucketsInput{})
	require.NoError(t, err)
	assert.Empty(t, out.Buckets)
}
