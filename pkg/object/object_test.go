package object

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gobucket/internal/testutil"
	"github.com/3leaps/gobucket/pkg/provider"
)

// spyRecorder captures what a Manager reports.
type spyRecorder struct {
	mu          sync.Mutex
	ops         map[string]int
	failures    map[string]int
	transferred map[string]int64
	deleted     int
}

func newSpyRecorder() *spyRecorder {
	return &spyRecorder{
		ops:         make(map[string]int),
		failures:    make(map[string]int),
		transferred: make(map[string]int64),
	}
}

func (r *spyRecorder) ObserveOperation(op string, err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op]++
	if err != nil {
		r.failures[op]++
	}
}

func (r *spyRecorder) AddTransferred(direction string, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transferred[direction] += n
}

func (r *spyRecorder) AddDeleted(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted += n
}

func newTestManager(t *testing.T, api API, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(api, opts...)
	require.NoError(t, err)
	return m
}

func TestNewManager_Defaults(t *testing.T) {
	m := newTestManager(t, testutil.NewMemoryStore())

	assert.Equal(t, DefaultTransferConfig(), m.TransferConfig())
	assert.Equal(t, int64(25*MiB), m.TransferConfig().MultipartThreshold)
	assert.Equal(t, 10, m.TransferConfig().MaxConcurrency)
	assert.Equal(t, m.TransferConfig().MultipartThreshold, m.uploader.PartSize)
	assert.Equal(t, m.TransferConfig().MaxConcurrency, m.downloader.Concurrency)
}

func TestNewManager_NilAPI(t *testing.T) {
	_, err := NewManager(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrInvalidConfig)
}

func TestTransferConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TransferConfig
		wantErr bool
	}{
		{name: "defaults", cfg: DefaultTransferConfig()},
		{name: "minimum part size", cfg: TransferConfig{MultipartThreshold: 5 * MiB, MaxConcurrency: 1}},
		{name: "below minimum", cfg: TransferConfig{MultipartThreshold: 5*MiB - 1, MaxConcurrency: 1}, wantErr: true},
		{name: "zero threshold", cfg: TransferConfig{MaxConcurrency: 4}, wantErr: true},
		{name: "zero concurrency", cfg: TransferConfig{MultipartThreshold: 8 * MiB}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, provider.ErrInvalidConfig)
				assert.Equal(t, provider.KindConfiguration, provider.Classify(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewManager_RejectsInvalidTransferConfig(t *testing.T) {
	_, err := NewManager(testutil.NewMemoryStore(), WithTransferConfig(TransferConfig{MultipartThreshold: MiB, MaxConcurrency: 2}))
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrInvalidConfig)
}
