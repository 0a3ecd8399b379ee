package knowledge

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRebuilder struct {
	calls atomic.Int32
}

func (c *countingRebuilder) Rebuild(ctx context.Context) error {
	c.calls.Add(1)
	return nil
}

func TestCorpusWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := writeCorpus(t, dir, "health.json", medicalItems())
	target := &countingRebuilder{}

	w, err := NewCorpusWatcher([]string{path}, target, 100*time.Millisecond, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	for i := 0; i < 3; i++ {
		writeCorpus(t, dir, "health.json", medicalItems())
	}
	writeCorpus(t, dir, "unrelated.json", medicalItems())

	require.Eventually(t, func() bool { return target.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), target.calls.Load())

	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
