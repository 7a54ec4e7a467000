package feed

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"VitalWatch/internal/domain/models"
	applogger "VitalWatch/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileReader_Load(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte(
		"1,80,HeartRate,1000\n"+
			"\n"+
			"garbage\n"+
			"1,97%,Saturation,1001\n",
	), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte(
		"2,triggered,Alert,1002\n"+
			"2,37,Temperature,1003\n",
	), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	var got []models.FeedEvent
	handle := func(_ context.Context, ev models.FeedEvent) error {
		if ev.Label == "Temperature" {
			return models.ErrInvalidCategory
		}
		got = append(got, ev)
		return nil
	}

	var buf bytes.Buffer
	r := NewFileReader(dir, applogger.NewWriter(&buf, "warn"))
	accepted, skipped, err := r.Load(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, 3, accepted)
	assert.Equal(t, 2, skipped)
	require.Len(t, got, 3)
	assert.Equal(t, 97.0, got[1].Value)
	assert.Equal(t, models.AlertTriggered, got[2].AlertState)
	assert.Contains(t, buf.String(), "feed line skipped")
}

func TestFileReader_BadDir(t *testing.T) {
	noop := func(context.Context, models.FeedEvent) error { return nil }

	_, _, err := NewFileReader(filepath.Join(t.TempDir(), "missing"), nil).Load(context.Background(), noop)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, _, err = NewFileReader(file, nil).Load(context.Background(), noop)
	assert.Error(t, err)
}

func TestFileReader_Cancelled(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("1,80,HeartRate,1\n"), 0o644))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewFileReader(dir, nil).Load(ctx, func(context.Context, models.FeedEvent) error { return nil })
	assert.True(t, errors.Is(err, context.Canceled))
}
