package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/memo-notes/internal/bot"
	"github.com/xaenox/memo-notes/internal/export"
	"github.com/xaenox/memo-notes/internal/storage"
	"github.com/xaenox/memo-notes/internal/summarizer"
	"github.com/xaenox/memo-notes/pkg/config"
	"go.uber.org/zap"
)

func testConfig(driver, path string) *config.Config {
	return &config.Config{
		Telegram:   config.TelegramConfig{Token: "token"},
		Storage:    config.StorageConfig{Driver: driver, Path: path},
		Summarizer: config.SummarizerConfig{Provider: "local"},
	}
}

// stubBot makes bot creation fail and hands back the store it was given.
func stubBot(t *testing.T, failure error) *storage.Storage {
	t.Helper()
	var got storage.Storage
	original := newBot
	newBot = func(token string, store storage.Storage, sum summarizer.Summarizer, exp *export.Exporter, opts bot.Options, logger *zap.Logger) (*bot.Bot, error) {
		got = store
		return nil, failure
	}
	t.Cleanup(func() { newBot = original })
	return &got
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	store := stubBot(t, nil)

	err := run(context.Background(), testConfig("tape", ""), zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
	assert.Nil(t, *store)
}

func TestRunClosesStoreWhenBotFails(t *testing.T) {
	errTelegram := errors.New("telegram unreachable")
	store := stubBot(t, errTelegram)
	cfg := testConfig("sqlite", filepath.Join(t.TempDir(), "notes.db"))

	err := run(context.Background(), cfg, zap.NewNop())
	require.ErrorIs(t, err, errTelegram)
	require.NotNil(t, *store)

	_, err = (*store).GetRootFolders(context.Background())
	assert.ErrorIs(t, err, storage.ErrStorageFailure)
}

func TestOpenRecords(t *testing.T) {
	logger := zap.NewNop()

	records, err := openRecords(testConfig("memory", ""), logger)
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryStore{}, records)

	records, err = openRecords(testConfig("file", t.TempDir()), logger)
	require.NoError(t, err)
	assert.IsType(t, &storage.FileStore{}, records)
	require.NoError(t, records.Close())

	records, err = openRecords(testConfig("sqlite", filepath.Join(t.TempDir(), "db", "notes.db")), logger)
	require.NoError(t, err)
	assert.IsType(t, &storage.SQLStore{}, records)
	require.NoError(t, records.Close())
}
