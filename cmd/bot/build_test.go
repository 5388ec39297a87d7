package main

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superst1/chatbot-whatsapp-citas/internal/config"
	"github.com/superst1/chatbot-whatsapp-citas/internal/database"
	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
	"github.com/superst1/chatbot-whatsapp-citas/internal/session"
)

func loadConfig(t *testing.T, doc string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)
	return cfg
}

func TestBuildRepository_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "citas.db")
	cfg := loadConfig(t, "storage:\n  backend: sqlite\n  sqlite_path: "+path+"\n")

	repo, err := buildRepository(context.Background(), cfg)
	require.NoError(t, err)
	defer repo.Close()

	_, ok := repo.Repository.(*database.Repository)
	assert.True(t, ok)
	assert.NoError(t, repo.Ping(context.Background()))

	_, err = repo.AppendRecord(context.Background(), &models.Appointment{PatientName: "Ana", NationalID: "1802525254", Date: "09/10/2025", Time: "10:00"})
	assert.NoError(t, err)
}

func TestBuildRepository_MemoryDefault(t *testing.T) {
	repo, err := buildRepository(context.Background(), loadConfig(t, ""))
	require.NoError(t, err)
	assert.NoError(t, repo.Ping(context.Background()))
	assert.NoError(t, repo.Close())
}

func TestBuildRepository_SheetsNeedsCredentials(t *testing.T) {
	t.Setenv("GOOGLE_CREDENTIALS_BASE64", "")
	_, err := buildRepository(context.Background(), loadConfig(t, "storage:\n  backend: sheets\n  sheets:\n    spreadsheet_id: abc\n"))
	assert.Error(t, err)
}

func TestBuildSessionStore(t *testing.T) {
	logger := zerolog.New(io.Discard)

	store, mem, err := buildSessionStore(loadConfig(t, ""), nil, &logger)
	require.NoError(t, err)
	assert.IsType(t, &session.MemoryStore{}, store)
	assert.NotNil(t, mem)

	_, _, err = buildSessionStore(loadConfig(t, "session:\n  backend: redis\n"), nil, &logger)
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store, mem, err = buildSessionStore(loadConfig(t, "session:\n  backend: failover\n"), rdb, &logger)
	require.NoError(t, err)
	assert.IsType(t, &session.FailoverStore{}, store)
	assert.NotNil(t, mem)
}

func TestBuildExtractor_Rules(t *testing.T) {
	ex, err := buildExtractor(context.Background(), loadConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "rules", ex.Name())
	assert.NoError(t, ex.Close())
}

func TestBuildSenders(t *testing.T) {
	logger := zerolog.New(io.Discard)

	_, _, err := buildSenders(loadConfig(t, ""), &logger)
	assert.Error(t, err, "cloud sender needs a phone number id and token")

	senders, tg, err := buildSenders(loadConfig(t, "whatsapp:\n  phone_number_id: \"123\"\n  token: tok\nrate_limit:\n  per_second: 5\n  burst: 1\n"), &logger)
	require.NoError(t, err)
	assert.Nil(t, tg)
	require.Contains(t, senders, "whatsapp")
	assert.Equal(t, "whatsapp", senders["whatsapp"].Name())
}
