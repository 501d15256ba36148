package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  package_synced_topic_name: "package.synced"
redis:
  host: "localhost"
  port: 6379
meli:
  base_url: "https://api.mercadolibre.com"
  token_file: "meli_tokens.json"
storage:
  base_url: "https://xyz.supabase.co/storage/v1"
  bucket: "etiquetas"
  service_key: "sk"
scanbox:
  http_addr: ":8080"
  kafka_consumer_group: "scan-api"
  record_ttl_seconds: 600
  worker_sync_days: 60
  worker_concurrency: 12
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "package.synced", cfg.Kafka.PackageSyncedTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, "etiquetas", cfg.Storage.Bucket)
	require.Equal(t, "meli_tokens.json", cfg.Meli.TokenFile)
	require.Equal(t, ":8080", cfg.ScanBox.HTTPAddr)
	require.Equal(t, 12, cfg.ScanBox.WorkerConcurrency)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
