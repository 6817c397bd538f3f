package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	for _, k := range []string{"LULLABY_DATA_DIR", "LULLABY_ASSETS_DIR", "LULLABY_MANIFEST_URL", "LULLABY_SAMPLE_RATE", "LULLABY_LOOP_VOICE"} {
		t.Setenv(k, "")
	}
	return dir
}

func TestLoadDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, filepath.Join(dir, "data", "lullaby"), cfg.DataDir)
	require.Equal(t, filepath.Join(cfg.DataDir, "sounds"), cfg.AssetsDir)
	require.Equal(t, DefaultSampleRate, cfg.SampleRate)
	require.Equal(t, 4*time.Second, cfg.PreviewDuration())
	require.Equal(t, 0.5, cfg.PreviewVolume)
	require.Equal(t, 24*time.Hour, cfg.CacheTTL)
	require.Empty(t, cfg.ManifestURL)
	require.DirExists(t, cfg.DataDir)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := isolate(t)

	path := filepath.Join(dir, "config", "lullaby", "config.toml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir = "`+filepath.Join(dir, "store")+`"
manifest_url = "http://localhost:8080/sounds.json"
sample_rate = 48000
preview_seconds = 6
preview_volume = 0
cache_ttl_hours = 2
loop_voice = true
`), 0o644))

	t.Setenv("LULLABY_SAMPLE_RATE", "22050")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, filepath.Join(dir, "store"), cfg.DataDir)
	require.Equal(t, filepath.Join(dir, "store", "sounds"), cfg.AssetsDir)
	require.Equal(t, "http://localhost:8080/sounds.json", cfg.ManifestURL)
	require.Equal(t, 22050, cfg.SampleRate)
	require.Equal(t, 6*time.Second, cfg.PreviewDuration())
	require.Zero(t, cfg.PreviewVolume)
	require.Equal(t, 2*time.Hour, cfg.CacheTTL)
	require.True(t, cfg.LoopVoice)
}

func TestLoadRejectsBadInput(t *testing.T) {
	dir := isolate(t)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("sample_rate = ["), 0o644))
	_, err := LoadFile(bad)
	require.Error(t, err)

	t.Setenv("LULLABY_LOOP_VOICE", "sometimes")
	_, err = LoadFile("")
	require.ErrorContains(t, err, "LULLABY_LOOP_VOICE")
}
