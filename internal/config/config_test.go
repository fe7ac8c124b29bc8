package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("STUDIO_API_BASE", "")
	t.Setenv("NEXT_PUBLIC_API_BASE", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	require.Equal(t, 60*time.Second, cfg.API.Timeout())
	require.Equal(t, "/api/upload", cfg.API.UploadPath)
	require.Equal(t, 10, cfg.Upload.InitialProgress)
	require.Equal(t, 95, cfg.Upload.ProgressCap)
	require.Equal(t, 700*time.Millisecond, cfg.Upload.ResetDelay())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Setenv("STUDIO_API_BASE", "")
	t.Setenv("NEXT_PUBLIC_API_BASE", "")

	path := filepath.Join(t.TempDir(), "studio.yaml")
	data := []byte(`api:
  base_url: http://papers.internal:9000
  chat_path: /chat/
chat:
  greeting: ""
library:
  cache_ttl_secs: 5
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://papers.internal:9000", cfg.API.BaseURL)
	require.Equal(t, "/chat/", cfg.API.ChatPath)
	require.Equal(t, "/api/library", cfg.API.LibraryPath)
	require.Equal(t, "", cfg.Chat.Greeting)
	require.Equal(t, 5*time.Second, cfg.Library.CacheTTL())
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studio.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  base_url: http://from-file:1\n"), 0o644))
	t.Setenv("NEXT_PUBLIC_API_BASE", "")
	t.Setenv("STUDIO_API_BASE", "https://from-env.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://from-env.example", cfg.API.BaseURL)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Setenv("STUDIO_API_BASE", "")
	t.Setenv("NEXT_PUBLIC_API_BASE", "")

	cases := map[string]string{
		"relative base":   "api:\n  base_url: localhost:8000\n",
		"cap below start": "upload:\n  initial_progress: 50\n  progress_cap: 40\n",
		"cap at hundred":  "upload:\n  progress_cap: 100\n",
		"bad schedule":    "analytics:\n  refresh_schedule: every now and then\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "studio.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	t.Setenv("STUDIO_API_BASE", "")
	t.Setenv("NEXT_PUBLIC_API_BASE", "")

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	want := Default()
	want.API.BaseURL = "http://127.0.0.1:8123"
	want.Analytics.RefreshSchedule = ""
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, want.API, got.API)
	require.Equal(t, "", got.Analytics.RefreshSchedule)

	sched, err := got.Analytics.Schedule()
	require.NoError(t, err)
	require.Nil(t, sched)
}
