package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadLayersFileAndEnvironment(t *testing.T) {
	req := require.New(t)
	t.Chdir(t.TempDir())

	path := filepath.Join(t.TempDir(), "config.yaml")
	req.NoError(os.WriteFile(path, []byte(`
server:
  port: "9090"
postgres:
  url: postgres://file
quiz:
  reveal_delay: 5
`), 0o600))
	t.Setenv("QUIZROOM_POSTGRES_URL", "postgres://env")
	t.Setenv("QUIZROOM_QUIZ_PRE_ROLL", "4")

	cfg, err := Load(path)
	req.NoError(err)
	req.Equal("9090", cfg.Server.Port)
	req.Equal("postgres://env", cfg.Postgres.URL)
	req.Equal(5, cfg.Quiz.RevealDelay)
	req.Equal(4, cfg.Quiz.PreRoll)
	req.Equal(30, cfg.Quiz.DefaultTimeLimit, "defaults survive when unset")
}

func TestLoadToleratesMissingFile(t *testing.T) {
	req := require.New(t)
	t.Chdir(t.TempDir())
	t.Setenv("QUIZROOM_REDIS_ADDR", "localhost:6379")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	req.NoError(err)
	req.Equal("localhost:6379", cfg.Redis.Addr)
	req.Equal("8080", cfg.Server.Port)
}

func TestLoadReadsDotEnv(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	t.Chdir(dir)
	req.NoError(os.WriteFile(filepath.Join(dir, ".env"), []byte("QUIZROOM_LOG_FORMAT=json\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("QUIZROOM_LOG_FORMAT") })

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	req.NoError(err)
	req.Equal("json", cfg.Log.Format)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	req := require.New(t)
	t.Chdir(t.TempDir())
	t.Setenv("QUIZROOM_LOG_LEVEL", "loud")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	req.Error(err)
}

func TestLoadRejectsNonPositiveWebSocketSettings(t *testing.T) {
	cases := map[string]string{
		"zero ping interval": "QUIZROOM_WS_PING_INTERVAL=0s",
		"negative pong wait": "QUIZROOM_WS_PONG_WAIT=-5s",
		"malformed timeout":  "QUIZROOM_WS_WRITE_TIMEOUT=soon",
		"zero send buffer":   "QUIZROOM_WS_SEND_BUFFER=0",
		"zero message size":  "QUIZROOM_WS_MAX_MESSAGE_SIZE=0",
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			key, value, _ := strings.Cut(env, "=")
			t.Setenv(key, value)

			_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
			require.Error(t, err)
		})
	}
}

func TestDuration(t *testing.T) {
	req := require.New(t)
	req.Equal(3*time.Second, Duration("3s", time.Minute))
	req.Equal(time.Minute, Duration("", time.Minute))
	req.Equal(time.Minute, Duration("soon", time.Minute))
	req.Equal(time.Minute, Duration("0s", time.Minute))
	req.Equal(time.Minute, Duration("-1s", time.Minute))
}
