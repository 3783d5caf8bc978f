package cmd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/pouch-ops/internal/config"
	"github.com/ginjaninja78/pouch-ops/internal/runlock"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const exportCSV = "Date,Time,Name,Type,Currency,Gross,From Email Address,Transaction ID\n" +
	"15/03/2024,10:00:00,Alice,General Payment,USD,250.00,a@x.com,TXN1\n"

// setupImport points the command globals at a temp workspace with one export
// and restores them when the test ends. It returns the workspace root.
func setupImport(t *testing.T) string {
	t.Helper()

	// Keep the developer's environment out of credential lookup.
	for _, key := range []string{
		"CRM_STORE_URL", "SUPABASE_URL", "VITE_SUPABASE_URL",
		"CRM_SERVICE_KEY", "SUPABASE_SERVICE_ROLE_KEY",
		"CRM_ANON_KEY", "SUPABASE_ANON_KEY", "VITE_SUPABASE_ANON_KEY",
	} {
		t.Setenv(key, "")
	}

	root := t.TempDir()
	cfg, err := config.LoadMainConfig(filepath.Join(root, "missing.yaml"))
	require.NoError(t, err)

	cfg.InputDir = filepath.Join(root, "exports")
	cfg.EnvFile = filepath.Join(root, ".env")
	cfg.ReportDir = filepath.Join(root, "reports")
	cfg.Lock.File = filepath.Join(root, "import.lock")
	require.NoError(t, os.MkdirAll(cfg.InputDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InputDir, "march.csv"), []byte(exportCSV), 0644))

	saved := mainConfig
	mainConfig = cfg
	t.Cleanup(func() {
		mainConfig = saved
		dryRun, inputDir, writeReport, strict = false, "", false, false
	})
	return root
}

// writeCredentials stores a REST store URL and service key in the env file.
func writeCredentials(t *testing.T, url string) {
	t.Helper()
	content := "CRM_STORE_URL=" + url + "\nCRM_SERVICE_KEY=svc-key\n"
	require.NoError(t, os.WriteFile(mainConfig.EnvFile, []byte(content), 0600))
}

// crmServer answers the email query with no rows and every insert with
// insertStatus.
func crmServer(t *testing.T, insertStatus int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte("[]"))
			return
		}
		w.WriteHeader(insertStatus)
		if insertStatus >= 300 {
			w.Write([]byte(`{"message":"unavailable"}`))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

// =============================================================================
// EXIT POLICY TESTS
// =============================================================================

func TestRunImport_MissingCredentialsFailsBeforeFileIO(t *testing.T) {
	setupImport(t)
	// An unreadable input dir would fail the run too; the credential error
	// must come first.
	mainConfig.InputDir = filepath.Join(t.TempDir(), "nope")

	err := runImport(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingCredentials)
	assert.NoFileExists(t, mainConfig.Lock.File)
}

func TestRunImport_DryRunWithoutCredentials(t *testing.T) {
	setupImport(t)
	dryRun = true

	assert.NoError(t, runImport(context.Background()))
	assert.NoFileExists(t, mainConfig.Lock.File)
}

func TestRunImport_Succeeds(t *testing.T) {
	setupImport(t)
	writeCredentials(t, crmServer(t, http.StatusCreated).URL)

	assert.NoError(t, runImport(context.Background()))
	assert.NoFileExists(t, mainConfig.Lock.File, "lock released")
}

func TestRunImport_WriteFailureExitPolicy(t *testing.T) {
	tests := []struct {
		name             string
		strict           bool
		failOnWriteError bool
		wantErr          bool
	}{
		{name: "default exits zero"},
		{name: "strict flag", strict: true, wantErr: true},
		{name: "fail_on_write_error", failOnWriteError: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupImport(t)
			writeCredentials(t, crmServer(t, http.StatusServiceUnavailable).URL)
			strict = tt.strict
			mainConfig.FailOnWriteError = tt.failOnWriteError

			err := runImport(context.Background())
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, errWriteFailed))
			assert.Contains(t, err.Error(), "503")
		})
	}
}

func TestRunImport_LockHeld(t *testing.T) {
	setupImport(t)
	writeCredentials(t, crmServer(t, http.StatusCreated).URL)
	require.NoError(t, os.WriteFile(mainConfig.Lock.File, []byte("run=other"), 0644))

	err := runImport(context.Background())
	assert.ErrorIs(t, err, runlock.ErrLocked)
}

func TestRunImport_WritesReport(t *testing.T) {
	root := setupImport(t)
	writeCredentials(t, crmServer(t, http.StatusCreated).URL)
	writeReport = true

	require.NoError(t, runImport(context.Background()))

	entries, err := os.ReadDir(filepath.Join(root, "reports"))
	require.NoError(t, err)

	var xlsx, summary int
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".xlsx"):
			xlsx++
		case strings.HasPrefix(e.Name(), "import_summary_"):
			summary++
		}
	}
	assert.Equal(t, 1, xlsx)
	assert.Equal(t, 1, summary)
}

// =============================================================================
// LOCKER TESTS
// =============================================================================

func TestNewLocker_FileByDefault(t *testing.T) {
	setupImport(t)

	locker, closeLocker, err := newLocker(mainConfig, "run-1")
	require.NoError(t, err)
	assert.IsType(t, &runlock.FileLock{}, locker)
	assert.NoError(t, closeLocker())
}

func TestNewLocker_RedisClosesClient(t *testing.T) {
	setupImport(t)
	mr := miniredis.RunT(t)
	mainConfig.Lock.RedisURL = "redis://" + mr.Addr()

	locker, closeLocker, err := newLocker(mainConfig, "run-1")
	require.NoError(t, err)

	release, err := locker.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, mr.Exists(runlock.DefaultRedisKey))

	require.NoError(t, release())
	require.NoError(t, closeLocker())
	assert.False(t, mr.Exists(runlock.DefaultRedisKey))

	// A closed client can no longer take the lock.
	_, err = locker.Acquire(context.Background())
	assert.Error(t, err)
}
