package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkoziy/crmsync/internal/apperrors"
	"github.com/mkoziy/crmsync/internal/sources/hubspot"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "crmsync", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"sync", "cleanup", "history"} {
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "Command %s should exist", name)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitConfigError, GetExitCode(apperrors.ErrConfig))
	assert.Equal(t, ExitConfigError, GetExitCode(WrapExitError(ExitConfigError, "bad", nil)))
	assert.Equal(t, ExitFailure, GetExitCode(WrapExitError(ExitFailure, "sync failed", apperrors.ErrConfig)))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSyncMissingConfigExitsWithConfigError(t *testing.T) {
	t.Setenv("WAREHOUSE_PROJECT", "")
	t.Setenv("WAREHOUSE_DATASET", "")
	t.Setenv("MASTER_TABLE", "")
	t.Setenv("STAGING_TABLE", "")
	t.Setenv("CRM_ACCESS_TOKEN", "")

	_, err := execute(t, "sync")
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, GetExitCode(err))
	assert.Contains(t, err.Error(), "MASTER_TABLE")
}

func fakeCRM(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer pat-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case strings.HasPrefix(r.URL.Path, "/crm/v3/properties/"):
			_ = json.NewEncoder(w).Encode(hubspot.PropertiesResponse{Results: []hubspot.Property{
				{Name: "email", Type: "string"},
			}})
		case strings.HasSuffix(r.URL.Path, "/search"):
			_ = json.NewEncoder(w).Encode(hubspot.ObjectsResponse{Results: []hubspot.Object{
				{ID: "1", Properties: map[string]any{"email": "a@x.io"}},
				{ID: "2", Properties: map[string]any{"email": "b@x.io"}},
			}})
		default:
			_ = json.NewEncoder(w).Encode(hubspot.ObjectsResponse{Results: []hubspot.Object{{ID: "2"}}})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setEnv(t *testing.T, baseURL, token string) {
	t.Helper()
	t.Setenv("WAREHOUSE_DRIVER", "sqlite")
	t.Setenv("WAREHOUSE_PROJECT", filepath.Join(t.TempDir(), "wh.db"))
	t.Setenv("WAREHOUSE_DATASET", "crm")
	t.Setenv("MASTER_TABLE", "contacts")
	t.Setenv("STAGING_TABLE", "contacts_staging")
	t.Setenv("CRM_ACCESS_TOKEN", token)
	t.Setenv("CRM_BASE_URL", baseURL)
	t.Setenv("CLEANUP_STRATEGY", "anti_join")
	t.Setenv("PUSHGATEWAY_URL", "")
}

func TestSyncCleanupHistory(t *testing.T) {
	srv := fakeCRM(t)
	setEnv(t, srv.URL, "pat-test")

	out, err := execute(t, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "succeeded")
	assert.Contains(t, out, "fetched:  2")

	out, err = execute(t, "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted:    1")

	out, err = execute(t, "history", "-n", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "STARTED")
	assert.Contains(t, out, "cleanup")
	assert.Contains(t, out, "sync")
}

func TestSyncUnauthorizedFails(t *testing.T) {
	srv := fakeCRM(t)
	setEnv(t, srv.URL, "pat-wrong")

	_, err := execute(t, "sync")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, errors.Is(err, hubspot.ErrUnauthorized))
}
