package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crm-clients/config"
	"crm-clients/form"
	"crm-clients/models"
	"crm-clients/notify"
)

type result struct {
	out, errOut string
	err         error
}

func run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.ExecuteContext(context.Background())
	return result{out: out.String(), errOut: errOut.String(), err: err}
}

func useTempStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crm.db")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("STORAGE_PATH", path)
	t.Setenv("LOG_LEVEL", "error")
	return path
}

func TestCommandsRoundTrip(t *testing.T) {
	useTempStore(t)

	r := run(t, "", "add", "--name", "Ana Pérez", "--email", "ana@x.com", "--phone", "555-1234", "--type", "vip")
	require.NoError(t, r.err)
	assert.Contains(t, r.errOut, form.MsgAdded)

	r = run(t, "", "add", "--name", "Bob Smith", "--email", "bob@y.org", "--phone", "555 9876")
	require.NoError(t, r.err)

	r = run(t, "", "list")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "Clients (2)")
	assert.Contains(t, r.out, "Ana Pérez")
	assert.Contains(t, r.out, "[VIP]")
	assert.Contains(t, r.out, "[REGULAR]")

	r = run(t, "", "list", "bob")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "Clients (1)")
	assert.NotContains(t, r.out, "Ana Pérez")

	r = run(t, "", "edit", "1", "--phone", "555 0000")
	require.NoError(t, r.err)
	assert.Contains(t, r.errOut, form.MsgUpdated)

	r = run(t, "", "list", "555 0000")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "Ana Pérez")
	assert.Contains(t, r.out, "[VIP]")

	r = run(t, "n\n", "delete", "1")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, form.DeletePrompt)
	assert.Contains(t, r.out, "Cancelled.")

	r = run(t, "yes\n", "delete", "1")
	require.NoError(t, r.err)
	assert.Contains(t, r.errOut, form.MsgDeleted)

	r = run(t, "", "delete", "2", "--yes")
	require.NoError(t, r.err)

	r = run(t, "", "list")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "No results found.")
}

func TestAddRejectsInvalidFields(t *testing.T) {
	useTempStore(t)

	r := run(t, "", "add", "--name", "Jo", "--email", "jo@x", "--phone", "555-1234")
	require.ErrorIs(t, r.err, form.ErrSubmitDisabled)
	assert.Contains(t, r.err.Error(), "name, email")

	r = run(t, "", "add", "--name", "John Doe", "--email", "jo@x.com", "--phone", "555-1234", "--type", "gold")
	assert.Error(t, r.err)
}

func TestAddDuplicateEmail(t *testing.T) {
	useTempStore(t)

	require.NoError(t, run(t, "", "add", "--name", "Ana Pérez", "--email", "ana@x.com", "--phone", "555-1234").err)
	r := run(t, "", "add", "--name", "Other Person", "--email", "ana@x.com", "--phone", "555-0000")
	require.ErrorIs(t, r.err, models.ErrDuplicateEmail)
	assert.Contains(t, r.errOut, form.MsgDuplicateEmail)
}

func TestEditUnknownClient(t *testing.T) {
	useTempStore(t)
	r := run(t, "", "edit", "42", "--phone", "555 0000")
	assert.ErrorIs(t, r.err, form.ErrUnknownClient)

	r = run(t, "", "edit", "abc")
	assert.Error(t, r.err)
}

func TestOpenFailureNotifiesOnce(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(blocker, "crm.db")

	var got []string
	sink := notify.NotifierFunc(func(message string, _ notify.Severity) { got = append(got, message) })

	_, err := Open(context.Background(), cfg, sink)
	require.ErrorIs(t, err, models.ErrStorageUnavailable)
	assert.Equal(t, []string{form.MsgStorageUnavailable}, got)
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "crm.db")

	feed := notify.NewMemory(cfg.Notify.TTL)
	a, err := Open(context.Background(), cfg, withLogging(feed))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	router, err := NewRouter(a, feed, zap.NewNop())
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestNewFeedDefaultsToMemory(t *testing.T) {
	feed, closeFeed, err := NewFeed(context.Background(), config.Default())
	require.NoError(t, err)
	defer closeFeed()

	withLogging(feed).Notify("hello", notify.Info)
	active := feed.Active(context.Background())
	require.Len(t, active, 1)
	assert.Equal(t, "hello", active[0].Message)
}
