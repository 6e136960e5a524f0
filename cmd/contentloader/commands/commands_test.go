package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/contentloader/internal/config"
	"git.home.luguber.info/inful/contentloader/internal/eventstore"
	"git.home.luguber.info/inful/contentloader/internal/foundation/errors"
	"git.home.luguber.info/inful/contentloader/internal/loader"
	"git.home.luguber.info/inful/contentloader/internal/repository"
)

// run parses args and runs the selected command, returning its output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("contentloader"), kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	var out bytes.Buffer
	err = kctx.Run(&Global{Out: &out}, &cli)
	return out.String(), err
}

type env struct {
	dir    string
	config string
	repo   string
	audit  string
}

func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	e := env{
		dir:    dir,
		config: filepath.Join(dir, "contentloader.yaml"),
		repo:   filepath.Join(dir, "repository.db"),
		audit:  filepath.Join(dir, "audit.db"),
	}
	doc := fmt.Sprintf("version: \"1\"\ninstance:\n  id: cli\n  data_dir: %q\nrepository:\n  path: %q\naudit:\n  enabled: true\n  path: %q\nlogging:\n  level: error\n",
		dir, e.repo, e.audit)
	require.NoError(t, os.WriteFile(e.config, []byte(doc), 0o600))
	return e
}

// seed loads one unit record as instance and leaves it locked when keepLock
// is set, as a crashed instance would.
func (e env) seed(t *testing.T, instance, unitName string, keepLock bool) {
	t.Helper()
	ctx := context.Background()
	repo, err := repository.NewSQLiteRepository(e.repo, repository.Options{InstanceID: instance})
	require.NoError(t, err)
	store := loader.NewStateStore(loader.DefaultRootPath, instance)

	s, err := repo.Login(ctx)
	require.NoError(t, err)
	rec, err := store.AcquireRecord(ctx, s, unitName, true)
	require.NoError(t, err)
	require.NotNil(t, rec)
	if !keepLock {
		require.NoError(t, store.ReleaseRecord(ctx, s, unitName, true, []string{"/content/" + unitName}))
		require.NoError(t, s.Logout())
	}
	require.NoError(t, repo.Close())
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, "init", "--output", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "contentloader.yaml")

	_, err = run(t, "init", "--output", dir)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))

	_, err = run(t, "init", "--output", dir, "--force")
	require.NoError(t, err)
}

func TestStatusCommand(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "node-a", "alpha", false)
	e.seed(t, "node-b", "beta", true)

	out, err := run(t, "-c", e.config, "status", "--json")
	require.NoError(t, err)
	var report StatusReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Records, 2)
	assert.Equal(t, "alpha", report.Records[0].UnitName)
	assert.True(t, report.Records[0].Loaded)
	assert.Equal(t, "node-a", report.Records[0].LoadedBy)
	assert.True(t, report.Records[1].Locked)
	require.Len(t, report.Locks, 1)
	assert.Equal(t, "node-b", report.Locks[0].InstanceID)

	out, err = run(t, "-c", e.config, "status", "alpha")
	require.NoError(t, err)
	assert.Contains(t, out, "UNIT")
	assert.Contains(t, out, "node-a")

	_, err = run(t, "-c", e.config, "status", "gamma")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestUnlockCommand(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "node-b", "beta", true)

	_, err := run(t, "-c", e.config, "unlock")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))

	out, err := run(t, "-c", e.config, "unlock", "beta")
	require.NoError(t, err)
	assert.Contains(t, out, "released lock on "+loader.DefaultRootPath+"/beta")

	_, err = run(t, "-c", e.config, "unlock", "beta")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))

	e.seed(t, "node-c", "gamma", true)
	out, err = run(t, "-c", e.config, "unlock", "--instance", "node-c")
	require.NoError(t, err)
	assert.Contains(t, out, "released 1 lock(s) held by node-c")
}

func TestHistoryCommand(t *testing.T) {
	e := newEnv(t)
	_, err := run(t, "-c", e.config, "history")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))

	store, err := eventstore.NewSQLiteStore(e.audit)
	require.NoError(t, err)
	obs := eventstore.NewAuditObserver(store, nil, nil)
	obs.ContentChanged(t.Context(), loader.ContentEvent{Kind: loader.EventContentLoaded, Unit: "alpha", InstanceID: "node-a", Paths: []string{"/content/alpha"}})
	obs.ContentChanged(t.Context(), loader.ContentEvent{Kind: loader.EventContentFailed, Unit: "beta", InstanceID: "node-a", Error: "boom"})
	require.NoError(t, store.Close())

	out, err := run(t, "-c", e.config, "history", "--json")
	require.NoError(t, err)
	var entries []HistoryEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)

	out, err = run(t, "-c", e.config, "history", "alpha")
	require.NoError(t, err)
	assert.Contains(t, out, eventstore.TypeContentLoaded)
	assert.Contains(t, out, "/content/alpha")
	assert.NotContains(t, out, "boom")
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(config.LoggingConfig{Level: config.LogLevelWarn, Format: config.LogFormatJSON}, false, &buf).Info("hidden")
	assert.Empty(t, buf.String())

	NewLogger(config.LoggingConfig{Level: config.LogLevelWarn, Format: config.LogFormatJSON}, true, &buf).Debug("shown")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
