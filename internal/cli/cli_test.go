package cli

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/hash-queue/internal/api"
	"github.com/ChuLiYu/hash-queue/internal/config"
	"github.com/ChuLiYu/hash-queue/internal/controller"
	"github.com/ChuLiYu/hash-queue/pkg/types"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "hashqueue", cmd.Use)

	commandNames := make(map[string]bool)
	for _, c := range cmd.Commands() {
		commandNames[c.Name()] = true
	}
	for _, name := range []string{"run", "submit", "job", "status", "config"} {
		assert.True(t, commandNames[name], "Should have '%s' command", name)
	}

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "configs/default.yaml", configFlag.DefValue)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("server"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("env"))
}

func TestBuildSubmitCommand(t *testing.T) {
	cmd := buildSubmitCommand()

	alg := cmd.Flags().Lookup("algorithm")
	require.NotNil(t, alg)
	assert.Equal(t, "a", alg.Shorthand)
	assert.Equal(t, "sha256", alg.DefValue)
	assert.NotNil(t, cmd.Flags().Lookup("wait"))
	assert.NotNil(t, cmd.RunE)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := NewLogger("debug", "json", &buf)
	require.NoError(t, err)
	logger.Debug("hello", "jobID", "j1")
	assert.Contains(t, buf.String(), `"jobID":"j1"`)

	buf.Reset()
	logger, err = NewLogger("warn", "text", &buf)
	require.NoError(t, err)
	logger.Info("hidden")
	assert.Empty(t, buf.String())

	_, err = NewLogger("loud", "json", &buf)
	assert.Error(t, err)
	_, err = NewLogger("info", "xml", &buf)
	assert.Error(t, err)
}

// ============================================================================
// Client commands against a live server
// ============================================================================

func startServer(t *testing.T, rc types.RuntimeConfig) (*httptest.Server, *controller.Controller) {
	t.Helper()
	ctrl, err := controller.New(controller.Options{Runtime: rc})
	require.NoError(t, err)
	require.NoError(t, ctrl.Start())

	srv := httptest.NewServer(api.NewRouter(ctrl, ctrl.Metrics().Handler()))
	t.Cleanup(func() {
		srv.Close()
		ctrl.Stop(context.Background())
	})
	return srv, ctrl
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := BuildCLI()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSubmitWait(t *testing.T) {
	srv, _ := startServer(t, types.RuntimeConfig{Interval: 10 * time.Millisecond, MaxQueue: 10, MaxParallelJobs: 2})

	out, err := execute(t, "--server", srv.URL, "submit", "-a", "md5", "-i", "hello", "--wait")
	require.NoError(t, err)
	assert.Contains(t, out, "Submitted job")
	assert.Contains(t, out, "5d41402abc4b2a76b9719d911017c592")
	assert.Contains(t, out, "done")
}

func TestSubmitJSONInput(t *testing.T) {
	srv, ctrl := startServer(t, types.RuntimeConfig{Interval: time.Hour, MaxQueue: 10, MaxParallelJobs: 2})

	_, err := execute(t, "--server", srv.URL, "submit", "-a", "sha1", "-i", `{"a":1}`, "--json")
	require.NoError(t, err)

	jobs := ctrl.ListJobs()
	require.Len(t, jobs, 1)
	job, err := ctrl.GetJob(jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0}, job.Input)
}

func TestSubmitRejected(t *testing.T) {
	srv, _ := startServer(t, types.RuntimeConfig{Interval: time.Hour, MaxQueue: 10, MaxParallelJobs: 2})

	_, err := execute(t, "--server", srv.URL, "submit", "-a", "unknown-algo", "-i", "x")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, 400, apiErr.Status)
}

func TestConfigGetSet(t *testing.T) {
	srv, ctrl := startServer(t, types.RuntimeConfig{Interval: time.Hour, MaxQueue: 10, MaxParallelJobs: 2})

	out, err := execute(t, "--server", srv.URL, "config", "set", "--max-queue", "25")
	require.NoError(t, err)
	assert.Contains(t, out, "maxQueue:        25")
	assert.Equal(t, 25, ctrl.GetConfig().MaxQueue)
	assert.Equal(t, time.Hour, ctrl.GetConfig().Interval)

	_, err = execute(t, "--server", srv.URL, "config", "set", "--interval", "5")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, "interval", apiErr.Field)

	_, err = execute(t, "--server", srv.URL, "config", "set")
	assert.Error(t, err)

	out, err = execute(t, "--server", srv.URL, "config", "get")
	require.NoError(t, err)
	assert.Contains(t, out, "interval:        3600000ms")
}

func TestStatusAndJob(t *testing.T) {
	srv, ctrl := startServer(t, types.RuntimeConfig{Interval: time.Hour, MaxQueue: 10, MaxParallelJobs: 2})
	job, err := ctrl.Submit("sha512", "abc")
	require.NoError(t, err)

	out, err := execute(t, "--server", srv.URL, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Hash-Queue Status")
	assert.Contains(t, out, "Queued:      1")

	out, err = execute(t, "--server", srv.URL, "job", string(job.ID))
	require.NoError(t, err)
	assert.Contains(t, out, "queued")

	_, err = execute(t, "--server", srv.URL, "job", "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 404, apiErr.Status)
}

// ============================================================================
// run
// ============================================================================

func TestRunServerStopsOnCancel(t *testing.T) {
	cfg := config.Defaults()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.GRPC.Enabled = true
	cfg.GRPC.Addr = "127.0.0.1:0"
	cfg.Snapshot.Path = t.TempDir() + "/history.json"
	cfg.Log.Level = "error"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, cfg) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runServer did not return after cancel")
	}
}
