package cmd

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/protodemo/pkg/broker/brokertest"
	"github.com/ssargent/protodemo/pkg/codec"
	"github.com/ssargent/protodemo/pkg/config"
	"github.com/ssargent/protodemo/pkg/di"
	"github.com/ssargent/protodemo/pkg/storage"
)

// executeCommand runs the root command with args and returns its standard
// output. Logs and cobra errors go to a separate buffer.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// writeTestConfig writes a default config with history under dir
func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	_, err := config.BootstrapConfig(path, filepath.Join(dir, "data"))
	require.NoError(t, err)
	return path
}

func TestEncodeCommand(t *testing.T) {
	cfgPath := writeTestConfig(t, t.TempDir())

	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{name: "name and id", args: []string{"--name", "abc", "--id", "2"}, expected: "0a 03 61 62 63 10 02"},
		{name: "negative id", args: []string{"--name", "", "--id", "-1"}, expected: "10 ff ff ff ff ff ff ff ff ff 01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := executeCommand(t, append([]string{"encode", "--config", cfgPath}, tt.args...)...)
			require.NoError(t, err)
			assert.Contains(t, out, tt.expected)
		})
	}
}

func TestDecodeCommand(t *testing.T) {
	cfgPath := writeTestConfig(t, t.TempDir())

	t.Run("joined hex", func(t *testing.T) {
		out, err := executeCommand(t, "decode", "--config", cfgPath, "0a036162631002")
		require.NoError(t, err)
		assert.Contains(t, out, `{"name":"abc","id":2}`)
	})

	t.Run("separate bytes", func(t *testing.T) {
		out, err := executeCommand(t, "decode", "--config", cfgPath, "0a", "03", "61", "62", "63", "10", "02")
		require.NoError(t, err)
		assert.Contains(t, out, `{"name":"abc","id":2}`)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := executeCommand(t, "decode", "--config", cfgPath, "0a0561")
		require.Error(t, err)
		assert.True(t, errors.Is(err, codec.ErrMalformedInput))
	})

	t.Run("invalid hex", func(t *testing.T) {
		_, err := executeCommand(t, "decode", "--config", cfgPath, "xyz")
		assert.Error(t, err)
	})
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "nested", "config.yaml")
	dataDir := filepath.Join(dir, "history")

	out, err := executeCommand(t, "init", "--config", cfgPath, "--data-dir", dataDir, "--force=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+cfgPath)
	assert.FileExists(t, cfgPath)

	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, dataDir, cfg.Storage.DataDir)

	out, err = executeCommand(t, "init", "--config", cfgPath, "--data-dir", dataDir, "--force=false")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	out, err = executeCommand(t, "init", "--config", cfgPath, "--data-dir", dataDir, "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")
}

func TestRootCommand_MissingExplicitConfig(t *testing.T) {
	_, err := executeCommand(t, "encode", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestPublishCommand(t *testing.T) {
	cfgPath := writeTestConfig(t, t.TempDir())

	fake := brokertest.NewFakeClient()
	container := di.NewContainer()
	container.SetBrokerFactory(fake.Factory())
	SetContainer(container)
	defer SetContainer(nil)

	out, err := executeCommand(t, "publish", "--config", cfgPath, "--topic", "demo/one", "--name", "abc", "--id", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Published 7 bytes to demo/one: 0a 03 61 62 63 10 02")

	published := fake.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "demo/one", published[0].Topic)
	assert.Equal(t, []byte{0x0a, 0x03, 0x61, 0x62, 0x63, 0x10, 0x02}, published[0].Payload)
}

func TestPublishCommand_ConnectFailure(t *testing.T) {
	cfgPath := writeTestConfig(t, t.TempDir())

	fake := brokertest.NewFakeClient()
	fake.ConnectErr = errors.New("connection refused")
	container := di.NewContainer()
	container.SetBrokerFactory(fake.Factory())
	SetContainer(container)
	defer SetContainer(nil)

	_, err := executeCommand(t, "publish", "--config", cfgPath, "--topic", "demo/one", "--name", "x", "--id", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestHistoryCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)

	SetContainer(di.NewContainer())
	defer SetContainer(nil)

	out, err := executeCommand(t, "history", "--config", cfgPath, "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "No messages stored")

	store, err := storage.NewPebbleStore(filepath.Join(dir, "data"), 10)
	require.NoError(t, err)
	c := codec.NewSimpleRequestCodec()
	_, err = store.Append(context.Background(), "mqtt/proto/demo", c.Encode(codec.SimpleRequest{Name: "bob", ID: 3}))
	require.NoError(t, err)
	_, err = store.Append(context.Background(), "mqtt/proto/demo", []byte{0xff})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out, err = executeCommand(t, "history", "--config", cfgPath, "--limit", "5")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[ff]")
	assert.Contains(t, lines[0], "error: ")
	assert.Contains(t, lines[1], `{"name":"bob","id":3}`)
}

type countingPublisher struct {
	mu    sync.Mutex
	calls int
	fail  map[int]bool
	ids   []int32
}

func (p *countingPublisher) Publish(_ context.Context, _ string, id int32) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fail[p.calls] {
		return nil, errors.New("publish failed")
	}
	p.ids = append(p.ids, id)
	return nil, nil
}

func TestRunPublisher(t *testing.T) {
	t.Run("stops after count and continues past failures", func(t *testing.T) {
		p := &countingPublisher{fail: map[int]bool{2: true}}
		next := func() (string, int32) { return "alice", 1 }

		sent := runPublisher(context.Background(), p, next, time.Millisecond, 3)

		assert.Equal(t, 3, sent)
		assert.Equal(t, 4, p.calls)
	})

	t.Run("stops on cancel", func(t *testing.T) {
		p := &countingPublisher{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		sent := runPublisher(ctx, p, func() (string, int32) { return "bob", 2 }, time.Hour, 0)

		assert.Equal(t, 1, sent)
	})
}

func TestRandomRecords(t *testing.T) {
	names := []string{"alice", "bob"}
	next := randomRecords(newTestRand(), names, 5)

	for i := 0; i < 200; i++ {
		name, id := next()
		assert.Contains(t, names, name)
		assert.GreaterOrEqual(t, id, int32(0))
		assert.LessOrEqual(t, id, int32(5))
	}
}

func TestMain(m *testing.M) {
	// Keep the user's real config out of the tests.
	home, err := os.MkdirTemp("", "protodemo_cmd_test")
	if err != nil {
		panic(err)
	}
	os.Setenv("HOME", home)
	code := m.Run()
	os.RemoveAll(home)
	os.Exit(code)
}

func newTestRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}
