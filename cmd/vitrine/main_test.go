package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrine/vitrine/config"
	"github.com/vitrine/vitrine/pkg/conversation"
	"github.com/vitrine/vitrine/pkg/logger"
)

const testFixture = `products:
  - id: d1
    title: Drone DJI Mini 3
    category: drones
    store: Loja A
    store_slug: loja-a
    price: 3899.90
  - id: d2
    title: Drone Potensic Atom
    category: drones
    store: Loja B
    store_slug: loja-b
    price: 1599.00
  - id: c1
    title: Celular Motorola Moto G84
    category: celulares
    store: Loja B
    store_slug: loja-b
    price: 1399.00
suggestions:
  quadricoptero: [drone]
`

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testFixture), 0o644))
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Metrics.Enabled = false
	cfg.Log.Level = "error"
	cfg.Catalog.FixturePath = writeFixture(t)
	return cfg
}

func quietLogger() logger.Logger {
	return logger.New(&logger.Config{Level: logger.ErrorLevel, Format: "json", Output: "stdout"})
}

func TestBuildOverrides(t *testing.T) {
	t.Cleanup(func() { logLevel, debugMode = "", false })

	logLevel, debugMode = "", false
	assert.Empty(t, buildOverrides())

	logLevel, debugMode = "debug", true
	overrides := buildOverrides()
	assert.Equal(t, "debug", overrides["log.level"])
	assert.Equal(t, true, overrides["app.debug"])
}

func TestNewStorage(t *testing.T) {
	ctx := context.Background()

	s, err := newStorage(ctx, config.StorageConfig{Type: "memory"})
	require.NoError(t, err)
	assert.NoError(t, s.Ping(ctx))
	assert.NoError(t, s.Close())

	s, err = newStorage(ctx, config.StorageConfig{
		Type:   "badger",
		Badger: config.BadgerConfig{Path: t.TempDir(), NumVersionsToKeep: 1},
	})
	require.NoError(t, err)
	assert.NoError(t, s.Close())

	_, err = newStorage(ctx, config.StorageConfig{Type: "cassandra"})
	assert.Error(t, err)
}

func TestBuildApp_AnswersFromStaticCatalog(t *testing.T) {
	ctx := context.Background()
	a, err := buildApp(ctx, testConfig(t), quietLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.shutdown(context.Background()) })

	resp, err := a.engine.HandleTurn(ctx, conversation.TurnRequest{SessionID: "s1", Utterance: "drone"})
	require.NoError(t, err)
	assert.Equal(t, conversation.OutcomeAnswered, resp.Outcome)
	require.NotEmpty(t, resp.Items)
	for _, item := range resp.Items {
		assert.Contains(t, []string{"d1", "d2"}, item.ID)
	}
}

func TestBuildApp_RejectsUnknownCatalogMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Catalog.Mode = "ftp"

	_, err := buildApp(context.Background(), cfg, quietLogger(), nil)
	assert.ErrorContains(t, err, "unknown catalog mode")
}

func TestBuildApp_MissingFixture(t *testing.T) {
	cfg := testConfig(t)
	cfg.Catalog.FixturePath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := buildApp(context.Background(), cfg, quietLogger(), nil)
	assert.Error(t, err)
}

func TestApp_Reload(t *testing.T) {
	a, err := buildApp(context.Background(), testConfig(t), quietLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.shutdown(context.Background()) })

	next := config.DefaultConfig()
	next.Log.Level = "debug"
	next.Retrieval.Vocabulary = []string{"drone", "bicicleta"}
	next.Retrieval.CorrectionThreshold = 0.8

	a.reload(next)

	assert.Equal(t, logger.DebugLevel, a.log.GetLevel())
	assert.Equal(t, 0.8, a.corrector.Threshold())
	assert.ElementsMatch(t, []string{"drone", "bicicleta"}, a.corrector.Vocabulary())
}

func TestChat(t *testing.T) {
	in := strings.NewReader("drone\n/memory\n/quit\n")
	var out bytes.Buffer

	err := chat(context.Background(), testConfig(t), in, &out, "chat-session", "pt")
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "session chat-session")
	assert.Contains(t, text, "Drone")
	assert.Contains(t, text, "messages: 2")
}

func TestChat_Commands(t *testing.T) {
	in := strings.NewReader("/help\n/bogus\n/new\n")
	var out bytes.Buffer

	err := chat(context.Background(), testConfig(t), in, &out, "s", "")
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "/memory")
	assert.Contains(t, text, "unknown command /bogus")
	assert.Contains(t, text, "new session")
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Version:")
	assert.Contains(t, out.String(), "Go Version:")
}

func TestServe_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}
