// Package e2e boots a complete relaylink client against an in-process relay
// and drives it through its HTTP API.
package e2e

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/relaylink/pkg/api"
	"github.com/codeready-toolchain/relaylink/pkg/config"
	"github.com/codeready-toolchain/relaylink/pkg/connection"
	"github.com/codeready-toolchain/relaylink/pkg/database"
	"github.com/codeready-toolchain/relaylink/pkg/events"
	"github.com/codeready-toolchain/relaylink/pkg/health"
	"github.com/codeready-toolchain/relaylink/pkg/inbox"
	"github.com/codeready-toolchain/relaylink/pkg/ledger"
	"github.com/codeready-toolchain/relaylink/pkg/lifecycle"
	"github.com/codeready-toolchain/relaylink/pkg/notices"
	"github.com/codeready-toolchain/relaylink/pkg/scene"
	"github.com/codeready-toolchain/relaylink/pkg/transport"
	testdb "github.com/codeready-toolchain/relaylink/test/database"
)

// TestApp is a running relaylink client wired to a FakeRelay.
type TestApp struct {
	Config *config.Config
	Relay  *FakeRelay

	Manager  *connection.Manager
	Notices  *notices.Service
	Scene    *scene.Cache
	Inbox    *inbox.Inbox
	Ledger   ledger.Store
	DBClient *database.Client // nil unless WithPostgresLedger
	Server   *api.Server

	// Runtime
	BaseURL string // e.g. "http://127.0.0.1:54321"

	t *testing.T
}

type testAppConfig struct {
	session  func(*config.SessionConfig)
	postgres bool
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithSessionConfig adjusts the state machine timings.
func WithSessionConfig(fn func(*config.SessionConfig)) TestAppOption {
	return func(c *testAppConfig) { c.session = fn }
}

// WithPostgresLedger stores the ledger in a per-test PostgreSQL schema.
func WithPostgresLedger() TestAppOption {
	return func(c *testAppConfig) { c.postgres = true }
}

// NewTestApp creates a FakeRelay and a relaylink client connected to it.
// The client starts disconnected. Shutdown is registered via t.Cleanup.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{}
	for _, opt := range opts {
		opt(tc)
	}

	relay := NewFakeRelay(t)
	cfg := testConfig(relay)
	if tc.session != nil {
		tc.session(cfg.Session)
	}

	// 1. Ledger.
	var (
		store    ledger.Store
		dbClient *database.Client
	)
	if tc.postgres {
		dbClient = testdb.NewTestClient(t)
		store = ledger.NewPostgres(dbClient.DB())
	} else {
		store = ledger.NewMemory(0, 0)
	}
	recorder := ledger.NewRecorder(store, cfg.Ledger.QueueSize)
	recorder.Start(context.Background())

	// 2. Relay link.
	ws, err := transport.NewWebSocket(cfg.Relay)
	require.NoError(t, err)

	// 3. Session services.
	noticeSvc := notices.NewService(cfg.Notices)
	sceneCache := scene.NewCache()
	router := events.NewRouter()
	router.Handle(events.KindCommandCompleted, sceneCache.Handler())
	messages := inbox.New(0, noticeSvc)
	messages.Install(router)

	mgr, err := connection.NewManager(cfg.Session, connection.Deps{
		Transport: ws,
		Prober:    health.NewHTTPProber(cfg.Relay.HealthURL, nil),
		Cache:     sceneCache,
		Notices:   noticeSvc,
		Ledger:    recorder,
		Signals:   lifecycle.NewSignals(),
		Router:    router,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	mgrDone := make(chan struct{})
	go func() {
		defer close(mgrDone)
		_ = mgr.Run(ctx)
	}()

	// 4. HTTP server on random port.
	server := api.NewServer(cfg.API, mgr, noticeSvc, sceneCache, store)
	server.SetInbox(messages)
	if dbClient != nil {
		server.SetDatabaseClient(dbClient)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = server.StartWithListener(ln)
	}()

	app := &TestApp{
		Config:   cfg,
		Relay:    relay,
		Manager:  mgr,
		Notices:  noticeSvc,
		Scene:    sceneCache,
		Inbox:    messages,
		Ledger:   store,
		DBClient: dbClient,
		Server:   server,
		BaseURL:  fmt.Sprintf("http://%s", ln.Addr().String()),
		t:        t,
	}

	// Register cleanup in reverse-creation order.
	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
		cancel()
		<-mgrDone
		recorder.Stop()
		// DB cleanup handled by testdb.NewTestClient/SetupTestDatabase
	})

	return app
}

// testConfig returns defaults pointed at relay with timings short enough
// for tests.
func testConfig(relay *FakeRelay) *config.Config {
	cfg := config.Default()
	cfg.Relay.WSURL = relay.WSURL()
	cfg.Relay.HealthURL = relay.HealthURL()
	cfg.Relay.DialTimeout = time.Second
	cfg.Relay.WriteTimeout = time.Second
	cfg.Relay.DialAttempts = 1
	cfg.Relay.Backoff = &config.BackoffConfig{
		Initial:    10 * time.Millisecond,
		Multiplier: 2,
		Max:        50 * time.Millisecond,
	}

	cfg.Session.ReadyDelay = 50 * time.Millisecond
	cfg.Session.ProbeTimeout = 250 * time.Millisecond
	cfg.Session.OutagePollInterval = 20 * time.Millisecond
	cfg.Session.OutageThreshold = 300 * time.Millisecond

	cfg.API.ListenAddr = "127.0.0.1:0"
	return cfg
}
