package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"skirmish/server/internal/action"
	"skirmish/server/internal/auth"
	"skirmish/server/internal/authority"
	"skirmish/server/internal/config"
	servernet "skirmish/server/internal/net"
	"skirmish/server/internal/net/ws"
	"skirmish/server/internal/observability"
	"skirmish/server/internal/session"
	"skirmish/server/internal/telemetry"
	"skirmish/server/internal/world"
	"skirmish/server/logging"
	loggingSinks "skirmish/server/logging/sinks"
)

const shutdownTimeout = 5 * time.Second

type Config struct {
	Logger   telemetry.Logger
	Settings config.Config
	// Ready, when set, receives the listening address once the server
	// accepts connections.
	Ready func(addr string)
}

// Run hosts one session until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	fallbackLogger := log.Default()
	if provider, ok := telemetryLogger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}

	settings := cfg.Settings
	logConfig := settings.Logging()
	sinks := map[string]logging.Sink{
		"console": loggingSinks.NewConsole(os.Stdout, logConfig.Console),
	}
	if logConfig.HasSink("json") {
		out, closeOut, err := openJSONLog(logConfig.JSON.FilePath)
		if err != nil {
			return err
		}
		defer closeOut()
		sinks["json"] = loggingSinks.NewJSON(out, logConfig.JSON.FlushInterval)
	}

	router, err := logging.NewRouter(logConfig, logging.SystemClock{}, fallbackLogger, sinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		if cerr := router.Close(context.Background()); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	metrics := &logging.Metrics{}
	router.AttachMetrics(metrics)
	scope := authority.Scope{ID: action.ScopeID(settings.Scope), Host: action.PeerID(settings.Peer)}
	entities := world.New()
	sess, err := session.New(session.Config{
		ID:              settings.Session,
		Scope:           scope,
		Identity:        action.Identity{Peer: scope.Host, Scope: scope.ID},
		Entities:        entities,
		Contacts:        entities,
		TickRate:        settings.TickRate,
		CatchupMaxTicks: settings.CatchupMaxTicks,
		InboxCapacity:   settings.InboxCapacity,
		PerPeerLimit:    settings.PerPeerLimit,
		RespawnDelay:    settings.RespawnDelay,
		JournalFrames:   settings.JournalFrames,
		JournalMaxAge:   settings.JournalMaxAge,
		Publisher:       router,
		Metrics:         telemetry.WrapMetrics(metrics),
		Logger:          telemetryLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to construct session: %w", err)
	}
	defer sess.Close()

	layout := Layout{Spawns: DemoLayout().Spawns}
	if settings.DemoArena {
		layout = DemoLayout()
	}
	arena, err := NewArena(entities, layout, settings.PickupRespawn)
	if err != nil {
		return err
	}
	attached := make(chan error, 1)
	if !sess.Do(func() { attached <- arena.Attach(sess) }) {
		return errors.New("session inbox rejected arena setup")
	}

	var tokens *auth.Tokens
	if authCfg, ok := settings.Auth(); ok {
		tokens, err = auth.NewTokens(authCfg)
		if err != nil {
			return fmt.Errorf("failed to construct join tokens: %w", err)
		}
	} else {
		telemetryLogger.Printf("SKIRMISH_JOIN_SECRET unset, peers join with ?user=")
	}

	relay, err := ws.NewRelay(ws.RelayConfig{
		Session:    sess,
		Tokens:     tokens,
		SendBuffer: settings.SendBuffer,
		Publisher:  router,
		Metrics:    telemetry.WrapMetrics(metrics),
		Logger:     telemetryLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to construct relay: %w", err)
	}
	defer relay.Close()

	handler, err := servernet.NewHTTPHandler(servernet.HTTPHandlerConfig{
		Session:       sess,
		Relay:         relay,
		Tokens:        tokens,
		Metrics:       metrics,
		TickRate:      settings.TickRate,
		Logger:        telemetryLogger,
		Observability: observability.Config{EnablePprofTrace: settings.PprofTrace},
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	loopDone := make(chan error, 1)
	go func() { loopDone <- sess.Run(ctx) }()

	select {
	case err := <-attached:
		if err != nil {
			cancel()
			<-loopDone
			return err
		}
	case err := <-loopDone:
		return fmt.Errorf("simulation stopped before start: %w", err)
	}

	srv := &http.Server{Addr: settings.Addr, Handler: handler}
	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		cancel()
		<-loopDone
		return fmt.Errorf("server failed: %w", err)
	}
	telemetryLogger.Printf("server listening on %s (session %s)", listener.Addr(), sess.ID())
	if cfg.Ready != nil {
		cfg.Ready(listener.Addr().String())
	}

	serveDone := make(chan error, 1)
	go func() { serveDone <- srv.Serve(listener) }()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-serveDone:
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetryLogger.Printf("http shutdown: %v", err)
	}
	relay.Close()
	cancel()
	<-loopDone

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", serveErr)
	}
	return nil
}

func openJSONLog(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open json log: %w", err)
	}
	return file, func() { file.Close() }, nil
}
