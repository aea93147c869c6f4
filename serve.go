package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"uptimeboard/internal/controllers"
	"uptimeboard/internal/middleware"
	"uptimeboard/internal/models"
	"uptimeboard/internal/routes"
	"uptimeboard/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveDebug bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Follow the backend and serve the live dashboard",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Run gin in debug mode")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, store, api, err := openClient()
	if err != nil {
		return err
	}
	defer store.Close()

	if !serveDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	telemetry := services.NewTelemetry()
	session := services.NewSession(cfg.SessionConfig(), store, api, telemetry)

	secret, err := store.ViewerSecret()
	if err != nil {
		return err
	}
	auth, err := services.NewViewerAuth(secret, 0)
	if err != nil {
		return err
	}

	hub := services.NewViewerHub(func() []services.WebSocketMessage {
		now := time.Now()
		return []services.WebSocketMessage{
			{Type: "snapshot", Timestamp: now, Data: session.Snapshot()},
			{Type: "frame", Timestamp: now, Data: session.Main.Frame()},
			{Type: "frame", Timestamp: now, Data: session.Popup.Frame()},
		}
	}, telemetry)
	defer hub.Stop()

	broadcastFrame := func(f models.ChartFrame) {
		hub.Broadcast(services.WebSocketMessage{Type: "frame", Data: f})
	}
	session.Main.OnRedraw(broadcastFrame)
	session.Popup.OnRedraw(broadcastFrame)
	session.OnSnapshot(func(s *models.AggregateSnapshot) {
		hub.Broadcast(services.WebSocketMessage{Type: "snapshot", Data: s})
	})

	resources, err := services.NewResourceMonitor(2 * time.Second)
	if err != nil {
		log.Printf("Warning: resource usage unavailable: %v", err)
	}

	dashboard := controllers.NewDashboard(session, hub, auth, resources, middleware.NewSecurityLogger(), cfg.Server.AllowedOrigins)
	router := routes.NewRouter(dashboard, telemetry, routes.RouterOptions{
		AllowedIPs:     cfg.Server.AllowedIPs,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.Start(ctx); err != nil {
		if errors.Is(err, services.ErrNotAuthenticated) {
			return errors.New("not logged in, run `uptimeboard login` first")
		}
		return err
	}
	defer session.Stop()

	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	log.Printf("[SERVER] Dashboard listening on http://%s", ln.Addr())
	// Viewers can attach now
	session.ViewReady()

	select {
	case <-ctx.Done():
		log.Printf("[SERVER] Shutting down...")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
