package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cratery/cratery/internal/platform/mlog"
)

const shutdownTimeout = 15 * time.Second

// Server owns the Fiber app's lifecycle: connect collaborators, run the
// startup reconciler, serve, and drain gracefully on SIGINT/SIGTERM.
type Server struct {
	app           *fiber.App
	serverAddress string
	logger        mlog.Logger
	service       *Service
	sweepInterval time.Duration
}

// ServerAddress returns the server address.
func (s *Server) ServerAddress() string {
	return s.serverAddress
}

// NewServer creates an instance of Server.
func NewServer(cfg *Config, app *fiber.App, logger mlog.Logger, service *Service, sweepInterval time.Duration) *Server {
	serverAddress := cfg.ServerAddress
	if serverAddress == "" {
		serverAddress = ":8080"
	}

	return &Server{
		app:           app,
		serverAddress: serverAddress,
		logger:        logger,
		service:       service,
		sweepInterval: sweepInterval,
	}
}

// Run connects the Metadata DB, repairs durable state, starts the
// background loops and serves until the process is signalled to stop.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.service.Postgres.Connect(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFatal, err)
	}

	ctx = mlog.ContextWithLogger(ctx, s.logger)

	report, err := s.service.Reconciler.Run(ctx, s.service.Registry.IDs())
	if err != nil {
		return fmt.Errorf("%w: reconcile: %v", ErrStorageFatal, err)
	}

	s.logger.Infof("reconcile: %d versions repaired, %d deleted, %d jobs requeued",
		report.OrphanedVersionsFixed, report.OrphanedVersionsDeleted, report.DispatchedJobsOrphaned)

	go s.service.Hub.SweepLoop(ctx, s.sweepInterval)

	if s.service.Forwarder != nil {
		go func() {
			if err := s.service.Forwarder.Run(ctx); err != nil {
				s.logger.Errorf("event forwarder stopped: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- s.app.Listen(s.serverAddress)
	}()

	s.logger.Infof("serving on %s", s.serverAddress)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down...")

	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return err
	}

	return s.logger.Sync()
}

// Run starts the application.
func (s *Service) Run() error {
	return s.Server.Run()
}
