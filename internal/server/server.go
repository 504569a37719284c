package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/s3mock/s3mock/internal/bucket"
	"github.com/s3mock/s3mock/internal/config"
	"github.com/s3mock/s3mock/internal/kms"
	"github.com/s3mock/s3mock/internal/lock"
	"github.com/s3mock/s3mock/internal/metrics"
	"github.com/s3mock/s3mock/internal/object"
	"github.com/s3mock/s3mock/internal/storage"
	"github.com/s3mock/s3mock/pkg/s3api"
)

// Base domains recognized for virtual-hosted-style requests.
var virtualHostDomains = []string{"localhost", "s3.localhost", "s3.amazonaws.com"}

// Server owns the stores and both HTTP listeners.
type Server struct {
	config  *config.Config
	fs      *storage.Filesystem
	buckets *bucket.Store
	objects *object.Store
	handler http.Handler

	httpServer *http.Server
	tlsServer  *http.Server
}

// New builds the stores, creates the initial buckets and wires the router.
func New(cfg *config.Config) (*Server, error) {
	fs, err := storage.New(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	locks := lock.NewRegistry()
	buckets := bucket.NewStore(fs, locks, cfg.Region)
	objects := object.NewStore(fs, locks)
	keys := kms.NewRegistry(cfg.ValidKMSKeyIDs())

	for _, name := range cfg.InitialBucketNames() {
		if _, err := buckets.CreateBucket(context.Background(), name, "", false); err != nil {
			if errors.Is(err, bucket.ErrBucketOwnedByYou) {
				continue // retained from a previous run
			}
			return nil, fmt.Errorf("failed to create initial bucket %s: %w", name, err)
		}
		logrus.WithField("bucket", name).Info("Initial bucket created")
	}

	router := mux.NewRouter()

	m := metrics.New()
	if cfg.Metrics.Enable {
		router.Handle(cfg.Metrics.Path, m.Handler()).Methods("GET")
	}

	s3api.NewHandler(buckets, objects, keys).RegisterRoutes(router)

	var handler http.Handler = router
	handler = kmsFilter(keys, handler)
	handler = virtualHostRewrite(virtualHostDomains, handler)
	handler = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "PUT", "POST", "DELETE", "HEAD", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"*"}),
		handlers.ExposedHeaders([]string{"ETag", "x-amz-request-id", "x-amz-version-id"}),
	)(handler)
	handler = m.Middleware(handler)
	handler = handlers.LoggingHandler(logrus.StandardLogger().WriterLevel(logrus.DebugLevel), handler)

	srv := &Server{
		config:  cfg,
		fs:      fs,
		buckets: buckets,
		objects: objects,
		handler: handler,
		httpServer: &http.Server{
			Addr:        cfg.Listen,
			Handler:     handler,
			IdleTimeout: 60 * time.Second,
		},
	}
	if cfg.EnableTLS {
		srv.tlsServer = &http.Server{
			Addr:        cfg.TLSListen,
			Handler:     handler,
			IdleTimeout: 60 * time.Second,
		}
	}
	return srv, nil
}

// Handler returns the fully wired request pipeline, for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Buckets exposes the bucket store, for in-process tests.
func (s *Server) Buckets() *bucket.Store {
	return s.buckets
}

// Start binds the listeners and serves until ctx is cancelled. A bind
// failure is returned immediately so the process can exit non-zero.
func (s *Server) Start(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"listen": s.config.Listen,
		"root":   s.config.Root,
	}).Info("Starting server")

	httpListener, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.config.Listen, err)
	}

	serveErr := make(chan error, 2)
	go func() {
		if err := s.httpServer.Serve(httpListener); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	if s.tlsServer != nil {
		tlsListener, err := net.Listen("tcp", s.config.TLSListen)
		if err != nil {
			s.httpServer.Close()
			return fmt.Errorf("failed to bind %s: %w", s.config.TLSListen, err)
		}
		logrus.WithField("listen", s.config.TLSListen).Info("Starting TLS listener")
		go func() {
			err := s.tlsServer.ServeTLS(tlsListener, s.config.CertFile, s.config.KeyFile)
			if err != nil && err != http.ErrServerClosed {
				serveErr <- err
			}
		}()
	}

	select {
	case err := <-serveErr:
		s.shutdown()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	logrus.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Failed to shut down HTTP listener")
	}
	if s.tlsServer != nil {
		if err := s.tlsServer.Shutdown(ctx); err != nil {
			logrus.WithError(err).Error("Failed to shut down TLS listener")
		}
	}

	return s.Cleanup()
}

// Cleanup removes the storage root unless retention is configured.
func (s *Server) Cleanup() error {
	if s.config.RetainFilesOnExit {
		logrus.WithField("root", s.config.Root).Info("Retaining files on exit")
		return nil
	}
	if err := s.fs.Remove(); err != nil {
		return fmt.Errorf("failed to remove storage root: %w", err)
	}
	return nil
}
