package grpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/vamanaio/diskann/pkg/config"
	"github.com/vamanaio/diskann/pkg/diskann"
	"github.com/vamanaio/diskann/pkg/observability"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// Server is the gRPC front door to a single open Engine: one process, one
// index, search/range_search/warm_cache/bfs_cache/stats over the wire.
type Server struct {
	config     *config.Config
	engine     *diskann.Engine
	metrics    *observability.Metrics
	logger     *observability.Logger
	grpcServer *grpc.Server
	listener   net.Listener
	startTime  time.Time
	shutdownMu sync.Mutex
	isShutdown bool
}

// NewServer wires a gRPC server around an already-open Engine.
func NewServer(cfg *config.Config, engine *diskann.Engine, metrics *observability.Metrics, logger *observability.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Server{
		config:    cfg,
		engine:    engine,
		metrics:   metrics,
		logger:    logger,
		startTime: time.Now(),
	}, nil
}

func (s *Server) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	start := time.Now()
	ids, dists, stats, err := s.engine.Search(req.Query, req.K, req.L, req.BeamWidth, req.IOLimit, req.UseReorderData)
	if err != nil {
		s.metrics.RecordError("Search", "engine_error")
		return &SearchResponse{Error: err.Error()}, nil
	}
	s.metrics.RecordSearch(time.Since(start), len(ids), stats.Hops)
	return &SearchResponse{IDs: ids, Dists: dists, Hops: stats.Hops}, nil
}

func (s *Server) RangeSearch(ctx context.Context, req *RangeSearchRequest) (*RangeSearchResponse, error) {
	ids, dists, stats, err := s.engine.RangeSearch(req.Query, req.Radius, req.LMin, req.LMax, req.MaxResultSize, req.BeamWidth)
	if err != nil {
		s.metrics.RecordError("RangeSearch", "engine_error")
		return &RangeSearchResponse{Error: err.Error()}, nil
	}
	s.metrics.RecordRangeSearch(stats.RangeWidenings)
	return &RangeSearchResponse{IDs: ids, Dists: dists, Widenings: stats.RangeWidenings}, nil
}

func (s *Server) WarmCache(ctx context.Context, req *WarmCacheRequest) (*WarmCacheResponse, error) {
	if err := s.engine.WarmCache(req.IDs); err != nil {
		s.metrics.RecordError("WarmCache", "engine_error")
		return &WarmCacheResponse{Error: err.Error()}, nil
	}
	s.metrics.RecordCacheWarm()
	return &WarmCacheResponse{}, nil
}

func (s *Server) BFSCache(ctx context.Context, req *BFSCacheRequest) (*BFSCacheResponse, error) {
	ids, err := s.engine.BFSCache(req.NumNodes)
	if err != nil {
		s.metrics.RecordError("BFSCache", "engine_error")
		return &BFSCacheResponse{Error: err.Error()}, nil
	}
	return &BFSCacheResponse{IDs: ids}, nil
}

func (s *Server) Stats(ctx context.Context, req *StatsRequest) (*StatsResponse, error) {
	return &StatsResponse{
		NumThreads: s.config.Engine.NumThreads,
		Dimension:  s.engine.Dimension(),
		MaxDegree:  s.engine.MaxDegree(),
	}, nil
}

// Start starts the gRPC server.
func (s *Server) Start() error {
	var opts []grpc.ServerOption

	if s.config.Server.EnableTLS {
		cert, err := tls.LoadX509KeyPair(s.config.Server.CertFile, s.config.Server.KeyFile)
		if err != nil {
			return fmt.Errorf("failed to load TLS certificates: %w", err)
		}
		tlsConfig := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		creds := credentials.NewTLS(tlsConfig)
		opts = append(opts, grpc.Creds(creds))
		s.logger.Info("TLS enabled")
	}

	kaParams := keepalive.ServerParameters{
		MaxConnectionIdle: 15 * time.Second,
		MaxConnectionAge:  30 * time.Second,
		Time:              5 * time.Second,
		Timeout:           1 * time.Second,
	}
	opts = append(opts, grpc.KeepaliveParams(kaParams))
	opts = append(opts, grpc.MaxConcurrentStreams(uint32(s.config.Server.MaxConnections)))

	s.grpcServer = grpc.NewServer(opts...)
	RegisterDiskANNServer(s.grpcServer, s)
	reflection.Register(s.grpcServer)

	addr := s.config.Server.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.logger.Infof("diskann gRPC server listening on %s", addr)

	go func() {
		if err := s.grpcServer.Serve(listener); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()

	if s.isShutdown {
		return nil
	}

	s.logger.Info("Shutting down gRPC server...")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.logger.Info("gRPC server stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("gRPC shutdown timeout exceeded, forcing stop")
		s.grpcServer.Stop()
	}

	s.isShutdown = true
	return nil
}

// Uptime returns server uptime.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}
