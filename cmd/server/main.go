package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	grpcserver "github.com/vamanaio/diskann/pkg/api/grpc"
	"github.com/vamanaio/diskann/pkg/api/rest"
	"github.com/vamanaio/diskann/pkg/config"
	"github.com/vamanaio/diskann/pkg/diskann"
	"github.com/vamanaio/diskann/pkg/observability"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version and exit")
		showHelp    = flag.Bool("help", false, "show help and exit")
		host        = flag.String("host", "", "server host (overrides config/env)")
		port        = flag.Int("port", 0, "gRPC server port (overrides config/env)")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("diskann server v%s (commit: %s)\n", version, commit)
		os.Exit(0)
	}
	if *showHelp {
		showUsage()
		os.Exit(0)
	}

	printBanner()

	cfg := config.LoadFromEnv()
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := observability.NewDefaultLogger()
	metrics := observability.NewMetrics()

	logger.Info("Opening index...")
	start := time.Now()
	engine, err := diskann.Open(cfg.Engine.IndexPrefix, cfg.Engine.NumThreads, diskann.OpenOptions{
		TensorsPrefix:   cfg.Engine.TensorsPrefix,
		UseTensors:      cfg.Engine.UseTensors,
		UseTensorsAsync: cfg.Engine.UseTensorsAsync,
		RemoteAddr:      cfg.Engine.RemoteAddr,
		CachePoolBytes:  cfg.Engine.CachePoolBytes,
	})
	if err != nil {
		log.Fatalf("Failed to open index: %v", err)
	}
	defer engine.Close()
	metrics.RecordIndexLoad(time.Since(start), 0)
	logger.Infof("Index opened: dim=%d max_degree=%d", engine.Dimension(), engine.MaxDegree())

	if cfg.Engine.CacheListSize > 0 {
		ids, err := engine.BFSCache(cfg.Engine.CacheListSize)
		if err != nil {
			logger.Warnf("Failed to build cache list: %v", err)
		} else if err := engine.WarmCache(ids); err != nil {
			logger.Warnf("Failed to warm cache: %v", err)
		} else {
			metrics.RecordCacheWarm()
			logger.Infof("Warmed node cache with %d entries", len(ids))
		}
	}

	grpcSrv, err := grpcserver.NewServer(cfg, engine, metrics, logger)
	if err != nil {
		log.Fatalf("Failed to create gRPC server: %v", err)
	}

	restSrv, err := rest.NewServer(cfg, engine, metrics, logger)
	if err != nil {
		log.Fatalf("Failed to create REST server: %v", err)
	}

	printStartupInfo(cfg)

	errChan := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := grpcSrv.Start(); err != nil {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := restSrv.Start(); err != nil {
			errChan <- fmt.Errorf("REST server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	logger.Info("Servers are ready. Press Ctrl+C to stop.")
	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
	case err := <-errChan:
		logger.Errorf("Server error: %v", err)
	}

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := restSrv.Stop(ctx); err != nil {
		logger.Warnf("Error stopping REST server: %v", err)
	}
	if err := grpcSrv.Stop(); err != nil {
		logger.Warnf("Error stopping gRPC server: %v", err)
	}

	wg.Wait()
	logger.Info("Servers stopped. Goodbye!")
}

func printBanner() {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                             ║
║   ____  _     _    ___   _   _ _   _                        ║
║  |  _ \(_)___| | _/ _ \ | \ | | \ | |                       ║
║  | | | | / __| |/ / | | ||  \| |  \| |                      ║
║  | |_| | \__ \   <| |_| || |\  | |\  |                      ║
║  |____/|_|___/_|\_\\___(_)_| \_|_| \_|                      ║
║                                                             ║
║   Disk-resident approximate nearest neighbor search         ║
║                                                             ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Println(banner)
	fmt.Printf("Version: %s (commit: %s)\n\n", version, commit)
}

func printStartupInfo(cfg *config.Config) {
	fmt.Println("\n╔════════════════════════════════════════════════════════╗")
	fmt.Println("║               gRPC Server Configuration                 ║")
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Printf("║ Address:          %-35s ║\n", cfg.Server.Address())
	fmt.Printf("║ TLS Enabled:      %-35v ║\n", cfg.Server.EnableTLS)
	fmt.Printf("║ Max Connections:  %-35d ║\n", cfg.Server.MaxConnections)
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Println("║               REST API Configuration                    ║")
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Printf("║ Address:          %-35s ║\n", cfg.Server.RESTAddress())
	fmt.Printf("║ Auth Enabled:     %-35v ║\n", cfg.Auth.Enabled)
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Println("║               Engine Configuration                      ║")
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Printf("║ Index Prefix:     %-35s ║\n", cfg.Engine.IndexPrefix)
	fmt.Printf("║ Use Tensors:      %-35v ║\n", cfg.Engine.UseTensors)
	fmt.Printf("║ Num Threads:      %-35d ║\n", cfg.Engine.NumThreads)
	fmt.Printf("║ Default L:        %-35d ║\n", cfg.Engine.DefaultL)
	fmt.Printf("║ Cache List Size:  %-35d ║\n", cfg.Engine.CacheListSize)
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Println("║               Response Cache Configuration              ║")
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Printf("║ Enabled:          %-35v ║\n", cfg.Cache.Enabled)
	fmt.Printf("║ Capacity:         %-35d ║\n", cfg.Cache.Capacity)
	fmt.Printf("║ TTL:              %-35s ║\n", cfg.Cache.TTL)
	fmt.Println("╚════════════════════════════════════════════════════════╝")
	fmt.Println()
}

func showUsage() {
	fmt.Println("diskann server - disk-resident approximate nearest neighbor search")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  diskann-server [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -help             Show this help message")
	fmt.Println("  -version          Show version information")
	fmt.Println("  -host HOST        Server host (default: 0.0.0.0)")
	fmt.Println("  -port PORT        gRPC server port (default: 50051)")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  DISKANN_HOST                 Server host")
	fmt.Println("  DISKANN_PORT                 gRPC server port")
	fmt.Println("  DISKANN_REST_PORT            REST server port")
	fmt.Println("  DISKANN_INDEX_PREFIX         On-disk index file prefix")
	fmt.Println("  DISKANN_TENSORS_PREFIX       Array-backend tensor file prefix")
	fmt.Println("  DISKANN_TENSORS_ASYNC        Use async tensor reads (true/false)")
	fmt.Println("  DISKANN_REMOTE_ADDR          Remote tensor server address")
	fmt.Println("  DISKANN_NUM_THREADS          Search thread pool size")
	fmt.Println("  DISKANN_DEFAULT_L            Default search list size")
	fmt.Println("  DISKANN_DEFAULT_BEAM_WIDTH   Default beam width")
	fmt.Println("  DISKANN_DEFAULT_IO_LIMIT     Default I/O limit per query")
	fmt.Println("  DISKANN_CACHE_LIST_SIZE      Node cache warm-up size")
	fmt.Println("  DISKANN_RESPONSE_CACHE_ENABLED   Enable response cache (true/false)")
	fmt.Println("  DISKANN_AUTH_ENABLED         Enable JWT auth (true/false)")
	fmt.Println("  DISKANN_JWT_SECRET           JWT signing secret")
	fmt.Println()
}
