package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"image-normalizer-go/internal/collector"
	"image-normalizer-go/internal/config"
	"image-normalizer-go/internal/imagefile"
	"image-normalizer-go/internal/logger"
	"image-normalizer-go/internal/processor"
	"image-normalizer-go/internal/statistics"
	"image-normalizer-go/internal/storage"
	"image-normalizer-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	outputDir string
	verbose   bool
	quiet     bool
	version   = "dev"
	port      int

	width              int
	height             int
	keepAspectRatio    bool
	forceMinDimensions bool
	filter             string

	targetMB float64
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:     "image-normalizer",
	Short:   "Resize and compress images in order",
	Version: version,
	Long: `image-normalizer resizes images to target dimensions and compresses
them below a size budget. Files are processed one at a time, in the order
they are given, and processing stops at the first failure.

Features:
- Resize to exact dimensions or keep the aspect ratio (fit or cover)
- Compress below a size in MB with a bounded quality search
- EXIF orientation correction
- Local directory or S3 output
- HTTP API with live progress over WebSocket`,
	SilenceUsage: true,
}

// resizeCmd resizes the given files and directories.
var resizeCmd = &cobra.Command{
	Use:   "resize <path>...",
	Short: "Resize images to the given dimensions",
	Long: `Resize every supported image found in the given paths. Directories are
walked recursively; their contents are processed in lexical order.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := &processor.ResizeOptions{
			AspectRatio: processor.AspectRatio{
				KeepAspectRatio:    keepAspectRatio,
				ForceMinDimensions: forceMinDimensions,
			},
			Filter: filter,
		}
		return runBatch(cmd.Context(), "resize", args, func(ctx context.Context, s *processor.Service, files []imagefile.ImageFile) <-chan processor.Result {
			return s.ResizeImages(ctx, files, width, height, opts)
		})
	},
}

// compressCmd compresses the given files and directories.
var compressCmd = &cobra.Command{
	Use:   "compress <path>...",
	Short: "Compress images below a target size",
	Long: `Compress every supported image found in the given paths until it is
smaller than --target-mb. Images already within the budget are stored unchanged.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd.Context(), "compress", args, func(ctx context.Context, s *processor.Service, files []imagefile.ImageFile) <-chan processor.Result {
			return s.CompressImages(ctx, files, targetMB)
		})
	},
}

// serveCmd starts the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Starts an HTTP server exposing:
- POST /api/resize and POST /api/compress (multipart field "files")
- GET /api/status and GET /api/statistics
- GET /ws for live progress`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), cmd.Flags().Changed("port"))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "output directory (overrides output.directory)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	resizeCmd.Flags().IntVar(&width, "width", 0, "target width in pixels")
	resizeCmd.Flags().IntVar(&height, "height", 0, "target height in pixels")
	resizeCmd.Flags().BoolVar(&keepAspectRatio, "keep-aspect-ratio", false, "scale uniformly instead of stretching")
	resizeCmd.Flags().BoolVar(&forceMinDimensions, "force-min-dimensions", false, "with --keep-aspect-ratio, cover the box instead of fitting inside it")
	resizeCmd.Flags().StringVar(&filter, "filter", "", "resample filter (default from config)")

	compressCmd.Flags().Float64Var(&targetMB, "target-mb", 0, "target size in megabytes")
	_ = compressCmd.MarkFlagRequired("target-mb")

	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run web server on")

	rootCmd.AddCommand(resizeCmd)
	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(serveCmd)
}

type batchFunc func(ctx context.Context, s *processor.Service, files []imagefile.ImageFile) <-chan processor.Result

// runBatch loads args, streams them through start and stores each result as it arrives.
func runBatch(ctx context.Context, operation string, args []string, start batchFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	stats := statistics.NewStatistics()

	service, err := processor.New(cfg.ProcessorConfig(), log, processor.WithStatistics(stats))
	if err != nil {
		return err
	}
	defer service.Close()

	sink, err := storage.New(cfg, log)
	if err != nil {
		return err
	}

	paths, err := collector.CollectImagePaths(args, cfg.SupportedExtensions)
	if err != nil {
		return err
	}
	files, err := collector.Load(ctx, paths, 0)
	if err != nil {
		return err
	}
	log.WithField("files", len(files)).Debugf("Collected files for %s", operation)

	results := start(ctx, service, files)
	finish := func() {
		cancel()
		for range results {
		}
		printSummary(stats)
	}

	for res := range results {
		if res.Err != nil {
			finish()
			return res.Err
		}
		location, err := sink.Save(ctx, res.File)
		if err != nil {
			finish()
			return fmt.Errorf("store %s: %w", res.File.Name, err)
		}
		if !quiet {
			fmt.Printf("✓ %s -> %s (%.2f MB)\n", res.File.Name, location, res.File.SizeMB())
		}
	}

	printSummary(stats)
	return nil
}

func printSummary(stats *statistics.Statistics) {
	if quiet {
		return
	}
	fmt.Println("\n" + formatSummary(stats))
}

// formatSummary finalizes stats and renders the end-of-run report.
func formatSummary(stats *statistics.Statistics) string {
	stats.Finalize()
	return stats.GetSummary() + "\n" + stats.GetMimeTypeBreakdown() + "\n" + stats.GetErrorSummary()
}

// runServe starts the web server and handles graceful shutdown.
func runServe(ctx context.Context, portChanged bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if portChanged {
		cfg.Server.Port = port
	}

	log := setupLogger(cfg)
	service, err := processor.New(cfg.ProcessorConfig(), log)
	if err != nil {
		return err
	}
	defer service.Close()

	sink, err := storage.New(cfg, log)
	if err != nil {
		return err
	}
	server := web.NewServer(cfg, log, service, sink)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	fmt.Printf("image-normalizer API listening on http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
	}
	fmt.Println("\nShutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped gracefully")
	return nil
}

// loadConfig loads configuration and applies CLI overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	if outputDir != "" {
		cfg.Output.Storage = config.StorageLocal
		cfg.Output.Directory = outputDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := cfg.LoggerConfig()
	loggerCfg.Console = loggerCfg.Console && !quiet

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
