package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"tailscale.com/tsweb"

	"github.com/banshee-data/tagview/internal/annotate"
	"github.com/banshee-data/tagview/internal/api"
	"github.com/banshee-data/tagview/internal/config"
	"github.com/banshee-data/tagview/internal/db"
	"github.com/banshee-data/tagview/internal/emitter"
	"github.com/banshee-data/tagview/internal/encode"
	"github.com/banshee-data/tagview/internal/grpcfeed"
	"github.com/banshee-data/tagview/internal/history"
	"github.com/banshee-data/tagview/internal/pipeline"
	"github.com/banshee-data/tagview/internal/stream"
	"github.com/banshee-data/tagview/internal/timeutil"
	"github.com/banshee-data/tagview/internal/version"
)

var (
	devMode     = flag.Bool("dev", false, "Use the synthetic camera and detector")
	listen      = flag.String("listen", ":5000", "HTTP listen address")
	grpcListen  = flag.String("grpc-listen", "", "gRPC feed listen address (disabled when empty)")
	configPath  = flag.String("config", "", "Path to a JSON or YAML config file")
	dbPath      = flag.String("db", "tagview.db", "Path to the camera profile database")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if flag.Arg(0) == "migrate" {
		os.Exit(db.RunMigrateCommand(flag.Args()[1:], *dbPath, os.Stdout))
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := config.Empty()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	log.Printf("starting %s", version.String())

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	intr, profile, err := resolveIntrinsics(cfg, database)
	if err != nil {
		log.Fatalf("Failed to resolve camera intrinsics: %v", err)
	}
	log.Printf("camera intrinsics from %s: %s", profile, intr)

	kind := cameraKind(cfg, *devMode)
	cam, err := newCamera(kind, cfg, intr)
	if err != nil {
		log.Fatalf("Failed to configure camera: %v", err)
	}
	detector, err := newDetector(kind, cfg)
	if err != nil {
		log.Fatalf("Failed to create detector: %v", err)
	}
	defer detector.Close()

	if err := cam.Start(); err != nil {
		log.Fatalf("Failed to start %s camera: %v", kind, err)
	}
	defer cam.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Let exposure settle before the first detection.
	if err := timeutil.Sleep(ctx, timeutil.RealClock{}, cfg.GetWarmup()); err != nil {
		log.Printf("interrupted during camera warm-up")
		return
	}

	family := detector.Family()
	log.Printf("Detecting AprilTags - Family: %s", family)
	if id, err := database.StartSession(profile, family, cfg.GetPoseEnabled()); err != nil {
		log.Printf("failed to record session: %v", err)
	} else {
		log.Printf("session %s (pose=%v)", id, cfg.GetPoseEnabled())
	}

	enc := encode.NewJPEG(cfg.GetJPEGQuality())
	proc := pipeline.New(pipeline.Options{
		Camera:     cam,
		Detector:   detector,
		Annotator:  annotate.New(cfg.GetTagColor(), cfg.GetTextColor()),
		Encoder:    enc,
		Pose:       cfg.GetPoseEnabled(),
		Intrinsics: intr,
		TagSize:    cfg.GetTagSize(),
		IdleDelay:  cfg.GetIdleDelay(),
		CycleDelay: cfg.GetCycleDelay(),
	})
	ring := history.NewRing(cfg.GetHistorySize())
	proc.OnStats(ring.Observe)
	proc.Start(ctx)

	hub := stream.NewHub()
	var wg sync.WaitGroup

	if *grpcListen != "" {
		feedCfg := grpcfeed.DefaultConfig()
		feedCfg.ListenAddr = *grpcListen
		feedCfg.Interval = cfg.GetStreamInterval()
		feed := grpcfeed.NewServer(feedCfg, proc, hub)
		if err := feed.Start(); err != nil {
			log.Fatalf("Failed to start gRPC feed: %v", err)
		}
		defer feed.Stop()
	}

	if broker := cfg.GetMQTTBroker(); broker != "" {
		pub := emitter.NewMQTTPublisher(broker, "tagview-"+uuid.NewString()[:8])
		em, err := emitter.New(pub, proc.Stats(), emitter.Options{
			Topic:  cfg.GetMQTTTopic(),
			Format: cfg.GetMQTTFormat(),
		})
		if err != nil {
			log.Fatalf("Failed to configure MQTT emitter: %v", err)
		}
		if err := pub.Connect(ctx); err != nil {
			log.Printf("MQTT unavailable, statistics will not be published: %v", err)
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				em.Run(ctx)
				pub.Disconnect()
				log.Printf("MQTT emitter stopped")
			}()
		}
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		srv := api.NewServer(api.Options{
			Pipeline: proc,
			History:  ring,
			Hub:      hub,
			Stream:   stream.Options{Wait: cfg.GetStreamWait(), Interval: cfg.GetStreamInterval()},
			Encoder:  enc,
			Family:   family,
		})
		mux := srv.ServeMux()

		// mount the admin debugging routes (accessible only on loopback or over Tailscale)
		debug := tsweb.Debugger(mux)
		srv.AttachDebugRoutes(ctx, debug)
		if err := database.AttachAdminRoutes(debug, *dbPath); err != nil {
			log.Printf("failed to attach database admin routes: %v", err)
		}

		server := &http.Server{
			Addr:        *listen,
			Handler:     api.LoggingMiddleware(mux),
			BaseContext: func(net.Listener) context.Context { return ctx },
		}

		go func() {
			log.Printf("HTTP server listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	<-ctx.Done()
	proc.Stop()
	log.Printf("processing loop stopped")

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
