// Package main is the entry point for the pulsewatch scheduler daemon.
//
// This process is the whole of spec.md's scheduling loop: on a fixed
// interval, for each region it owns, it acquires that region's lock,
// pages due targets, probes them, and writes the results through the two
// asynchronous sinks. It is meant to run as one instance per region (or a
// handful of regions on one process, each ticked by its own goroutine) behind whatever
// process supervisor operates the fleet; coordination across processes is
// the region lock's job, not this file's.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pulsewatch/internal/monitoralert"
	"pulsewatch/internal/monitorcfg"
	"pulsewatch/internal/monitorlock"
	"pulsewatch/internal/monitormeta"
	"pulsewatch/internal/monitormetrics"
	"pulsewatch/internal/monitorprobe"
	"pulsewatch/internal/monitorscheduler"
	"pulsewatch/internal/monitorsinks/mutation"
	"pulsewatch/internal/monitorsinks/telemetry"
	"pulsewatch/internal/monitorstore"
	"pulsewatch/internal/monitorwarehouse"
	"pulsewatch/pkg/monitor"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file overriding defaults; empty uses built-in defaults")
	regionsFlag := flag.String("regions", string(monitor.CanonicalRegion), "Comma-separated list of regions this process owns a tick loop for")
	tickInterval := flag.Duration("tick_interval", time.Minute, "How often each owned region is ticked")
	postgresDSN := flag.String("postgres_dsn", "", "Postgres DSN for the target store; empty uses an in-memory store (dev/test only)")
	clickhouseAddr := flag.String("clickhouse_addr", "", "ClickHouse address for the telemetry warehouse; empty uses an in-memory warehouse (dev/test only)")
	redisAddr := flag.String("redis_addr", "localhost:6379", "Redis address backing the region lock")
	geoDBPath := flag.String("geoip_db", "", "Path to a MaxMind GeoLite2-City database; empty disables GeoIP enrichment")
	metricsAddr := flag.String("metrics_addr", ":9090", "Prometheus /metrics listen address")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := monitorcfg.Defaults()
	if *configPath != "" {
		loaded, err := monitorcfg.LoadFile(*configPath)
		if err != nil {
			log.Fatal("load config file", zap.Error(err))
		}
		cfg = loaded
	}
	cfgStore := monitorcfg.NewStore(cfg)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	if *configPath != "" {
		watcher, err := monitorcfg.NewWatcher(*configPath, cfgStore, log)
		if err != nil {
			log.Fatal("start config watcher", zap.Error(err))
		}
		go watcher.Run(rootCtx)
	}

	store, closeStore := buildStore(*postgresDSN, log)
	defer closeStore()

	warehouse := buildWarehouse(*clickhouseAddr, log)

	redisClient := redis.NewClient(&redis.Options{Addr: *redisAddr})
	defer redisClient.Close()
	lock := monitorlock.NewRegionLock(redisClient, cfg.LockTTL)

	resolver := monitormeta.NewResolver(cfg.TargetMetadataTTL, cfg.MetadataConcurrency, *geoDBPath, log)
	defer resolver.Close()

	probe := monitorprobe.NewEngine(cfg)

	sinkA := telemetry.NewSink(cfg, warehouse, "probe_history", log)
	// The sinks run on a context that is never cancelled, so their final
	// drain in Stop still reaches the backends after cancelRoot.
	sinkA.Start(context.Background())
	defer sinkA.Stop(context.Background())

	sinkB := mutation.NewSink(store, cfg.MutationFlushInterval, log)
	sinkB.Start(context.Background())
	defer sinkB.Stop(context.Background())

	slackPort := monitoralert.NewSlackPort(log)
	gate := monitoralert.NewGate(slackPort)

	settings := monitorscheduler.NewStaticAlertSettings(monitoralert.Settings{
		MinConsecutiveEvents: cfg.DownConfirmationAttempts,
	})

	ownerID := uuid.NewString()
	sched := monitorscheduler.NewScheduler(ownerID, cfgStore, store, lock, probe, resolver, sinkA, sinkB, gate, settings, log)

	regions := parseRegions(*regionsFlag)
	log.Info("scheduler starting", zap.String("owner", ownerID), zap.Strings("regions", regionNames(regions)))

	metricsServer := &http.Server{Addr: *metricsAddr, Handler: metricsMux()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()

	tickLoop(rootCtx, sched, regions, *tickInterval, log)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")

	cancelRoot()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}

func tickLoop(ctx context.Context, sched *monitorscheduler.Scheduler, regions []monitor.Region, interval time.Duration, log *zap.Logger) {
	for _, region := range regions {
		region := region
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := sched.Tick(ctx, region); err != nil {
						log.Error("tick failed", zap.String("region", string(region)), zap.Error(err))
					}
				}
			}
		}()
	}
}

func buildStore(dsn string, log *zap.Logger) (store monitorstore.Store, closeFn func()) {
	if dsn == "" {
		log.Warn("no postgres_dsn configured, using in-memory target store (dev/test only)")
		return monitorstore.NewMemoryStore(nil), func() {}
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	return monitorstore.NewPostgresStore(pool), pool.Close
}

func buildWarehouse(addr string, log *zap.Logger) monitorwarehouse.Warehouse {
	if addr == "" {
		log.Warn("no clickhouse_addr configured, using in-memory warehouse (dev/test only)")
		return monitorwarehouse.NewMemoryWarehouse()
	}
	wh, err := monitorwarehouse.NewClickHouseWarehouse(addr, clickhouseAuthFromEnv())
	if err != nil {
		log.Fatal("connect clickhouse", zap.Error(err))
	}
	return wh
}

func clickhouseAuthFromEnv() clickhouse.Auth {
	return clickhouse.Auth{
		Database: envOr("CLICKHOUSE_DATABASE", "default"),
		Username: envOr("CLICKHOUSE_USER", "default"),
		Password: os.Getenv("CLICKHOUSE_PASSWORD"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitormetrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func parseRegions(flagVal string) []monitor.Region {
	var regions []monitor.Region
	for _, part := range strings.Split(flagVal, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			regions = append(regions, monitor.Region(part))
		}
	}
	if len(regions) == 0 {
		regions = []monitor.Region{monitor.CanonicalRegion}
	}
	return regions
}

func regionNames(regions []monitor.Region) []string {
	names := make([]string, len(regions))
	for i, r := range regions {
		names[i] = string(r)
	}
	return names
}
