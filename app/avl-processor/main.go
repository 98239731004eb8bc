package main

import (
	"context"
	"fmt"
	logger "log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/TransitTrack/transittrack/app/avl-processor/metrics"
	"github.com/TransitTrack/transittrack/app/avl-processor/processor"
	"github.com/TransitTrack/transittrack/app/avl-processor/vehicleapi"
	"github.com/TransitTrack/transittrack/app/avl-processor/vehiclecache"
	"github.com/TransitTrack/transittrack/business/data/gtfs"
	"github.com/TransitTrack/transittrack/foundation/database"
	"github.com/TransitTrack/transittrack/foundation/httpclient"
	"github.com/ardanlabs/conf"
	"github.com/nats-io/nats.go"
)

var build = "develop"

func main() {
	log := logger.New(os.Stdout, "AVL_PROCESSOR : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
	if err := run(log); err != nil {
		log.Printf("main: error: %v", err)
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {
	var cfg struct {
		conf.Version
		Args conf.Args
		DB   struct {
			User         string `conf:"default:postgres"`
			Password     string `conf:"default:postgres,noprint"`
			Host         string `conf:"default:0.0.0.0"`
			Name         string `conf:"default:postgres"`
			MaxOpenConns int    `conf:"default:4"`
			DisableTLS   bool   `conf:"default:true"`
		}
		GTFS struct {
			DataSetId       int64  `conf:"default:0"`
			Timezone        string `conf:"default:America/Los_Angeles"`
			ObserveHolidays bool   `conf:"default:true"`
		}
		Feed struct {
			VehiclePositionsUrl string `conf:"default:"`
			ApiKeyHeader        string `conf:"default:"`
			ApiKey              string `conf:"default:,noprint"`
			LoadEverySeconds    int    `conf:"default:5"`
		}
		NATS struct {
			Url            string `conf:"default:"`
			ReportSubject  string `conf:"default:"`
			QueueGroup     string `conf:"default:avl-processor"`
			PublishResults bool   `conf:"default:true"`
		}
		Redis struct {
			Enabled    bool   `conf:"default:false"`
			Host       string `conf:"default:localhost"`
			Port       int    `conf:"default:6379"`
			Password   string `conf:"default:,noprint"`
			DB         int    `conf:"default:0"`
			TTLMinutes int    `conf:"default:10"`
		}
		Web struct {
			Port              int `conf:"default:8282"`
			StaleAfterSeconds int `conf:"default:300"`
		}
		Processor struct {
			Workers                  int    `conf:"default:4"`
			DryRun                   bool   `conf:"default:false"`
			AutoAssign               bool   `conf:"default:false"`
			IgnoreReportAssignments  bool   `conf:"default:false"`
			UnpredictableAssignments string `conf:"default:"`
		}
	}
	cfg.Version.SVN = build
	cfg.Version.Desc = "Match vehicle reports to schedule blocks and estimate arrivals and departures"
	const prefix = "AVL"
	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %w", err)
			}
			fmt.Println(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %w", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Printf("main : Started : Application initializing : version %s", build)
	defer log.Println("main: Completed")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	if len(cfg.Feed.VehiclePositionsUrl) == 0 && len(cfg.NATS.ReportSubject) == 0 {
		return fmt.Errorf("no report source configured, set a feed url or a nats report subject")
	}

	// =========================================================================
	// Start Database

	log.Println("main: Initializing database support")

	db, err := database.Open(database.Config{
		User:         cfg.DB.User,
		Password:     cfg.DB.Password,
		Host:         cfg.DB.Host,
		Name:         cfg.DB.Name,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		DisableTLS:   cfg.DB.DisableTLS,
	})
	if err != nil {
		return fmt.Errorf("connecting to db: %w", err)
	}
	if err = database.StatusCheck(context.Background(), db); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	defer func() {
		log.Printf("main: Database Stopping : %s", cfg.DB.Host)
		if err = db.Close(); err != nil {
			log.Printf("main: error closing database: %v", err)
		}
	}()

	// =========================================================================
	// Load schedule

	location, err := time.LoadLocation(cfg.GTFS.Timezone)
	if err != nil {
		return fmt.Errorf("loading timezone %s: %w", cfg.GTFS.Timezone, err)
	}

	dataSetId := cfg.GTFS.DataSetId
	if dataSetId == 0 {
		dataSet, err := gtfs.GetLatestSavedDataSet(db)
		if err != nil {
			return fmt.Errorf("finding latest data set: %w", err)
		}
		dataSetId = dataSet.Id
	}
	log.Printf("main: Loading schedule index for data set %d", dataSetId)
	index, err := gtfs.LoadIndex(db, dataSetId, location, cfg.GTFS.ObserveHolidays)
	if err != nil {
		return fmt.Errorf("loading schedule index: %w", err)
	}

	// =========================================================================
	// Wire the pipeline

	collector := metrics.NewCollector()

	var natsConn *nats.Conn
	if len(cfg.NATS.Url) > 0 {
		natsConn, err = nats.Connect(cfg.NATS.Url,
			nats.Name("avl-processor"),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Printf("nats disconnected: %v", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				log.Printf("nats reconnected")
			}),
			nats.ClosedHandler(func(_ *nats.Conn) {
				log.Printf("nats connection closed")
			}),
		)
		if err != nil {
			return fmt.Errorf("connecting to nats at %s: %w", cfg.NATS.Url, err)
		}
		defer natsConn.Close()
	}

	memoryCache := vehiclecache.NewMemory()
	var snapshots processor.SnapshotCache = memoryCache
	var snapshotReader vehicleapi.SnapshotReader = memoryCache
	if cfg.Redis.Enabled {
		redisClient, err := vehiclecache.NewRedisClient(vehiclecache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err = redisClient.Close(); err != nil {
				log.Printf("main: error closing redis client: %v", err)
			}
		}()
		writeThrough := vehiclecache.NewWriteThrough(log, memoryCache, redisClient,
			time.Duration(cfg.Redis.TTLMinutes)*time.Minute)
		snapshots = writeThrough
		snapshotReader = writeThrough
	}

	publishConn := natsConn
	if !cfg.NATS.PublishResults {
		publishConn = nil
	}
	var sink processor.EventSink = processor.NewResultsPublisher(log, db, publishConn, collector)
	if cfg.Processor.DryRun {
		log.Println("main: dry run, results are logged and not recorded")
		sink = &processor.LogOnlySink{Log: log}
	}

	processorCfg := processor.DefaultConfig()
	processorCfg.AutoAssign = cfg.Processor.AutoAssign
	processorCfg.IgnoreReportAssignments = cfg.Processor.IgnoreReportAssignments
	if err = processorCfg.CompileUnpredictableAssignments(cfg.Processor.UnpredictableAssignments); err != nil {
		return err
	}

	p, err := processor.NewProcessor(log, processorCfg, processor.Deps{
		Index:     index,
		Sink:      sink,
		Snapshots: snapshots,
	})
	if err != nil {
		return fmt.Errorf("building processor: %w", err)
	}

	dispatcher := processor.NewDispatcher(log, p, cfg.Processor.Workers, collector)

	// =========================================================================
	// Start report sources and web service

	// closed on the first OS signal, every loop watches it
	shutdownSignal := make(chan bool)
	wg := sync.WaitGroup{}

	if len(cfg.Feed.VehiclePositionsUrl) > 0 {
		client := httpclient.NewClient(30*time.Second, cfg.Feed.ApiKeyHeader, cfg.Feed.ApiKey)
		wg.Add(1)
		go func() {
			defer wg.Done()
			processor.RunFeedLoop(log, dispatcher, client, cfg.Feed.VehiclePositionsUrl,
				time.Duration(cfg.Feed.LoadEverySeconds)*time.Second, collector, shutdownSignal)
		}()
	}

	if len(cfg.NATS.ReportSubject) > 0 {
		if natsConn == nil {
			return fmt.Errorf("nats report subject configured without a nats url")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := processor.RunReportListener(log, dispatcher, natsConn,
				cfg.NATS.ReportSubject, cfg.NATS.QueueGroup, shutdownSignal); err != nil {
				log.Printf("main: report listener ended with error: %v", err)
			}
		}()
	}

	go vehicleapi.RunWebService(log, &wg, snapshotReader, p,
		time.Duration(cfg.Web.StaleAfterSeconds)*time.Second, collector.Handler(),
		cfg.Web.Port, shutdownSignal)

	// =========================================================================
	// Wait for shutdown

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	sig := <-shutdown
	log.Printf("main: received signal %v, shutting down", sig)

	close(shutdownSignal)
	wg.Wait()
	dispatcher.Shutdown()
	return nil
}
