package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron"

	"DeliveryAnalytics/src/config"
	"DeliveryAnalytics/src/datapush"
	"DeliveryAnalytics/src/datasource/email"
	"DeliveryAnalytics/src/datasource/file"
	"DeliveryAnalytics/src/processor"
	"DeliveryAnalytics/src/server"
	"DeliveryAnalytics/src/storage"
)

func main() {
	cfg, dcfg, err := config.LoadConfig("./config", "config.json", "dataconfig.json")
	if err != nil {
		log.Fatal("failed to load configuration: ", err)
	}

	logName := cfg.LogName
	if logName == "" {
		logName = "app.log"
	}
	logger, err := storage.NewLogger(logName)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Close()

	pipeline := processor.NewPipeline(cfg, dcfg, logger)
	if err := pipeline.Refresh(); err != nil {
		logger.Fatal("initial dataset load failed: " + err.Error())
		log.Fatal("initial dataset load failed: ", err)
	}

	var db *storage.OrderDatabase
	if cfg.Database.Enabled {
		db, err = storage.NewOrderDatabase(cfg, logger)
		if err != nil {
			logger.Error("database disabled, open failed: " + err.Error())
			db = nil
		} else {
			syncDatabase(pipeline, db, logger)
		}
	}

	var mailClient *email.Client
	var mailHandler *email.DatasetHandler
	if cfg.Email.Enabled {
		mailClient = email.NewClient(cfg.Email.Server, cfg.Email.Username, cfg.Email.Password)
		mailHandler = email.NewDatasetHandler(cfg.DataDir, logger)
	}

	refresh := func(datasetPath string) {
		var err error
		if datasetPath == "" {
			err = pipeline.Refresh()
		} else {
			err = pipeline.RefreshFrom(datasetPath)
		}
		if err != nil {
			logger.Error("pipeline refresh failed: " + err.Error())
			return
		}
		logger.CheckRotate(cfg)
		if db != nil {
			syncDatabase(pipeline, db, logger)
		}
		if cfg.Push.Enabled && cfg.Push.WebhookURL != "" {
			pushSummary(pipeline, cfg, logger)
		}
	}

	c := cron.New()
	cronSpec := fmt.Sprintf("@every %s", time.Duration(cfg.RefreshInterval))
	err = c.AddFunc(cronSpec, func() {
		if mailClient != nil {
			saved, mailErr := email.CheckAndProcessEmails(mailClient, mailHandler, cfg.Email.TargetSubject, logger)
			if mailErr != nil {
				logger.Error("mailbox sweep failed: " + mailErr.Error())
			}
			for _, path := range saved {
				refresh(path)
			}
		}
		refresh("")
	})
	if err != nil {
		logger.Error("failed to schedule refresh: " + err.Error())
		return
	}
	c.Start()
	defer c.Stop()

	monitor, err := file.NewFileMonitor(cfg.DataDir)
	if err != nil {
		logger.Warning("directory monitor unavailable: " + err.Error())
	} else {
		defer monitor.Close()
		go func() {
			err := monitor.Watch(func(path string) {
				if filepath.Base(path) == cfg.CacheFile {
					return // our own cache write, not a new dataset
				}
				logger.Info("dataset change detected: " + path)
				refresh(path)
			})
			if err != nil {
				logger.Error("directory monitor: " + err.Error())
			}
		}()
	}

	srv := server.New(cfg, dcfg, logger, pipeline, db)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("http server: " + err.Error())
		}
	}()

	logger.Info(fmt.Sprintf("delivery analytics running (refresh %s), Ctrl+C to exit", cronSpec))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http shutdown: " + err.Error())
	}
}

func syncDatabase(p *processor.Pipeline, db *storage.OrderDatabase, logger *storage.Logger) {
	orders := storage.OrdersFromMaps(p.Snapshot().Maps())
	if err := db.ReplaceOrders(orders); err != nil {
		logger.Error("database sync failed: " + err.Error())
	}
}

func pushSummary(p *processor.Pipeline, cfg *config.Config, logger *storage.Logger) {
	df := p.Snapshot()
	payload := datapush.SummaryPayload{
		GeneratedAt: time.Now(),
		SourceMD5:   p.SourceKey(),
		Summary:     processor.Summarize(df),
		TopViews: map[string]interface{}{
			"revenue_by_city": processor.Aggregate(df, "revenue_by_city", processor.ViewCatalog["revenue_by_city"]),
			"cuisine_demand":  processor.Aggregate(df, "cuisine_demand", processor.ViewCatalog["cuisine_demand"]),
		},
	}
	if err := datapush.PushSummary(cfg.Push.WebhookURL, payload, logger); err != nil {
		logger.Error(err.Error())
	}
}
