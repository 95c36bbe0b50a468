package analysis

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/tphakala/vidguard/internal/buildinfo"
	"github.com/tphakala/vidguard/internal/conf"
	"github.com/tphakala/vidguard/internal/logger"
	"github.com/tphakala/vidguard/internal/telemetry"
)

// Serve runs the vidguard service until SIGINT or SIGTERM is received or the
// HTTP listener fails.
func Serve(settings *conf.Settings, info buildinfo.BuildInfo) error {
	log := GetLogger()

	if err := telemetry.InitSentry(settings, info); err != nil {
		return err
	}
	defer telemetry.Flush()

	c, err := Build(settings, info)
	if err != nil {
		return err
	}

	log.Info("starting vidguard",
		logger.String("version", info.GetVersion()),
		logger.String("store", settings.Output.StoreType()),
		logger.String("detectors", settings.Detectors.Mode),
		logger.Int("max_concurrent_jobs", settings.Moderation.MaxConcurrentJobs))

	// quitChan is closed to stop the background goroutines.
	quitChan := make(chan struct{})
	var wg sync.WaitGroup

	if err := c.Start(context.Background(), &wg, quitChan); err != nil {
		close(quitChan)
		wg.Wait()
		closeDataStore(c.Store)
		return err
	}

	var httpErrs <-chan error
	if c.HTTP != nil {
		httpErrs = c.HTTP.Errors()
	}

	var serveErr error
	select {
	case <-monitorSignals():
		log.Info("received shutdown signal")
	case serveErr = <-httpErrs:
		log.Error("HTTP server failed", logger.Error(serveErr))
	}

	c.Shutdown(quitChan, &wg)
	return serveErr
}

// Start resumes unfinished jobs and starts the listeners. Goroutines that
// outlive Start are tracked by wg and stop when quitChan is closed.
func (c *Components) Start(ctx context.Context, wg *sync.WaitGroup, quitChan <-chan struct{}) error {
	if err := c.Orchestrator.Start(ctx); err != nil {
		return err
	}
	c.connectMQTT(ctx)
	c.monitorStore(wg, quitChan)
	if c.HTTP != nil {
		c.HTTP.Start()
	}
	if c.Telemetry != nil {
		c.Telemetry.Start(wg, quitChan)
	}
	return nil
}

// Shutdown stops intake first, then lets running jobs finish before closing
// the publisher and the store.
func (c *Components) Shutdown(quitChan chan struct{}, wg *sync.WaitGroup) {
	log := GetLogger()

	if c.HTTP != nil {
		if err := c.HTTP.Shutdown(); err != nil {
			log.Warn("HTTP server shutdown error", logger.Error(err))
		}
	}
	if err := c.Orchestrator.Stop(); err != nil {
		log.Warn("orchestrator did not stop cleanly", logger.Error(err))
	}
	if c.MQTT != nil {
		c.MQTT.Disconnect()
	}

	close(quitChan)
	wg.Wait()

	closeDataStore(c.Store)
	log.Info("shutdown complete")
}

// monitorSignals returns a channel that is closed on SIGINT or SIGTERM.
func monitorSignals() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		signal.Stop(sigChan)
		close(done)
	}()
	return done
}
