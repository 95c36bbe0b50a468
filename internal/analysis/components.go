// Package analysis assembles the vidguard service: result store, detectors,
// policy, orchestrator, HTTP API and decision publishing.
package analysis

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tphakala/vidguard/internal/api"
	"github.com/tphakala/vidguard/internal/buildinfo"
	"github.com/tphakala/vidguard/internal/conf"
	"github.com/tphakala/vidguard/internal/datastore"
	"github.com/tphakala/vidguard/internal/detector"
	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/logger"
	"github.com/tphakala/vidguard/internal/media"
	"github.com/tphakala/vidguard/internal/moderation"
	"github.com/tphakala/vidguard/internal/mqtt"
	"github.com/tphakala/vidguard/internal/observability"
	"github.com/tphakala/vidguard/internal/orchestrator"
	"github.com/tphakala/vidguard/internal/policy"
)

// Components is a fully wired but not yet started service. Optional parts
// are nil when disabled in the settings.
type Components struct {
	Settings     *conf.Settings
	Store        datastore.Interface
	Metrics      *observability.Metrics
	Orchestrator *orchestrator.Orchestrator
	HTTP         *api.Server
	MQTT         mqtt.Client
	Telemetry    *observability.Endpoint
}

const poolMonitorInterval = 30 * time.Second

// Build wires every component from settings. Nothing is started; on error
// the store is closed again.
func Build(settings *conf.Settings, info buildinfo.BuildInfo) (c *Components, err error) {
	c = &Components{Settings: settings}

	c.Metrics, err = observability.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("error initializing metrics: %w", err)
	}

	store, err := datastore.New(settings)
	if err != nil {
		return nil, err
	}
	c.Store = datastore.NewInstrumentedStore(store, c.Metrics.Store)
	defer func() {
		if err != nil {
			closeDataStore(c.Store)
		}
	}()

	detectors, err := BuildDetectors(settings)
	if err != nil {
		return nil, err
	}
	registry, err := detector.NewRegistry(detectors...)
	if err != nil {
		return nil, err
	}

	table, err := policy.Load(settings.Moderation.PolicyFile)
	if err != nil {
		return nil, err
	}
	resolver := policy.NewResolver(table, policy.Defaults{
		Levels:       settings.Moderation.Levels,
		Required:     settings.Moderation.Required,
		MergeEpsilon: settings.Moderation.MergeEpsilon,
	})

	notifiers := []orchestrator.Notifier{c.Metrics}
	if settings.MQTT.Enabled {
		cfg := mqtt.ConfigFromSettings(settings)
		c.MQTT, err = mqtt.NewClient(cfg, c.Metrics.MQTT)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, mqtt.NewPublisher(c.MQTT, cfg, c.Metrics.MQTT))
	}

	c.Orchestrator, err = orchestrator.New(orchestrator.ConfigFromSettings(settings), orchestrator.Dependencies{
		Store:     c.Store,
		Detectors: registry,
		Policy:    resolver,
		Media:     NewMediaResolver(settings),
		Notifiers: notifiers,
	})
	if err != nil {
		return nil, err
	}

	if settings.WebServer.Enabled {
		c.HTTP, err = api.New(settings,
			api.WithService(c.Orchestrator),
			api.WithMetrics(c.Metrics),
			api.WithBuildInfo(info),
		)
		if err != nil {
			return nil, err
		}
	}

	if settings.Telemetry.Enabled && settings.Telemetry.Listen != "" {
		c.Telemetry, err = observability.NewEndpoint(settings, c.Metrics)
		if err != nil {
			return nil, err
		}
	}

	return c, nil
}

// BuildDetectors returns one detector per check for the configured mode.
// Remote mode only registers the checks that have an endpoint.
func BuildDetectors(settings *conf.Settings) ([]detector.Detector, error) {
	ds := settings.Detectors
	switch ds.Mode {
	case "", conf.DetectorModeStub:
		return detector.StubDetectors(0), nil
	case conf.DetectorModeRemote:
		names := make([]string, 0, len(ds.Remote.Endpoints))
		for name := range ds.Remote.Endpoints {
			names = append(names, name)
		}
		slices.Sort(names)

		out := make([]detector.Detector, 0, len(names))
		for _, name := range names {
			check := moderation.CheckType(strings.ToLower(strings.TrimSpace(name)))
			if !check.Valid() {
				return nil, errors.Newf("remote detector configured for unknown check %q", name).
					Component("analysis").
					Category(errors.CategoryConfiguration).
					Build()
			}
			out = append(out, detector.NewRemoteDetector(check, ds.Remote.Endpoints[name], ds.Remote.APIKey, ds.Remote.Timeout))
		}
		return out, nil
	default:
		return nil, errors.Newf("unknown detector mode %q", ds.Mode).
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// NewMediaResolver returns the file resolver for the media settings.
func NewMediaResolver(settings *conf.Settings) *media.FileResolver {
	return &media.FileResolver{
		BaseDir:           settings.Media.BaseDir,
		AllowedExtensions: settings.Media.AllowedExtensions,
		AllowRemote:       settings.Media.AllowRemote,
		MaxSizeBytes:      int64(settings.Media.MaxSizeMB) << 20,
	}
}

// monitorStore reports connection pool statistics of SQL stores.
func (c *Components) monitorStore(wg *sync.WaitGroup, quitChan <-chan struct{}) {
	datastore.MonitorPool(c.Store, c.Metrics.Store, poolMonitorInterval, wg, quitChan)
}

// connectMQTT connects the decision publisher. A broker that is down at
// startup is not fatal; the client keeps reconnecting in the background.
func (c *Components) connectMQTT(ctx context.Context) {
	if c.MQTT == nil {
		return
	}
	if err := c.MQTT.Connect(ctx); err != nil {
		GetLogger().Warn("failed to connect to MQTT broker, decisions will not be published until it is reachable",
			logger.String("broker", c.Settings.MQTT.Broker),
			logger.Error(err))
	}
}

// closeDataStore closes the store and logs the result.
func closeDataStore(store datastore.Interface) {
	if err := store.Close(); err != nil {
		GetLogger().Error("failed to close database", logger.Error(err))
		return
	}
	GetLogger().Info("database closed")
}
