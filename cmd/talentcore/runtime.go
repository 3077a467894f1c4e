package main

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"talentcore/internal/config"
	"talentcore/internal/core"
	"talentcore/internal/infra/blob"
	"talentcore/internal/notify/bus"
	"talentcore/internal/notify/redisbus"
	"talentcore/internal/notify/webhook"
	"talentcore/pkg/domain"
)

// runtime owns every long-lived dependency of a command.
type runtime struct {
	svc      *core.Service
	bus      *bus.Bus
	redis    *redis.Client
	relay    *redisbus.Publisher
	registry *prometheus.Registry
	expvar   *core.ExpvarRecorder
}

// expvarName is the /debug/vars key of the service counters.
const expvarName = "talentcore"

// openRuntime builds the service for one command. Spans go to traceOut when
// cfg.Trace is set.
func openRuntime(ctx context.Context, cfg config.Config, log *zap.Logger, traceOut io.Writer) (*runtime, error) {
	rt := &runtime{bus: bus.New(bus.DefaultBuffer), registry: prometheus.NewRegistry()}
	rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom, err := core.NewPrometheusMetricsRecorder(rt.registry)
	if err != nil {
		return nil, err
	}
	var recorder core.Recorder = prom
	if cfg.HTTP.DebugVars {
		if rt.expvar, err = core.NewExpvarRecorder(expvarName); err != nil {
			return nil, err
		}
		recorder = core.TeeRecorder(prom, rt.expvar)
	}

	store, err := core.OpenPersistentStore(ctx, cfg.StorageSelector(), core.NewDefaultRulesEngine())
	if err != nil {
		return nil, err
	}
	archive, err := blob.Open(ctx, cfg.BlobConfig())
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var publisher domain.Publisher = rt.bus
	if cfg.Notify.RedisAddr != "" {
		rt.redis = redis.NewClient(&redis.Options{Addr: cfg.Notify.RedisAddr, Password: cfg.Notify.RedisPassword})
		rt.relay = redisbus.NewPublisher(rt.redis, cfg.Notify.RedisPrefix)
		publisher = rt.relay
	}
	notifierOpts := []core.NotifierOption{
		core.WithNotifierLogger(log),
		core.WithNotificationRecorder(recorder),
		core.WithTimeouts(cfg.Notify.PublishTimeout, cfg.Notify.ExternalTimeout),
	}
	if cfg.Notify.WebhookURL != "" {
		client := &http.Client{Timeout: cfg.Notify.ExternalTimeout}
		notifierOpts = append(notifierOpts, core.WithExternalNotifier(webhook.NewClient(cfg.Notify.WebhookURL, cfg.Notify.WebhookSecret, client)))
	}

	svcOpts := []core.Option{
		core.WithLogger(log),
		core.WithMetricsRecorder(recorder),
		core.WithNotifier(core.NewNotifier(publisher, notifierOpts...)),
		core.WithRetention(cfg.Retention),
	}
	if cfg.Trace {
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(traceOut)))
	}
	if archive != nil {
		svcOpts = append(svcOpts, core.WithArchive(archive))
		log.Info("audit archive enabled", zap.String("driver", string(archive.Driver())))
	}
	rt.svc = core.NewService(store, svcOpts...)
	log.Info("storage opened", zap.String("driver", cfg.Storage.Driver))
	return rt, nil
}

func (rt *runtime) Close() error {
	var errs []error
	if err := rt.svc.Close(); err != nil {
		errs = append(errs, err)
	}
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
