// Package analysis runs DTMF detection sessions configured from Settings.
package analysis

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/dtmfin/dtmfin/internal/capture"
	"github.com/dtmfin/dtmfin/internal/conf"
	"github.com/dtmfin/dtmfin/internal/encoder"
	"github.com/dtmfin/dtmfin/internal/lifecycle"
	"github.com/dtmfin/dtmfin/internal/logger"
	"github.com/dtmfin/dtmfin/internal/mqtt"
	"github.com/dtmfin/dtmfin/internal/observability"
)

// ControllerConfig maps settings to the lifecycle controller configuration.
func ControllerConfig(settings *conf.Settings) lifecycle.Config {
	return lifecycle.Config{
		Device:          settings.Input.Device,
		SampleRate:      settings.Input.SampleRate,
		BufferSize:      settings.Input.BufferSize,
		RepeatThreshold: settings.RepeatThreshold(),
		Host:            settings.Output.Host,
		Port:            settings.Output.Port,
		Broadcast:       settings.Output.Broadcast,
		Protocol:        encoder.Protocol(settings.Output.Protocol),
		OSCPath:         settings.Output.OSCPath,
		QueueSize:       settings.Output.QueueSize,
		PollInterval:    conf.DefaultPollInterval * time.Millisecond,
	}
}

// run executes one capture session on backend. It returns when the session
// stops and every helper goroutine has exited.
func run(ctx context.Context, settings *conf.Settings, backend capture.Backend, log logger.Logger) error {
	ctx = logger.WithTraceID(ctx, uuid.NewString())
	log = log.WithContext(ctx)

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	// quitChan is closed once the controller has returned.
	quitChan := make(chan struct{})
	var wg sync.WaitGroup
	defer func() {
		close(quitChan)
		wg.Wait()
	}()

	startTelemetryEndpoint(&wg, settings, metrics, quitChan, log)

	opts := []lifecycle.Option{
		lifecycle.WithLogger(log),
		lifecycle.WithMetrics(metrics.Pipeline),
	}
	if settings.MQTT.Enabled {
		client, err := mqtt.NewClient(mqttConfig(settings),
			mqtt.WithMetrics(metrics.MQTT),
			mqtt.WithLogger(log.Module("mqtt")))
		if err != nil {
			return err
		}
		startMQTTConnect(ctx, &wg, client, quitChan, log)
		opts = append(opts, lifecycle.WithMirror(client))
	}

	ctrl := lifecycle.New(ControllerConfig(settings), backend, opts...)
	monitorSignals(&wg, ctrl, quitChan)
	return ctrl.Run(ctx)
}

func mqttConfig(settings *conf.Settings) mqtt.Config {
	cfg := mqtt.DefaultConfig()
	cfg.Broker = settings.MQTT.Broker
	cfg.Topic = settings.MQTT.Topic
	cfg.Username = settings.MQTT.Username
	cfg.Password = settings.MQTT.Password
	if settings.MQTT.ClientID != "" {
		cfg.ClientID = settings.MQTT.ClientID
	}
	return cfg
}

// startMQTTConnect connects in the background so an unreachable broker never
// delays capture. The client keeps retrying until the controller closes it.
func startMQTTConnect(ctx context.Context, wg *sync.WaitGroup, client *mqtt.Client, quitChan <-chan struct{}, log logger.Logger) {
	connectCtx, cancel := context.WithCancel(ctx)
	wg.Go(func() {
		<-quitChan
		cancel()
	})
	wg.Go(func() {
		if err := client.Connect(connectCtx); err != nil && connectCtx.Err() == nil {
			log.Warn("MQTT broker not reachable, events are mirrored once connected",
				logger.String("broker", client.Broker()),
				logger.Error(err))
		}
	})
}

func startTelemetryEndpoint(wg *sync.WaitGroup, settings *conf.Settings, metrics *observability.Metrics, quitChan <-chan struct{}, log logger.Logger) {
	if !settings.Telemetry.Enabled {
		return
	}
	endpoint, err := observability.NewEndpoint(settings.Telemetry.Listen, metrics, log.Module("telemetry"))
	if err != nil {
		log.Warn("error initializing telemetry endpoint", logger.Error(err))
		return
	}
	if err := endpoint.Start(wg, quitChan); err != nil {
		log.Warn("error starting telemetry endpoint", logger.Error(err))
	}
}

// monitorSignals requests a controller stop on SIGINT or SIGTERM. The
// goroutine does nothing but flip the controller's running flag.
func monitorSignals(wg *sync.WaitGroup, ctrl *lifecycle.Controller, quitChan <-chan struct{}) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	wg.Go(func() {
		defer signal.Stop(sigChan)
		for {
			select {
			case <-sigChan:
				ctrl.RequestStop()
			case <-quitChan:
				return
			}
		}
	})
}
