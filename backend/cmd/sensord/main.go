package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	mqttbroker "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/redis/go-redis/v9"
	"go.bug.st/serial/enumerator"

	"arksync/backend/internal/api"
	"arksync/backend/internal/config"
	"arksync/backend/internal/discovery"
	"arksync/backend/internal/fleet"
	"arksync/backend/internal/metrics"
	mqttapi "arksync/backend/internal/mqtt"
	"arksync/backend/internal/sensor"
	"arksync/backend/internal/services"
	sharedapi "arksync/backend/internal/shared/api"
	"arksync/backend/internal/store"
	"arksync/backend/internal/telemetry"
	"arksync/backend/pkg/migrator"
	"arksync/backend/pkg/mqtt"
	"arksync/backend/pkg/router"
	"arksync/backend/pkg/serialport"
	"arksync/backend/pkg/utils"
)

func main() {
	sigCtx, sigCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer sigCancel()

	config, err := config.New()
	if err != nil {
		fatalIfErr(slog.Default(), fmt.Errorf("failed to create config: %w", err))
	}

	defer utils.LogOnError(slog.Default(), config.Close, "failed to close config")

	logger := getLogger(config)

	if err := runMigrations(logger, config); err != nil {
		fatalIfErr(logger, fmt.Errorf("failed to run migrations: %w", err))
	}

	st, err := store.Open(logger, config.Dialect, config.Database)
	fatalIfErr(logger, err)

	defer utils.LogOnError(logger, st.Close, "failed to close store")

	m := metrics.New()

	// Fleet
	supervisor := fleet.NewSupervisor(logger, m)
	fleetClient := supervisor.Client()

	// Telemetry sinks, the MQTT one is added once the builder exists
	hub := telemetry.NewHub(logger)
	fanout := telemetry.NewFanout(logger, hub, telemetry.NewHistorySink(st))

	var redisSink *telemetry.RedisSink

	if config.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})
		defer utils.LogOnError(logger, rdb.Close, "failed to close redis client")

		redisSink = telemetry.NewRedisSink(rdb, config.RedisChannel)
		fanout.Add(redisSink)
	}

	// MQTT
	mb, err := mqtt.NewMQTTBuilder(logger, mqtt.MQTTClientOptions{
		BrokerURL: config.MQTTBroker,
		ClientID:  config.MQTTClientID,
		Username:  config.MQTTUsername,
		Password:  config.MQTTPassword,
		WillTopic: "arksync/" + config.MQTTClientID + "/status",
	})
	fatalIfErr(logger, err)

	fanout.Add(telemetry.NewMQTTSink(mb.Client()))

	deps := services.Deps{
		Store:      st,
		Fleet:      fleetClient,
		Supervisor: supervisor,
		MQTT:       mb.Client(),
	}
	if redisSink != nil {
		deps.Redis = redisSink
	}

	svc := services.NewServices(logger, deps)
	mqttHandler := mqttapi.NewMQTTHandler(logger, svc, mb.Client())
	mqttHandler.Register(mb)

	// HTTP
	rb := router.NewRouteBuilder(logger)
	api.NewHandler(logger, svc, hub).Mount(rb)
	rb.Router().Handle("/metrics", m.Handler())

	// Background tasks share one context so shutdown can stop them before the
	// supervisor goes away.
	taskCtx, taskCancel := context.WithCancel(context.Background())
	defer taskCancel()

	var tasks sync.WaitGroup

	detector := fleet.NewDetector(logger, fleetClient, fleet.DetectorOptions{
		Scanner: discovery.NewScanner(logger, enumerator.GetDetailedPortsList, discovery.DefaultFilter()),
		BringUp: func(ctx context.Context, p serialport.Port) (sensor.Sensor, error) {
			return sensor.FromDevice(ctx, logger, p, m.Observer())
		},
		Names:    st,
		Interval: config.DetectInterval,
		Metrics:  m,
	})
	readers := fleet.NewReaders(logger, fleetClient, fleet.ReadersOptions{
		Publisher:    fanout,
		ReadInterval: config.ReadInterval,
		Metrics:      m,
	})
	healthcheck := fleet.NewHealthcheck(logger, fleetClient, fleet.HealthcheckOptions{
		Interval: config.HealthInterval,
		Grace:    config.GraceWindow,
		Metrics:  m,
		OnDemote: readers.Nudge,
	})

	supervisorCtx, supervisorCancel := context.WithCancel(context.Background())
	defer supervisorCancel()

	go supervisor.Run(supervisorCtx)

	for _, run := range []func(context.Context){detector.Run, healthcheck.Run, readers.Run} {
		tasks.Add(1)

		go func() {
			defer tasks.Done()
			run(taskCtx)
		}()
	}

	//  MQTT Broker
	var mqttBroker *mqttbroker.Server

	if config.MQTTEmbeddedBroker {
		mqttAddr := fmt.Sprintf(":%d", config.MQTTBrokerPort)
		mqttBroker, err = getMQTTServer(logger, mqttAddr)
		fatalIfErr(logger, err)

		go func() {
			logger.Info("MQTT broker listening", slog.String("address", mqttAddr))

			if err := mqttBroker.Serve(); err != nil {
				logger.Error("MQTT broker failed", utils.ErrAttr(err))
				sigCancel()
			}
		}()
	}

	go func() {
		if err := mb.Connect(sigCtx); err != nil {
			logger.Error("Failed to connect to MQTT broker", utils.ErrAttr(err))
		}
	}()

	// HTTP Server
	httpServer := sharedapi.NewHTTPServer(logger, fmt.Sprintf(":%d", config.Port), rb.Router())
	httpServer.StartOnBackground(sigCancel)

	// Wait for signal (either OS or some failure)
	<-sigCtx.Done()
	logger.Info("received signal, shutting down...")

	logger.Info("http server shutting down...")

	if err := httpServer.ShutdownWithDefaultTimeout(); err != nil {
		logger.Error("http server shutdown failed", utils.ErrAttr(err))
	}

	// Readers cancel and await their goroutines before Run returns.
	logger.Info("stopping fleet tasks...")
	taskCancel()
	tasks.Wait()

	supervisorCancel()
	<-supervisor.Done()

	mqttHandler.Wait()
	hub.Close()

	logger.Info("disconnecting from MQTT broker...")
	mb.Disconnect()

	if mqttBroker != nil {
		logger.Info("mqtt broker shutting down...")

		if err := mqttBroker.Close(); err != nil {
			logger.Error("mqtt broker shutdown failed", utils.ErrAttr(err))
		}
	}

	logger.Info("server exited gracefully")
}

func getMQTTServer(l *slog.Logger, addr string) (*mqttbroker.Server, error) {
	server := mqttbroker.New(&mqttbroker.Options{
		Logger: l.With(slog.String("component", "mqtt-broker")),
	})
	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: addr})

	err := server.AddListener(tcp)
	if err != nil {
		return nil, err
	}

	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, err
	}

	return server, nil
}

func getLogger(config *config.Config) *slog.Logger {
	logOptions := slog.HandlerOptions{
		Level:       config.LogLevel,
		ReplaceAttr: utils.SlogReplacer,
	}

	return slog.New(slog.NewJSONHandler(config.LogOutput, &logOptions)).
		With(slog.String("version", utils.GetVersionShort()))
}

func fatalIfErr(l *slog.Logger, err error) {
	if err == nil {
		return
	}

	l.Error("error", utils.ErrAttr(err))
	os.Exit(1)
}

func runMigrations(l *slog.Logger, c *config.Config) error {
	l.Info("Running database migrations", slog.String("dialect", c.Dialect.String()))

	mig, err := migrator.New(l, c.Dialect, c.Database)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := mig.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	l.Info("Database migrations completed successfully")

	return nil
}
