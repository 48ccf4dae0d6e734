package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/acpi"
	"github.com/charlie0129/acpibatt/pkg/acpi/acpicall"
	"github.com/charlie0129/acpibatt/pkg/acpi/osbattery"
	"github.com/charlie0129/acpibatt/pkg/acpi/sbsmodbus"
	"github.com/charlie0129/acpibatt/pkg/config"
	"github.com/charlie0129/acpibatt/pkg/events"
	"github.com/charlie0129/acpibatt/pkg/metrics"
	"github.com/charlie0129/acpibatt/pkg/poller"
	"github.com/charlie0129/acpibatt/pkg/powersource"
	"github.com/charlie0129/acpibatt/pkg/sink/mqttsink"
	"github.com/charlie0129/acpibatt/pkg/sink/redissink"
)

var (
	conf       config.Config
	battPoller *poller.Poller
	sseHub     *events.EventHub
	registry   *prometheus.Registry
	scheduler  *Scheduler
)

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", getConfig)
	router.GET("/battery", getBattery)
	router.GET("/properties", getProperties)
	router.GET("/legacy", getLegacy)
	router.GET("/status", getStatus)
	router.POST("/poll", postPoll)
	router.PUT("/polling-interval", setPollingInterval)
	router.GET("/events", streamEvents)
	router.GET("/metrics", getMetrics)
	router.GET("/version", getVersion)

	return router
}

// newTransport builds the firmware transport named by the config. The
// returned closer is never nil.
func newTransport(c config.Config) (acpi.Transport, func(), error) {
	noop := func() {}

	switch c.Transport() {
	case config.TransportACPICall:
		if err := acpicall.Probe(c.ACPICallPath()); err != nil {
			return nil, noop, err
		}
		return acpicall.New(acpicall.Options{
			Device:   c.ACPIDevice(),
			CallPath: c.ACPICallPath(),
			Retries:  c.ACPIRetries(),
		}), noop, nil
	case config.TransportOS:
		return osbattery.New(c.BatteryIndex()), noop, nil
	case config.TransportSBSModbus:
		t, err := sbsmodbus.New(sbsmodbus.Config{
			Endpoint: c.ModbusEndpoint(),
			UnitID:   c.ModbusUnitID(),
			Timeout:  c.ModbusTimeout(),
		})
		if err != nil {
			return nil, noop, err
		}
		return t, func() {
			if err := t.Close(); err != nil {
				logrus.Errorf("failed to close modbus connection: %v", err)
			}
		}, nil
	default:
		return nil, noop, fmt.Errorf("unknown transport %q", c.Transport())
	}
}

// startSinks mirrors the store into the configured MQTT broker and Redis
// server. Each sink subscribes before taking its initial snapshot so no
// change falls in between.
func startSinks(ctx context.Context, store *powersource.Store) (stop func()) {
	var cleanups []func()

	if u := conf.MQTTURL(); u != "" {
		client, err := mqttsink.NewClient(u, fmt.Sprintf("acpibatt-%d", os.Getpid()), conf.MQTTTopic())
		if err != nil {
			logrus.Errorf("failed to connect to MQTT broker, MQTT sink disabled: %v", err)
		} else {
			s := mqttsink.New(client, conf.MQTTTopic(), store.Properties)
			ch := sseHub.Subscribe()
			if err := s.Sync(store.Properties()); err != nil {
				logrus.Warnf("failed to publish initial MQTT state: %v", err)
			}
			go s.Run(ctx, ch, sseHub.Seq)
			cleanups = append(cleanups, func() {
				sseHub.Unsubscribe(ch)
				if err := s.Offline(); err != nil {
					logrus.Warnf("failed to mark MQTT sink offline: %v", err)
				}
				client.Disconnect(250)
			})
		}
	}

	if addr := conf.RedisAddr(); addr != "" {
		client, err := redissink.NewClient(ctx, addr)
		if err != nil {
			logrus.Errorf("Redis sink disabled: %v", err)
		} else {
			s := redissink.New(client, conf.RedisKey(), store.Properties)
			ch := sseHub.Subscribe()
			if err := s.Sync(ctx, store.Properties()); err != nil {
				logrus.Warnf("failed to write initial Redis state: %v", err)
			}
			go s.Run(ctx, ch, sseHub.Seq)
			cleanups = append(cleanups, func() {
				sseHub.Unsubscribe(ch)
				if err := client.Close(); err != nil {
					logrus.Warnf("failed to close Redis client: %v", err)
				}
			})
		}
	}

	return func() {
		for _, c := range cleanups {
			c()
		}
	}
}

func setupScheduler() error {
	scheduler = NewScheduler(
		func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			started, err := battPoller.TriggerPoll(ctx, poller.PathFresh)
			if err != nil {
				return err
			}
			if !started {
				return errors.New("a poll cycle is already in flight")
			}
			return nil
		},
		func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			st, err := battPoller.Status(ctx)
			if err != nil {
				return err
			}
			if st.Sleeping {
				return errors.New("system is sleeping")
			}
			if st.Session != nil {
				return errors.New("a poll cycle is already in flight")
			}
			return nil
		},
		nil,
		func(data any) {
			logrus.Warnf("scheduled fresh read: %v", data)
		},
	)
	if err := scheduler.Schedule(conf.FreshReadCron()); err != nil {
		return fmt.Errorf("invalid fresh read schedule %q: %w", conf.FreshReadCron(), err)
	}
	scheduler.Start()
	next, _ := scheduler.Status()
	logrus.WithField("next", next.Format(time.DateTime)).Info("fresh read scheduled")
	return nil
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	router := setupRoutes()

	fileConf, err := config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	conf = fileConf
	logrus.WithFields(fileConf.LogrusFields()).Infof("config loaded")

	transport, closeTransport, err := newTransport(conf)
	if err != nil {
		logrus.Fatalf("failed to set up %s transport: %v", conf.Transport(), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sseHub = events.NewEventHub()
	store := powersource.NewStore(powersource.NewEventSink(sseHub))
	battPoller = poller.New(poller.Options{
		Transport:              transport,
		Store:                  store,
		Hub:                    sseHub,
		UseExtendedInformation: conf.UseExtendedInformation(),
		UseExtraInformation:    conf.UseExtraInformation(),
		PollingOverride:        conf.PollingPeriodOverride(),
	})
	registry = metrics.NewRegistry(metrics.NewCollector(store, battPoller.Recorder()))

	stopSinks := startSinks(ctx, store)
	battPoller.Start(ctx)

	if conf.FreshReadCron() != "" {
		if err := setupScheduler(); err != nil {
			logrus.Fatal(err)
		}
	}

	if conf.HandleSleepWake() {
		go func() {
			if err := listenSleepWake(ctx, battPoller); err != nil {
				logrus.Errorf("failed to listen to system sleep notifications: %v", err)
			}
		}()
	}

	if path := conf.AcpidSocket(); path != "" {
		go watchAcpid(ctx, path, battPoller.Notify)
	}

	// SIGHUP forces a full re-read, e.g. after swapping the pack.
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			started, err := battPoller.TriggerPoll(ctx, poller.PathFresh)
			if err != nil {
				logrus.Errorf("failed to trigger fresh read: %v", err)
				continue
			}
			logrus.WithField("started", started).Info("fresh read requested by SIGHUP")
		}
	}()

	srv := &http.Server{
		Handler: router,
	}

	// Remove a stale socket left by an unclean exit.
	if err := os.Remove(unixSocketPath); err != nil && !os.IsNotExist(err) {
		logrus.Fatal(err)
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("shutting down http server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	shutdownCancel()

	if scheduler != nil {
		scheduler.Stop()
	}

	logrus.Info("stopping battery poller")
	cancel()
	battPoller.Stop()

	stopSinks()
	sseHub.Close()

	logrus.Info("closing transport")
	closeTransport()

	logrus.Info("exiting")
	return nil
}
