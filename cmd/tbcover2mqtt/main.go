package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/tbcover2mqtt/internal/daemon"
	"github.com/jkaflik/tbcover2mqtt/internal/httpapi"
	"github.com/jkaflik/tbcover2mqtt/internal/metrics"
	"github.com/jkaflik/tbcover2mqtt/internal/motion"
	"github.com/jkaflik/tbcover2mqtt/internal/mqtt"
	"github.com/jkaflik/tbcover2mqtt/internal/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors: false,
		FullTimestamp: true,
	})

	configPath := flag.String("config", "config.yaml", "config.yaml file path")
	flag.Parse()

	if err := configLoader.Load(); err != nil {
		logrus.Fatal(err)
	}
	loadConfigFromYamlFile(*configPath)
	logrus.SetLevel(logLevelFromConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promRegistry)

	d := daemon.New(
		daemon.WithPersistEvery(Cfg.Persistence.Interval),
		daemon.WithMetrics(m),
	)

	var bridge *mqtt.Bridge
	cfg := pahoOptsFromConfig()
	cfg.OnConnect = func(_ paho.Client) {
		logrus.Info("MQTT broker connected")
		bridge.Resubscribe()
	}
	cfg.OnConnectionLost = func(_ paho.Client, err error) {
		logrus.Errorf("MQTT broker connection lost: %s", err.Error())
	}

	client := paho.NewClient(cfg)
	bridge = mqtt.NewBridge(client, Cfg.MQTT.TopicRoot, d.Command, bridgeOptsFromConfig()...)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		logrus.Fatal(token.Error())
	}

	st := storeFromConfig()
	actuator, closeActuator := actuatorFromConfig(ctx, client)

	reg := registry.New(st, bridge)
	reg.Load()
	for _, c := range coverConfigsFromConfig() {
		if _, err := reg.Register(c); err != nil {
			logrus.Error(err)
		}
	}
	if reg.Len() == 0 {
		logrus.Warn("no covers registered")
	}

	controller := motion.NewController(reg, actuator, bridge,
		motion.WithPost(func(f func()) { d.Post(f) }),
		motion.WithMetrics(m),
		motion.WithContext(ctx),
	)

	if Cfg.HTTP.Listen != "" {
		go func() {
			if err := httpapi.Serve(ctx, Cfg.HTTP.Listen, httpapi.NewRouter(d, promRegistry)); err != nil {
				logrus.Errorf("http: %s", err)
			}
		}()
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		oscall := <-c
		logrus.Infof("system call: %+v", oscall)
		cancel()
	}()

	d.Run(ctx, reg, controller)

	logrus.Info("cleanups...")
	bridge.Unsubscribe()
	closeActuator()
	client.Disconnect(250)
	if err := st.Close(); err != nil {
		logrus.Errorf("store: close: %s", err)
	}
}
