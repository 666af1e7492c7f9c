package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/jkaflik/tbcover2mqtt/internal/actuator/hass"
	"github.com/jkaflik/tbcover2mqtt/internal/actuator/relay"
	"github.com/jkaflik/tbcover2mqtt/internal/cover"
	"github.com/jkaflik/tbcover2mqtt/internal/motion"
	"github.com/jkaflik/tbcover2mqtt/internal/mqtt"
	"github.com/jkaflik/tbcover2mqtt/internal/registry"
	"github.com/jkaflik/tbcover2mqtt/internal/store"
	"github.com/racerxdl/go-mcp23017"
	"github.com/sirupsen/logrus"
	"github.com/stianeikeland/go-rpio/v4"
	"gopkg.in/yaml.v3"
)

type cfgWiredRelaySetPin struct {
	Kind string `yaml:"kind"`

	Pin uint8 `yaml:"pin"`

	Mcp23017 int `yaml:"mcp23017"`
}

type cfgRelay struct {
	Kind string `yaml:"kind"`

	Pin          cfgWiredRelaySetPin `yaml:"pin"`
	NormalClosed bool                `yaml:"normal_closed"`
}

type cfgRelayPair struct {
	Up   cfgRelay `yaml:"up"`
	Down cfgRelay `yaml:"down"`
}

type cfgMcp23017 struct {
	Bus          uint8 `yaml:"bus" default:"1"`
	DeviceNumber uint8 `yaml:"device_number" default:"0"`
}

type cfgRelays struct {
	Pool     int                     `yaml:"pool" default:"0"`
	Pairs    map[string]cfgRelayPair `yaml:"pairs"`
	Mcp23017 map[int]cfgMcp23017     `yaml:"mcp23017"`
}

type cfgActuator struct {
	Kind string `yaml:"kind" default:"hass" env:"KIND"`

	HASS struct {
		URL   string `yaml:"url" default:"ws://127.0.0.1:8123/api/websocket" env:"URL"`
		Token string `yaml:"token" env:"TOKEN"`
	} `yaml:"hass" env:"HASS"`

	MQTT struct {
		CommandTopic string `yaml:"command_topic" default:"%s/set" env:"COMMAND_TOPIC"`
	} `yaml:"mqtt" env:"MQTT"`

	Relays cfgRelays `yaml:"relays"`
}

type cfgMQTT struct {
	ClientID  string `yaml:"client_id" env:"CLIENT_ID"`
	Broker    string `yaml:"broker" default:"127.0.0.1:1883" env:"BROKER"`
	Username  string `yaml:"username" env:"USERNAME"`
	Password  string `yaml:"password" env:"PASSWORD"`
	TopicRoot string `yaml:"topic_root" default:"tbmqttcover/" env:"TOPIC_ROOT"`
}

type cfgHASS struct {
	Discovery   bool   `yaml:"discovery" default:"true" env:"DISCOVERY"`
	TopicPrefix string `yaml:"topic_prefix" default:"homeassistant" env:"TOPIC_PREFIX"`
}

type cfgPersistence struct {
	Kind     string        `yaml:"kind" default:"json" env:"KIND"`
	Path     string        `yaml:"path" default:"tbcover2mqtt.json" env:"PATH"`
	Interval time.Duration `yaml:"interval" default:"24h" env:"INTERVAL"`
}

type cfgHTTP struct {
	Listen string `yaml:"listen" env:"LISTEN"`
}

type cfgCover struct {
	Parent       string  `yaml:"parent"`
	FriendlyName string  `yaml:"friendly_name"`
	UniqueID     string  `yaml:"unique_id"`
	TimeToOpen   float64 `yaml:"time_to_open"`
	TimeToClose  float64 `yaml:"time_to_close"`
	ReactionTime float64 `yaml:"reaction_time"`
}

var Cfg struct {
	LogLevel string `yaml:"log_level" default:"info" env:"LOG_LEVEL"`
	Debug    bool   `yaml:"debug" env:"DEBUG"`

	MQTT        cfgMQTT        `yaml:"mqtt" env:"MQTT"`
	HASS        cfgHASS        `yaml:"hass" env:"HASS"`
	Actuator    cfgActuator    `yaml:"actuator" env:"ACTUATOR"`
	Persistence cfgPersistence `yaml:"persistence" env:"PERSISTENCE"`
	HTTP        cfgHTTP        `yaml:"http" env:"HTTP"`

	Covers []cfgCover `yaml:"covers"`
}

var configLoader = aconfig.LoaderFor(&Cfg, aconfig.Config{
	EnvPrefix: "TBC",
	SkipFlags: true,
	SkipFiles: true,
})

func loadConfigFromYamlFile(filename string) {
	f, err := os.Open(filename)
	if err != nil {
		logrus.Error(err)
		return
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&Cfg); err != nil {
		logrus.Fatal(err)
	}
}

func logLevelFromConfig() logrus.Level {
	if Cfg.Debug {
		return logrus.DebugLevel
	}

	level, err := logrus.ParseLevel(Cfg.LogLevel)
	if err != nil {
		logrus.Fatal(err)
	}

	return level
}

func pahoOptsFromConfig() *paho.ClientOptions {
	clientID := Cfg.MQTT.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("tbcover2mqtt-%s", uuid.NewString())
	}

	return paho.NewClientOptions().
		SetClientID(clientID).
		AddBroker(Cfg.MQTT.Broker).
		SetUsername(Cfg.MQTT.Username).
		SetPassword(Cfg.MQTT.Password).
		SetConnectTimeout(time.Second).
		SetPingTimeout(time.Second).
		SetWriteTimeout(time.Second).
		SetAutoReconnect(true)
}

func bridgeOptsFromConfig() []mqtt.Option {
	if !Cfg.HASS.Discovery {
		return nil
	}

	return []mqtt.Option{mqtt.WithDiscovery(Cfg.HASS.TopicPrefix)}
}

type closableStore interface {
	registry.Store
	Close() error
}

func storeFromConfig() closableStore {
	switch Cfg.Persistence.Kind {
	case "json":
		return store.NewJSONFile(Cfg.Persistence.Path)
	case "sqlite":
		s, err := store.OpenSQLite(Cfg.Persistence.Path)
		if err != nil {
			logrus.Fatal(err)
		}
		return s
	}

	logrus.Fatalf("%s is not supported persistence kind", Cfg.Persistence.Kind)
	return nil
}

// actuatorFromConfig returns the actuator and a cleanup run on shutdown.
func actuatorFromConfig(ctx context.Context, client paho.Client) (motion.Actuator, func()) {
	switch Cfg.Actuator.Kind {
	case "hass":
		c := hass.NewClient(Cfg.Actuator.HASS.URL, Cfg.Actuator.HASS.Token)
		return c, func() {
			if err := c.Disconnect(); err != nil {
				logrus.Errorf("hass: disconnect: %s", err)
			}
		}
	case "mqtt":
		return mqtt.NewActuator(client, Cfg.Actuator.MQTT.CommandTopic), func() {}
	case "relays":
		a := relaysFromConfig(ctx, Cfg.Actuator.Relays)
		return a, a.StopAll
	}

	logrus.Fatalf("%s is not supported actuator kind", Cfg.Actuator.Kind)
	return nil, nil
}

func coverConfigsFromConfig() []cover.Config {
	configs := make([]cover.Config, 0, len(Cfg.Covers))
	for _, c := range Cfg.Covers {
		configs = append(configs, cover.Config{
			Parent:       c.Parent,
			FriendlyName: c.FriendlyName,
			UniqueID:     c.UniqueID,
			TimeToOpen:   cover.Seconds(c.TimeToOpen),
			TimeToClose:  cover.Seconds(c.TimeToClose),
			ReactionTime: cover.Seconds(c.ReactionTime),
		})
	}

	return configs
}

var relaysPool chan struct{}

func relaysFromConfig(ctx context.Context, cfg cfgRelays) *relay.Actuator {
	if cfg.Pool > 0 {
		relaysPool = make(chan struct{}, cfg.Pool)
	}

	pairs := make(map[string]*relay.Pair, len(cfg.Pairs))
	for parent, p := range cfg.Pairs {
		pairs[parent] = relay.NewPair(
			relayFromConfig(ctx, parent+" up", p.Up),
			relayFromConfig(ctx, parent+" down", p.Down),
		)
	}

	return relay.NewActuator(pairs)
}

func relayFromConfig(ctx context.Context, name string, cfg cfgRelay) relay.Relay {
	if cfg.Kind == "wired" {
		return wrapRelayWithPoolProxy(&relay.Wired{
			Pin:          wiredRelaySetPinFromConfig(ctx, cfg.Pin),
			NormalClosed: cfg.NormalClosed,
		})
	}

	if cfg.Kind == "dumb" {
		return wrapRelayWithPoolProxy(&relay.Dumb{Name: name})
	}

	logrus.Fatalf("%s is not supported relay kind", cfg.Kind)
	return nil
}

func wrapRelayWithPoolProxy(r relay.Relay) relay.Relay {
	if relaysPool == nil {
		return r
	}

	return relay.NewPoolProxy(r, relaysPool)
}

func wiredRelaySetPinFromConfig(ctx context.Context, cfg cfgWiredRelaySetPin) relay.SetPin {
	switch cfg.Kind {
	case "mcp23017":
		device := mcp23017DeviceFromConfigByID(ctx, cfg.Mcp23017)

		p, err := relay.NewMcp23017Pin(device, cfg.Pin)
		if err != nil {
			logrus.Fatal(err)
		}
		return p
	case "rpio":
		openRpio(ctx)
		return relay.NewRpioPin(cfg.Pin)
	}

	logrus.Fatalf("%s is not supported wired relay set pin kind", cfg.Kind)
	return nil
}

var rpioOpened bool

func openRpio(ctx context.Context) {
	if rpioOpened {
		return
	}

	if err := rpio.Open(); err != nil {
		logrus.Fatal(err)
	}
	rpioOpened = true

	go func() {
		<-ctx.Done()
		if err := rpio.Close(); err != nil {
			logrus.Errorf("rpio: close failed %s", err)
			return
		}

		logrus.Infof("rpio: close")
	}()
}

var mcpDevices = map[int]*mcp23017.Device{}

func mcp23017DeviceFromConfigByID(ctx context.Context, id int) *mcp23017.Device {
	if Cfg.Actuator.Relays.Mcp23017 == nil {
		logrus.Fatal("actuator.relays.mcp23017 not defined")
	}

	cfg, found := Cfg.Actuator.Relays.Mcp23017[id]
	if !found {
		logrus.Fatalf("%d is not valid defined actuator.relays.mcp23017", id)
		return nil
	}

	dev := mcpDevices[id]
	if dev == nil {
		var err error
		dev, err = mcp23017.Open(cfg.Bus, cfg.DeviceNumber)
		if err != nil {
			logrus.Fatal(err)
		}
		go func() {
			<-ctx.Done()
			if err := dev.Close(); err != nil {
				logrus.Errorf("mcp23017: close failed %s", err)
				return
			}

			logrus.Infof("mcp23017: close")
		}()
		if err := dev.Reset(); err != nil {
			logrus.Fatal(err)
		}

		mcpDevices[id] = dev
	}

	return dev
}
