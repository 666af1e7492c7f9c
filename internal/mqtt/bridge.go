package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/tbcover2mqtt/internal/cover"
	"github.com/jkaflik/tbcover2mqtt/internal/motion"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const DefaultTopicRoot = "tbmqttcover/"

type attributes struct {
	Status         cover.Status    `json:"status"`
	Parent         string          `json:"parent"`
	LastMotorStart float64         `json:"last_motor_start"`
	LastMotorStop  float64         `json:"last_motor_stop"`
	RunMotorFor    float64         `json:"run_motor_for"`
	MotorRanFor    float64         `json:"motor_ran_for"`
	Direction      cover.Direction `json:"direction"`
	TimeToOpen     float64         `json:"time_to_open"`
	TimeToClose    float64         `json:"time_to_close"`
	Invert         string          `json:"invert"`
}

type Option func(*Bridge)

// WithDiscovery publishes Home Assistant discovery configs under prefix.
// An empty prefix disables discovery.
func WithDiscovery(prefix string) Option {
	return func(b *Bridge) { b.discoveryPrefix = prefix }
}

func WithTimeout(timeout time.Duration) Option {
	return func(b *Bridge) { b.timeout = timeout }
}

// Bridge publishes cover state and routes command topics of every announced
// cover to a command handler.
type Bridge struct {
	mqtt mqtt.Client

	topicRoot       string
	discoveryPrefix string
	timeout         time.Duration

	onCommand func(motion.Command)

	l             sync.Mutex
	subscriptions []string
}

func NewBridge(client mqtt.Client, topicRoot string, onCommand func(motion.Command), opts ...Option) *Bridge {
	if topicRoot == "" {
		topicRoot = DefaultTopicRoot
	}
	if !strings.HasSuffix(topicRoot, "/") {
		topicRoot += "/"
	}

	b := &Bridge{
		mqtt:      client,
		topicRoot: topicRoot,
		timeout:   time.Second,
		onCommand: onCommand,
	}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

func (b *Bridge) TopicBase(id string) string {
	return fmt.Sprintf("%s%s/", b.topicRoot, id)
}

// Announce publishes discovery configs and the current state of c, then
// subscribes to its command topics.
func (b *Bridge) Announce(c *cover.Cover) error {
	if b.discoveryPrefix != "" {
		if err := b.publishHAAutoDiscovery(c); err != nil {
			return err
		}
		logrus.Debugf("%s: MQTT discovery configs published", c.ID)
	}

	b.PublishStatus(c)
	b.PublishPosition(c, c.CurrentPosition())

	topic := b.TopicBase(c.ID) + "#"
	if err := b.subscribe(topic); err != nil {
		return err
	}

	b.l.Lock()
	b.subscriptions = append(b.subscriptions, topic)
	b.l.Unlock()

	return nil
}

// Resubscribe restores subscriptions after a broker reconnect.
func (b *Bridge) Resubscribe() {
	b.l.Lock()
	topics := append([]string(nil), b.subscriptions...)
	b.l.Unlock()

	for _, topic := range topics {
		if err := b.subscribe(topic); err != nil {
			logrus.Error(err)
		}
	}
}

func (b *Bridge) Unsubscribe() {
	b.l.Lock()
	topics := append([]string(nil), b.subscriptions...)
	b.l.Unlock()

	if len(topics) == 0 {
		return
	}

	if token := b.mqtt.Unsubscribe(topics...); token.WaitTimeout(b.timeout) && token.Error() != nil {
		logrus.Errorf("MQTT topics unsubscribe failed: %s", token.Error())
		return
	}
	logrus.Infof("MQTT %d cover topics unsubscribed", len(topics))
}

func (b *Bridge) subscribe(topic string) error {
	if token := b.mqtt.Subscribe(topic, 0, b.onMessageHandler()); token.WaitTimeout(b.timeout) && token.Error() != nil {
		return errors.Wrapf(cover.ErrTransport, "%s: MQTT subscription failed: %s", topic, token.Error())
	}
	logrus.Infof("%s: MQTT topic subscribed", topic)

	return nil
}

func (b *Bridge) onMessageHandler() mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		cmd, err := ParseCommand(b.topicRoot, msg.Topic(), msg.Payload())
		if err != nil {
			logrus.Errorf("MQTT %s: %s", msg.Topic(), err)
			return
		}
		if cmd == nil {
			return
		}

		logrus.Debugf("%s: MQTT %T received", cmd.CoverID(), cmd)
		b.onCommand(cmd)
	}
}

func (b *Bridge) PublishPosition(c *cover.Cover, position int) {
	logrus.Debugf("%s: publishing position %d", c.ID, position)
	b.publish(c, positionSuffix, fmt.Sprintf("%d", position))
}

func (b *Bridge) PublishStatus(c *cover.Cover) {
	invert := "No"
	if c.Invert {
		invert = "Yes"
	}

	payload, err := json.Marshal(attributes{
		Status:         c.Status,
		Parent:         c.ParentID,
		LastMotorStart: cover.EpochSeconds(c.LastMotorStart),
		LastMotorStop:  cover.EpochSeconds(c.LastMotorStop),
		RunMotorFor:    c.RunMotorFor.Seconds(),
		MotorRanFor:    c.MotorRanFor.Seconds(),
		Direction:      c.Direction,
		TimeToOpen:     c.TimeToOpen.Seconds(),
		TimeToClose:    c.TimeToClose.Seconds(),
		Invert:         invert,
	})
	if err != nil {
		logrus.Errorf("%s: attributes encoding failed: %s", c.ID, err)
		return
	}

	b.publish(c, attributesSuffix, payload)
	b.publish(c, invertStateSuffix, onOff(c.Invert))
	b.publish(c, motorOnOffStateSuffix, onOff(c.IsMoving()))
}

// publish does not block the caller on the broker acknowledgement.
func (b *Bridge) publish(c *cover.Cover, suffix string, payload interface{}) {
	id := c.ID
	token := b.mqtt.Publish(b.TopicBase(id)+suffix, 0, false, payload)

	go func() {
		if token.WaitTimeout(b.timeout) && token.Error() != nil {
			logrus.Errorf("%s: MQTT %s publish failed: %s", id, suffix, errors.Wrap(cover.ErrTransport, token.Error().Error()))
		}
	}()
}

func onOff(on bool) string {
	if on {
		return payloadOn
	}

	return payloadOff
}
