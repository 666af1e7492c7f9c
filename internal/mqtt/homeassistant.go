package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/jkaflik/tbcover2mqtt/internal/cover"
	"github.com/pkg/errors"
)

var (
	Version      = "0.1.0"
	Manufacturer = "jkaflik"
	Model        = "Time Based MQTT Cover"
)

type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	SWVersion    string   `json:"sw_version"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

type haEntity struct {
	Base        string `json:"~"`
	Name        string `json:"name"`
	UniqueID    string `json:"unique_id"`
	Icon        string `json:"icon,omitempty"`
	DeviceClass string `json:"device_class,omitempty"`

	Device haDevice `json:"device"`
}

type haCover struct {
	haEntity
	CommandTopic        string `json:"command_topic"`
	PositionTopic       string `json:"position_topic"`
	JSONAttributesTopic string `json:"json_attributes_topic"`
	SetPositionTopic    string `json:"set_position_topic"`
	PositionClosed      int    `json:"position_closed"`
	PositionOpen        int    `json:"position_open"`
}

type haSwitch struct {
	haEntity
	CommandTopic string `json:"command_topic"`
	StateTopic   string `json:"state_topic"`
}

type haBinarySensor struct {
	haEntity
	StateTopic string `json:"state_topic"`
}

type discoveryConfig struct {
	Topic   string
	Payload interface{}
}

func relative(suffix string) string {
	return "~" + suffix
}

func newHAEntity(base string, c *cover.Cover, name, uniqueSuffix string) haEntity {
	return haEntity{
		Base:     base,
		Name:     name,
		UniqueID: cover.UIDPrefix + c.ID + uniqueSuffix,
		Device: haDevice{
			Identifiers:  []string{cover.UIDPrefix + c.ID},
			Name:         c.FriendlyName,
			SWVersion:    Version,
			Manufacturer: Manufacturer,
			Model:        Model,
		},
	}
}

// haDiscoveryConfigs returns the cover, the invert switch and the motor
// activity sensor of c.
func haDiscoveryConfigs(prefix, base string, c *cover.Cover) []discoveryConfig {
	coverEntity := haCover{
		haEntity:            newHAEntity(base, c, c.FriendlyName, "_cover"),
		CommandTopic:        relative(setCoverSuffix),
		PositionTopic:       relative(positionSuffix),
		JSONAttributesTopic: relative(attributesSuffix),
		SetPositionTopic:    relative(setPositionSuffix),
		PositionClosed:      cover.ClosedPosition,
		PositionOpen:        cover.OpenPosition,
	}

	invert := haSwitch{
		haEntity:     newHAEntity(base, c, "Invert Direction of Motor", "_invert"),
		CommandTopic: relative(setInvertSuffix),
		StateTopic:   relative(invertStateSuffix),
	}
	invert.Icon = "mdi:directions"

	motor := haBinarySensor{
		haEntity:   newHAEntity(base, c, fmt.Sprintf("%s Motor On/Off", c.FriendlyName), "_motor_on_off"),
		StateTopic: relative(motorOnOffStateSuffix),
	}
	motor.DeviceClass = "moving"

	return []discoveryConfig{
		{Topic: fmt.Sprintf("%s/cover/%s_cover/config", prefix, c.ID), Payload: coverEntity},
		{Topic: fmt.Sprintf("%s/switch/%s_inversed/config", prefix, c.ID), Payload: invert},
		{Topic: fmt.Sprintf("%s/binary_sensor/%s_motor_on_off/config", prefix, c.ID), Payload: motor},
	}
}

func (b *Bridge) publishHAAutoDiscovery(c *cover.Cover) error {
	for _, cfg := range haDiscoveryConfigs(b.discoveryPrefix, b.TopicBase(c.ID), c) {
		payload, err := json.Marshal(cfg.Payload)
		if err != nil {
			return err
		}

		if token := b.mqtt.Publish(cfg.Topic, 0, false, payload); token.WaitTimeout(b.timeout) && token.Error() != nil {
			return errors.Wrapf(cover.ErrTransport, "%s: discovery publish to %s failed: %s", c.ID, cfg.Topic, token.Error())
		}
	}

	return nil
}
