package mqtt

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/tbcover2mqtt/internal/cover"
	"github.com/pkg/errors"
)

const DefaultCommandTopic = "%s/set"

// Actuator drives parent covers that take OPEN/CLOSE/STOP payloads on a
// command topic of their own. commandTopic is a format with a single %s
// for the parent.
type Actuator struct {
	mqtt         mqtt.Client
	commandTopic string
}

func NewActuator(client mqtt.Client, commandTopic string) *Actuator {
	if commandTopic == "" || !strings.Contains(commandTopic, "%s") {
		commandTopic = DefaultCommandTopic
	}

	return &Actuator{mqtt: client, commandTopic: commandTopic}
}

func (a *Actuator) Open(ctx context.Context, parent string) error {
	return a.send(ctx, parent, "OPEN")
}

func (a *Actuator) Close(ctx context.Context, parent string) error {
	return a.send(ctx, parent, "CLOSE")
}

func (a *Actuator) Stop(ctx context.Context, parent string) error {
	return a.send(ctx, parent, "STOP")
}

func (a *Actuator) send(ctx context.Context, parent, payload string) error {
	topic := fmt.Sprintf(a.commandTopic, parent)

	timeout := time.Second
	if d, ok := ctx.Deadline(); ok {
		timeout = time.Until(d)
	}

	if token := a.mqtt.Publish(topic, 1, false, payload); token.WaitTimeout(timeout) && token.Error() != nil {
		return errors.Wrapf(cover.ErrActuator, "%s: MQTT %s publish failed: %s", parent, payload, token.Error())
	}

	return nil
}
