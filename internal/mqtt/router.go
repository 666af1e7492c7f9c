package mqtt

import (
	"strconv"
	"strings"

	"github.com/jkaflik/tbcover2mqtt/internal/motion"
	"github.com/pkg/errors"
)

const (
	setCoverSuffix    = "set_cover"
	setPositionSuffix = "set_cover_position"
	setInvertSuffix   = "set_invert"

	positionSuffix        = "position"
	attributesSuffix      = "attributes"
	invertStateSuffix     = "invert_state"
	motorOnOffStateSuffix = "motor_on_off_state"

	payloadOn  = "ON"
	payloadOff = "OFF"
)

// ParseCommand turns a message published under root into a command. Topics
// outside root or with an unknown suffix yield a nil command and no error.
func ParseCommand(root, topic string, payload []byte) (motion.Command, error) {
	if !strings.HasPrefix(topic, root) {
		return nil, nil
	}

	rest := strings.TrimPrefix(topic, root)
	i := strings.LastIndex(rest, "/")
	if i <= 0 {
		return nil, nil
	}
	id, suffix := rest[:i], rest[i+1:]

	switch suffix {
	case setCoverSuffix:
		return motion.SetCover{ID: id, Action: motion.ParseAction(string(payload))}, nil
	case setPositionSuffix:
		position, err := strconv.Atoi(strings.TrimSpace(string(payload)))
		if err != nil {
			return nil, errors.Wrapf(err, "%s: invalid position %q", id, payload)
		}
		return motion.SetPosition{ID: id, Position: position}, nil
	case setInvertSuffix:
		return motion.SetInvert{ID: id, Invert: string(payload) == payloadOn}, nil
	}

	return nil, nil
}
