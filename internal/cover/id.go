package cover

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

const (
	MaxIDTries = 100

	// UIDPrefix prefixes every id published to Home Assistant.
	UIDPrefix = "tbmqttc_"
)

var slugReplacer = regexp.MustCompile("[^a-z0-9]+")

func Slugify(name string) string {
	return slugReplacer.ReplaceAllString(strings.ToLower(name), "_")
}

// UniqueID derives an id for cfg that taken reports as free. The configured
// unique id wins over the slugified friendly name; collisions get a
// numbered suffix.
func UniqueID(cfg Config, taken func(id string) bool) (string, error) {
	base := cfg.UniqueID
	if base == "" {
		base = Slugify(cfg.FriendlyName)
	}

	for suffix := 1; suffix <= MaxIDTries; suffix++ {
		id := base
		if suffix > 1 {
			id = fmt.Sprintf("%s_%d", base, suffix)
		}
		if !taken(id) {
			return id, nil
		}
	}

	return "", errors.Wrapf(ErrIDExhausted, "%s: %d tries", base, MaxIDTries)
}
