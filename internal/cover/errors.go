package cover

import (
	"github.com/pkg/errors"
)

var (
	ErrConfig          = errors.New("invalid cover config")
	ErrDuplicateParent = errors.New("parent already has a cover")
	ErrIDExhausted     = errors.New("no unique cover id available")
	ErrPersistence     = errors.New("cover state persistence failed")
	ErrTransport       = errors.New("transport failed")
	ErrUnknownCover    = errors.New("unknown cover")
	ErrActuator        = errors.New("actuator command failed")
)
