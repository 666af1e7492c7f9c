package motion

// Command is an inbound control message addressed to one cover.
type Command interface {
	CoverID() string
	command()
}

type Action string

const (
	ActionOpen  Action = "OPEN"
	ActionClose Action = "CLOSE"
	ActionStop  Action = "STOP"
)

// ParseAction maps a set_cover payload. Anything that is not OPEN or STOP
// closes the cover.
func ParseAction(payload string) Action {
	switch Action(payload) {
	case ActionOpen, ActionStop:
		return Action(payload)
	default:
		return ActionClose
	}
}

type SetCover struct {
	ID     string
	Action Action
}

type SetPosition struct {
	ID       string
	Position int
}

type SetInvert struct {
	ID     string
	Invert bool
}

func (c SetCover) CoverID() string    { return c.ID }
func (c SetPosition) CoverID() string { return c.ID }
func (c SetInvert) CoverID() string   { return c.ID }

func (SetCover) command()    {}
func (SetPosition) command() {}
func (SetInvert) command()   {}
