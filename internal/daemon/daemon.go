package daemon

import (
	"context"
	"time"

	"github.com/jkaflik/tbcover2mqtt/internal/cover"
	"github.com/jkaflik/tbcover2mqtt/internal/metrics"
	"github.com/jkaflik/tbcover2mqtt/internal/motion"
	"github.com/jkaflik/tbcover2mqtt/internal/registry"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const DefaultPersistEvery = 24 * time.Hour

var ErrStopped = errors.New("daemon stopped")

type Option func(*Daemon)

func WithPersistEvery(d time.Duration) Option {
	return func(dm *Daemon) {
		if d > 0 {
			dm.persistEvery = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(dm *Daemon) { dm.metrics = m }
}

// Daemon is the single goroutine owning the registry and the controller.
// Everything touching a cover (commands, movement timers, broadcast and
// persistence ticks, snapshots) is posted to it and runs to completion
// there.
type Daemon struct {
	events       chan func()
	done         chan struct{}
	persistEvery time.Duration
	metrics      *metrics.Metrics

	registry   *registry.Registry
	controller *motion.Controller
}

func New(opts ...Option) *Daemon {
	d := &Daemon{
		events:       make(chan func(), 64),
		done:         make(chan struct{}),
		persistEvery: DefaultPersistEvery,
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Post queues f on the daemon goroutine. It returns false once the daemon
// has stopped.
func (d *Daemon) Post(f func()) bool {
	select {
	case <-d.done:
		return false
	default:
	}

	select {
	case d.events <- f:
		return true
	case <-d.done:
		return false
	}
}

// Command queues cmd for the controller.
func (d *Daemon) Command(cmd motion.Command) {
	if !d.Post(func() { _ = d.controller.Handle(cmd) }) {
		logrus.Warnf("%s: command %T dropped, daemon stopped", cmd.CoverID(), cmd)
	}
}

// Snapshot returns fresh records of all covers, or only of id when given.
func (d *Daemon) Snapshot(ctx context.Context, id string) ([]cover.Record, error) {
	result := make(chan []cover.Record, 1)
	errc := make(chan error, 1)

	posted := d.Post(func() {
		var covers []*cover.Cover
		if id == "" {
			covers = d.registry.All()
		} else if c, found := d.registry.Get(id); found {
			covers = []*cover.Cover{c}
		} else {
			errc <- errors.Wrapf(cover.ErrUnknownCover, "%s", id)
			return
		}

		records := make([]cover.Record, 0, len(covers))
		for _, c := range covers {
			d.controller.Refresh(c)
			records = append(records, c.Record())
		}
		result <- records
	})
	if !posted {
		return nil, ErrStopped
	}

	select {
	case records := <-result:
		return records, nil
	case err := <-errc:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run processes events until ctx is canceled, then persists all covers.
func (d *Daemon) Run(ctx context.Context, registry *registry.Registry, controller *motion.Controller) {
	d.registry = registry
	d.controller = controller
	defer close(d.done)

	ticker := time.NewTicker(d.persistEvery)
	defer ticker.Stop()

	// resolves covers restored while moving
	controller.Broadcaster().Kick()

	logrus.Infof("daemon: running %d covers, persisting every %s", registry.Len(), d.persistEvery)

	for {
		select {
		case <-ctx.Done():
			logrus.Info("daemon: stopping")
			d.persist()
			return
		case f := <-d.events:
			f()
		case <-ticker.C:
			d.persist()
		}
	}
}

func (d *Daemon) persist() {
	d.metrics.Persist(d.registry.PersistAll())
}
