package registry

import (
	"sort"

	"github.com/jkaflik/tbcover2mqtt/internal/cover"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Store interface {
	Load() (map[string]cover.Record, error)
	Save(records map[string]cover.Record) error
}

// Announcer makes a freshly registered cover known to the outside world.
type Announcer interface {
	Announce(c *cover.Cover) error
}

// Registry owns every tracked cover. It is not safe for concurrent use;
// the daemon loop is its only user.
type Registry struct {
	store     Store
	announcer Announcer

	covers   map[string]*cover.Cover
	byParent map[string]string
	stored   map[string]cover.Record
}

func New(store Store, announcer Announcer) *Registry {
	return &Registry{
		store:     store,
		announcer: announcer,
		covers:    map[string]*cover.Cover{},
		byParent:  map[string]string{},
		stored:    map[string]cover.Record{},
	}
}

// Load reads previously persisted state. A failure means starting from
// defaults.
func (r *Registry) Load() {
	records, err := r.store.Load()
	if err != nil {
		logrus.Errorf("registry: no prior state loaded: %s", err)
		return
	}

	r.stored = records
	logrus.Infof("registry: loaded prior state of %d covers", len(records))
}

func (r *Registry) Register(cfg cover.Config) (*cover.Cover, error) {
	if cfg.FriendlyName == "" {
		return nil, errors.Wrap(cover.ErrConfig, "missing friendly name")
	}
	if cfg.Parent == "" {
		return nil, errors.Wrapf(cover.ErrConfig, "%s: missing parent", cfg.FriendlyName)
	}
	if cfg.TimeToOpen <= 0 || cfg.TimeToClose <= 0 {
		return nil, errors.Wrapf(cover.ErrConfig, "%s: time to open and close must be positive", cfg.FriendlyName)
	}
	if cfg.ReactionTime < 0 {
		return nil, errors.Wrapf(cover.ErrConfig, "%s: negative reaction time", cfg.FriendlyName)
	}

	if id, found := r.byParent[cfg.Parent]; found {
		return nil, errors.Wrapf(cover.ErrDuplicateParent, "%s: parent %s used by %s", cfg.FriendlyName, cfg.Parent, id)
	}

	id, err := cover.UniqueID(cfg, func(id string) bool {
		_, found := r.covers[id]
		return found
	})
	if err != nil {
		return nil, err
	}

	c := cover.New(id, cfg)
	if record, found := r.stored[id]; found {
		c.Restore(record)
		logrus.Debugf("%s: restored position %d (%s)", id, c.Position, c.Status)
	}

	r.covers[id] = c
	r.byParent[cfg.Parent] = id
	logrus.Infof("%s: registered cover %q for %s", id, cfg.FriendlyName, cfg.Parent)

	if r.announcer != nil {
		if err := r.announcer.Announce(c); err != nil {
			logrus.Errorf("%s: announce failed: %s", id, err)
		}
	}

	return c, nil
}

func (r *Registry) Get(id string) (*cover.Cover, bool) {
	c, found := r.covers[id]
	return c, found
}

func (r *Registry) FindByParent(parent string) (*cover.Cover, bool) {
	id, found := r.byParent[parent]
	if !found {
		return nil, false
	}

	return r.Get(id)
}

// All returns covers ordered by id.
func (r *Registry) All() []*cover.Cover {
	ids := make([]string, 0, len(r.covers))
	for id := range r.covers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	all := make([]*cover.Cover, 0, len(ids))
	for _, id := range ids {
		all = append(all, r.covers[id])
	}

	return all
}

func (r *Registry) Moving() []*cover.Cover {
	var moving []*cover.Cover
	for _, c := range r.All() {
		if c.IsMoving() {
			moving = append(moving, c)
		}
	}

	return moving
}

func (r *Registry) Len() int {
	return len(r.covers)
}

// PersistAll writes every cover to the store. Failures are logged only.
func (r *Registry) PersistAll() bool {
	records := make(map[string]cover.Record, len(r.covers))
	for id, c := range r.covers {
		records[id] = c.Record()
	}

	if err := r.store.Save(records); err != nil {
		logrus.Errorf("registry: persist failed: %s", err)
		return false
	}

	logrus.Infof("registry: persisted %d covers", len(records))
	return true
}
