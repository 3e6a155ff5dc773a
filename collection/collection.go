// Package collection maintains the authoritative in-memory set of known
// Python environments, built by consuming the finder's record stream.
package collection

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/pyscout/core/errors"
	"github.com/pyscout/core/protocol"
	"github.com/pyscout/core/util/events"
)

// ChangeKind discriminates collection change events.
type ChangeKind string

const (
	Created ChangeKind = "Created"
	Changed ChangeKind = "Changed"
)

// ChangeEvent is fired on every collection mutation, in mutation order.
// Old is set only for Changed events.
type ChangeEvent struct {
	Kind ChangeKind
	Old  *Environment
	New  *Environment
}

// Resolver performs a worker-side resolve of a single candidate path.
type Resolver func(ctx context.Context, path string) (*protocol.EnvironmentRecord, error)

// resolveTTL is the window during which repeated resolve calls for the same
// path return the cached outcome without hitting the worker.
const resolveTTL = 30 * time.Second

const resolveCacheSize = 512

type resolveOutcome struct {
	env *Environment
	err error
}

// Collection is an ordered set of environments, unique by executable path.
// Inserting a duplicate path replaces the old entry in place and fires
// Changed; a new path appends and fires Created.
type Collection struct {
	logger   *logrus.Entry
	resolver Resolver

	// writeMu serializes mutations and their event emission so events fire
	// in mutation order. Handlers may read the collection but must not
	// mutate it synchronously.
	writeMu sync.Mutex

	dataMu   sync.RWMutex
	order    []string
	envs     map[string]*Environment
	managers map[string]*protocol.ManagerRecord

	changes events.Emitter[ChangeEvent]

	resolveCache *expirable.LRU[string, resolveOutcome]
}

// New creates an empty collection. resolver may be nil when ResolveEnv is
// not needed (it then fails with ENV_NOT_FOUND).
func New(resolver Resolver, logger *logrus.Entry) *Collection {
	return &Collection{
		logger:       logger,
		resolver:     resolver,
		envs:         make(map[string]*Environment),
		managers:     make(map[string]*protocol.ManagerRecord),
		resolveCache: expirable.NewLRU[string, resolveOutcome](resolveCacheSize, nil, resolveTTL),
	}
}

// OnChange subscribes to change events. Firing is synchronous and in-order;
// the returned function removes the subscription.
func (c *Collection) OnChange(fn func(ChangeEvent)) (remove func()) {
	return c.changes.Subscribe(fn)
}

// AddRecord consumes one raw record from a refresh stream. Invalid records
// are logged and dropped; the refresh continues.
func (c *Collection) AddRecord(rec protocol.RawRecord) {
	switch {
	case rec.Manager != nil:
		c.addManager(rec.Manager)
	case rec.Environment != nil:
		c.AddEnv(rec.Environment)
	}
}

// AddEnv normalizes a raw environment record and merges it into the
// collection.
func (c *Collection) AddEnv(rec *protocol.EnvironmentRecord) {
	env, err := Normalize(rec, c.logger)
	if err != nil {
		c.logger.WithError(err).WithField("executable", rec.Executable).Error("Dropping invalid environment record")
		return
	}
	c.upsert(env)
}

// upsert inserts or replaces env under its identity key and fires the
// corresponding event.
func (c *Collection) upsert(env *Environment) {
	key := identityKey(env)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.dataMu.Lock()
	old, exists := c.envs[key]
	c.envs[key] = env
	if !exists {
		c.order = append(c.order, key)
	}
	c.dataMu.Unlock()

	if exists {
		oldCopy := *old
		newCopy := *env
		c.changes.Emit(ChangeEvent{Kind: Changed, Old: &oldCopy, New: &newCopy})
	} else {
		newCopy := *env
		c.changes.Emit(ChangeEvent{Kind: Created, New: &newCopy})
	}
}

// identityKey is the executable path; environments without a python binary
// (bare conda environment directories) key on their location instead.
func identityKey(env *Environment) string {
	if env.Executable.Path != "" {
		return env.Executable.Path
	}
	return env.Location
}

// GetEnvs returns a snapshot of the current environments in insertion order.
// The caller may mutate the returned values freely.
func (c *Collection) GetEnvs() []Environment {
	c.dataMu.RLock()
	defer c.dataMu.RUnlock()

	out := make([]Environment, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, *c.envs[key])
	}
	return out
}

// Lookup returns the environment for an executable path, if known.
func (c *Collection) Lookup(path string) (Environment, bool) {
	c.dataMu.RLock()
	defer c.dataMu.RUnlock()

	env, ok := c.envs[path]
	if !ok {
		return Environment{}, false
	}
	return *env, true
}

// Len returns the number of known environments.
func (c *Collection) Len() int {
	c.dataMu.RLock()
	defer c.dataMu.RUnlock()
	return len(c.order)
}

// ResolveEnv resolves a single candidate path through the worker and merges
// the outcome into the collection. Outcomes are cached for 30 seconds per
// distinct path, bounding worker load when many callers probe the same
// interpreter in quick succession.
func (c *Collection) ResolveEnv(ctx context.Context, path string) (*Environment, error) {
	if outcome, ok := c.resolveCache.Get(path); ok {
		return outcome.env, outcome.err
	}

	env, err := c.resolveUncached(ctx, path)
	c.resolveCache.Add(path, resolveOutcome{env: env, err: err})
	return env, err
}

func (c *Collection) resolveUncached(ctx context.Context, path string) (*Environment, error) {
	if c.resolver == nil {
		return nil, errors.EnvNotFound(path)
	}

	rec, err := c.resolver(ctx, path)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.EnvNotFound(path)
	}

	env, err := Normalize(rec, c.logger)
	if err != nil {
		return nil, err
	}
	c.upsert(env)

	result := *env
	return &result, nil
}

func (c *Collection) addManager(mgr *protocol.ManagerRecord) {
	copied := *mgr

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.dataMu.Lock()
	c.managers[mgr.Executable] = &copied
	c.dataMu.Unlock()
}

// GetManagers returns a snapshot of the known environment manager tools.
func (c *Collection) GetManagers() []protocol.ManagerRecord {
	c.dataMu.RLock()
	defer c.dataMu.RUnlock()

	out := make([]protocol.ManagerRecord, 0, len(c.managers))
	for _, mgr := range c.managers {
		out = append(out, *mgr)
	}
	return out
}
