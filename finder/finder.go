package finder

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pyscout/core/collection"
	"github.com/pyscout/core/command"
	"github.com/pyscout/core/config"
	"github.com/pyscout/core/logging"
	"github.com/pyscout/core/protocol"
	"github.com/pyscout/core/util/events"
	"github.com/pyscout/core/util/pathutil"
)

// State is the finder-visible refresh state.
type State string

const (
	StateIdle              State = "idle"
	StateDiscoveryStarted  State = "discoveryStarted"
	StateDiscoveryFinished State = "discoveryFinished"
)

// ProgressEvent fires on every refresh state transition.
type ProgressEvent struct {
	State State
}

// TelemetryEvent carries an opaque telemetry payload from the worker.
type TelemetryEvent struct {
	Payload json.RawMessage
}

// Options configure a Finder.
type Options struct {
	// WorkerPath overrides the worker executable; empty means
	// protocol.DefaultWorkerExecutable looked up on PATH.
	WorkerPath string
	// Settings are the discovery settings sent to the worker. Paths are
	// expanded (home dir, env vars) before the configure request.
	Settings config.Settings
	// Executor spawns the worker process; nil means command.NewExecutor().
	Executor command.Executor
	Logger   *logrus.Entry
}

// Finder owns one worker process and the environment collection built from
// its discoveries. Construction starts an eager background refresh; the
// instance must be disposed by its owner.
type Finder struct {
	worker *protocol.Worker
	client *Client
	col    *collection.Collection
	logger *logrus.Entry

	progress  events.Emitter[ProgressEvent]
	telemetry events.Emitter[TelemetryEvent]

	mu        sync.Mutex
	state     State
	current   *Session
	initial   *Session
	configure protocol.ConfigureParams

	removeLog       func()
	removeTelemetry func()
	disposeOnce     sync.Once
}

// New spawns the worker, sends the initial configuration and starts an eager
// discovery scan whose session is handed to the first Refresh caller.
func New(opts Options) (*Finder, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger("finder")
	}
	exec := opts.Executor
	if exec == nil {
		exec = &command.RealExecutor{}
	}
	workerPath := opts.WorkerPath
	if workerPath == "" {
		workerPath = opts.Settings.WorkerPath
	}
	if workerPath == "" {
		workerPath = protocol.DefaultWorkerExecutable
	}

	worker, err := protocol.SpawnWorker(workerPath, exec, logger)
	if err != nil {
		return nil, err
	}

	f := newFinder(worker.Conn(), opts.Settings, logger)
	f.worker = worker
	return f, nil
}

// newFinder wires a finder over an established worker connection and kicks
// off the eager initial scan.
func newFinder(conn *protocol.Connection, settings config.Settings, logger *logrus.Entry) *Finder {
	f := &Finder{
		client:    NewClient(conn, logger),
		logger:    logger,
		state:     StateIdle,
		configure: configureParams(settings, logger),
	}
	f.col = collection.New(f.client.Resolve, logger)

	f.removeLog = conn.OnNotification(protocol.NotifyLog, f.onWorkerLog)
	f.removeTelemetry = conn.OnNotification(protocol.NotifyTelemetry, func(params json.RawMessage) {
		f.telemetry.Emit(TelemetryEvent{Payload: params})
	})

	f.initial = f.startRefresh(context.Background(), protocol.RefreshParams{})
	return f
}

// configureParams maps expanded settings onto the worker's configure
// snapshot. Expansion failures are logged and the offending path skipped.
func configureParams(settings config.Settings, logger *logrus.Entry) protocol.ConfigureParams {
	expand := func(paths []string) []string {
		expanded, errs := pathutil.ExpandAll(paths)
		for _, err := range errs {
			logger.WithError(err).Warn("Skipping unexpandable path in settings")
		}
		return expanded
	}

	params := protocol.ConfigureParams{
		WorkspaceDirs:   expand(settings.Workspaces),
		EnvironmentDirs: expand(append(append([]string(nil), settings.VenvDirs...), settings.SearchPaths...)),
	}
	if settings.CondaPath != "" {
		if p, err := pathutil.Expand(settings.CondaPath); err == nil {
			params.CondaExecutable = p
		}
	}
	if settings.PoetryPath != "" {
		if p, err := pathutil.Expand(settings.PoetryPath); err == nil {
			params.PoetryExecutable = p
		}
	}
	return params
}

// Refresh returns the in-flight session when a scan is already running
// (single-flight), hands the eager construction-time session to its first
// caller while it is still active, and otherwise starts a new scan.
func (f *Finder) Refresh(ctx context.Context, params protocol.RefreshParams) (*Session, error) {
	f.mu.Lock()

	if f.current != nil && f.current.Active() {
		session := f.current
		f.initial = nil
		f.mu.Unlock()
		return session, nil
	}

	// The construction-time eager scan is handed to the first unscoped
	// caller instead of starting a second scan, even when it has already
	// finished. Its records are not replayed; the collection holds them.
	if f.initial != nil && isUnscoped(params) {
		initial := f.initial
		f.initial = nil
		f.mu.Unlock()
		return initial, nil
	}
	f.initial = nil
	f.mu.Unlock()

	if err := f.client.Configure(ctx, f.snapshot()); err != nil {
		return nil, err
	}

	f.mu.Lock()
	// A concurrent caller may have won the race while configure ran.
	if f.current != nil && f.current.Active() {
		session := f.current
		f.mu.Unlock()
		return session, nil
	}
	session, started := f.startRefreshLocked(params)
	f.mu.Unlock()
	if started {
		f.emitState(StateDiscoveryStarted)
	}
	return session, nil
}

func isUnscoped(params protocol.RefreshParams) bool {
	return len(params.Kinds) == 0 && len(params.SearchPaths) == 0
}

// startRefresh sends configure and starts a session, consuming it into the
// collection. Used for the eager construction-time scan.
func (f *Finder) startRefresh(ctx context.Context, params protocol.RefreshParams) *Session {
	if err := f.client.Configure(ctx, f.snapshot()); err != nil {
		f.logger.WithError(err).Error("Initial configure failed")
	}
	f.mu.Lock()
	session, started := f.startRefreshLocked(params)
	f.mu.Unlock()
	if started {
		f.emitState(StateDiscoveryStarted)
	}
	return session
}

func (f *Finder) startRefreshLocked(params protocol.RefreshParams) (*Session, bool) {
	started := f.setStateLocked(StateDiscoveryStarted)

	session := startSession(f.client, params, f.logger)
	f.current = session

	// One dedicated stream feeds the collection; caller streams are opened
	// independently and observe the same records.
	stream := session.Records()
	go f.consume(stream)
	go func() {
		<-session.Done()
		f.mu.Lock()
		finished := f.setStateLocked(StateDiscoveryFinished)
		f.mu.Unlock()
		if finished {
			f.emitState(StateDiscoveryFinished)
		}
	}()

	return session, started
}

func (f *Finder) consume(stream *RecordStream) {
	for {
		rec, err := stream.Next(context.Background())
		if err == io.EOF {
			return
		}
		if err != nil {
			return
		}
		f.col.AddRecord(rec)
	}
}

// setStateLocked records a transition and reports whether one happened. The
// progress event is emitted by the caller after releasing f.mu, so listeners
// may call back into the finder.
func (f *Finder) setStateLocked(state State) bool {
	if f.state == state {
		return false
	}
	f.state = state
	return true
}

func (f *Finder) emitState(state State) {
	f.progress.Emit(ProgressEvent{State: state})
}

// EnvStream is a lazy sequence of normalized environments over one refresh
// session. Manager records and invalid records are skipped.
type EnvStream struct {
	stream *RecordStream
	logger *logrus.Entry
}

// Environments opens a normalized view of the session's record stream.
func (f *Finder) Environments(s *Session) *EnvStream {
	return &EnvStream{stream: s.Records(), logger: f.logger}
}

// Next returns the next normalized environment, io.EOF once the session is
// complete, or the context error on cancellation.
func (e *EnvStream) Next(ctx context.Context) (collection.Environment, error) {
	for {
		rec, err := e.stream.Next(ctx)
		if err != nil {
			return collection.Environment{}, err
		}
		if rec.Environment == nil {
			continue
		}
		env, err := collection.Normalize(rec.Environment, e.logger)
		if err != nil {
			e.logger.WithError(err).Error("Skipping invalid environment record")
			continue
		}
		return *env, nil
	}
}

// State returns the current refresh state.
func (f *Finder) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Finder) snapshot() protocol.ConfigureParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configure
}

// SetSettings replaces the discovery settings. The new snapshot is sent with
// the next refresh; an unchanged snapshot costs no request.
func (f *Finder) SetSettings(settings config.Settings) {
	params := configureParams(settings, f.logger)
	f.mu.Lock()
	f.configure = params
	f.mu.Unlock()
}

// GetEnvs returns the current collection snapshot.
func (f *Finder) GetEnvs() []collection.Environment {
	return f.col.GetEnvs()
}

// GetManagers returns the known environment manager tools.
func (f *Finder) GetManagers() []protocol.ManagerRecord {
	return f.col.GetManagers()
}

// ResolveEnv resolves a single interpreter path and merges it into the
// collection. Outcomes are cached per path for a short window.
func (f *Finder) ResolveEnv(ctx context.Context, path string) (*collection.Environment, error) {
	return f.col.ResolveEnv(ctx, path)
}

// CondaInfo returns the worker's conda diagnostics.
func (f *Finder) CondaInfo(ctx context.Context) (*protocol.CondaInfo, error) {
	return f.client.CondaInfo(ctx)
}

// OnChange subscribes to collection change events.
func (f *Finder) OnChange(fn func(collection.ChangeEvent)) (remove func()) {
	return f.col.OnChange(fn)
}

// OnProgress subscribes to refresh state transitions.
func (f *Finder) OnProgress(fn func(ProgressEvent)) (remove func()) {
	return f.progress.Subscribe(fn)
}

// OnTelemetry subscribes to worker telemetry payloads.
func (f *Finder) OnTelemetry(fn func(TelemetryEvent)) (remove func()) {
	return f.telemetry.Subscribe(fn)
}

// Collection exposes the underlying environment collection.
func (f *Finder) Collection() *collection.Collection {
	return f.col
}

// onWorkerLog routes worker log notifications into the worker component
// logger at the notified level.
func (f *Finder) onWorkerLog(params json.RawMessage) {
	var p protocol.LogParams
	if err := json.Unmarshal(params, &p); err != nil {
		return
	}
	logging.NewLogger("worker").Log(logging.LevelFromWorker(p.Level), p.Message)
}

// Dispose terminates the worker and releases all subscriptions. Idempotent.
// Pending requests are rejected; a disposed finder cannot be reused.
func (f *Finder) Dispose() {
	f.disposeOnce.Do(func() {
		f.removeLog()
		f.removeTelemetry()
		if f.worker != nil {
			f.worker.Dispose()
		} else {
			f.client.Conn().Close(nil)
		}
	})
}
