package panel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"aritech2mqtt/internal/ats"
	"aritech2mqtt/internal/config"
	"aritech2mqtt/internal/log"
	"aritech2mqtt/internal/util"
)

// Session is the protocol surface the panel supervisor drives. *ats.Client
// implements it; tests substitute their own.
type Session interface {
	Connect(ctx context.Context) error
	Login(ctx context.Context) error
	Info() ats.PanelInfo
	Poll(ctx context.Context) (ats.PollStatus, error)
	Names(ctx context.Context, kind ats.EntityKind) ([]ats.NamedItem, error)
	Arm(ctx context.Context, area int, mode ats.ArmMode, force bool) error
	Disarm(ctx context.Context, area int) error
	Inhibit(ctx context.Context, zone int, set bool) error
	SetOutput(ctx context.Context, output int, active bool) error
	LockDoor(ctx context.Context, door int) error
	UnlockDoor(ctx context.Context, door int) error
	MomentaryUnlock(ctx context.Context, door int, duration time.Duration) error
	Events() <-chan ats.Event
	Close() error
}

// Panel owns the session lifecycle: connect, authenticate, load names,
// poll, fold events into the state mirror, and reconnect under backoff
// when the link drops. All state mutation from the wire happens on the
// supervisor goroutine, so events and polls apply in receipt order.
type Panel struct {
	config *config.Config
	log    *log.Logger
	state  *State
	disp   *Dispatcher
	dial   func() (Session, error)

	backoffInitial time.Duration
	backoffMax     time.Duration

	mu          sync.Mutex
	session     Session
	device      Device
	status      ConnectionStatus
	statusFns   []func(ConnectionStatus)
	namesLoaded bool

	forceMu  sync.Mutex
	forceArm map[int]bool

	relockMu sync.Mutex
	relocks  map[int]*time.Timer

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewPanel(cfg *config.Config, logger *log.Logger) *Panel {
	p := &Panel{
		config:         cfg,
		log:            logger,
		state:          NewState(),
		disp:           NewDispatcher(logger, cfg.Aritech.CommandTimeout),
		backoffInitial: 5 * time.Second,
		backoffMax:     2 * time.Minute,
		forceArm:       make(map[int]bool),
		relocks:        make(map[int]*time.Timer),
	}
	p.dial = func() (Session, error) {
		return ats.New(cfg.Aritech.Host, cfg.Aritech.Port, cfg.Aritech.EncryptionKey, authFromConfig(cfg), logger)
	}
	return p
}

func authFromConfig(cfg *config.Config) ats.Auth {
	auth := ats.Auth{
		Pin:      cfg.Aritech.Pin,
		Username: cfg.Aritech.Username,
		Password: cfg.Aritech.Password,
	}
	switch cfg.Aritech.PanelType {
	case config.PanelTypeX500:
		auth.Family = ats.FamilyX500
	case config.PanelTypeX700:
		auth.Family = ats.FamilyX700
	}
	return auth
}

func (p *Panel) State() *State { return p.state }

func (p *Panel) Device() Device {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.device
}

func (p *Panel) Status() ConnectionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// OnStatusChange registers a callback invoked on every connection status
// transition. Callbacks run on the supervisor goroutine and must not block.
func (p *Panel) OnStatusChange(fn func(ConnectionStatus)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusFns = append(p.statusFns, fn)
}

func (p *Panel) setStatus(status ConnectionStatus) {
	p.mu.Lock()
	if p.status == status {
		p.mu.Unlock()
		return
	}
	p.status = status
	fns := make([]func(ConnectionStatus), len(p.statusFns))
	copy(fns, p.statusFns)
	p.mu.Unlock()

	if status == StatusConnected {
		connectionUp.Set(1)
	} else {
		connectionUp.Set(0)
	}
	p.log.Panel("Connection status: %s", status)
	for _, fn := range fns {
		fn(status)
	}
}

// Start establishes the first session synchronously so that callers see a
// populated state mirror on success, then hands the session to the
// reconnect supervisor. Only authentication and key-format failures are
// terminal; transport failures retry under the same backoff policy as a
// mid-session reconnect.
func (p *Panel) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	session, err := p.establish(p.ctx)
	if err != nil {
		if terminal := p.startupError(err); terminal != nil {
			p.cancel()
			return terminal
		}
		p.log.Warn("Failed to reach panel, retrying: %v", err)
		p.setStatus(StatusReconnecting)
		session, err = p.reconnect()
		if err != nil {
			terminal := p.startupError(err)
			p.cancel()
			if terminal == nil {
				p.setStatus(StatusDisconnected)
			}
			return err
		}
	}
	p.setSession(session)
	p.setStatus(StatusConnected)

	p.wg.Add(1)
	go p.supervise(session)
	return nil
}

// startupError returns err if it is terminal for startup (bad credentials
// or a malformed key, which no retry can fix), nil otherwise.
func (p *Panel) startupError(err error) error {
	var authErr *ats.AuthError
	if errors.As(err, &authErr) {
		p.setStatus(StatusAuthFailed)
		return err
	}
	if errors.Is(err, ats.ErrInvalidKeyFormat) {
		return err
	}
	return nil
}

func (p *Panel) setSession(s Session) {
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()
}

func (p *Panel) currentSession() Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// establish dials, authenticates and loads the initial data set: names
// (first session only, unless cache-seeded) and a full status poll.
func (p *Panel) establish(ctx context.Context) (Session, error) {
	p.log.Info("Connecting to panel at %s:%d...", p.config.Aritech.Host, p.config.Aritech.Port)

	session, err := p.dial()
	if err != nil {
		return nil, err
	}
	if err := session.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to panel: %w", err)
	}
	if err := session.Login(ctx); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to log in to panel: %w", err)
	}

	info := session.Info()
	p.mu.Lock()
	p.device = Device{Model: info.Model, Firmware: info.Firmware, Family: info.Family}
	loaded := p.namesLoaded
	p.mu.Unlock()
	p.log.Info("Logged in to %s panel %s (firmware %s)", info.Family, info.Model, info.Firmware)

	if !loaded {
		if err := p.loadNames(ctx, session); err != nil {
			session.Close()
			return nil, fmt.Errorf("failed to load entity names: %w", err)
		}
	}

	// Full poll before any event handling, so the mirror is authoritative
	// from the first moment of the session.
	status, err := session.Poll(ctx)
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("initial poll failed: %w", err)
	}
	p.state.ApplyPoll(status)
	pollsTotal.Inc()

	return session, nil
}

func (p *Panel) loadNames(ctx context.Context, session Session) error {
	for _, kind := range []ats.EntityKind{ats.KindArea, ats.KindZone, ats.KindDoor, ats.KindOutput} {
		items, err := session.Names(ctx, kind)
		if err != nil {
			return err
		}
		for i := range items {
			items[i].Name = util.Normalize(items[i].Name)
		}
		p.state.SetNames(kind, items)
		p.log.Debug("Loaded %d %s names", len(items), kind)
	}
	p.applyOverrides()
	p.mu.Lock()
	p.namesLoaded = true
	p.mu.Unlock()
	return nil
}

// applyOverrides folds configured zone/door name and device class
// overrides over the panel-reported values.
func (p *Panel) applyOverrides() {
	for _, z := range p.config.Zones {
		if z.Name != "" {
			p.state.SetNames(ats.KindZone, []ats.NamedItem{{Number: z.Number, Name: z.Name}})
		}
		if z.DeviceClass != "" {
			p.state.SetZoneDeviceClass(z.Number, z.DeviceClass)
		}
	}
	for _, d := range p.config.Doors {
		if d.Name != "" {
			p.state.SetNames(ats.KindDoor, []ats.NamedItem{{Number: d.Number, Name: d.Name}})
		}
	}
}

// supervise runs one session until it dies, then reconnects under backoff
// until cancelled or authentication fails.
func (p *Panel) supervise(session Session) {
	defer p.wg.Done()

	for {
		p.runSession(session)
		p.setSession(nil)

		if p.ctx.Err() != nil {
			p.setStatus(StatusDisconnected)
			return
		}

		p.log.Warn("Lost connection to panel, reconnecting...")
		p.setStatus(StatusReconnecting)

		var err error
		session, err = p.reconnect()
		if err != nil {
			var authErr *ats.AuthError
			if errors.As(err, &authErr) {
				p.log.Error("Authentication failed during reconnect, giving up: %v", err)
				p.setStatus(StatusAuthFailed)
			} else {
				p.setStatus(StatusDisconnected)
			}
			return
		}
		p.setSession(session)
		p.setStatus(StatusConnected)
		reconnectsTotal.Inc()
	}
}

func (p *Panel) reconnect() (Session, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.backoffInitial
	bo.MaxInterval = p.backoffMax
	bo.MaxElapsedTime = 0

	var session Session
	err := backoff.Retry(func() error {
		s, err := p.establish(p.ctx)
		if err != nil {
			var authErr *ats.AuthError
			if errors.As(err, &authErr) || errors.Is(err, ats.ErrInvalidKeyFormat) {
				return backoff.Permanent(err)
			}
			p.log.Debug("Reconnect attempt failed: %v", err)
			return err
		}
		session = s
		return nil
	}, backoff.WithContext(bo, p.ctx))
	if err != nil {
		return nil, err
	}
	return session, nil
}

// runSession consumes the session's event stream and drives the periodic
// poll from a single goroutine until the stream closes.
func (p *Panel) runSession(session Session) {
	defer session.Close()

	ticker := time.NewTicker(p.config.Aritech.PollInterval)
	defer ticker.Stop()

	events := session.Events()
	for {
		select {
		case <-p.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.handleEvent(ev)
		case <-ticker.C:
			status, err := session.Poll(p.ctx)
			if err != nil {
				p.log.Warn("Poll failed: %v", err)
				continue
			}
			changed := p.state.ApplyPoll(status)
			pollsTotal.Inc()
			if len(changed) > 0 {
				p.log.Debug("Poll reconciled %d entities", len(changed))
			}
		}
	}
}

func (p *Panel) handleEvent(ev ats.Event) {
	switch e := ev.(type) {
	case ats.HeartbeatEvent:
		p.log.Trace("Heartbeat from panel")
		return
	case ats.UnknownEvent:
		p.log.Debug("Ignoring unknown event opcode 0x%02x (%d bytes)", e.Opcode, len(e.Payload))
		return
	case ats.AlarmEvent:
		p.log.Panel("Alarm in area %d", e.Area)
	case ats.TamperEvent:
		p.log.Panel("Tamper on %s %d", e.Kind, e.Number)
	}
	p.state.Apply(ev)
	eventsApplied.Inc()
}

// --- commands ---

// Arm requests the given arm mode for an area. With force set, open zones
// do not block arming; without it the panel rejects a not-ready area.
func (p *Panel) Arm(ctx context.Context, area int, mode ats.ArmMode, force bool) (CommandResult, error) {
	return p.submit(ctx, EntityID{ats.KindArea, area}, func(cctx context.Context, s Session) error {
		return s.Arm(cctx, area, mode, force)
	})
}

// SetAreaForceArm toggles the client-side force-arm flag for one area,
// overriding the configured default for subsequent arm commands.
func (p *Panel) SetAreaForceArm(area int, enabled bool) {
	p.forceMu.Lock()
	p.forceArm[area] = enabled
	p.forceMu.Unlock()
	p.log.Debug("Force arm for area %d set to %t", area, enabled)
}

// AreaForceArm reports whether arm commands for the area should bypass
// zone-readiness checks. Falls back to the configured default when the
// area has no toggle of its own.
func (p *Panel) AreaForceArm(area int) bool {
	p.forceMu.Lock()
	defer p.forceMu.Unlock()
	if v, ok := p.forceArm[area]; ok {
		return v
	}
	return p.config.Aritech.ForceArm
}

func (p *Panel) Disarm(ctx context.Context, area int) (CommandResult, error) {
	return p.submit(ctx, EntityID{ats.KindArea, area}, func(cctx context.Context, s Session) error {
		return s.Disarm(cctx, area)
	})
}

// InhibitZone sets or clears a zone inhibit. The mirror is updated
// optimistically on acknowledge and reconciled by the next poll.
func (p *Panel) InhibitZone(ctx context.Context, zone int, set bool) (CommandResult, error) {
	result, err := p.submit(ctx, EntityID{ats.KindZone, zone}, func(cctx context.Context, s Session) error {
		return s.Inhibit(cctx, zone, set)
	})
	if result == ResultAcknowledged {
		p.state.SetZoneInhibited(zone, set)
	}
	return result, err
}

func (p *Panel) SetOutput(ctx context.Context, output int, active bool) (CommandResult, error) {
	result, err := p.submit(ctx, EntityID{ats.KindOutput, output}, func(cctx context.Context, s Session) error {
		return s.SetOutput(cctx, output, active)
	})
	if result == ResultAcknowledged {
		p.state.SetOutputActive(output, active)
	}
	return result, err
}

func (p *Panel) LockDoor(ctx context.Context, door int) (CommandResult, error) {
	result, err := p.submit(ctx, EntityID{ats.KindDoor, door}, func(cctx context.Context, s Session) error {
		return s.LockDoor(cctx, door)
	})
	if result == ResultAcknowledged {
		p.cancelRelock(door)
		p.state.SetDoorLock(door, true)
	}
	return result, err
}

func (p *Panel) UnlockDoor(ctx context.Context, door int) (CommandResult, error) {
	result, err := p.submit(ctx, EntityID{ats.KindDoor, door}, func(cctx context.Context, s Session) error {
		return s.UnlockDoor(cctx, door)
	})
	if result == ResultAcknowledged {
		p.cancelRelock(door)
		p.state.SetDoorLock(door, false)
	}
	return result, err
}

// MomentaryUnlockDoor unlocks a door for a bounded interval. The panel
// relocks on its own; the mirror schedules a matching local relock so the
// lock state recovers even if the relock event is missed, and the next
// poll reconciles either way.
func (p *Panel) MomentaryUnlockDoor(ctx context.Context, door int, duration time.Duration) (CommandResult, error) {
	if duration <= 0 {
		if override, ok := p.config.DoorOverride(door); ok && override.UnlockDuration > 0 {
			duration = override.UnlockDuration
		} else {
			duration = 5 * time.Second
		}
	}
	result, err := p.submit(ctx, EntityID{ats.KindDoor, door}, func(cctx context.Context, s Session) error {
		return s.MomentaryUnlock(cctx, door, duration)
	})
	if result == ResultAcknowledged {
		p.state.SetDoorLock(door, false)
		p.scheduleRelock(door, duration)
	}
	return result, err
}

func (p *Panel) submit(ctx context.Context, id EntityID, fn func(context.Context, Session) error) (CommandResult, error) {
	session := p.currentSession()
	if session == nil {
		return ResultCancelled, ats.ErrNotConnected
	}
	return p.disp.Submit(ctx, id, func(cctx context.Context) error {
		return fn(cctx, session)
	})
}

func (p *Panel) scheduleRelock(door int, after time.Duration) {
	p.relockMu.Lock()
	defer p.relockMu.Unlock()
	if t, ok := p.relocks[door]; ok {
		t.Stop()
	}
	p.relocks[door] = time.AfterFunc(after, func() {
		p.relockMu.Lock()
		delete(p.relocks, door)
		p.relockMu.Unlock()
		p.state.SetDoorLock(door, true)
	})
}

func (p *Panel) cancelRelock(door int) {
	p.relockMu.Lock()
	defer p.relockMu.Unlock()
	if t, ok := p.relocks[door]; ok {
		t.Stop()
		delete(p.relocks, door)
	}
}

// --- cache ---

// GetCacheableData captures the restart-persistent part of the model.
func (p *Panel) GetCacheableData() CacheData {
	p.mu.Lock()
	device := p.device
	p.mu.Unlock()

	data := CacheData{Device: device}
	for _, a := range p.state.Areas() {
		data.Areas = append(data.Areas, ats.NamedItem{Number: a.Number, Name: a.Name})
	}
	for _, z := range p.state.Zones() {
		data.Zones = append(data.Zones, ats.NamedItem{Number: z.Number, Name: z.Name})
	}
	for _, d := range p.state.Doors() {
		data.Doors = append(data.Doors, ats.NamedItem{Number: d.Number, Name: d.Name})
	}
	for _, o := range p.state.Outputs() {
		data.Outputs = append(data.Outputs, ats.NamedItem{Number: o.Number, Name: o.Name})
	}
	return data
}

// SetCachedData seeds the mirror with names from a previous run, skipping
// the name download on the next connect. States always come from the
// panel.
func (p *Panel) SetCachedData(data CacheData) {
	p.state.SetNames(ats.KindArea, data.Areas)
	p.state.SetNames(ats.KindZone, data.Zones)
	p.state.SetNames(ats.KindDoor, data.Doors)
	p.state.SetNames(ats.KindOutput, data.Outputs)

	p.mu.Lock()
	p.device = data.Device
	p.namesLoaded = len(data.Areas) > 0 || len(data.Zones) > 0
	p.mu.Unlock()

	p.applyOverrides()
	p.log.Debug("Seeded %d areas, %d zones, %d doors, %d outputs from cache",
		len(data.Areas), len(data.Zones), len(data.Doors), len(data.Outputs))
}

// Close tears the session down and waits for the supervisor to exit.
func (p *Panel) Close() {
	p.closeOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		if session := p.currentSession(); session != nil {
			session.Close()
		}
		p.relockMu.Lock()
		for door, t := range p.relocks {
			t.Stop()
			delete(p.relocks, door)
		}
		p.relockMu.Unlock()
		p.wg.Wait()
		p.setStatus(StatusDisconnected)
		p.log.Info("Panel session closed")
	})
}
