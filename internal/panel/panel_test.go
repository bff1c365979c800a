package panel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aritech2mqtt/internal/ats"
	"aritech2mqtt/internal/config"
)

// fakeSession is an in-process protocol client with scripted behavior.
type fakeSession struct {
	mu        sync.Mutex
	info      ats.PanelInfo
	names     map[ats.EntityKind][]ats.NamedItem
	poll      ats.PollStatus
	loginErr  error
	onArm     func(area int, mode ats.ArmMode, force bool) error
	events    chan ats.Event
	closed    bool
	nameCalls int
	pollCalls int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		info: ats.PanelInfo{Model: "ATS3500A", Firmware: "MR1.2", Family: ats.FamilyX500},
		names: map[ats.EntityKind][]ats.NamedItem{
			ats.KindArea: {{Number: 1, Name: "House"}},
			ats.KindZone: {{Number: 1, Name: "Front Door"}, {Number: 2, Name: "Hallway PIR"}},
			ats.KindDoor: {{Number: 1, Name: "Main Entrance"}},
		},
		poll: ats.PollStatus{
			Areas: []ats.AreaStatus{{Number: 1, State: ats.ArmStateDisarmed}},
			Zones: []ats.ZoneStatus{{Number: 1, Area: 1}, {Number: 2, Area: 1, Active: true}},
			Doors: []ats.DoorStatus{{Number: 1, Locked: true}},
		},
		events: make(chan ats.Event, 16),
	}
}

func (f *fakeSession) Connect(ctx context.Context) error { return nil }

func (f *fakeSession) Login(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginErr
}

func (f *fakeSession) Info() ats.PanelInfo { return f.info }

func (f *fakeSession) Poll(ctx context.Context) (ats.PollStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCalls++
	return f.poll, nil
}

func (f *fakeSession) Names(ctx context.Context, kind ats.EntityKind) ([]ats.NamedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nameCalls++
	return f.names[kind], nil
}

func (f *fakeSession) Arm(ctx context.Context, area int, mode ats.ArmMode, force bool) error {
	f.mu.Lock()
	fn := f.onArm
	f.mu.Unlock()
	if fn != nil {
		return fn(area, mode, force)
	}
	return nil
}

func (f *fakeSession) Disarm(ctx context.Context, area int) error              { return nil }
func (f *fakeSession) Inhibit(ctx context.Context, zone int, set bool) error   { return nil }
func (f *fakeSession) SetOutput(ctx context.Context, o int, active bool) error { return nil }
func (f *fakeSession) LockDoor(ctx context.Context, door int) error            { return nil }
func (f *fakeSession) UnlockDoor(ctx context.Context, door int) error          { return nil }

func (f *fakeSession) MomentaryUnlock(ctx context.Context, door int, d time.Duration) error {
	return nil
}

func (f *fakeSession) Events() <-chan ats.Event { return f.events }

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

// dropConnection simulates a lost link: the event stream closes.
func (f *fakeSession) dropConnection() { f.Close() }

func testConfig() *config.Config {
	return &config.Config{
		Aritech: config.AritechConfig{
			Host:           "panel.local",
			Port:           32000,
			EncryptionKey:  "123456789012345678901234",
			Pin:            "1278",
			PollInterval:   time.Hour, // tests drive polls themselves
			CommandTimeout: time.Second,
		},
	}
}

// testPanel wires a Panel to a sequence of fake sessions. Each reconnect
// consumes the next session in the list.
func testPanel(t *testing.T, sessions ...*fakeSession) *Panel {
	t.Helper()
	p := NewPanel(testConfig(), testLogger())
	var mu sync.Mutex
	next := 0
	p.dial = func() (Session, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(sessions) {
			return nil, errors.New("no session scripted for this dial")
		}
		s := sessions[next]
		next++
		return s, nil
	}
	return p
}

func TestPanelStartLoadsNamesAndState(t *testing.T) {
	fake := newFakeSession()
	p := testPanel(t, fake)
	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	assert.Equal(t, StatusConnected, p.Status())
	assert.Equal(t, "ATS3500A", p.Device().Model)

	z, ok := p.state.Zone(2)
	require.True(t, ok)
	assert.Equal(t, "Hallway PIR", z.Name)
	assert.True(t, z.Active)

	d, ok := p.state.Door(1)
	require.True(t, ok)
	assert.True(t, d.Locked)
}

func TestPanelStartRetriesTransportFailure(t *testing.T) {
	fake := newFakeSession()
	var mu sync.Mutex
	dials := 0
	p := NewPanel(testConfig(), testLogger())
	p.backoffInitial = time.Millisecond
	p.dial = func() (Session, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		if dials < 3 {
			return nil, errors.New("connection refused")
		}
		return fake, nil
	}

	var statuses []ConnectionStatus
	p.OnStatusChange(func(s ConnectionStatus) {
		mu.Lock()
		statuses = append(statuses, s)
		mu.Unlock()
	})

	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	assert.Equal(t, StatusConnected, p.Status())
	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, dials, 3)
	assert.Contains(t, statuses, StatusReconnecting)
}

func TestPanelStartInvalidKeyIsTerminal(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	p := NewPanel(testConfig(), testLogger())
	p.backoffInitial = time.Millisecond
	p.dial = func() (Session, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		return nil, fmt.Errorf("new client: %w", ats.ErrInvalidKeyFormat)
	}

	err := p.Start(context.Background())
	assert.ErrorIs(t, err, ats.ErrInvalidKeyFormat)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, dials, "key format errors must not be retried")
}

func TestPanelStartAuthFailure(t *testing.T) {
	fake := newFakeSession()
	fake.loginErr = &ats.AuthError{Reason: ats.AuthInvalidPin}
	p := testPanel(t, fake)

	err := p.Start(context.Background())
	require.Error(t, err)
	var authErr *ats.AuthError
	assert.ErrorAs(t, err, &authErr)
	assert.Equal(t, StatusAuthFailed, p.Status())
}

func TestPanelEventsApplied(t *testing.T) {
	fake := newFakeSession()
	p := testPanel(t, fake)
	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	fake.events <- ats.ZoneEvent{Status: ats.ZoneStatus{Number: 1, Area: 1, Active: true}}

	require.Eventually(t, func() bool {
		z, _ := p.state.Zone(1)
		return z.Active
	}, time.Second, 5*time.Millisecond)
}

func TestPanelForceArm(t *testing.T) {
	fake := newFakeSession()
	fake.onArm = func(area int, mode ats.ArmMode, force bool) error {
		if !force {
			return &ats.RejectionError{Reason: ats.RejectNotReady}
		}
		return nil
	}
	p := testPanel(t, fake)
	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	result, err := p.Arm(context.Background(), 1, ats.ArmAway, false)
	require.Error(t, err)
	assert.Equal(t, ResultRejected, result)

	result, err = p.Arm(context.Background(), 1, ats.ArmAway, true)
	require.NoError(t, err)
	assert.Equal(t, ResultAcknowledged, result)
}

func TestPanelPerAreaForceArm(t *testing.T) {
	fake := newFakeSession()
	var forces []bool
	fake.onArm = func(area int, mode ats.ArmMode, force bool) error {
		forces = append(forces, force)
		return nil
	}
	p := testPanel(t, fake)
	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	assert.False(t, p.AreaForceArm(1), "config default is off")

	p.SetAreaForceArm(1, true)
	assert.True(t, p.AreaForceArm(1))
	assert.False(t, p.AreaForceArm(2), "toggle is per area")

	_, err := p.Arm(context.Background(), 1, ats.ArmAway, p.AreaForceArm(1))
	require.NoError(t, err)
	_, err = p.Arm(context.Background(), 2, ats.ArmAway, p.AreaForceArm(2))
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, forces)

	p.SetAreaForceArm(1, false)
	assert.False(t, p.AreaForceArm(1))
}

func TestPanelInhibitOptimistic(t *testing.T) {
	fake := newFakeSession()
	p := testPanel(t, fake)
	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	result, err := p.InhibitZone(context.Background(), 2, true)
	require.NoError(t, err)
	assert.Equal(t, ResultAcknowledged, result)

	z, _ := p.state.Zone(2)
	assert.True(t, z.Inhibited)
}

func TestPanelMomentaryUnlockRelocks(t *testing.T) {
	fake := newFakeSession()
	p := testPanel(t, fake)
	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	result, err := p.MomentaryUnlockDoor(context.Background(), 1, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, ResultAcknowledged, result)

	d, _ := p.state.Door(1)
	assert.False(t, d.Locked)

	require.Eventually(t, func() bool {
		d, _ := p.state.Door(1)
		return d.Locked
	}, time.Second, 5*time.Millisecond)
}

func TestPanelReconnect(t *testing.T) {
	first := newFakeSession()
	second := newFakeSession()
	second.poll.Areas[0].State = ats.ArmStateAway

	var mu sync.Mutex
	var statuses []ConnectionStatus
	p := testPanel(t, first, second)
	p.OnStatusChange(func(s ConnectionStatus) {
		mu.Lock()
		statuses = append(statuses, s)
		mu.Unlock()
	})
	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	first.dropConnection()

	require.Eventually(t, func() bool {
		a, ok := p.state.Area(1)
		return ok && a.State == ats.ArmStateAway
	}, 2*time.Second, 5*time.Millisecond, "state not refreshed from new session")
	assert.Equal(t, StatusConnected, p.Status())

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, statuses, StatusReconnecting)

	second.mu.Lock()
	defer second.mu.Unlock()
	assert.Zero(t, second.nameCalls, "names must not be re-downloaded on reconnect")
	assert.Equal(t, 1, second.pollCalls, "reconnect must start with a full poll")
}

func TestPanelReconnectAuthFailureIsTerminal(t *testing.T) {
	first := newFakeSession()
	second := newFakeSession()
	second.loginErr = &ats.AuthError{Reason: ats.AuthInvalidPin}

	p := testPanel(t, first, second)
	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	first.dropConnection()

	require.Eventually(t, func() bool {
		return p.Status() == StatusAuthFailed
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPanelCommandWhileDisconnected(t *testing.T) {
	p := NewPanel(testConfig(), testLogger())

	result, err := p.Arm(context.Background(), 1, ats.ArmAway, false)
	assert.ErrorIs(t, err, ats.ErrNotConnected)
	assert.Equal(t, ResultCancelled, result)
}

func TestPanelCachedNamesSkipDownload(t *testing.T) {
	fake := newFakeSession()
	p := testPanel(t, fake)
	p.SetCachedData(CacheData{
		Device: Device{Model: "ATS3500A", Family: ats.FamilyX500},
		Areas:  []ats.NamedItem{{Number: 1, Name: "House"}},
		Zones:  []ats.NamedItem{{Number: 1, Name: "Front Door"}},
	})

	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Zero(t, fake.nameCalls)
}

func TestPanelClose(t *testing.T) {
	fake := newFakeSession()
	p := testPanel(t, fake)
	require.NoError(t, p.Start(context.Background()))

	p.Close()
	assert.Equal(t, StatusDisconnected, p.Status())
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.True(t, fake.closed)
}

func TestPanelCacheableDataRoundTrip(t *testing.T) {
	fake := newFakeSession()
	p := testPanel(t, fake)
	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	data := p.GetCacheableData()
	assert.Equal(t, "ATS3500A", data.Device.Model)
	assert.Equal(t, []ats.NamedItem{{Number: 1, Name: "House"}}, data.Areas)
	require.Len(t, data.Zones, 2)
	assert.Equal(t, "Front Door", data.Zones[0].Name)
}
