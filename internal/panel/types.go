package panel

import (
	"fmt"

	"aritech2mqtt/internal/ats"
)

// ConnectionStatus is the externally visible session state.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnected
	StatusReconnecting
	StatusAuthFailed
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusAuthFailed:
		return "auth_failed"
	default:
		return "disconnected"
	}
}

// Device is the panel identity, fixed for the life of a session.
type Device struct {
	Model    string
	Firmware string
	Family   ats.PanelFamily
}

// Area is a logical partition of zones that arms and disarms as a unit.
type Area struct {
	Number int
	Name   string
	State  ats.ArmState
	Alarm  bool
	Tamper bool
	Fire   bool
	Panic  bool
}

// Zone is a single sensor input belonging to one area.
type Zone struct {
	Number      int
	Area        int
	Name        string
	DeviceClass string
	Active      bool
	Tamper      bool
	Fault       bool
	Alarm       bool
	Isolated    bool
	Inhibited   bool
}

// Ready reports whether the zone counts against arm readiness. Isolated
// zones are excluded from the check entirely.
func (z Zone) Ready() bool {
	return z.Isolated || !z.Active
}

// Door is an access control point, commanded independently of areas.
type Door struct {
	Number       int
	Name         string
	Locked       bool
	Open         bool
	Forced       bool
	OpenTooLong  bool
	ReaderTamper bool
}

// Output is an addressable relay. No state beyond on/off.
type Output struct {
	Number int
	Name   string
	Active bool
}

// EntityID addresses one entity across all four classes; it is the unit
// of change notification and of command serialization.
type EntityID struct {
	Kind   ats.EntityKind
	Number int
}

func (id EntityID) String() string {
	return fmt.Sprintf("%s %d", id.Kind, id.Number)
}

// CommandResult is the terminal state of a submitted command.
type CommandResult int

const (
	ResultAcknowledged CommandResult = iota
	ResultRejected
	ResultTimedOut
	ResultCancelled
)

func (r CommandResult) String() string {
	switch r {
	case ResultAcknowledged:
		return "acknowledged"
	case ResultRejected:
		return "rejected"
	case ResultTimedOut:
		return "timed_out"
	case ResultCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("result %d", int(r))
	}
}

// CacheData is the restart-persistent part of the model: identity and
// names only. States are never cached; the panel is the source of truth.
type CacheData struct {
	Device  Device
	Areas   []ats.NamedItem
	Zones   []ats.NamedItem
	Doors   []ats.NamedItem
	Outputs []ats.NamedItem
}
