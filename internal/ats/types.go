package ats

import "fmt"

// PanelFamily selects the login variant. It is resolved once per session,
// either from configuration or from the hello response, and never changes
// while the session lives.
type PanelFamily int

const (
	FamilyUnknown PanelFamily = iota
	FamilyX500                // PIN login
	FamilyX700                // username/password login
)

func (f PanelFamily) String() string {
	switch f {
	case FamilyX500:
		return "x500"
	case FamilyX700:
		return "x700"
	default:
		return "unknown"
	}
}

// Auth carries the credentials for a session. Family may be FamilyUnknown,
// in which case the family reported by the hello response decides which
// credential is used.
type Auth struct {
	Family   PanelFamily
	Pin      string
	Username string
	Password string
}

// PanelInfo is the identity reported by the hello exchange.
type PanelInfo struct {
	Model    string
	Firmware string
	Family   PanelFamily
}

// EntityKind addresses one of the four panel entity classes.
type EntityKind byte

const (
	KindArea EntityKind = iota + 1
	KindZone
	KindDoor
	KindOutput
)

func (k EntityKind) String() string {
	switch k {
	case KindArea:
		return "area"
	case KindZone:
		return "zone"
	case KindDoor:
		return "door"
	case KindOutput:
		return "output"
	default:
		return fmt.Sprintf("kind %d", byte(k))
	}
}

// ArmState is the wire-level area set state.
type ArmState byte

const (
	ArmStateDisarmed ArmState = 0x00
	ArmStateAway     ArmState = 0x01
	ArmStateHome     ArmState = 0x02
	ArmStateNight    ArmState = 0x03
	ArmStateExit     ArmState = 0x04 // exit timer running, arming
	ArmStateEntry    ArmState = 0x05 // entry timer running, pending
	ArmStateAlarm    ArmState = 0x06
)

func (s ArmState) String() string {
	switch s {
	case ArmStateDisarmed:
		return "Disarmed"
	case ArmStateAway:
		return "Armed Away"
	case ArmStateHome:
		return "Armed Home"
	case ArmStateNight:
		return "Armed Night"
	case ArmStateExit:
		return "Arming"
	case ArmStateEntry:
		return "Pending"
	case ArmStateAlarm:
		return "Triggered"
	default:
		return fmt.Sprintf("Unknown ArmState(%d)", byte(s))
	}
}

// ArmMode selects how an area is set.
type ArmMode byte

const (
	ArmAway  ArmMode = 0x01
	ArmHome  ArmMode = 0x02
	ArmNight ArmMode = 0x03
)

func (m ArmMode) String() string {
	switch m {
	case ArmAway:
		return "away"
	case ArmHome:
		return "home"
	case ArmNight:
		return "night"
	default:
		return fmt.Sprintf("mode %d", byte(m))
	}
}

// AreaStatus is the decoded state of one area.
type AreaStatus struct {
	Number int
	State  ArmState
	Alarm  bool
	Tamper bool
	Fire   bool
	Panic  bool
}

// ZoneStatus is the decoded state of one zone.
type ZoneStatus struct {
	Number    int
	Area      int
	Active    bool
	Tamper    bool
	Fault     bool
	Alarm     bool
	Isolated  bool
	Inhibited bool
}

// DoorStatus is the decoded state of one door.
type DoorStatus struct {
	Number       int
	Locked       bool
	Open         bool
	Forced       bool
	OpenTooLong  bool
	ReaderTamper bool
}

// OutputStatus is the decoded state of one output.
type OutputStatus struct {
	Number int
	Active bool
}

// PollStatus is a full-state poll response: every entity the panel knows,
// with authoritative state.
type PollStatus struct {
	Areas   []AreaStatus
	Zones   []ZoneStatus
	Doors   []DoorStatus
	Outputs []OutputStatus
}

// NamedItem is one entry of a name download.
type NamedItem struct {
	Number int
	Name   string
}

// Event is one decoded inbound message. Concrete types: AreaEvent,
// ZoneEvent, DoorEvent, OutputEvent, AlarmEvent, TamperEvent,
// HeartbeatEvent and UnknownEvent.
type Event interface{}

type AreaEvent struct {
	Status AreaStatus
}

type ZoneEvent struct {
	Status ZoneStatus
}

type DoorEvent struct {
	Status DoorStatus
}

type OutputEvent struct {
	Status OutputStatus
}

// AlarmEvent reports an alarm raised in an area, ahead of the area state
// update that follows it.
type AlarmEvent struct {
	Area int
}

// TamperEvent reports tamper on any entity class.
type TamperEvent struct {
	Kind   EntityKind
	Number int
}

type HeartbeatEvent struct{}

// UnknownEvent wraps any well-framed message this codec does not
// recognize. Decoding is total over the stream: unknown messages are
// logged, never fatal.
type UnknownEvent struct {
	Opcode  byte
	Payload []byte
}
