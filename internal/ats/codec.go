package ats

import (
	"encoding/binary"
	"fmt"
)

// Plaintext command opcodes (first byte of a decrypted C-frame body).
const (
	opHello     = 0x01
	opLoginPin  = 0x02
	opLoginUser = 0x03
	opLogout    = 0x04
	opPoll      = 0x05
	opNames     = 0x06

	opArm     = 0x10
	opDisarm  = 0x11
	opInhibit = 0x12
	opOutput  = 0x13
	opDoor    = 0x14
)

// Door subcommands.
const (
	doorLock     = 0x00
	doorUnlock   = 0x01
	doorMomentary = 0x02
)

// Response body markers.
const (
	respAck = 0x06
	respNak = 0x15
)

// NAK reasons in the auth range. Command rejections use RejectReason.
const (
	nakInvalidPin         = 0x10
	nakInvalidCredentials = 0x11
	nakPermissionDenied   = 0x12
)

// Event opcodes (first byte of a decrypted E-frame body).
const (
	evArea   = 0x20
	evZone   = 0x21
	evDoor   = 0x22
	evOutput = 0x23
	evAlarm  = 0x24
	evTamper = 0x25
)

const protocolVersion = 0x02

const nameFieldLen = 16

// --- command payload encoding ---

func encodeHello() []byte {
	return []byte{opHello, protocolVersion}
}

// encodeLoginPin applies the keypad digit encoding: digits map to
// themselves except 0, which is sent as 0x0a.
func encodeLoginPin(pin string) ([]byte, error) {
	body := make([]byte, 0, len(pin)+1)
	body = append(body, opLoginPin)
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return nil, fmt.Errorf("pin must be numeric")
		}
		digit := pin[i] - '0'
		if digit == 0 {
			digit = 0x0a
		}
		body = append(body, digit)
	}
	return body, nil
}

func encodeLoginUser(username, password string) ([]byte, error) {
	if len(username) > 255 || len(password) > 255 {
		return nil, fmt.Errorf("credentials too long")
	}
	body := []byte{opLoginUser, byte(len(username))}
	body = append(body, username...)
	body = append(body, byte(len(password)))
	body = append(body, password...)
	return body, nil
}

func encodePoll() []byte {
	return []byte{opPoll}
}

func encodeNames(kind EntityKind) []byte {
	return []byte{opNames, byte(kind)}
}

func encodeArm(area int, mode ArmMode, force bool) []byte {
	var flags byte
	if force {
		flags |= 0x01
	}
	return []byte{opArm, byte(area), byte(mode), flags}
}

func encodeDisarm(area int) []byte {
	return []byte{opDisarm, byte(area)}
}

func encodeInhibit(zone int, set bool) []byte {
	var b byte
	if set {
		b = 0x01
	}
	return []byte{opInhibit, byte(zone), b}
}

func encodeOutput(output int, active bool) []byte {
	var b byte
	if active {
		b = 0x01
	}
	return []byte{opOutput, byte(output), b}
}

func encodeDoor(door int, sub byte, seconds uint16) []byte {
	body := []byte{opDoor, byte(door), sub, 0, 0}
	binary.BigEndian.PutUint16(body[3:5], seconds)
	return body
}

// --- response payload decoding ---

// parseResponse splits a decrypted R-frame body into the ack payload, or
// the NAK reason mapped onto the error taxonomy.
func parseResponse(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, &frameError{"empty response body"}
	}
	switch body[0] {
	case respAck:
		return body[1:], nil
	case respNak:
		if len(body) < 2 {
			return nil, &frameError{"nak without reason"}
		}
		switch body[1] {
		case nakInvalidPin:
			return nil, &AuthError{Reason: AuthInvalidPin}
		case nakInvalidCredentials:
			return nil, &AuthError{Reason: AuthInvalidCredentials}
		case nakPermissionDenied:
			return nil, &AuthError{Reason: AuthPermissionDenied}
		default:
			return nil, &RejectionError{Reason: RejectReason(body[1])}
		}
	default:
		return nil, &frameError{fmt.Sprintf("unexpected response marker 0x%02x", body[0])}
	}
}

func parseHello(payload []byte) (PanelInfo, error) {
	if len(payload) < 1+nameFieldLen+8 {
		return PanelInfo{}, &frameError{"short hello response"}
	}
	info := PanelInfo{
		Model:    trimName(payload[1 : 1+nameFieldLen]),
		Firmware: trimName(payload[1+nameFieldLen : 1+nameFieldLen+8]),
	}
	switch payload[0] {
	case 0x05:
		info.Family = FamilyX500
	case 0x07:
		info.Family = FamilyX700
	default:
		info.Family = FamilyUnknown
	}
	return info, nil
}

func parseNames(payload []byte) ([]NamedItem, error) {
	if len(payload) < 1 {
		return nil, &frameError{"short names response"}
	}
	count := int(payload[0])
	payload = payload[1:]
	if len(payload) < count*(1+nameFieldLen) {
		return nil, &frameError{"truncated names response"}
	}
	items := make([]NamedItem, 0, count)
	for i := 0; i < count; i++ {
		rec := payload[i*(1+nameFieldLen):]
		items = append(items, NamedItem{
			Number: int(rec[0]),
			Name:   trimName(rec[1 : 1+nameFieldLen]),
		})
	}
	return items, nil
}

func parsePoll(payload []byte) (PollStatus, error) {
	var status PollStatus
	p := payload

	next := func(n int) ([]byte, bool) {
		if len(p) < n {
			return nil, false
		}
		rec := p[:n]
		p = p[n:]
		return rec, true
	}

	counts, ok := next(1)
	if !ok {
		return status, &frameError{"short poll response"}
	}
	for i := 0; i < int(counts[0]); i++ {
		rec, ok := next(3)
		if !ok {
			return status, &frameError{"truncated area block"}
		}
		status.Areas = append(status.Areas, decodeAreaStatus(rec))
	}

	if counts, ok = next(1); !ok {
		return status, &frameError{"missing zone block"}
	}
	for i := 0; i < int(counts[0]); i++ {
		rec, ok := next(3)
		if !ok {
			return status, &frameError{"truncated zone block"}
		}
		status.Zones = append(status.Zones, decodeZoneStatus(rec))
	}

	if counts, ok = next(1); !ok {
		return status, &frameError{"missing door block"}
	}
	for i := 0; i < int(counts[0]); i++ {
		rec, ok := next(2)
		if !ok {
			return status, &frameError{"truncated door block"}
		}
		status.Doors = append(status.Doors, decodeDoorStatus(rec))
	}

	if counts, ok = next(1); !ok {
		return status, &frameError{"missing output block"}
	}
	for i := 0; i < int(counts[0]); i++ {
		rec, ok := next(2)
		if !ok {
			return status, &frameError{"truncated output block"}
		}
		status.Outputs = append(status.Outputs, OutputStatus{
			Number: int(rec[0]),
			Active: rec[1]&0x01 > 0,
		})
	}

	return status, nil
}

func decodeAreaStatus(rec []byte) AreaStatus {
	return AreaStatus{
		Number: int(rec[0]),
		State:  ArmState(rec[1]),
		Alarm:  rec[2]&0x01 > 0,
		Tamper: rec[2]&0x02 > 0,
		Fire:   rec[2]&0x04 > 0,
		Panic:  rec[2]&0x08 > 0,
	}
}

func decodeZoneStatus(rec []byte) ZoneStatus {
	return ZoneStatus{
		Number:    int(rec[0]),
		Area:      int(rec[1]),
		Active:    rec[2]&0x01 > 0,
		Tamper:    rec[2]&0x02 > 0,
		Fault:     rec[2]&0x04 > 0,
		Alarm:     rec[2]&0x08 > 0,
		Isolated:  rec[2]&0x10 > 0,
		Inhibited: rec[2]&0x20 > 0,
	}
}

func decodeDoorStatus(rec []byte) DoorStatus {
	return DoorStatus{
		Number:       int(rec[0]),
		Locked:       rec[1]&0x01 > 0,
		Open:         rec[1]&0x02 > 0,
		Forced:       rec[1]&0x04 > 0,
		OpenTooLong:  rec[1]&0x08 > 0,
		ReaderTamper: rec[1]&0x10 > 0,
	}
}

// decodeEvent turns a decrypted E-frame body into a typed event. It is
// total: anything with an unrecognized opcode becomes an UnknownEvent.
func decodeEvent(body []byte) Event {
	if len(body) == 0 {
		return UnknownEvent{}
	}
	op, payload := body[0], body[1:]
	switch op {
	case evArea:
		if len(payload) < 3 {
			return UnknownEvent{Opcode: op, Payload: payload}
		}
		return AreaEvent{Status: decodeAreaStatus(payload[:3])}
	case evZone:
		if len(payload) < 3 {
			return UnknownEvent{Opcode: op, Payload: payload}
		}
		return ZoneEvent{Status: decodeZoneStatus(payload[:3])}
	case evDoor:
		if len(payload) < 2 {
			return UnknownEvent{Opcode: op, Payload: payload}
		}
		return DoorEvent{Status: decodeDoorStatus(payload[:2])}
	case evOutput:
		if len(payload) < 2 {
			return UnknownEvent{Opcode: op, Payload: payload}
		}
		return OutputEvent{Status: OutputStatus{
			Number: int(payload[0]),
			Active: payload[1]&0x01 > 0,
		}}
	case evAlarm:
		if len(payload) < 1 {
			return UnknownEvent{Opcode: op, Payload: payload}
		}
		return AlarmEvent{Area: int(payload[0])}
	case evTamper:
		if len(payload) < 2 {
			return UnknownEvent{Opcode: op, Payload: payload}
		}
		return TamperEvent{Kind: EntityKind(payload[0]), Number: int(payload[1])}
	default:
		return UnknownEvent{Opcode: op, Payload: append([]byte(nil), payload...)}
	}
}

func trimName(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == 0 || b[end-1] == ' ') {
		end--
	}
	return string(b[:end])
}
