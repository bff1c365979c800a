package ats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeLoginPin(t *testing.T) {
	body, err := encodeLoginPin("1078")
	require.NoError(t, err)
	// 0 travels as 0x0a on the wire
	require.Equal(t, []byte{opLoginPin, 0x01, 0x0a, 0x07, 0x08}, body)

	_, err = encodeLoginPin("12a4")
	require.Error(t, err)
}

func TestEncodeArm(t *testing.T) {
	require.Equal(t, []byte{opArm, 2, byte(ArmNight), 0x00}, encodeArm(2, ArmNight, false))
	require.Equal(t, []byte{opArm, 1, byte(ArmAway), 0x01}, encodeArm(1, ArmAway, true))
}

func TestParseResponse(t *testing.T) {
	payload, err := parseResponse([]byte{respAck, 0xaa, 0xbb})
	require.NoError(t, err)
	require.Equal(t, []byte{0xaa, 0xbb}, payload)

	_, err = parseResponse([]byte{respNak, nakInvalidPin})
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, AuthInvalidPin, authErr.Reason)

	_, err = parseResponse([]byte{respNak, nakPermissionDenied})
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, AuthPermissionDenied, authErr.Reason)

	_, err = parseResponse([]byte{respNak, byte(RejectNotReady)})
	var rejErr *RejectionError
	require.ErrorAs(t, err, &rejErr)
	require.Equal(t, RejectNotReady, rejErr.Reason)

	_, err = parseResponse(nil)
	require.True(t, IsFrameError(err))
}

func TestParseHello(t *testing.T) {
	payload := []byte{0x07}
	payload = append(payload, padName("ATS4500A-IP")...)
	payload = append(payload, padTo("MR_4.2", 8)...)

	info, err := parseHello(payload)
	require.NoError(t, err)
	require.Equal(t, "ATS4500A-IP", info.Model)
	require.Equal(t, "MR_4.2", info.Firmware)
	require.Equal(t, FamilyX700, info.Family)

	_, err = parseHello([]byte{0x05, 0x01})
	require.True(t, IsFrameError(err))
}

func TestParseNames(t *testing.T) {
	payload := []byte{2}
	payload = append(payload, 1)
	payload = append(payload, padName("Ground Floor")...)
	payload = append(payload, 2)
	payload = append(payload, padName("Garage")...)

	items, err := parseNames(payload)
	require.NoError(t, err)
	require.Equal(t, []NamedItem{
		{Number: 1, Name: "Ground Floor"},
		{Number: 2, Name: "Garage"},
	}, items)

	_, err = parseNames([]byte{3, 1})
	require.True(t, IsFrameError(err))
}

func TestParsePoll(t *testing.T) {
	var payload []byte
	payload = append(payload, 1) // areas
	payload = append(payload, 1, byte(ArmStateAway), 0x02)
	payload = append(payload, 2) // zones
	payload = append(payload, 1, 1, 0x01)
	payload = append(payload, 2, 1, 0x30)
	payload = append(payload, 1) // doors
	payload = append(payload, 1, 0x03)
	payload = append(payload, 1) // outputs
	payload = append(payload, 4, 0x01)

	status, err := parsePoll(payload)
	require.NoError(t, err)

	require.Equal(t, []AreaStatus{{Number: 1, State: ArmStateAway, Tamper: true}}, status.Areas)
	require.Equal(t, []ZoneStatus{
		{Number: 1, Area: 1, Active: true},
		{Number: 2, Area: 1, Isolated: true, Inhibited: true},
	}, status.Zones)
	require.Equal(t, []DoorStatus{{Number: 1, Locked: true, Open: true}}, status.Doors)
	require.Equal(t, []OutputStatus{{Number: 4, Active: true}}, status.Outputs)
}

func TestParsePollTruncated(t *testing.T) {
	_, err := parsePoll([]byte{2, 1, 0x00})
	require.True(t, IsFrameError(err))
}

func TestDecodeEvent(t *testing.T) {
	ev := decodeEvent([]byte{evZone, 3, 1, 0x0a})
	zone, ok := ev.(ZoneEvent)
	require.True(t, ok)
	require.Equal(t, ZoneStatus{Number: 3, Area: 1, Tamper: true, Alarm: true}, zone.Status)

	ev = decodeEvent([]byte{evArea, 1, byte(ArmStateAlarm), 0x01})
	area, ok := ev.(AreaEvent)
	require.True(t, ok)
	require.Equal(t, ArmStateAlarm, area.Status.State)
	require.True(t, area.Status.Alarm)

	ev = decodeEvent([]byte{evAlarm, 2})
	require.Equal(t, AlarmEvent{Area: 2}, ev)

	ev = decodeEvent([]byte{evTamper, byte(KindDoor), 1})
	require.Equal(t, TamperEvent{Kind: KindDoor, Number: 1}, ev)
}

func TestDecodeEventIsTotal(t *testing.T) {
	// Unrecognized opcodes decode as Unknown rather than failing.
	ev := decodeEvent([]byte{0x7f, 0x01, 0x02})
	unknown, ok := ev.(UnknownEvent)
	require.True(t, ok)
	require.Equal(t, byte(0x7f), unknown.Opcode)

	// Truncated payloads of known opcodes also stay non-fatal.
	ev = decodeEvent([]byte{evZone, 3})
	_, ok = ev.(UnknownEvent)
	require.True(t, ok)

	ev = decodeEvent(nil)
	_, ok = ev.(UnknownEvent)
	require.True(t, ok)
}

func padName(s string) []byte {
	return padTo(s, nameFieldLen)
}

func padTo(s string, n int) []byte {
	b := make([]byte, n)
	copy(b, s)
	return b
}
