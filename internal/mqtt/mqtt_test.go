package mqtt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aritech2mqtt/internal/ats"
	"aritech2mqtt/internal/config"
	"aritech2mqtt/internal/log"
	"aritech2mqtt/internal/panel"
)

func TestTopics(t *testing.T) {
	topics := NewTopics("aritech2mqtt")

	assert.Equal(t, "aritech2mqtt/status", topics.Status())
	assert.Equal(t, "aritech2mqtt/area/ground-floor", topics.Area("Ground Floor"))
	assert.Equal(t, "aritech2mqtt/area/ground-floor/command", topics.AreaCommand("Ground Floor"))
	assert.Equal(t, "aritech2mqtt/zone/hallway-pir", topics.Zone("Hallway PIR"))
	assert.Equal(t, "aritech2mqtt/door/main-entrance/command", topics.DoorCommand("Main Entrance"))
	assert.Equal(t, "aritech2mqtt/output/siren", topics.Output("Siren"))
}

func TestClientOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		MQTT: config.MQTTConfig{
			Host:      "broker.local",
			Port:      1883,
			Prefix:    "aritech2mqtt",
			QOS:       1,
			Retain:    true,
			Keepalive: 30,
		},
	}
	logger := log.NewLogger("error")
	m := NewMQTT(cfg, panel.NewPanel(cfg, logger), logger)

	opts := m.clientOptions()
	assert.Equal(t, int64(30), opts.KeepAlive)
	assert.True(t, opts.WillRetained)
	assert.Equal(t, byte(1), opts.WillQos)
	assert.Equal(t, "aritech2mqtt/status", opts.WillTopic)
	assert.Equal(t, "offline", string(opts.WillPayload))
	assert.True(t, strings.HasPrefix(opts.ClientID, "aritech2mqtt-"), opts.ClientID)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "broker.local:1883", opts.Servers[0].Host)
}

func TestHAAreaState(t *testing.T) {
	tests := []struct {
		name string
		area panel.Area
		want string
	}{
		{"disarmed", panel.Area{State: ats.ArmStateDisarmed}, "disarmed"},
		{"away", panel.Area{State: ats.ArmStateAway}, "armed_away"},
		{"home", panel.Area{State: ats.ArmStateHome}, "armed_home"},
		{"night", panel.Area{State: ats.ArmStateNight}, "armed_night"},
		{"exit timer", panel.Area{State: ats.ArmStateExit}, "arming"},
		{"entry timer", panel.Area{State: ats.ArmStateEntry}, "pending"},
		{"alarm state", panel.Area{State: ats.ArmStateAlarm}, "triggered"},
		{"alarm flag while armed", panel.Area{State: ats.ArmStateAway, Alarm: true}, "triggered"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, haAreaState(tt.area))
		})
	}
}
