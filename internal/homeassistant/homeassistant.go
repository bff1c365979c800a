package homeassistant

import (
	"fmt"

	"aritech2mqtt/internal/config"
	"aritech2mqtt/internal/log"
	"aritech2mqtt/internal/mqtt"
	"aritech2mqtt/internal/panel"
	"aritech2mqtt/internal/util"
)

// MQTTClient is the publishing surface discovery needs.
type MQTTClient interface {
	GetPrefix() string
	Topics() *mqtt.Topics
	Publish(topic string, payload interface{}, retain bool)
}

type HomeAssistant struct {
	config *config.HomeAssistantConfig
	mqtt   MQTTClient
	panel  *panel.Panel
	log    *log.Logger
}

func New(cfg *config.HomeAssistantConfig, mqttClient MQTTClient, p *panel.Panel, logger *log.Logger) *HomeAssistant {
	return &HomeAssistant{
		config: cfg,
		mqtt:   mqttClient,
		panel:  p,
		log:    logger,
	}
}

func (ha *HomeAssistant) Start() {
	ha.log.Info("Publishing Home Assistant discovery config")

	ha.publishConnectionConfig()
	for _, area := range ha.panel.State().Areas() {
		ha.publishAreaConfig(area)
	}
	for _, zone := range ha.panel.State().Zones() {
		ha.publishZoneConfig(zone)
	}
	for _, door := range ha.panel.State().Doors() {
		ha.publishDoorConfig(door)
	}
	for _, output := range ha.panel.State().Outputs() {
		ha.publishOutputConfig(output)
	}
}

// device is the shared device block linking every entity to one panel.
func (ha *HomeAssistant) device() map[string]interface{} {
	d := ha.panel.Device()
	return map[string]interface{}{
		"identifiers":  []string{fmt.Sprintf("%s_%s", ha.mqtt.GetPrefix(), util.Slugify(d.Model))},
		"manufacturer": "Aritech",
		"model":        d.Model,
		"sw_version":   d.Firmware,
		"name":         fmt.Sprintf("Aritech %s", d.Model),
	}
}

func (ha *HomeAssistant) availability() map[string]interface{} {
	return map[string]interface{}{
		"topic":                 ha.mqtt.Topics().Status(),
		"payload_available":     "online",
		"payload_not_available": "offline",
	}
}

// publishFlagSensor publishes a binary_sensor bound to one boolean field
// of an entity's retained JSON state.
func (ha *HomeAssistant) publishFlagSensor(objectID, name, uniqueID, stateTopic, field, deviceClass string, diagnostic bool) {
	cfg := map[string]interface{}{
		"name":           name,
		"unique_id":      uniqueID,
		"state_topic":    stateTopic,
		"value_template": fmt.Sprintf("{{ value_json.%s }}", field),
		"payload_on":     "true",
		"payload_off":    "false",
		"availability":   ha.availability(),
		"device":         ha.device(),
	}
	if deviceClass != "" {
		cfg["device_class"] = deviceClass
	}
	if diagnostic {
		cfg["entity_category"] = "diagnostic"
	}
	ha.publishConfig("binary_sensor", objectID, cfg)
}

// publishConnectionConfig exposes the panel link itself: connectivity plus
// a status text sensor (connected/reconnecting/auth_failed/disconnected).
func (ha *HomeAssistant) publishConnectionConfig() {
	status := map[string]interface{}{
		"name":            "Connection Status",
		"unique_id":       fmt.Sprintf("%s_connection_status", ha.mqtt.GetPrefix()),
		"state_topic":     ha.mqtt.Topics().Panel(),
		"value_template":  "{{ value_json.status }}",
		"entity_category": "diagnostic",
		"availability":    ha.availability(),
		"device":          ha.device(),
	}
	ha.publishConfig("sensor", "connection-status", status)

	connected := map[string]interface{}{
		"name":            "Panel Connected",
		"unique_id":       fmt.Sprintf("%s_connected", ha.mqtt.GetPrefix()),
		"state_topic":     ha.mqtt.Topics().Panel(),
		"device_class":    "connectivity",
		"value_template":  "{{ 'true' if value_json.status == 'connected' else 'false' }}",
		"payload_on":      "true",
		"payload_off":     "false",
		"entity_category": "diagnostic",
		"availability":    ha.availability(),
		"device":          ha.device(),
	}
	ha.publishConfig("binary_sensor", "connected", connected)
}

func (ha *HomeAssistant) publishAreaConfig(area panel.Area) {
	slug := util.Slugify(area.Name)
	cfg := map[string]interface{}{
		"name":              area.Name,
		"unique_id":         fmt.Sprintf("%s_area_%d", ha.mqtt.GetPrefix(), area.Number),
		"state_topic":       ha.mqtt.Topics().Area(area.Name),
		"command_topic":     ha.mqtt.Topics().AreaCommand(area.Name),
		"value_template":    "{{ value_json.ha_state }}",
		"payload_arm_away":  "arm_away",
		"payload_arm_home":  "arm_home",
		"payload_arm_night": "arm_night",
		"payload_disarm":    "disarm",
		"code_arm_required": false,
		"availability":      ha.availability(),
		"device":            ha.device(),
	}
	ha.publishConfig("alarm_control_panel", slug, cfg)

	stateTopic := ha.mqtt.Topics().Area(area.Name)
	prefix := ha.mqtt.GetPrefix()
	ha.publishFlagSensor(slug+"-alarm", fmt.Sprintf("%s Alarm", area.Name),
		fmt.Sprintf("%s_area_%d_alarm", prefix, area.Number), stateTopic, "alarm", "safety", false)
	ha.publishFlagSensor(slug+"-tamper", fmt.Sprintf("%s Tamper", area.Name),
		fmt.Sprintf("%s_area_%d_tamper", prefix, area.Number), stateTopic, "tamper", "tamper", true)
	ha.publishFlagSensor(slug+"-fire", fmt.Sprintf("%s Fire", area.Name),
		fmt.Sprintf("%s_area_%d_fire", prefix, area.Number), stateTopic, "fire", "smoke", false)
	ha.publishFlagSensor(slug+"-panic", fmt.Sprintf("%s Panic", area.Name),
		fmt.Sprintf("%s_area_%d_panic", prefix, area.Number), stateTopic, "panic", "safety", false)

	forceArm := map[string]interface{}{
		"name":            fmt.Sprintf("%s Force Arm", area.Name),
		"unique_id":       fmt.Sprintf("%s_area_%d_force_arm", prefix, area.Number),
		"state_topic":     stateTopic,
		"command_topic":   ha.mqtt.Topics().AreaCommand(area.Name),
		"value_template":  "{{ value_json.force_arm }}",
		"state_on":        "true",
		"state_off":       "false",
		"payload_on":      "force_arm_on",
		"payload_off":     "force_arm_off",
		"entity_category": "config",
		"availability":    ha.availability(),
		"device":          ha.device(),
	}
	ha.publishConfig("switch", slug+"-force-arm", forceArm)
}

func (ha *HomeAssistant) publishZoneConfig(zone panel.Zone) {
	slug := util.Slugify(zone.Name)
	sensor := map[string]interface{}{
		"name":           zone.Name,
		"unique_id":      fmt.Sprintf("%s_zone_%d", ha.mqtt.GetPrefix(), zone.Number),
		"state_topic":    ha.mqtt.Topics().Zone(zone.Name),
		"device_class":   getDeviceClass(zone),
		"value_template": "{{ value_json.active }}",
		"payload_on":     "true",
		"payload_off":    "false",
		"availability":   ha.availability(),
		"device":         ha.device(),
	}
	ha.publishConfig("binary_sensor", slug, sensor)

	inhibit := map[string]interface{}{
		"name":            fmt.Sprintf("%s Inhibit", zone.Name),
		"unique_id":       fmt.Sprintf("%s_zone_%d_inhibit", ha.mqtt.GetPrefix(), zone.Number),
		"state_topic":     ha.mqtt.Topics().Zone(zone.Name),
		"command_topic":   ha.mqtt.Topics().ZoneCommand(zone.Name),
		"value_template":  "{{ value_json.inhibited }}",
		"state_on":        "true",
		"state_off":       "false",
		"payload_on":      "inhibit",
		"payload_off":     "uninhibit",
		"entity_category": "config",
		"availability":    ha.availability(),
		"device":          ha.device(),
	}
	ha.publishConfig("switch", slug+"-inhibit", inhibit)

	stateTopic := ha.mqtt.Topics().Zone(zone.Name)
	prefix := ha.mqtt.GetPrefix()
	ha.publishFlagSensor(slug+"-tamper", fmt.Sprintf("%s Tamper", zone.Name),
		fmt.Sprintf("%s_zone_%d_tamper", prefix, zone.Number), stateTopic, "tamper", "tamper", true)
	ha.publishFlagSensor(slug+"-fault", fmt.Sprintf("%s Fault", zone.Name),
		fmt.Sprintf("%s_zone_%d_fault", prefix, zone.Number), stateTopic, "fault", "problem", true)
	ha.publishFlagSensor(slug+"-alarm", fmt.Sprintf("%s Alarm", zone.Name),
		fmt.Sprintf("%s_zone_%d_alarm", prefix, zone.Number), stateTopic, "alarm", "safety", false)
	ha.publishFlagSensor(slug+"-isolated", fmt.Sprintf("%s Isolated", zone.Name),
		fmt.Sprintf("%s_zone_%d_isolated", prefix, zone.Number), stateTopic, "isolated", "", true)
}

func (ha *HomeAssistant) publishDoorConfig(door panel.Door) {
	slug := util.Slugify(door.Name)
	lock := map[string]interface{}{
		"name":           door.Name,
		"unique_id":      fmt.Sprintf("%s_door_%d", ha.mqtt.GetPrefix(), door.Number),
		"state_topic":    ha.mqtt.Topics().Door(door.Name),
		"command_topic":  ha.mqtt.Topics().DoorCommand(door.Name),
		"value_template": "{{ value_json.locked }}",
		"state_locked":   "true",
		"state_unlocked": "false",
		"payload_lock":   "lock",
		"payload_unlock": "unlock",
		"availability":   ha.availability(),
		"device":         ha.device(),
	}
	ha.publishConfig("lock", slug, lock)

	button := map[string]interface{}{
		"name":          fmt.Sprintf("%s Momentary Unlock", door.Name),
		"unique_id":     fmt.Sprintf("%s_door_%d_momentary", ha.mqtt.GetPrefix(), door.Number),
		"command_topic": ha.mqtt.Topics().DoorCommand(door.Name),
		"payload_press": "momentary_unlock",
		"availability":  ha.availability(),
		"device":        ha.device(),
	}
	ha.publishConfig("button", slug+"-momentary", button)

	open := map[string]interface{}{
		"name":           fmt.Sprintf("%s Open", door.Name),
		"unique_id":      fmt.Sprintf("%s_door_%d_open", ha.mqtt.GetPrefix(), door.Number),
		"state_topic":    ha.mqtt.Topics().Door(door.Name),
		"device_class":   "door",
		"value_template": "{{ value_json.open }}",
		"payload_on":     "true",
		"payload_off":    "false",
		"availability":   ha.availability(),
		"device":         ha.device(),
	}
	ha.publishConfig("binary_sensor", slug+"-open", open)

	stateTopic := ha.mqtt.Topics().Door(door.Name)
	prefix := ha.mqtt.GetPrefix()
	ha.publishFlagSensor(slug+"-forced", fmt.Sprintf("%s Forced Open", door.Name),
		fmt.Sprintf("%s_door_%d_forced", prefix, door.Number), stateTopic, "forced", "safety", false)
	ha.publishFlagSensor(slug+"-open-too-long", fmt.Sprintf("%s Open Too Long", door.Name),
		fmt.Sprintf("%s_door_%d_open_too_long", prefix, door.Number), stateTopic, "open_too_long", "problem", true)
	ha.publishFlagSensor(slug+"-reader-tamper", fmt.Sprintf("%s Reader Tamper", door.Name),
		fmt.Sprintf("%s_door_%d_reader_tamper", prefix, door.Number), stateTopic, "reader_tamper", "tamper", true)
}

func (ha *HomeAssistant) publishOutputConfig(output panel.Output) {
	slug := util.Slugify(output.Name)
	cfg := map[string]interface{}{
		"name":           output.Name,
		"unique_id":      fmt.Sprintf("%s_output_%d", ha.mqtt.GetPrefix(), output.Number),
		"state_topic":    ha.mqtt.Topics().Output(output.Name),
		"command_topic":  ha.mqtt.Topics().OutputCommand(output.Name),
		"value_template": "{{ value_json.active }}",
		"state_on":       "true",
		"state_off":      "false",
		"payload_on":     "on",
		"payload_off":    "off",
		"availability":   ha.availability(),
		"device":         ha.device(),
	}
	ha.publishConfig("switch", slug, cfg)
}

func (ha *HomeAssistant) publishConfig(component, objectID string, cfg map[string]interface{}) {
	topic := fmt.Sprintf("%s/%s/%s/%s/config", ha.config.Prefix, component, ha.mqtt.GetPrefix(), objectID)
	ha.mqtt.Publish(topic, cfg, true)
}
