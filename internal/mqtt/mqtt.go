package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"aritech2mqtt/internal/ats"
	"aritech2mqtt/internal/config"
	"aritech2mqtt/internal/log"
	"aritech2mqtt/internal/panel"
)

const (
	offlinePayload = "offline"
	onlinePayload  = "online"
)

type MQTT struct {
	config *config.Config
	panel  *panel.Panel
	log    *log.Logger
	client mqtt.Client
	topics *Topics

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func NewMQTT(cfg *config.Config, p *panel.Panel, logger *log.Logger) *MQTT {
	return &MQTT{
		config: cfg,
		panel:  p,
		log:    logger,
		topics: NewTopics(cfg.MQTT.Prefix),
		done:   make(chan struct{}),
	}
}

func (m *MQTT) GetPrefix() string { return m.config.MQTT.Prefix }
func (m *MQTT) Topics() *Topics   { return m.topics }

func (m *MQTT) clientOptions() *mqtt.ClientOptions {
	clientID := m.config.MQTT.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("aritech2mqtt-%s", uuid.NewString()[:8])
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", m.config.MQTT.Host, m.config.MQTT.Port))
	opts.SetClientID(clientID)
	opts.SetUsername(m.config.MQTT.Username)
	opts.SetPassword(m.config.MQTT.Password)
	opts.SetCleanSession(m.config.MQTT.Clean)
	opts.SetKeepAlive(time.Duration(m.config.MQTT.Keepalive) * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(m.onConnect)
	opts.SetConnectionLostHandler(m.onDisconnect)
	opts.SetWill(m.topics.Status(), offlinePayload, byte(m.config.MQTT.QOS), m.config.MQTT.Retain)
	return opts
}

func (m *MQTT) Connect() error {
	m.client = mqtt.NewClient(m.clientOptions())

	if token := m.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	m.log.Info("Connected to MQTT broker: %s:%d", m.config.MQTT.Host, m.config.MQTT.Port)

	m.panel.OnStatusChange(func(panel.ConnectionStatus) { m.PublishPanelStatus() })
	go m.watchChanges()
	return nil
}

func (m *MQTT) onConnect(client mqtt.Client) {
	m.log.Debug("MQTT connection established")
	m.Publish(m.topics.Status(), onlinePayload, true)
	m.subscribeCommands()
	m.PublishPanelStatus()
	m.PublishAll()
}

func (m *MQTT) onDisconnect(client mqtt.Client, err error) {
	m.log.Error("MQTT connection lost: %v", err)
}

// watchChanges republishes any entity the state mirror reports as changed,
// whether from a panel event, a poll or an optimistic update.
func (m *MQTT) watchChanges() {
	changes := m.panel.State().Subscribe()
	for {
		select {
		case <-m.done:
			return
		case id := <-changes:
			m.publishEntity(id)
		}
	}
}

func (m *MQTT) publishEntity(id panel.EntityID) {
	state := m.panel.State()
	switch id.Kind {
	case ats.KindArea:
		if a, ok := state.Area(id.Number); ok {
			m.PublishAreaStatus(a)
		}
	case ats.KindZone:
		if z, ok := state.Zone(id.Number); ok {
			m.PublishZoneStatus(z)
		}
	case ats.KindDoor:
		if d, ok := state.Door(id.Number); ok {
			m.PublishDoorStatus(d)
		}
	case ats.KindOutput:
		if o, ok := state.Output(id.Number); ok {
			m.PublishOutputStatus(o)
		}
	}
}

func (m *MQTT) subscribeCommands() {
	state := m.panel.State()
	var topics []string
	for _, a := range state.Areas() {
		topics = append(topics, m.topics.AreaCommand(a.Name))
	}
	for _, z := range state.Zones() {
		topics = append(topics, m.topics.ZoneCommand(z.Name))
	}
	for _, d := range state.Doors() {
		topics = append(topics, m.topics.DoorCommand(d.Name))
	}
	for _, o := range state.Outputs() {
		topics = append(topics, m.topics.OutputCommand(o.Name))
	}

	for _, topic := range topics {
		token := m.client.Subscribe(topic, byte(m.config.MQTT.QOS), m.handleMessage)
		if token.Wait() && token.Error() != nil {
			m.log.Error("Failed to subscribe to topic %s: %v", topic, token.Error())
		} else {
			m.log.Debug("Subscribed to topic: %s", topic)
		}
	}
}

func (m *MQTT) handleMessage(client mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	command := strings.TrimSpace(string(msg.Payload()))
	m.log.Debug("Received message on topic %s: %s", topic, command)

	state := m.panel.State()
	for _, a := range state.Areas() {
		if topic == m.topics.AreaCommand(a.Name) {
			m.handleAreaCommand(a, command)
			return
		}
	}
	for _, z := range state.Zones() {
		if topic == m.topics.ZoneCommand(z.Name) {
			m.handleZoneCommand(z, command)
			return
		}
	}
	for _, d := range state.Doors() {
		if topic == m.topics.DoorCommand(d.Name) {
			m.handleDoorCommand(d, command)
			return
		}
	}
	for _, o := range state.Outputs() {
		if topic == m.topics.OutputCommand(o.Name) {
			m.handleOutputCommand(o, command)
			return
		}
	}
	m.log.Warn("Received message on unknown topic: %s", topic)
}

func (m *MQTT) handleAreaCommand(area panel.Area, command string) {
	switch command {
	case "force_arm_on", "force_arm_off":
		m.panel.SetAreaForceArm(area.Number, command == "force_arm_on")
		m.PublishAreaStatus(area)
		return
	}

	force := m.panel.AreaForceArm(area.Number)
	if strings.HasSuffix(command, "_force") {
		command = strings.TrimSuffix(command, "_force")
		force = true
	}

	var result panel.CommandResult
	var err error
	switch command {
	case "arm_away":
		result, err = m.panel.Arm(context.Background(), area.Number, ats.ArmAway, force)
	case "arm_home":
		result, err = m.panel.Arm(context.Background(), area.Number, ats.ArmHome, force)
	case "arm_night":
		result, err = m.panel.Arm(context.Background(), area.Number, ats.ArmNight, force)
	case "disarm":
		result, err = m.panel.Disarm(context.Background(), area.Number)
	default:
		m.log.Warn("Unknown area command: %s", command)
		return
	}
	m.logResult("area", area.Name, command, result, err)
}

func (m *MQTT) handleZoneCommand(zone panel.Zone, command string) {
	var result panel.CommandResult
	var err error
	switch command {
	case "inhibit":
		result, err = m.panel.InhibitZone(context.Background(), zone.Number, true)
	case "uninhibit":
		result, err = m.panel.InhibitZone(context.Background(), zone.Number, false)
	default:
		m.log.Warn("Unknown zone command: %s", command)
		return
	}
	m.logResult("zone", zone.Name, command, result, err)
}

func (m *MQTT) handleDoorCommand(door panel.Door, command string) {
	var result panel.CommandResult
	var err error
	switch command {
	case "lock":
		result, err = m.panel.LockDoor(context.Background(), door.Number)
	case "unlock":
		result, err = m.panel.UnlockDoor(context.Background(), door.Number)
	case "momentary_unlock":
		result, err = m.panel.MomentaryUnlockDoor(context.Background(), door.Number, 0)
	default:
		m.log.Warn("Unknown door command: %s", command)
		return
	}
	m.logResult("door", door.Name, command, result, err)
}

func (m *MQTT) handleOutputCommand(output panel.Output, command string) {
	var result panel.CommandResult
	var err error
	switch command {
	case "on":
		result, err = m.panel.SetOutput(context.Background(), output.Number, true)
	case "off":
		result, err = m.panel.SetOutput(context.Background(), output.Number, false)
	default:
		m.log.Warn("Unknown output command: %s", command)
		return
	}
	m.logResult("output", output.Name, command, result, err)
}

func (m *MQTT) logResult(kind, name, command string, result panel.CommandResult, err error) {
	if err != nil {
		m.log.Warn("Command %s for %s %q: %s (%v)", command, kind, name, result, err)
		return
	}
	m.log.Info("Command %s for %s %q: %s", command, kind, name, result)
}

// PublishPanelStatus publishes the connection status and device identity.
func (m *MQTT) PublishPanelStatus() {
	device := m.panel.Device()
	m.Publish(m.topics.Panel(), map[string]interface{}{
		"status":   m.panel.Status().String(),
		"model":    device.Model,
		"firmware": device.Firmware,
		"family":   device.Family.String(),
	}, true)
}

// PublishAll publishes the full state mirror, retained.
func (m *MQTT) PublishAll() {
	state := m.panel.State()
	for _, a := range state.Areas() {
		m.PublishAreaStatus(a)
	}
	for _, z := range state.Zones() {
		m.PublishZoneStatus(z)
	}
	for _, d := range state.Doors() {
		m.PublishDoorStatus(d)
	}
	for _, o := range state.Outputs() {
		m.PublishOutputStatus(o)
	}
}

func (m *MQTT) PublishAreaStatus(area panel.Area) {
	m.Publish(m.topics.Area(area.Name), map[string]interface{}{
		"name":      area.Name,
		"number":    area.Number,
		"status":    area.State.String(),
		"ha_state":  haAreaState(area),
		"alarm":     area.Alarm,
		"tamper":    area.Tamper,
		"fire":      area.Fire,
		"panic":     area.Panic,
		"force_arm": m.panel.AreaForceArm(area.Number),
	}, true)
}

func (m *MQTT) PublishZoneStatus(zone panel.Zone) {
	m.Publish(m.topics.Zone(zone.Name), map[string]interface{}{
		"name":      zone.Name,
		"number":    zone.Number,
		"area":      zone.Area,
		"active":    zone.Active,
		"tamper":    zone.Tamper,
		"fault":     zone.Fault,
		"alarm":     zone.Alarm,
		"isolated":  zone.Isolated,
		"inhibited": zone.Inhibited,
		"ready":     zone.Ready(),
	}, true)
}

func (m *MQTT) PublishDoorStatus(door panel.Door) {
	m.Publish(m.topics.Door(door.Name), map[string]interface{}{
		"name":          door.Name,
		"number":        door.Number,
		"locked":        door.Locked,
		"open":          door.Open,
		"forced":        door.Forced,
		"open_too_long": door.OpenTooLong,
		"reader_tamper": door.ReaderTamper,
	}, true)
}

func (m *MQTT) PublishOutputStatus(output panel.Output) {
	m.Publish(m.topics.Output(output.Name), map[string]interface{}{
		"name":   output.Name,
		"number": output.Number,
		"active": output.Active,
	}, true)
}

func (m *MQTT) Publish(topic string, message interface{}, retain bool) {
	var payload []byte
	switch v := message.(type) {
	case string:
		payload = []byte(v)
	default:
		var err error
		payload, err = json.Marshal(message)
		if err != nil {
			m.log.Error("Failed to marshal message for topic %s: %v", topic, err)
			return
		}
	}

	token := m.client.Publish(topic, byte(m.config.MQTT.QOS), retain, payload)
	if token.Wait() && token.Error() != nil {
		m.log.Error("Failed to publish message to topic %s: %v", topic, token.Error())
	}
}

func (m *MQTT) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	m.mu.Unlock()

	if m.client != nil && m.client.IsConnected() {
		m.Publish(m.topics.Status(), offlinePayload, true)
		m.client.Disconnect(250)
	}
}

// haAreaState maps an area to the alarm panel state vocabulary Home
// Assistant expects.
func haAreaState(area panel.Area) string {
	if area.Alarm || area.State == ats.ArmStateAlarm {
		return "triggered"
	}
	switch area.State {
	case ats.ArmStateAway:
		return "armed_away"
	case ats.ArmStateHome:
		return "armed_home"
	case ats.ArmStateNight:
		return "armed_night"
	case ats.ArmStateExit:
		return "arming"
	case ats.ArmStateEntry:
		return "pending"
	default:
		return "disarmed"
	}
}
