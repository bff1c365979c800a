package homeassistant

import (
	"strings"

	"aritech2mqtt/internal/panel"
)

// getDeviceClass guesses a binary sensor device class from the zone name,
// unless an override was configured.
func getDeviceClass(zone panel.Zone) string {
	if zone.DeviceClass != "" {
		return zone.DeviceClass
	}

	name := strings.ToLower(zone.Name)
	if strings.Contains(name, "pir") || strings.Contains(name, "motion") {
		return "motion"
	}
	if strings.Contains(name, "door") || strings.Contains(name, "entrance") {
		return "door"
	}
	if strings.Contains(name, "window") {
		return "window"
	}
	if strings.Contains(name, "smoke") || strings.Contains(name, "fire") {
		return "smoke"
	}
	if strings.Contains(name, "gas") {
		return "gas"
	}
	if strings.Contains(name, "water") || strings.Contains(name, "flood") {
		return "moisture"
	}
	if strings.Contains(name, "glass") {
		return "sound"
	}
	return "motion"
}
