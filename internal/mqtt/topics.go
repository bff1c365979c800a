package mqtt

import (
	"fmt"

	"aritech2mqtt/internal/util"
)

type Topics struct {
	prefix string
}

func NewTopics(prefix string) *Topics {
	return &Topics{prefix: prefix}
}

func (t *Topics) Status() string {
	return fmt.Sprintf("%s/status", t.prefix)
}

func (t *Topics) Panel() string {
	return fmt.Sprintf("%s/panel", t.prefix)
}

func (t *Topics) Area(name string) string {
	return fmt.Sprintf("%s/area/%s", t.prefix, util.Slugify(name))
}

func (t *Topics) AreaCommand(name string) string {
	return fmt.Sprintf("%s/area/%s/command", t.prefix, util.Slugify(name))
}

func (t *Topics) Zone(name string) string {
	return fmt.Sprintf("%s/zone/%s", t.prefix, util.Slugify(name))
}

func (t *Topics) ZoneCommand(name string) string {
	return fmt.Sprintf("%s/zone/%s/command", t.prefix, util.Slugify(name))
}

func (t *Topics) Door(name string) string {
	return fmt.Sprintf("%s/door/%s", t.prefix, util.Slugify(name))
}

func (t *Topics) DoorCommand(name string) string {
	return fmt.Sprintf("%s/door/%s/command", t.prefix, util.Slugify(name))
}

func (t *Topics) Output(name string) string {
	return fmt.Sprintf("%s/output/%s", t.prefix, util.Slugify(name))
}

func (t *Topics) OutputCommand(name string) string {
	return fmt.Sprintf("%s/output/%s/command", t.prefix, util.Slugify(name))
}
