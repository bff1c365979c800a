package panel

import (
	"sort"
	"sync"

	"aritech2mqtt/internal/ats"
)

// State is the in-memory mirror of the panel. It is mutated only by the
// session goroutine (decoded events, polls) and by acknowledged optimistic
// updates; any number of readers take consistent copies under an RWMutex,
// so readers never block writers for longer than a single-event update.
type State struct {
	mu      sync.RWMutex
	areas   map[int]*Area
	zones   map[int]*Zone
	doors   map[int]*Door
	outputs map[int]*Output

	subMu sync.Mutex
	subs  []chan EntityID
}

func NewState() *State {
	return &State{
		areas:   make(map[int]*Area),
		zones:   make(map[int]*Zone),
		doors:   make(map[int]*Door),
		outputs: make(map[int]*Output),
	}
}

// Subscribe returns a live channel of changed entity IDs. The channel is
// buffered; a subscriber that stops draining loses notifications rather
// than stalling the event path.
func (s *State) Subscribe() <-chan EntityID {
	ch := make(chan EntityID, 256)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()
	return ch
}

func (s *State) notify(ids []EntityID) {
	if len(ids) == 0 {
		return
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		for _, id := range ids {
			select {
			case ch <- id:
			default:
			}
		}
	}
}

// SetNames creates or renames the entities of one class. States are left
// untouched; the next poll provides them.
func (s *State) SetNames(kind ats.EntityKind, items []ats.NamedItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		switch kind {
		case ats.KindArea:
			s.area(item.Number).Name = item.Name
		case ats.KindZone:
			s.zone(item.Number).Name = item.Name
		case ats.KindDoor:
			s.door(item.Number).Name = item.Name
		case ats.KindOutput:
			s.output(item.Number).Name = item.Name
		}
	}
}

// SetZoneDeviceClass records a configured device class override.
func (s *State) SetZoneDeviceClass(number int, class string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zone(number).DeviceClass = class
}

// ApplyPoll overwrites every entity's authoritative fields from a full
// poll response and reports which entities actually changed. Flags that
// only live client-side between polls (including isolated/inhibited after
// a reconnect) are reset to what the panel says.
func (s *State) ApplyPoll(status ats.PollStatus) []EntityID {
	s.mu.Lock()
	var changed []EntityID

	for _, a := range status.Areas {
		area := s.area(a.Number)
		next := Area{Number: a.Number, Name: area.Name,
			State: a.State, Alarm: a.Alarm, Tamper: a.Tamper, Fire: a.Fire, Panic: a.Panic}
		if *area != next {
			*area = next
			changed = append(changed, EntityID{ats.KindArea, a.Number})
		}
	}
	for _, z := range status.Zones {
		zone := s.zone(z.Number)
		next := Zone{Number: z.Number, Area: z.Area, Name: zone.Name, DeviceClass: zone.DeviceClass,
			Active: z.Active, Tamper: z.Tamper, Fault: z.Fault, Alarm: z.Alarm,
			Isolated: z.Isolated, Inhibited: z.Inhibited}
		if *zone != next {
			*zone = next
			changed = append(changed, EntityID{ats.KindZone, z.Number})
		}
	}
	for _, d := range status.Doors {
		door := s.door(d.Number)
		next := Door{Number: d.Number, Name: door.Name,
			Locked: d.Locked, Open: d.Open, Forced: d.Forced,
			OpenTooLong: d.OpenTooLong, ReaderTamper: d.ReaderTamper}
		if *door != next {
			*door = next
			changed = append(changed, EntityID{ats.KindDoor, d.Number})
		}
	}
	for _, o := range status.Outputs {
		output := s.output(o.Number)
		next := Output{Number: o.Number, Name: output.Name, Active: o.Active}
		if *output != next {
			*output = next
			changed = append(changed, EntityID{ats.KindOutput, o.Number})
		}
	}

	s.mu.Unlock()
	s.notify(changed)
	return changed
}

// Apply folds one decoded event into the mirror and reports the entities
// it touched. Events are applied strictly in receipt order by a single
// goroutine; each application is atomic to readers.
func (s *State) Apply(ev ats.Event) []EntityID {
	s.mu.Lock()
	var changed []EntityID

	switch e := ev.(type) {
	case ats.AreaEvent:
		a := s.area(e.Status.Number)
		a.State = e.Status.State
		a.Alarm = e.Status.Alarm
		a.Tamper = e.Status.Tamper
		a.Fire = e.Status.Fire
		a.Panic = e.Status.Panic
		changed = append(changed, EntityID{ats.KindArea, e.Status.Number})

	case ats.ZoneEvent:
		z := s.zone(e.Status.Number)
		z.Area = e.Status.Area
		z.Active = e.Status.Active
		z.Tamper = e.Status.Tamper
		z.Fault = e.Status.Fault
		z.Alarm = e.Status.Alarm
		z.Isolated = e.Status.Isolated
		z.Inhibited = e.Status.Inhibited
		changed = append(changed, EntityID{ats.KindZone, e.Status.Number})

	case ats.DoorEvent:
		d := s.door(e.Status.Number)
		d.Locked = e.Status.Locked
		d.Open = e.Status.Open
		d.Forced = e.Status.Forced
		d.OpenTooLong = e.Status.OpenTooLong
		d.ReaderTamper = e.Status.ReaderTamper
		changed = append(changed, EntityID{ats.KindDoor, e.Status.Number})

	case ats.OutputEvent:
		s.output(e.Status.Number).Active = e.Status.Active
		changed = append(changed, EntityID{ats.KindOutput, e.Status.Number})

	case ats.AlarmEvent:
		s.area(e.Area).Alarm = true
		changed = append(changed, EntityID{ats.KindArea, e.Area})

	case ats.TamperEvent:
		switch e.Kind {
		case ats.KindArea:
			s.area(e.Number).Tamper = true
		case ats.KindZone:
			s.zone(e.Number).Tamper = true
		case ats.KindDoor:
			s.door(e.Number).ReaderTamper = true
		default:
			s.mu.Unlock()
			return nil
		}
		changed = append(changed, EntityID{e.Kind, e.Number})
	}

	s.mu.Unlock()
	s.notify(changed)
	return changed
}

// Optimistic setters for acknowledged commands. The next event or poll
// for the entity overwrites them either way.

func (s *State) SetDoorLock(number int, locked bool) {
	s.mu.Lock()
	s.door(number).Locked = locked
	s.mu.Unlock()
	s.notify([]EntityID{{ats.KindDoor, number}})
}

func (s *State) SetZoneInhibited(number int, inhibited bool) {
	s.mu.Lock()
	s.zone(number).Inhibited = inhibited
	s.mu.Unlock()
	s.notify([]EntityID{{ats.KindZone, number}})
}

func (s *State) SetOutputActive(number int, active bool) {
	s.mu.Lock()
	s.output(number).Active = active
	s.mu.Unlock()
	s.notify([]EntityID{{ats.KindOutput, number}})
}

// --- readers ---

func (s *State) Areas() []Area {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Area, 0, len(s.areas))
	for _, a := range s.areas {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (s *State) Zones() []Zone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Zone, 0, len(s.zones))
	for _, z := range s.zones {
		out = append(out, *z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (s *State) Doors() []Door {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Door, 0, len(s.doors))
	for _, d := range s.doors {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (s *State) Outputs() []Output {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Output, 0, len(s.outputs))
	for _, o := range s.outputs {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (s *State) Area(number int) (Area, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.areas[number]; ok {
		return *a, true
	}
	return Area{}, false
}

func (s *State) Zone(number int) (Zone, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if z, ok := s.zones[number]; ok {
		return *z, true
	}
	return Zone{}, false
}

func (s *State) Door(number int) (Door, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.doors[number]; ok {
		return *d, true
	}
	return Door{}, false
}

func (s *State) Output(number int) (Output, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if o, ok := s.outputs[number]; ok {
		return *o, true
	}
	return Output{}, false
}

// Entity lookup helpers create on first reference, so an event for a
// number the name download missed still lands somewhere. Callers hold mu.

func (s *State) area(n int) *Area {
	if a, ok := s.areas[n]; ok {
		return a
	}
	a := &Area{Number: n}
	s.areas[n] = a
	return a
}

func (s *State) zone(n int) *Zone {
	if z, ok := s.zones[n]; ok {
		return z
	}
	z := &Zone{Number: n}
	s.zones[n] = z
	return z
}

func (s *State) door(n int) *Door {
	if d, ok := s.doors[n]; ok {
		return d
	}
	d := &Door{Number: n, Locked: true}
	s.doors[n] = d
	return d
}

func (s *State) output(n int) *Output {
	if o, ok := s.outputs[n]; ok {
		return o
	}
	o := &Output{Number: n}
	s.outputs[n] = o
	return o
}
