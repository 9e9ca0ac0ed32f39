package chain

// msgIndexKey tags flat transaction events with the message that emitted them.
const msgIndexKey = "msg_index"

type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Event struct {
	Type       string      `json:"type"`
	Attributes []Attribute `json:"attributes"`
}

type Events []Event

// FindAttribute returns the value of the first attribute named key.
func FindAttribute(ev Event, key string) (string, bool) {
	for _, a := range ev.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// FindAttributes returns every value of attributes named key, in order.
func FindAttributes(ev Event, key string) []string {
	var out []string
	for _, a := range ev.Attributes {
		if a.Key == key {
			out = append(out, a.Value)
		}
	}
	return out
}

// AttributeAt returns the i-th attribute of ev, if present.
func AttributeAt(ev Event, i int) (Attribute, bool) {
	if i < 0 || i >= len(ev.Attributes) {
		return Attribute{}, false
	}
	return ev.Attributes[i], true
}

// Find returns the first event of the given type.
func (es Events) Find(typ string) (Event, bool) {
	for _, ev := range es {
		if ev.Type == typ {
			return ev, true
		}
	}
	return Event{}, false
}

// FindAll returns every event of the given type.
func (es Events) FindAll(typ string) []Event {
	var out []Event
	for _, ev := range es {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
