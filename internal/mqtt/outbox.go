package mqtt

import "github.com/rs/zerolog/log"

// msgClass decides what happens to a queued message when a newer one arrives
// or the outbox is full.
type msgClass uint8

const (
	classPress    msgClass = iota // button event; each one is kept while there is room
	classStatus                   // periodic snapshot; a newer one of the same event replaces it
	classRetained                 // lifecycle state; the broker keeps only the last per topic
)

// outMsg is a serialized message waiting for the broker.
type outMsg struct {
	topic    string
	event    string // system event name, empty for presses
	payload  []byte
	qos      byte
	retained bool
	class    msgClass
}

func (m outMsg) replaces(old outMsg) bool {
	if old.class != m.class || old.topic != m.topic {
		return false
	}
	switch m.class {
	case classRetained:
		return true
	case classStatus:
		return old.event == m.event
	}
	return false
}

// outbox holds messages published while the broker is unreachable, in
// publish order. When full it evicts status snapshots first, then the oldest
// press; retained lifecycle messages go last.
// Not safe for concurrent use; the caller must synchronize.
type outbox struct {
	msgs    []outMsg
	limit   int
	dropped int // evicted since the last take
}

func newOutbox(limit int) *outbox {
	if limit <= 0 {
		limit = 1
	}
	return &outbox{limit: limit}
}

func (o *outbox) add(m outMsg) {
	if m.class != classPress {
		kept := o.msgs[:0]
		for _, old := range o.msgs {
			if !m.replaces(old) {
				kept = append(kept, old)
			}
		}
		o.msgs = kept
	}
	if len(o.msgs) >= o.limit {
		o.evict()
	}
	o.msgs = append(o.msgs, m)
}

func (o *outbox) evict() {
	victim := 0
	for _, class := range []msgClass{classStatus, classPress} {
		if i := o.oldest(class); i >= 0 {
			victim = i
			break
		}
	}
	if o.dropped == 0 {
		log.Warn().Int("limit", o.limit).Msg("mqtt: outbox full, dropping messages")
	}
	o.dropped++
	o.msgs = append(o.msgs[:victim], o.msgs[victim+1:]...)
}

func (o *outbox) oldest(class msgClass) int {
	for i, m := range o.msgs {
		if m.class == class {
			return i
		}
	}
	return -1
}

// take returns every queued message oldest first and empties the outbox.
func (o *outbox) take() []outMsg {
	if len(o.msgs) == 0 {
		return nil
	}
	if o.dropped > 0 {
		log.Warn().Int("dropped", o.dropped).Msg("mqtt: messages lost while offline")
	}
	out := o.msgs
	o.msgs = nil
	o.dropped = 0
	return out
}

func (o *outbox) len() int {
	return len(o.msgs)
}
