package mqtt

import "log"

// bufferedMsg is a serialized message waiting for a connection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while the broker is unreachable, oldest
// first, up to a fixed capacity. Once full, each new message evicts the
// oldest one. Callers synchronize.
type outbox struct {
	slots   []bufferedMsg
	oldest  int
	n       int
	evicted int // total evictions since creation
	warned  bool
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{slots: make([]bufferedMsg, capacity)}
}

func (o *outbox) add(msg bufferedMsg) {
	capacity := len(o.slots)
	if o.n < capacity {
		o.slots[(o.oldest+o.n)%capacity] = msg
		o.n++
		return
	}

	if !o.warned {
		log.Printf("mqtt: outbox full at %d messages, evicting oldest (first evicted topic %s)", capacity, o.slots[o.oldest].topic)
		o.warned = true
	}
	o.evicted++
	o.slots[o.oldest] = msg
	o.oldest = (o.oldest + 1) % capacity
}

// takeAll empties the outbox and returns its messages in publish order.
func (o *outbox) takeAll() []bufferedMsg {
	if o.n == 0 {
		return nil
	}
	out := make([]bufferedMsg, 0, o.n)
	for i := 0; i < o.n; i++ {
		j := (o.oldest + i) % len(o.slots)
		out = append(out, o.slots[j])
		o.slots[j] = bufferedMsg{}
	}
	o.oldest, o.n, o.warned = 0, 0, false
	return out
}

func (o *outbox) size() int {
	return o.n
}
