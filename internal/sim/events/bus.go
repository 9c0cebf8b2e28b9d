package events

// Handler receives every event emitted on a Bus along with the tick it was
// emitted in.
type Handler func(tick uint64, e Event)

// Emitter is the narrow side of a Bus that simulation components depend on.
type Emitter interface {
	Emit(e Event)
}

// Bus dispatches synchronously: all handlers run to completion before Emit
// returns. It is owned by the world and used only from the world loop.
type Bus struct {
	tick     uint64
	nextID   int
	handlers []subscription
}

type subscription struct {
	id int
	h  Handler
}

func NewBus() *Bus { return &Bus{} }

// SetTick stamps subsequent emissions.
func (b *Bus) SetTick(tick uint64) { b.tick = tick }

func (b *Bus) Tick() uint64 { return b.tick }

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.nextID++
	id := b.nextID
	b.handlers = append(b.handlers, subscription{id: id, h: h})
	return func() {
		for i, s := range b.handlers {
			if s.id == id {
				b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
				return
			}
		}
	}
}

func (b *Bus) Emit(e Event) {
	if b == nil || e == nil {
		return
	}
	// Handlers subscribed during dispatch see the next event, not this one.
	hs := b.handlers
	for _, s := range hs {
		s.h(b.tick, e)
	}
}

// Recorder is a Handler that keeps everything it sees; used by tests and the
// per-tick signal fan-out.
type Recorder struct {
	Events []Event
	Ticks  []uint64
}

func (r *Recorder) Handle(tick uint64, e Event) {
	r.Events = append(r.Events, e)
	r.Ticks = append(r.Ticks, tick)
}

func (r *Recorder) Kinds() []Kind {
	out := make([]Kind, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Kind())
	}
	return out
}

func (r *Recorder) Count(k Kind) int {
	n := 0
	for _, e := range r.Events {
		if e.Kind() == k {
			n++
		}
	}
	return n
}

func (r *Recorder) Reset() {
	r.Events = r.Events[:0]
	r.Ticks = r.Ticks[:0]
}
