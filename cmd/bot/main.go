package main

import (
	"encoding/json"
	"flag"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"dishrush.game/internal/protocol"
)

func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name   = flag.String("name", "bot", "agent name")
		stack  = flag.Int("stack", 3, "dishes to collect before heading to the sink")
		pass   = flag.Int("pass_percent", 70, "chance of passing a stability check")
		seed   = flag.Int64("seed", 0, "rng seed (0: time based)")
		logSig = flag.Bool("signals", false, "log SIGNAL messages")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Capabilities: protocol.HelloCapabilities{
			MaxQueue: 64,
			Signals:  *logSig,
		},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	b := newBrain(*stack, *pass, rand.New(rand.NewSource(*seed)))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("read: %v", err)
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			b.detection = w.WorldParams.DetectionRadius
			logger.Printf("WELCOME agent_id=%s session=%s tick_rate=%d seed=%d", w.AgentID, w.SessionID, w.WorldParams.TickRateHz, w.WorldParams.Seed)

		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			for _, in := range b.decide(st) {
				if err := conn.WriteJSON(in); err != nil {
					logger.Printf("send INPUT: %v", err)
					return
				}
			}

		case protocol.TypeSignal:
			var sg protocol.SignalMsg
			if err := json.Unmarshal(msg, &sg); err != nil {
				continue
			}
			logger.Printf("SIGNAL tick=%d %s %s", sg.Tick, sg.Kind, sg.Payload)

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				continue
			}
			logger.Printf("ERROR %s: %s", e.Code, e.Message)
		}
	}
}

// brain is a greedy collector: walk to the nearest source until the stack is
// high enough, then hold interact at the sink until the dishes are clean.
type brain struct {
	detection   float64
	stack       int
	passPercent int
	rng         *rand.Rand

	seq       uint64
	answered  map[uint64]bool
	lastDir   [2]float64
	lastPress uint64
	pressed   bool
}

// pressEvery spaces out interact presses so a missed pickup is retried
// without flooding the inbox.
const pressEvery = 5

func newBrain(stack, passPercent int, rng *rand.Rand) *brain {
	if stack <= 0 {
		stack = 1
	}
	return &brain{
		detection:   1.5,
		stack:       stack,
		passPercent: passPercent,
		rng:         rng,
		answered:    map[uint64]bool{},
	}
}

func (b *brain) input(kind string) protocol.InputMsg {
	b.seq++
	return protocol.InputMsg{Type: protocol.TypeInput, ProtocolVersion: protocol.Version, Seq: b.seq, Kind: kind}
}

func (b *brain) decide(st protocol.StateMsg) []protocol.InputMsg {
	var out []protocol.InputMsg

	live := map[uint64]bool{}
	for _, id := range st.Agent.PendingChecks {
		live[id] = true
		if b.answered[id] {
			continue
		}
		b.answered[id] = true
		in := b.input(protocol.InputCheckResult)
		in.CheckID = id
		in.OK = b.rng.Intn(100) < b.passPercent
		out = append(out, in)
	}
	for id := range b.answered {
		if !live[id] {
			delete(b.answered, id)
		}
	}

	if st.Agent.State == "DELIVERING" {
		return out
	}
	if b.pressed && st.Tick >= b.lastPress+1 {
		out = append(out, b.input(protocol.InputInteractRelease))
		b.pressed = false
	}

	goal, ok := b.goal(st)
	if !ok {
		return append(out, b.move(0, 0)...)
	}
	dx, dy := goal[0]-st.Agent.Pos[0], goal[1]-st.Agent.Pos[1]
	dist := math.Hypot(dx, dy)
	if dist <= b.detection*0.8 {
		out = append(out, b.move(0, 0)...)
		if st.Agent.DisabledMs == 0 && st.Tick >= b.lastPress+pressEvery {
			out = append(out, b.input(protocol.InputInteractPress))
			b.lastPress = st.Tick
			b.pressed = true
		}
		return out
	}
	return append(out, b.move(dx/dist, dy/dist)...)
}

// goal is the sink once the stack is full (or nothing is left to collect),
// otherwise the nearest source.
func (b *brain) goal(st protocol.StateMsg) ([2]float64, bool) {
	carrying := len(st.Agent.Carry)
	if carrying >= b.stack || (carrying > 0 && len(st.Sources) == 0) {
		return st.Sink.Pos, true
	}
	best, bestD := [2]float64{}, math.Inf(1)
	for _, s := range st.Sources {
		if d := math.Hypot(s.Pos[0]-st.Agent.Pos[0], s.Pos[1]-st.Agent.Pos[1]); d < bestD {
			best, bestD = s.Pos, d
		}
	}
	return best, !math.IsInf(bestD, 1)
}

func (b *brain) move(x, y float64) []protocol.InputMsg {
	if math.Abs(x-b.lastDir[0]) < 0.05 && math.Abs(y-b.lastDir[1]) < 0.05 {
		return nil
	}
	b.lastDir = [2]float64{x, y}
	in := b.input(protocol.InputMove)
	in.X, in.Y = x, y
	return []protocol.InputMsg{in}
}
