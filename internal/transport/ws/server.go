package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"dishrush.game/internal/protocol"
	"dishrush.game/internal/sim/world"
)

const (
	defaultQueue = 32
	maxQueue     = 256

	joinTimeout = 5 * time.Second
)

type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	s := &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		agentID, out := s.handshake(r.Context(), conn)
		if agentID == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Errors for the client are funnelled through the writer so the
		// connection only ever has one writer.
		errs := make(chan protocol.ErrorMsg, 8)

		// Writer goroutine.
		go func() {
			for {
				var b []byte
				select {
				case <-ctx.Done():
					return
				case e := <-errs:
					b, _ = json.Marshal(e)
				case msg, ok := <-out:
					if !ok {
						return
					}
					b = msg
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}()
		reject := func(code, msg string) {
			select {
			case errs <- protocol.NewError(code, msg):
			default:
			}
		}

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				reject(protocol.ErrProtoBadRequest, "malformed message")
				continue
			}
			if base.Type != protocol.TypeInput {
				reject(protocol.ErrProtoBadRequest, "unexpected message type "+base.Type)
				continue
			}
			if base.ProtocolVersion != protocol.Version {
				reject(protocol.ErrProtoVersion, "protocol_version must be "+protocol.Version)
				continue
			}
			in, err := protocol.DecodeInput(msg)
			if err != nil {
				reject(protocol.ErrProtoBadRequest, err.Error())
				continue
			}
			select {
			case s.world.Inbox() <- world.InputEnvelope{AgentID: agentID, Input: in}:
			default:
				reject(protocol.ErrWorldBusy, "input queue full")
			}
		}

		// Cleanup.
		s.world.Leave() <- agentID
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (agentID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		s.refuse(conn, protocol.ErrProtoBadRequest, "expected HELLO")
		return "", nil
	}
	if base.ProtocolVersion != protocol.Version {
		s.refuse(conn, protocol.ErrProtoVersion, "protocol_version must be "+protocol.Version)
		return "", nil
	}
	hello, err := protocol.DecodeHello(msg)
	if err != nil {
		s.refuse(conn, protocol.ErrProtoBadRequest, err.Error())
		return "", nil
	}
	if hello.ClientName == "" {
		hello.ClientName = "agent"
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = defaultQueue
	}
	if maxQ > maxQueue {
		maxQ = maxQueue
	}
	out = make(chan []byte, maxQ)

	respCh := make(chan world.JoinResponse, 1)
	req := world.JoinRequest{
		Name:      hello.ClientName,
		SessionID: uuid.NewString(),
		Signals:   hello.Capabilities.Signals,
		Out:       out,
		Resp:      respCh,
	}
	timer := time.NewTimer(joinTimeout)
	defer timer.Stop()
	select {
	case s.world.Join() <- req:
	case <-timer.C:
		s.refuse(conn, protocol.ErrWorldBusy, "join queue full")
		return "", nil
	case <-ctx.Done():
		return "", nil
	}

	var resp world.JoinResponse
	select {
	case resp = <-respCh:
	case <-timer.C:
		// The world may still admit the agent later; make sure it leaves again.
		go func() {
			if late := <-respCh; late.Welcome.AgentID != "" {
				s.world.Leave() <- late.Welcome.AgentID
			}
		}()
		s.refuse(conn, protocol.ErrWorldBusy, "join timed out")
		return "", nil
	}
	if resp.Welcome.AgentID == "" {
		s.refuse(conn, protocol.ErrInternal, "join failed")
		return "", nil
	}

	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.world.Leave() <- resp.Welcome.AgentID
		return "", nil
	}
	if s.log != nil {
		s.log.Printf("join agent=%s name=%q session=%s", resp.Welcome.AgentID, hello.ClientName, resp.Welcome.SessionID)
	}
	return resp.Welcome.AgentID, out
}

// refuse answers a failed handshake with an ERROR and closes the socket.
func (s *Server) refuse(conn *websocket.Conn, code, msg string) {
	_ = writeJSON(conn, protocol.NewError(code, msg))
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, msg), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
