package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"factorycraft.ai/internal/protocol"
	"factorycraft.ai/internal/sim/catalogs"
	"factorycraft.ai/internal/sim/factory"
	"factorycraft.ai/internal/sim/factory/geom"
	"factorycraft.ai/internal/sim/factory/state"
)

// Engine is the slice of factory.Engine the transport needs.
type Engine interface {
	State() *state.Store
	Catalogs() *catalogs.Catalogs
	TickRateHz() int
	SubmitLayout(factory.Layout)
	Nearby(p geom.Vec2, radius float64) []string
}

// ClientGauge tracks connected clients; observability.TickCollector implements it.
type ClientGauge interface {
	ClientConnected()
	ClientDisconnected()
}

type Config struct {
	// LayoutRate limits LAYOUT messages per connection.
	LayoutRate  rate.Limit
	LayoutBurst int
	Clients     ClientGauge
	// PongWait is how long a connection may stay silent; the server pings
	// at nine tenths of it so idle clients answer with pongs.
	PongWait time.Duration
}

func DefaultConfig() Config {
	return Config{LayoutRate: rate.Limit(2), LayoutBurst: 4, PongWait: 60 * time.Second}
}

type Server struct {
	engine Engine
	log    *log.Logger
	cfg    Config

	upgrader websocket.Upgrader
}

func NewServer(e Engine, logger *log.Logger, cfg Config) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg.LayoutRate <= 0 {
		cfg.LayoutRate = DefaultConfig().LayoutRate
	}
	if cfg.LayoutBurst <= 0 {
		cfg.LayoutBurst = DefaultConfig().LayoutBurst
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = DefaultConfig().PongWait
	}
	s := &Server{
		engine: e,
		log:    logger,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

// session is one connected client. Changes are queued without blocking the
// tick; when the queue overflows the writer resends the full state instead.
type session struct {
	id    string
	out   chan []byte
	stale atomic.Bool
}

func (sess *session) offer(b []byte) {
	select {
	case sess.out <- b:
	default:
		sess.stale.Store(true)
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess, unsubscribe := s.handshake(conn)
		if sess == nil {
			return
		}
		defer unsubscribe()
		if s.cfg.Clients != nil {
			s.cfg.Clients.ClientConnected()
			defer s.cfg.Clients.ClientDisconnected()
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		pongWait := s.cfg.PongWait
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		// Writer goroutine. It is the only writer after the handshake, pings included.
		go func() {
			ping := time.NewTicker(pongWait * 9 / 10)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
						cancel()
						return
					}
				case b := <-sess.out:
					if err := writeRaw(conn, b); err != nil {
						cancel()
						return
					}
					if sess.stale.CompareAndSwap(true, false) {
						resync := protocol.StateMsg{
							Type:            protocol.TypeState,
							ProtocolVersion: protocol.Version,
							State:           s.engine.State().Snapshot(),
						}
						if err := writeJSON(conn, resync); err != nil {
							cancel()
							return
						}
					}
				}
			}
		}()

		limiter := rate.NewLimiter(s.cfg.LayoutRate, s.cfg.LayoutBurst)

		// Reader loop.
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			reply := s.handle(msg, limiter)
			if reply == nil {
				continue
			}
			b, err := json.Marshal(reply)
			if err != nil {
				s.log.Printf("session %s: marshal reply: %v", sess.id, err)
				continue
			}
			select {
			case sess.out <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
	}
}

// handle processes one client message and returns the reply, if any.
func (s *Server) handle(msg []byte, limiter *rate.Limiter) any {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.NewError("", protocol.ErrProtoBadRequest, "malformed json")
	}
	if base.ProtocolVersion != protocol.Version {
		return protocol.NewError("", protocol.ErrProtoVersion, "unsupported protocol_version")
	}
	switch base.Type {
	case protocol.TypeLayout:
		if !limiter.Allow() {
			return protocol.NewError("", protocol.ErrRateLimit, "layout rate exceeded")
		}
		m, err := protocol.DecodeLayout(msg)
		if err != nil {
			return protocol.NewError(m.ReqID, protocol.ErrInvalidLayout, err.Error())
		}
		s.engine.SubmitLayout(m.Layout)
		return nil

	case protocol.TypeQueryNearby:
		var q protocol.QueryNearbyMsg
		if err := json.Unmarshal(msg, &q); err != nil {
			return protocol.NewError("", protocol.ErrBadRequest, "bad QUERY_NEARBY")
		}
		if q.Radius < 0 {
			return protocol.NewError(q.ReqID, protocol.ErrBadRequest, "radius must be >= 0")
		}
		ids := s.engine.Nearby(q.Position, q.Radius)
		if ids == nil {
			ids = []string{}
		}
		return protocol.NearbyMsg{Type: protocol.TypeNearby, ProtocolVersion: protocol.Version, ReqID: q.ReqID, IDs: ids}

	case protocol.TypeStateReq:
		var q protocol.StateReqMsg
		_ = json.Unmarshal(msg, &q)
		return protocol.StateMsg{
			Type:            protocol.TypeState,
			ProtocolVersion: protocol.Version,
			ReqID:           q.ReqID,
			State:           s.engine.State().Snapshot(),
		}

	default:
		return protocol.NewError("", protocol.ErrProtoBadRequest, "unexpected message type "+base.Type)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (*session, func()) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil, nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil, nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, protocol.NewError("", protocol.ErrProtoVersion, "bad protocol_version"))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil, nil
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 32
	}
	if maxQ > 256 {
		maxQ = 256
	}
	sess := &session{id: uuid.NewString(), out: make(chan []byte, maxQ)}

	// Subscribe before the snapshot so no change falls between the two.
	// Listeners run inside the tick: marshal and hand off, never block.
	unsubscribe := s.engine.State().Subscribe(func(c state.Change) {
		b, err := json.Marshal(protocol.StateChangeMsg{
			Type:            protocol.TypeStateChange,
			ProtocolVersion: protocol.Version,
			Change:          c,
		})
		if err != nil {
			return
		}
		sess.offer(b)
	})

	view := s.engine.State().Snapshot()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		Tick:            view.Tick,
		TickRateHz:      s.engine.TickRateHz(),
		CatalogDigest:   s.engine.Catalogs().Buildings.Digest,
		State:           view,
	}
	if err := writeJSON(conn, welcome); err != nil {
		unsubscribe()
		return nil, nil
	}
	s.log.Printf("session %s connected (%s)", sess.id, hello.ClientName)
	return sess, unsubscribe
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeRaw(conn, b)
}

func writeRaw(conn *websocket.Conn, b []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	}
	return nil
}
