package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"warfront.gg/internal/protocol"
	"warfront.gg/internal/sim/clans"
	"warfront.gg/internal/sim/world"
	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

type Options struct {
	// JWTSecret verifies HELLO tokens. When empty, the HELLO name is trusted as the
	// participant id (development only).
	JWTSecret []byte

	CommandsPerSecond float64
	Burst             int
	OutQueue          int
	JoinTimeout       time.Duration
}

func (o *Options) applyDefaults() {
	if o.CommandsPerSecond <= 0 {
		o.CommandsPerSecond = 10
	}
	if o.Burst <= 0 {
		o.Burst = 20
	}
	if o.OutQueue <= 0 {
		o.OutQueue = 64
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = 5 * time.Second
	}
}

type Server struct {
	world *world.World
	clans clans.Directory
	opts  Options
	log   *zap.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, dir clans.Directory, opts Options, logger *zap.Logger) *Server {
	opts.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		world: w,
		clans: dir,
		opts:  opts,
		log:   logger.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// conn carries two outbound queues. Events drop their oldest entry when full;
// replies are never dropped, so a client that lets them pile up is disconnected.
type conn struct {
	participant modelpkg.Participant
	sessionID   string
	out         chan []byte
	results     chan []byte

	dead chan struct{}
	kill sync.Once
}

func newConn(p modelpkg.Participant, sessionID string, queue int) *conn {
	return &conn{
		participant: p,
		sessionID:   sessionID,
		out:         make(chan []byte, queue),
		results:     make(chan []byte, queue),
		dead:        make(chan struct{}),
	}
}

func (c *conn) reply(b []byte) {
	select {
	case c.results <- b:
	default:
		c.kill.Do(func() { close(c.dead) })
	}
}

// next returns the next frame to write, replies first. It reports false once the
// connection is cancelled or killed.
func (c *conn) next(ctx context.Context) ([]byte, bool) {
	select {
	case <-c.dead:
		return nil, false
	default:
	}
	select {
	case b := <-c.results:
		return b, true
	default:
	}
	select {
	case <-ctx.Done():
		return nil, false
	case <-c.dead:
		return nil, false
	case b := <-c.results:
		return b, true
	case b := <-c.out:
		return b, true
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		c := s.handshake(ws)
		if c == nil {
			return
		}
		log := s.log.With(zap.String("participant", c.participant.ID), zap.String("session", c.sessionID))
		log.Info("joined")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				b, ok := c.next(ctx)
				if !ok {
					select {
					case <-c.dead:
						log.Warn("reply queue full; closing")
						closeWith(ws, "slow consumer")
						_ = ws.Close()
						cancel()
					default:
					}
					return
				}
				_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}()

		limiter := rate.NewLimiter(rate.Limit(s.opts.CommandsPerSecond), s.opts.Burst)

		// Reader loop.
		for {
			_ = ws.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := ws.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeCmd {
				s.sendError(c, protocol.ErrProtoBadRequest, "expected CMD")
				continue
			}
			var cmd protocol.CmdMsg
			if err := json.Unmarshal(msg, &cmd); err != nil || cmd.ID == "" {
				s.sendError(c, protocol.ErrProtoBadRequest, "malformed CMD")
				continue
			}
			if cmd.ProtocolVersion != "" && cmd.ProtocolVersion != protocol.Version {
				s.sendError(c, protocol.ErrProtoBadRequest, "bad protocol_version")
				continue
			}
			if !protocol.IsCommand(cmd.Cmd) {
				s.sendError(c, protocol.ErrUnknownCommand, "unknown command "+cmd.Cmd)
				continue
			}
			if !limiter.Allow() {
				s.sendError(c, protocol.ErrRateLimit, "too many commands")
				continue
			}
			pid := c.participant.ID
			s.world.Post(func() {
				s.world.Handle(pid, cmd, func(res protocol.ResultMsg) { s.send(c, res) })
			})
		}

		// Cleanup.
		pid, sid := c.participant.ID, c.sessionID
		s.world.Post(func() { s.world.Quit(pid, sid) })
		log.Info("left")
	}
}

func (s *Server) handshake(ws *websocket.Conn) *conn {
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := ws.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(ws, "expected HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(ws, "malformed HELLO")
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(ws, "bad protocol_version")
		return nil
	}

	p := modelpkg.Participant{ID: strings.TrimSpace(hello.Name), Name: strings.TrimSpace(hello.Name)}
	if len(s.opts.JWTSecret) > 0 {
		token := ""
		if hello.Auth != nil {
			token = hello.Auth.Token
		}
		id, name, err := verify(s.opts.JWTSecret, token)
		if err != nil {
			s.log.Info("hello rejected", zap.Error(err))
			_ = writeJSON(ws, protocol.ErrorMsg{Type: protocol.TypeError, Code: protocol.ErrUnauthorized, Message: "invalid token"})
			closeWith(ws, "unauthorized")
			return nil
		}
		p.ID = id
		if name != "" {
			p.Name = name
		}
	}
	if p.ID == "" {
		closeWith(ws, "missing name")
		return nil
	}

	c := newConn(p, uuid.NewString(), s.opts.OutQueue)
	joined := make(chan struct{})
	s.world.Post(func() {
		s.world.Join(c.sessionID, c.participant, c.out)
		close(joined)
	})
	select {
	case <-joined:
	case <-time.After(s.opts.JoinTimeout):
		// The join is still queued; retire it behind this session id.
		pid, sid := c.participant.ID, c.sessionID
		s.world.Post(func() { s.world.Quit(pid, sid) })
		_ = writeJSON(ws, protocol.ErrorMsg{Type: protocol.TypeError, Code: protocol.ErrWorldBusy, Message: "world did not accept the session"})
		return nil
	}

	cfg := s.world.Config()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       c.sessionID,
		ParticipantID:   p.ID,
		Params: protocol.WorldParams{
			World:             cfg.ID,
			ChunkSize:         modelpkg.ChunkSize,
			CommandsPerSecond: s.opts.CommandsPerSecond,
			ChannelSeconds:    cfg.ChannelDuration.Seconds(),
			SiegeSeconds:      cfg.SiegeDuration.Seconds(),
		},
	}
	if ref := s.clans.ClanOf(p.ID); ref != nil {
		welcome.ClanID = ref.ID
	}
	if err := writeJSON(ws, welcome); err != nil {
		return nil
	}
	return c
}

func (s *Server) send(c *conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Error("encode", zap.Error(err))
		return
	}
	c.reply(b)
}

func (s *Server) sendError(c *conn, code, msg string) {
	s.send(c, protocol.ErrorMsg{Type: protocol.TypeError, Code: code, Message: msg})
}

func closeWith(ws *websocket.Conn, reason string) {
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(ws *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return ws.WriteMessage(websocket.TextMessage, b)
}
