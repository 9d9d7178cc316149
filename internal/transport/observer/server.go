package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"voxelroute.ai/internal/observerproto"
	"voxelroute.ai/internal/sim/world"
)

const (
	maxSubscribedMasters = 256

	subscribeTimeout = 5 * time.Second
	idleTimeout      = 60 * time.Second
	frameTimeout     = 5 * time.Second
)

var errBadSubscribe = errors.New("expected SUBSCRIBE")

// Server streams per-tick routing summaries to read-only observers over a
// websocket. Both endpoints only answer loopback clients.
type Server struct {
	world  *world.World
	log    *log.Logger
	buffer int

	upgrader websocket.Upgrader
	sessions atomic.Uint64
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	buffer := w.Config().ObserverBuffer
	if buffer <= 0 {
		buffer = 8
	}
	return &Server{
		world:  w,
		log:    logger,
		buffer: buffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// BootstrapHandler describes the world an observer is about to subscribe to.
func (s *Server) BootstrapHandler() http.HandlerFunc {
	return loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.bootstrap())
	})
}

func (s *Server) bootstrap() observerproto.BootstrapResponse {
	cfg := s.world.Config()
	return observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		WorldID:         cfg.ID,
		Tick:            s.world.CurrentTick(),
		WorldParams: observerproto.WorldParams{
			TickRateHz:         cfg.TickRateHz,
			SnapshotEveryTicks: cfg.SnapshotEveryTicks,
		},
		NodeKinds: s.world.NodeKinds(),
		Resources: s.world.ResourceIDs(),
	}
}

// WSHandler upgrades the request and runs one observer session. The first
// frame must be a SUBSCRIBE for the current protocol version; later
// SUBSCRIBE frames replace the master filter.
func (s *Server) WSHandler() http.HandlerFunc {
	return loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		sess := &session{
			srv:  s,
			conn: conn,
			id:   fmt.Sprintf("O%d", s.sessions.Add(1)),
			out:  make(chan []byte, s.buffer),
		}
		sess.run(r.Context())
	})
}

type session struct {
	srv  *Server
	conn *websocket.Conn
	id   string
	out  chan []byte
}

func (ss *session) run(parent context.Context) {
	defer ss.conn.Close()

	_ = ss.conn.SetReadDeadline(time.Now().Add(subscribeTimeout))
	masters, err := ss.readSubscribe()
	if err != nil {
		if errors.Is(err, errBadSubscribe) {
			ss.close(websocket.ClosePolicyViolation, errBadSubscribe.Error())
		}
		return
	}
	select {
	case ss.srv.world.ObserverJoin() <- world.ObserverJoinRequest{SessionID: ss.id, TickOut: ss.out, Masters: masters}:
	default:
		ss.close(websocket.CloseTryAgainLater, "server busy")
		return
	}
	defer ss.leave()

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := ss.pump(ctx); err != nil && ss.srv.log != nil && !errors.Is(err, context.Canceled) {
			ss.srv.log.Printf("observer %s: write: %v", ss.id, err)
		}
	}()

	ss.follow()
	cancel()
	ss.close(websocket.CloseNormalClosure, "bye")
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
	}
}

// readSubscribe reads one frame and returns its capped master filter.
func (ss *session) readSubscribe() ([][3]int, error) {
	_, msg, err := ss.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadSubscribe, err)
	}
	if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
		return nil, errBadSubscribe
	}
	return capMasters(sub.Masters), nil
}

// follow applies filter updates until the client goes away. Malformed
// frames are ignored and updates are dropped while the world is busy.
func (ss *session) follow() {
	for {
		_ = ss.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		masters, err := ss.readSubscribe()
		if errors.Is(err, errBadSubscribe) {
			continue
		}
		if err != nil {
			return
		}
		select {
		case ss.srv.world.ObserverSubscribe() <- world.ObserverSubscribeRequest{SessionID: ss.id, Masters: masters}:
		default:
		}
	}
}

// pump writes queued tick frames until ctx ends or the world drops the
// session by closing its channel.
func (ss *session) pump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-ss.out:
			if !ok {
				return nil
			}
			_ = ss.conn.SetWriteDeadline(time.Now().Add(frameTimeout))
			if err := ss.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return err
			}
		}
	}
}

func (ss *session) leave() {
	select {
	case ss.srv.world.ObserverLeave() <- ss.id:
	default:
	}
}

func (ss *session) close(code int, reason string) {
	_ = ss.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func capMasters(m [][3]int) [][3]int {
	if len(m) > maxSubscribedMasters {
		return m[:maxSubscribedMasters]
	}
	return m
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}
