package web

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"monitord/internal/hub"
	"monitord/internal/metrics"
	"monitord/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browser clients connect from the dashboard origin; auth happens
	// upstream of this subsystem.
	CheckOrigin: func(*http.Request) bool { return true },
}

// frame is the server-to-client envelope.
type frame struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// clientOp is what a connected dashboard sends us.
type clientOp struct {
	Action   string `json:"action"`
	ServerID int64  `json:"serverId"`
}

// wsConn adapts one websocket connection to a hub.Sink. Outbound frames
// go through a buffered channel so a slow client stalls only itself. The
// done channel, not the outbound channel, signals shutdown: a publisher
// holding a stale sink reference must never hit a closed channel.
type wsConn struct {
	id       string
	ws       *websocket.Conn
	outbound chan frame
	done     chan struct{}
	closer   sync.Once
}

func (c *wsConn) Send(event string, payload any) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	case c.outbound <- frame{Event: event, Payload: payload}:
		return nil
	default:
		return errors.New("outbound buffer full, dropping event")
	}
}

func (c *wsConn) close() {
	c.closer.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (s *Server) handleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	connID := uuid.NewString()
	userID := c.Query("user")
	if userID == "" {
		userID = connID
	}
	conn := &wsConn{id: connID, ws: ws, outbound: make(chan frame, 64), done: make(chan struct{})}

	metrics.ConnectedClients.Inc()
	s.hub.Connect(connID, userID, conn)

	go s.writePump(conn)
	s.readPump(conn)

	s.hub.Disconnect(connID)
	conn.close()
	metrics.ConnectedClients.Dec()
}

func (s *Server) writePump(c *wsConn) {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.outbound:
			_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteJSON(f); err != nil {
				s.log.Warn("websocket write failed", "conn_id", c.id, "err", err)
				c.close()
				return
			}
		}
	}
}

// readPump processes client operations until the connection drops.
func (s *Server) readPump(c *wsConn) {
	for {
		var op clientOp
		if err := c.ws.ReadJSON(&op); err != nil {
			return
		}
		switch op.Action {
		case "SubscribeToServer":
			s.hub.JoinGroup(c.id, hub.ServerGroup(op.ServerID))
		case "UnsubscribeFromServer":
			s.hub.LeaveGroup(c.id, hub.ServerGroup(op.ServerID))
		case "JoinAlerts":
			s.hub.JoinGroup(c.id, hub.GroupAlerts)
		case "JoinReports":
			s.hub.JoinGroup(c.id, hub.GroupReports)
		case "GetOnlineUsersCount":
			count := s.hub.OnlineCount()
			if err := c.Send(models.EventOnlineUsersCount, gin.H{"count": count}); err != nil {
				s.log.Warn("online count reply dropped", "conn_id", c.id, "err", err)
			}
		default:
			s.log.Warn("unknown websocket action", "conn_id", c.id, "action", op.Action)
		}
	}
}
