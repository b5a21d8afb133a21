package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nutriLensAPI/internal/logger"
	"nutriLensAPI/internal/nutrition"
	types "nutriLensAPI/internal/types/nutrition"
	"nutriLensAPI/services"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
)

const (
	actionAddNutrition                = "addNutrition"
	actionUpdateNutritionRequirements = "updateNutritionRequirements"
	actionCompleteSetup               = "completeSetup"
	actionUpdateDailyActivity         = "updateDailyActivity"
)

var errUnknownAction = errors.New("unknown action")

// wsRequest is one client action.
type wsRequest struct {
	Action    string          `json:"action"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type wsMessage struct {
	Type      string                 `json:"type"`
	State     *services.SessionState `json:"state,omitempty"`
	Action    string                 `json:"action,omitempty"`
	RequestID string                 `json:"requestId,omitempty"`
	OK        bool                   `json:"ok,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Status    int                    `json:"status,omitempty"`
}

// sessionClient sits between one websocket and its coordinator. State
// pushes are coalesced: the writer only ever sends the newest state.
type sessionClient struct {
	conn        *websocket.Conn
	coordinator *services.SessionCoordinator

	mu     sync.Mutex
	latest *services.SessionState
	dirty  chan struct{}

	replies chan wsMessage
	done    chan struct{}
}

func newSessionClient(conn *websocket.Conn) *sessionClient {
	return &sessionClient{
		conn:    conn,
		dirty:   make(chan struct{}, 1),
		replies: make(chan wsMessage, 16),
		done:    make(chan struct{}),
	}
}

func (c *sessionClient) pushState(st services.SessionState) {
	c.mu.Lock()
	c.latest = &st
	c.mu.Unlock()
	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

func (c *sessionClient) takeState() *services.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.latest
	c.latest = nil
	return st
}

func (c *sessionClient) reply(msg wsMessage) {
	select {
	case c.replies <- msg:
	case <-c.done:
	}
}

// readPump handles messages coming from the client until the connection
// fails.
func (c *sessionClient) readPump(ctx context.Context) {
	defer func() {
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("session read error: %v", err)
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.reply(wsMessage{Type: "result", OK: false, Error: "invalid message", Status: http.StatusBadRequest})
			continue
		}
		c.reply(c.dispatch(ctx, req))
	}
}

func (c *sessionClient) dispatch(ctx context.Context, req wsRequest) wsMessage {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	err := c.run(ctx, req)
	msg := wsMessage{Type: "result", Action: req.Action, RequestID: req.RequestID, OK: err == nil}
	if err != nil {
		msg.Status = statusFor(err)
		msg.Error = err.Error()
		if errors.Is(err, errUnknownAction) {
			msg.Status = http.StatusBadRequest
		}
	}
	return msg
}

func (c *sessionClient) run(ctx context.Context, req wsRequest) error {
	var err error
	switch req.Action {
	case actionAddNutrition:
		var delta types.Delta
		if err = decodePayload(req.Payload, &delta); err == nil {
			_, err = c.coordinator.AddNutrition(ctx, delta)
		}
	case actionUpdateNutritionRequirements:
		var partial types.Delta
		if err = decodePayload(req.Payload, &partial); err == nil {
			_, err = c.coordinator.UpdateNutritionRequirements(ctx, partial)
		}
	case actionCompleteSetup:
		var m nutrition.BodyMetrics
		if err = decodePayload(req.Payload, &m); err == nil {
			_, err = c.coordinator.CompleteSetup(ctx, m)
		}
	case actionUpdateDailyActivity:
		_, err = c.coordinator.UpdateDailyActivity(ctx)
	default:
		err = errUnknownAction
	}
	return err
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return services.ErrValidation
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.Join(services.ErrValidation, err)
	}
	return nil
}

// writePump handles messages going to the client.
func (c *sessionClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.dirty:
			if st := c.takeState(); st != nil {
				if err := c.write(wsMessage{Type: "state", State: st}); err != nil {
					return
				}
			}

		case msg := <-c.replies:
			if err := c.write(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *sessionClient) write(msg wsMessage) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}
