package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/prodevopz/prochat/internal/bus"
)

// ErrChannelUnavailable is returned by send operations while the push
// channel is not connected. Callers fail fast and pick a fallback route
// instead of queueing.
var ErrChannelUnavailable = errors.New("push channel unavailable")

const handshakeTimeout = 10 * time.Second

// Channel is the websocket push channel to the server. It owns the
// socket for its whole lifetime: Connect dials and performs the join
// handshake, the read loop translates server events into bus events,
// and Close announces the user offline before tearing down. The channel
// does not reconnect by itself; it reports the disconnect through the
// state machine and lets the owner decide.
type Channel struct {
	machine *Machine
	bus     *bus.Bus
	logger  *zap.Logger

	writeMu sync.Mutex
	ws      *websocket.Conn
	selfID  string
}

// NewChannel creates a push channel in the disconnected state.
func NewChannel(m *Machine, b *bus.Bus, logger *zap.Logger) *Channel {
	return &Channel{
		machine: m,
		bus:     b,
		logger:  logger.Named("conn"),
	}
}

// Connect dials the server, joins as selfID, and announces presence.
// The extra header carries session credentials established over REST.
func (c *Channel) Connect(ctx context.Context, serverURL, selfID string, header http.Header) error {
	if err := c.machine.Transition(Connecting); err != nil {
		return err
	}

	wsURL, err := pushURL(serverURL)
	if err != nil {
		c.machine.Transition(Disconnected)
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, resp, err := dialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.machine.Transition(Disconnected)
		return fmt.Errorf("dialing push channel: %w", err)
	}

	c.writeMu.Lock()
	c.ws = ws
	c.selfID = selfID
	c.writeMu.Unlock()

	// Handshake: identify, then announce presence.
	if err := c.write(EventJoin, selfID); err != nil {
		ws.Close()
		c.machine.Transition(Disconnected)
		return fmt.Errorf("join handshake: %w", err)
	}
	if err := c.write(EventUserOnline, PresencePayload{UserID: selfID}); err != nil {
		ws.Close()
		c.machine.Transition(Disconnected)
		return fmt.Errorf("presence announce: %w", err)
	}

	if err := c.machine.Transition(Connected); err != nil {
		ws.Close()
		return err
	}
	c.logger.Info("push channel connected", zap.String("url", wsURL))

	go c.readLoop(ws)
	return nil
}

// Emit sends an envelope if and only if the channel is connected.
func (c *Channel) Emit(event string, data any) error {
	if c.machine.Current() != Connected {
		return ErrChannelUnavailable
	}
	return c.write(event, data)
}

// SendMessage pushes an outbound message over the channel.
func (c *Channel) SendMessage(p SendPayload) error {
	return c.Emit(EventSendMessage, p)
}

// SendTyping pushes a typing indicator. Best effort; a failure here is
// not worth surfacing.
func (c *Channel) SendTyping(p TypingPayload) error {
	return c.Emit(EventTyping, p)
}

// Close announces the user offline, closes the socket, and moves to
// Disconnected. Safe to call in any state.
func (c *Channel) Close() {
	c.writeMu.Lock()
	ws := c.ws
	selfID := c.selfID
	c.ws = nil
	c.writeMu.Unlock()
	if ws == nil {
		return
	}

	if c.machine.Current() == Connected {
		// Best effort; the peer learns via the socket close anyway.
		env := Envelope{Event: EventUserOffline}
		env.Data, _ = json.Marshal(PresencePayload{UserID: selfID})
		deadline := time.Now().Add(2 * time.Second)
		ws.SetWriteDeadline(deadline)
		if raw, err := json.Marshal(env); err == nil {
			ws.WriteMessage(websocket.TextMessage, raw)
		}
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	}
	ws.Close()
	if c.machine.Current() != Disconnected {
		c.machine.Transition(Disconnected)
	}
	c.logger.Info("push channel closed")
}

func (c *Channel) write(event string, data any) error {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", event, err)
		}
		env.Data = raw
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.ws == nil {
		return ErrChannelUnavailable
	}
	c.ws.SetWriteDeadline(time.Now().Add(handshakeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("writing %s: %w", event, err)
	}
	return nil
}

func (c *Channel) readLoop(ws *websocket.Conn) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			c.writeMu.Lock()
			stale := c.ws != ws
			if !stale {
				c.ws = nil
			}
			c.writeMu.Unlock()
			if !stale {
				c.logger.Warn("push channel read failed", zap.Error(err))
				if c.machine.Current() != Disconnected {
					c.machine.Transition(Disconnected)
				}
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.logger.Warn("dropping malformed push frame", zap.Error(err))
			continue
		}
		c.dispatch(env)
	}
}

func (c *Channel) dispatch(env Envelope) {
	switch env.Event {
	case EventNewMessage:
		var rec MessageRecord
		if err := json.Unmarshal(env.Data, &rec); err != nil {
			c.logger.Warn("dropping malformed message event", zap.Error(err))
			return
		}
		c.publish("push.message", rec)
	case EventMessageError:
		var p ErrorPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.logger.Warn("dropping malformed error event", zap.Error(err))
			return
		}
		c.publish("push.error", p)
	case EventUserTyping:
		var p TypingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		c.publish("push.typing", p)
	case EventUserOnline, EventUserOffline:
		var p PresencePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		c.publish("push.presence."+env.Event, p)
	default:
		c.logger.Debug("ignoring unknown push event", zap.String("event", env.Event))
	}
}

func (c *Channel) publish(kind string, payload any) {
	c.bus.Emit(kind, payload)
}

// pushURL derives the websocket endpoint from the REST base URL.
func pushURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parsing server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	return u.String(), nil
}
