package hass

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jkaflik/tbcover2mqtt/internal/cover"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	msgAuthRequired = "auth_required"
	msgAuth         = "auth"
	msgAuthOK       = "auth_ok"
	msgCallService  = "call_service"
	msgResult       = "result"

	coverDomain = "cover"

	connectTimeout   = time.Second
	reconnectBackoff = 10 * time.Second
)

type message struct {
	ID      int    `json:"id,omitempty"`
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Success bool   `json:"success,omitempty"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type authMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
}

type target struct {
	EntityID string `json:"entity_id"`
}

type callServiceMessage struct {
	ID      int    `json:"id"`
	Type    string `json:"type"`
	Domain  string `json:"domain"`
	Service string `json:"service"`
	Target  target `json:"target"`
}

// Client calls cover services of Home Assistant over its websocket API.
// The connection is opened on first use and reopened after failures.
// Service results are only logged. After a failed connect, calls fail
// immediately until the backoff has passed.
type Client struct {
	url     string
	token   string
	dialer  *websocket.Dialer
	timeout time.Duration

	l       sync.Mutex
	conn    *websocket.Conn
	nextID  int
	retryAt time.Time
}

func NewClient(url, token string) *Client {
	return &Client{
		url:     url,
		token:   token,
		dialer:  websocket.DefaultDialer,
		timeout: 5 * time.Second,
	}
}

func (c *Client) Open(ctx context.Context, parent string) error {
	return c.callService(ctx, "open_cover", parent)
}

func (c *Client) Close(ctx context.Context, parent string) error {
	return c.callService(ctx, "close_cover", parent)
}

func (c *Client) Stop(ctx context.Context, parent string) error {
	return c.callService(ctx, "stop_cover", parent)
}

func (c *Client) Disconnect() error {
	c.l.Lock()
	defer c.l.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil

	return err
}

func (c *Client) callService(ctx context.Context, service, entityID string) error {
	c.l.Lock()
	defer c.l.Unlock()

	if c.conn == nil {
		if time.Now().Before(c.retryAt) {
			return errors.Wrapf(cover.ErrActuator, "hass: %s %s: not connected, retrying after %s",
				service, entityID, c.retryAt.Format(time.RFC3339))
		}
		if err := c.connect(ctx); err != nil {
			c.retryAt = time.Now().Add(reconnectBackoff)
			return errors.Wrapf(cover.ErrActuator, "hass: connect: %s", err)
		}
	}

	c.nextID++
	msg := callServiceMessage{
		ID:      c.nextID,
		Type:    msgCallService,
		Domain:  coverDomain,
		Service: service,
		Target:  target{EntityID: entityID},
	}

	_ = c.conn.SetWriteDeadline(c.deadline(ctx))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.conn.Close()
		c.conn = nil
		return errors.Wrapf(cover.ErrActuator, "hass: %s %s: %s", service, entityID, err)
	}
	logrus.Debugf("hass: %s.%s %s sent as %d", coverDomain, service, entityID, msg.ID)

	return nil
}

func (c *Client) connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	_ = conn.SetReadDeadline(c.deadline(ctx))
	_ = conn.SetWriteDeadline(c.deadline(ctx))

	var m message
	if err := conn.ReadJSON(&m); err != nil {
		conn.Close()
		return err
	}
	if m.Type != msgAuthRequired {
		conn.Close()
		return errors.Errorf("unexpected %q message", m.Type)
	}

	if err := conn.WriteJSON(authMessage{Type: msgAuth, AccessToken: c.token}); err != nil {
		conn.Close()
		return err
	}

	if err := conn.ReadJSON(&m); err != nil {
		conn.Close()
		return err
	}
	if m.Type != msgAuthOK {
		conn.Close()
		return errors.Errorf("authentication failed: %s %s", m.Type, m.Message)
	}

	_ = conn.SetReadDeadline(time.Time{})
	c.conn = conn
	c.nextID = 0
	c.retryAt = time.Time{}
	logrus.Infof("hass: connected to %s", c.url)

	go c.readResults(conn)

	return nil
}

func (c *Client) readResults(conn *websocket.Conn) {
	for {
		var m message
		if err := conn.ReadJSON(&m); err != nil {
			c.l.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.l.Unlock()
			conn.Close()

			logrus.Warnf("hass: connection closed: %s", err)
			return
		}

		if m.Type != msgResult {
			continue
		}
		if !m.Success && m.Error != nil {
			logrus.Errorf("hass: call %d failed: %s %s", m.ID, m.Error.Code, m.Error.Message)
			continue
		}
		logrus.Tracef("hass: call %d done", m.ID)
	}
}

func (c *Client) deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}

	return time.Now().Add(c.timeout)
}
