package connection

import (
	"strconv"
	"time"
)

// ping runs on the ping task. It closes the connection when nothing has arrived within
// PingTimeout, otherwise it sends a ping carrying the current time in unix millis.
func (c *Connection) ping() {
	if !c.Handshaked() {
		return
	}

	if c.cfg.PingTimeout > 0 {
		last := c.LastActiveTime()
		if time.Since(last) > c.cfg.PingTimeout {
			c.logger.Warn("no activity, connection stale",
				"last_active", last,
				"timeout", c.cfg.PingTimeout,
			)
			c.fireError(ErrStaleConnection)
			c.CloseWithStatus(StatusGoingAway, "ping timeout")
			return
		}
	}

	payload := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := c.transport.Ping([]byte(payload)); err != nil {
		if isTransportGone(err) {
			return
		}
		c.logger.Debug("failed to send ping", "error", err)
	}
}

// connectTimedOut runs on the connect-timeout task.
func (c *Connection) connectTimedOut() {
	if c.state.Current() != StateConnecting {
		return
	}
	c.logger.Warn("connect timed out", "timeout", c.cfg.ConnectTimeout)
	c.CloseWithStatus(StatusNormalClosure, "connect timeout")
}
