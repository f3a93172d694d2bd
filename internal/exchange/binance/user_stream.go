package binance

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"oco-guard/internal/core"
)

// UserStream owns one private user-data connection, parameterized by a
// listen key. At most one is live at a time; the session runner tears the
// old one down fully before dialing again.
type UserStream struct {
	client    *Client
	conn      *websocket.Conn
	listenKey string
	keepalive time.Duration
}

func (c *Client) NewUserStream(ctx context.Context, listenKey string, keepalive time.Duration) (*UserStream, error) {
	if c.wsBaseURL == "" {
		return nil, errors.New("ws base url required")
	}
	if listenKey == "" {
		return nil, errors.New("listen key required")
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsBaseURL+"/ws/"+listenKey, nil)
	if err != nil {
		return nil, err
	}
	return &UserStream{client: c, conn: conn, listenKey: listenKey, keepalive: keepalive}, nil
}

func (u *UserStream) ListenKey() string { return u.listenKey }

func (u *UserStream) Close() error {
	return u.conn.Close()
}

// Updates decodes inbound order events onto a channel. Malformed or
// unrelated messages are dropped; a read error closes the channel and is
// reported on the error channel.
func (u *UserStream) Updates(ctx context.Context) (<-chan core.OrderUpdate, <-chan error) {
	updates := make(chan core.OrderUpdate)
	errCh := make(chan error, 4)
	done := make(chan struct{})

	reportErr := func(err error) {
		if err == nil {
			return
		}
		select {
		case errCh <- err:
		default:
		}
	}

	readTimeout := 3 * time.Minute
	u.conn.SetPingHandler(func(appData string) error {
		_ = u.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return u.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	go func() {
		defer close(done)
		defer close(updates)
		defer u.conn.Close()

		for {
			_ = u.conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, data, err := u.conn.ReadMessage()
			if err != nil {
				reportErr(err)
				return
			}
			if len(data) == 0 {
				continue
			}
			update, ok := decodeOrderUpdate(data)
			if !ok {
				continue
			}
			select {
			case updates <- update:
			case <-ctx.Done():
				return
			}
		}
	}()

	if u.keepalive > 0 {
		go func() {
			ticker := time.NewTicker(u.keepalive)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					renewCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					err := u.client.KeepAliveListenKey(renewCtx, u.listenKey)
					cancel()
					if err != nil {
						// A missed renewal degrades the connection; the
						// counterparty will close it and the session reconnects.
						log.Printf("level=WARN event=listen_key_keepalive_failed err=%q", err.Error())
					}
				case <-done:
					return
				case <-ctx.Done():
					_ = u.conn.Close()
					return
				}
			}
		}()
	}

	return updates, errCh
}

func decodeOrderUpdate(data []byte) (core.OrderUpdate, bool) {
	var msg orderTradeUpdate
	if err := json.Unmarshal(data, &msg); err != nil {
		return core.OrderUpdate{}, false
	}
	if msg.EventType != "ORDER_TRADE_UPDATE" {
		return core.OrderUpdate{}, false
	}
	update := core.OrderUpdate{
		Symbol:        msg.Order.Symbol,
		ClientOrderID: msg.Order.ClientOrderID,
		Type:          core.OrderType(msg.Order.Type),
		Status:        core.OrderStatus(msg.Order.Status),
		PositionSide:  core.PositionSide(msg.Order.PositionSide),
		ClosePosition: msg.Order.ClosePosition,
	}
	if msg.EventTime > 0 {
		update.Time = time.UnixMilli(msg.EventTime)
	}
	return update, true
}
