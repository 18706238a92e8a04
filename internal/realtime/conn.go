package realtime

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var errSubscriberDropped = errors.New("subscriber dropped")

// ServeConn pumps the subscriber's queue to conn until the client goes
// away, ctx ends or the hub drops the subscriber.
func ServeConn(ctx context.Context, conn *websocket.Conn, sub *Subscriber) error {
	errChan := make(chan error, 2)

	// Client -> server: only control frames matter, data is discarded
	go func() {
		conn.SetReadLimit(4096)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				errChan <- err
				return
			}
		}
	}()

	// Server -> client
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case frame := <-sub.Messages():
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					errChan <- err
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					errChan <- err
					return
				}
			case <-sub.Done():
				errChan <- errSubscriberDropped
				return
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
		}
	}()

	err := <-errChan
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	if err != nil {
		log.Printf("Subscription on topic %s ended: %v", sub.Topic(), err)
	}
	return err
}
