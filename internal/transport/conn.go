package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/go-stomp/stomp/v3"
	"nhooyr.io/websocket"
)

// DialConfig describes how to reach the backend's STOMP-over-WebSocket feed.
type DialConfig struct {
	URL               string
	Token             string
	TLSConfig         *tls.Config
	HeartbeatInterval time.Duration
	HandshakeTimeout  time.Duration
}

const maxFrameSize = 10 << 20

// NewDialer builds the production Dialer: a websocket dial carrying the bearer
// token as a connection header, with a STOMP session layered on top of the
// resulting net.Conn.
func NewDialer(cfg DialConfig) Dialer {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return func(ctx context.Context) (session, error) {
		h := http.Header{}
		if cfg.Token != "" {
			h.Set("Authorization", "Bearer "+cfg.Token)
		}
		opt := &websocket.DialOptions{HTTPHeader: h}
		if cfg.TLSConfig != nil {
			opt.HTTPClient = &http.Client{Transport: &http.Transport{TLSClientConfig: cfg.TLSConfig}}
		}

		dialCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
		defer cancel()
		wsConn, _, err := websocket.Dial(dialCtx, cfg.URL, opt)
		if err != nil {
			return nil, fmt.Errorf("websocket dial %s: %w", cfg.URL, err)
		}
		wsConn.SetReadLimit(maxFrameSize)

		// The net.Conn adapter lives as long as the session, not the dial.
		netConn := websocket.NetConn(context.Background(), wsConn, websocket.MessageText)

		stompConn, err := stomp.Connect(netConn,
			stomp.ConnOpt.HeartBeat(cfg.HeartbeatInterval, cfg.HeartbeatInterval),
			stomp.ConnOpt.Header("Authorization", "Bearer "+cfg.Token),
		)
		if err != nil {
			_ = netConn.Close()
			return nil, fmt.Errorf("stomp connect %s: %w", cfg.URL, err)
		}
		return &stompSession{conn: stompConn}, nil
	}
}

type stompSession struct {
	conn *stomp.Conn
}

func (s *stompSession) Subscribe(destination string) (remoteSubscription, error) {
	sub, err := s.conn.Subscribe(destination, stomp.AckAuto)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", destination, err)
	}
	return &stompRemote{sub: sub}, nil
}

func (s *stompSession) Send(destination, contentType string, body []byte) error {
	return s.conn.Send(destination, contentType, body)
}

func (s *stompSession) Disconnect() error {
	return s.conn.Disconnect()
}

type stompRemote struct {
	sub *stomp.Subscription
}

func (r *stompRemote) Messages() <-chan *stomp.Message {
	return r.sub.C
}

func (r *stompRemote) Unsubscribe() error {
	return r.sub.Unsubscribe()
}
