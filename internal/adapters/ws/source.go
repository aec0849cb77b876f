// Package ws connects live channels to the backend's WebSocket
// push-notification endpoint.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/robertarktes/tour-booking-dashboard/internal/live"
)

type Source struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
}

func NewSource(url string, header http.Header) *Source {
	return &Source{
		url:    url,
		header: header,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (s *Source) Connect(ctx context.Context) (live.Stream, error) {
	conn, resp, err := s.dialer.DialContext(ctx, s.url, s.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", s.url)
	}
	return &stream{conn: conn}, nil
}

type stream struct {
	conn *websocket.Conn
}

// Receive reads and discards one message. Pings are answered by the
// connection's default handler while reading.
func (s *stream) Receive() error {
	_, _, err := s.conn.ReadMessage()
	return err
}

func (s *stream) Close() error {
	return s.conn.Close()
}
