package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/babelcloud/pushscreen/internal/capture/core"
	"github.com/babelcloud/pushscreen/internal/capture/flv"
	"github.com/babelcloud/pushscreen/internal/util"
)

// DefaultWriteTimeout bounds a single websocket write.
const DefaultWriteTimeout = 5 * time.Second

// WSWriter sends an FLV stream over a websocket: the FLV file header as
// the first binary message, then one tag per binary message.
type WSWriter struct {
	mu            sync.Mutex
	conn          *websocket.Conn
	writeTimeout  time.Duration
	headerWritten bool
	closed        bool
	logger        *slog.Logger
}

var _ TagWriter = (*WSWriter)(nil)

// DialWS connects to a ws:// or wss:// endpoint.
func DialWS(ctx context.Context, url string, writeTimeout time.Duration) (*WSWriter, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", url)
	}
	return NewWSWriter(conn, writeTimeout), nil
}

// NewWSWriter wraps an established connection.
func NewWSWriter(conn *websocket.Conn, writeTimeout time.Duration) *WSWriter {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	w := &WSWriter{
		conn:         conn,
		writeTimeout: writeTimeout,
		logger:       util.GetLogger().With("component", "ws_writer", "remote", conn.RemoteAddr().String()),
	}
	go w.readLoop()
	return w
}

// readLoop processes control frames; data from the peer is ignored.
func (w *WSWriter) readLoop() {
	for {
		if _, _, err := w.conn.ReadMessage(); err != nil {
			w.logger.Debug("WebSocket read loop ended", "error", err)
			return
		}
	}
}

// WriteTag implements TagWriter.
func (w *WSWriter) WriteTag(tag core.WireTag) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.headerWritten {
		if err := w.write(flv.FileHeader(true, true)); err != nil {
			return errors.Wrap(err, "failed to write flv header")
		}
		w.headerWritten = true
	}

	msg, err := flv.AppendTag(nil, tagType(tag), tag.TimestampMs(), tag.Payload)
	if err != nil {
		return err
	}
	if err := w.write(msg); err != nil {
		return errors.Wrapf(err, "failed to write %s tag", tag.Kind)
	}
	return nil
}

func (w *WSWriter) write(msg []byte) error {
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.BinaryMessage, msg)
}

// Close sends a close frame and closes the connection.
func (w *WSWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	deadline := time.Now().Add(w.writeTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended")
	if err := w.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		w.logger.Debug("Failed to send close frame", "error", err)
	}
	return w.conn.Close()
}
