package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/runlens/runlens/internal/wire"
	"github.com/runlens/runlens/pkg/types"
)

const (
	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Send pings at this period; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	writeWait = 10 * time.Second
)

// HTTPSource talks to the upstream run source over its REST API and opens
// the push channel over WebSocket. All payloads pass through the wire
// decoder before leaving this package.
type HTTPSource struct {
	baseURL string
	client  *http.Client
	dialer  *websocket.Dialer
	decoder *wire.Decoder
	logger  *slog.Logger
}

// NewHTTPSource creates a source client for the given base URL
// (e.g. "http://orchestrator:7070").
func NewHTTPSource(baseURL string, decoder *wire.Decoder, logger *slog.Logger) *HTTPSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		decoder: decoder,
		logger:  logger,
	}
}

func (s *HTTPSource) GetStatus(ctx context.Context, runID string) (*types.StatusSnapshot, error) {
	raw, err := s.get(ctx, fmt.Sprintf("/api/v1/runs/%s/status", url.PathEscape(runID)), nil)
	if err != nil {
		return nil, err
	}
	return s.decoder.Status(raw)
}

func (s *HTTPSource) GetTrace(ctx context.Context, runID string, cursor types.Cursor) (*TraceBatch, error) {
	query := url.Values{}
	if cursor != "" {
		query.Set("cursor", string(cursor))
	}
	raw, err := s.get(ctx, fmt.Sprintf("/api/v1/runs/%s/trace", url.PathEscape(runID)), query)
	if err != nil {
		return nil, err
	}

	var body struct {
		Events []json.RawMessage `json:"events"`
		Cursor types.Cursor      `json:"cursor"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode trace response: %w", err)
	}
	return &TraceBatch{Events: s.decoder.Events(body.Events), Cursor: body.Cursor}, nil
}

func (s *HTTPSource) GetTerminalChunks(ctx context.Context, runID string, ref types.TerminalRef, cursor types.Cursor) (*TerminalBatch, error) {
	query := url.Values{}
	if cursor != "" {
		query.Set("cursor", string(cursor))
	}
	path := fmt.Sprintf("/api/v1/runs/%s/terminal/%s/%s",
		url.PathEscape(runID), url.PathEscape(ref.NodeRef), url.PathEscape(string(ref.Stream)))
	raw, err := s.get(ctx, path, query)
	if err != nil {
		return nil, err
	}

	var body struct {
		Chunks []json.RawMessage `json:"chunks"`
		Cursor types.Cursor      `json:"cursor"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode terminal response: %w", err)
	}
	return &TerminalBatch{Chunks: s.decoder.Chunks(body.Chunks), Cursor: body.Cursor}, nil
}

func (s *HTTPSource) OpenStream(ctx context.Context, runID string, opts StreamOptions) (Stream, error) {
	wsURL, err := s.streamURL(runID, opts)
	if err != nil {
		return nil, err
	}

	conn, resp, err := s.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("dial stream: %w", err)
	}

	ws := &wsStream{
		conn:    conn,
		decoder: s.decoder,
		logger:  s.logger.With(slog.String("run_id", runID)),
		msgs:    make(chan Message, 64),
		closed:  make(chan struct{}),
	}
	go ws.readPump()
	go ws.pingPump()
	return ws, nil
}

func (s *HTTPSource) streamURL(runID string, opts StreamOptions) (string, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + fmt.Sprintf("/api/v1/runs/%s/stream", url.PathEscape(runID))

	query := u.Query()
	if opts.Cursor != "" {
		query.Set("cursor", string(opts.Cursor))
	}
	if opts.TerminalCursor != "" {
		query.Set("terminal_cursor", string(opts.TerminalCursor))
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func (s *HTTPSource) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	u := s.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrRunNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("source returned %d for %s", resp.StatusCode, path)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	return body, nil
}

// wsStream adapts a WebSocket connection into the Stream interface.
type wsStream struct {
	conn    *websocket.Conn
	decoder *wire.Decoder
	logger  *slog.Logger

	msgs   chan Message
	closed chan struct{}

	mu      sync.Mutex
	err     error
	closeFn sync.Once
}

func (w *wsStream) Messages() <-chan Message { return w.msgs }

func (w *wsStream) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *wsStream) Close() error {
	w.closeFn.Do(func() {
		close(w.closed)
		w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		w.conn.Close()
	})
	return nil
}

func (w *wsStream) readPump() {
	defer close(w.msgs)
	defer w.Close()

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.setErr(err)
			}
			return
		}
		msg, ok := w.parse(data)
		if !ok {
			continue
		}
		select {
		case w.msgs <- msg:
		case <-w.closed:
			return
		}
	}
}

func (w *wsStream) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-w.closed:
			return
		}
	}
}

// parse turns one wire envelope into a Message. Unknown or malformed
// envelopes are dropped; the stream keeps going.
func (w *wsStream) parse(data []byte) (Message, bool) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		w.logger.Warn("dropping malformed stream envelope", slog.String("error", err.Error()))
		return Message{}, false
	}

	switch head.Type {
	case MessageReady:
		var body struct {
			Mode       Mode  `json:"mode"`
			IntervalMs int64 `json:"interval_ms"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			w.logger.Warn("dropping malformed ready envelope", slog.String("error", err.Error()))
			return Message{}, false
		}
		return Message{Type: MessageReady, Ready: &Ready{
			Mode:     body.Mode,
			Interval: time.Duration(body.IntervalMs) * time.Millisecond,
		}}, true

	case MessageTrace:
		var body struct {
			Events []json.RawMessage `json:"events"`
			Cursor types.Cursor      `json:"cursor"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			w.logger.Warn("dropping malformed trace envelope", slog.String("error", err.Error()))
			return Message{}, false
		}
		return Message{Type: MessageTrace, Trace: &TraceBatch{
			Events: w.decoder.Events(body.Events),
			Cursor: body.Cursor,
		}}, true

	case MessageTerminal:
		var body struct {
			Chunks []json.RawMessage `json:"chunks"`
			Cursor types.Cursor      `json:"cursor"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			w.logger.Warn("dropping malformed terminal envelope", slog.String("error", err.Error()))
			return Message{}, false
		}
		return Message{Type: MessageTerminal, Terminal: &TerminalBatch{
			Chunks: w.decoder.Chunks(body.Chunks),
			Cursor: body.Cursor,
		}}, true

	case MessageStatus:
		var body struct {
			Status json.RawMessage `json:"status"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			w.logger.Warn("dropping malformed status envelope", slog.String("error", err.Error()))
			return Message{}, false
		}
		snap, err := w.decoder.Status(body.Status)
		if err != nil {
			w.logger.Warn("dropping invalid status payload", slog.String("error", err.Error()))
			return Message{}, false
		}
		return Message{Type: MessageStatus, Status: snap}, true

	case MessageDataflow:
		var body struct {
			Packets []json.RawMessage `json:"packets"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			w.logger.Warn("dropping malformed dataflow envelope", slog.String("error", err.Error()))
			return Message{}, false
		}
		return Message{Type: MessageDataflow, Dataflow: w.decoder.Packets(body.Packets)}, true

	case MessageComplete:
		var body struct {
			RunID  string          `json:"run_id"`
			Status types.RunStatus `json:"status"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			w.logger.Warn("dropping malformed complete envelope", slog.String("error", err.Error()))
			return Message{}, false
		}
		return Message{Type: MessageComplete, Complete: &Complete{
			RunID:  body.RunID,
			Status: body.Status,
		}}, true

	default:
		w.logger.Debug("ignoring unknown stream message", slog.String("type", string(head.Type)))
		return Message{}, false
	}
}

func (w *wsStream) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

// Verify interface compliance.
var (
	_ Source = (*HTTPSource)(nil)
	_ Stream = (*wsStream)(nil)
)
