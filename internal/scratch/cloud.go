package scratch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/cloudlog/internal/ingest"
	"github.com/onnwee/cloudlog/internal/tracing"
)

// CloudSource logs in and opens the cloud websocket for a project.
// It implements ingest.Source.
type CloudSource struct {
	config Config
	client *http.Client
	dialer websocket.Dialer
	logger *slog.Logger
}

// NewCloudSource creates a CloudSource. A nil client uses http.DefaultClient.
func NewCloudSource(config Config, client *http.Client, logger *slog.Logger) (*CloudSource, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return &CloudSource{
		config: config,
		client: client,
		dialer: websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout},
		logger: logger,
	}, nil
}

type handshake struct {
	Method    string `json:"method"`
	User      string `json:"user"`
	ProjectID string `json:"project_id"`
}

// Connect logs in, dials the cloud server and sends the project handshake.
func (s *CloudSource) Connect(ctx context.Context) (_ ingest.Stream, err error) {
	spanCtx, endSpan := tracing.StartSpan(ctx, "scratch.connect",
		attribute.String("scratch.project_id", s.config.ProjectID))
	defer func() { endSpan(err) }()

	s.logger.Info("attempting scratch login", slog.String("username", s.config.Username))
	session, err := Login(spanCtx, s.client, s.config)
	if err != nil {
		return nil, err
	}
	s.logger.Info("scratch login successful")

	header := http.Header{}
	header.Set("Origin", s.config.BaseURL)
	header.Set("User-Agent", s.config.UserAgent)
	header.Set("Cookie", fmt.Sprintf("%s=%q;", sessionCookie, session.SessionID))

	s.logger.Info("connecting to cloud project", slog.String("project_id", s.config.ProjectID))
	conn, _, err := s.dialer.DialContext(spanCtx, s.config.CloudURL, header)
	if err != nil {
		return nil, fmt.Errorf("cloud dial failed: %w", err)
	}

	hs, err := json.Marshal(handshake{Method: "handshake", User: session.Username, ProjectID: s.config.ProjectID})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to encode handshake: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, append(hs, '\n')); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("cloud handshake failed: %w", err)
	}
	s.logger.Info("connected to project cloud")

	stream := &cloudStream{conn: conn, logger: s.logger}
	stream.stop = context.AfterFunc(ctx, func() { _ = stream.Close() })
	return stream, nil
}

// cloudStream reads newline-delimited JSON frames from one connection.
type cloudStream struct {
	conn    *websocket.Conn
	logger  *slog.Logger
	stop    func() bool
	pending []ingest.Notification

	closeOnce sync.Once
}

// Next returns the next decodable notification. Lines that are not valid
// JSON objects are logged and skipped.
func (c *cloudStream) Next(ctx context.Context) (ingest.Notification, error) {
	for len(c.pending) == 0 {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ingest.Notification{}, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ingest.Notification{}, io.EOF
			}
			return ingest.Notification{}, err
		}
		c.pending = c.decode(payload)
	}
	n := c.pending[0]
	c.pending = c.pending[1:]
	return n, nil
}

func (c *cloudStream) decode(payload []byte) []ingest.Notification {
	var out []ingest.Notification
	for _, line := range bytes.Split(payload, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		n, err := DecodeFrame(line)
		if err != nil {
			c.logger.Warn("skipping undecodable cloud frame", slog.String("error", err.Error()))
			continue
		}
		out = append(out, n)
	}
	return out
}

// Close closes the connection. Safe to call more than once.
func (c *cloudStream) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.stop != nil {
			c.stop()
		}
		err = c.conn.Close()
	})
	return err
}

// ErrInvalidFrame is returned for frames that are not JSON objects.
var ErrInvalidFrame = errors.New("invalid cloud frame")

// DecodeFrame parses one JSON line from the cloud server. Numbers are kept
// as json.Number so long digit strings survive unchanged.
func DecodeFrame(line []byte) (ingest.Notification, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return ingest.Notification{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return ingest.Notification{}, fmt.Errorf("%w: trailing data", ErrInvalidFrame)
	}
	if fields == nil {
		return ingest.Notification{}, ErrInvalidFrame
	}

	n := ingest.Notification{
		Value:     fields["value"],
		Timestamp: fields["timestamp"],
		Fields:    fields,
	}
	n.Method, _ = fields["method"].(string)
	n.Name, _ = fields["name"].(string)
	if n.Method == "" {
		// The logs API reports verbs like "set_var" instead of methods.
		if verb, ok := fields["verb"].(string); ok {
			n.Method = methodFromVerb(verb)
		}
	}
	return n, nil
}

func methodFromVerb(verb string) string {
	switch verb {
	case "set_var":
		return "set"
	case "create_var":
		return "create"
	case "del_var":
		return "delete"
	case "rename_var":
		return "rename"
	default:
		return verb
	}
}
