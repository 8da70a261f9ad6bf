// Package control implements the operator control plane: a Unix domain
// socket exposing AddJob/UpdateJob/RemoveJob/GetJob/ListJobs/HistoryFor/
// StartNow/StopExecution/ImportConfig (spec §6). Grounded on the teacher's
// middleware/auth.go bearer-JWT verification idiom, adapted from gin
// middleware to a raw net.Conn request/response loop since the control
// socket has no HTTP framing of its own.
package control

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lunasched/lunasched/internal/domain"
	"github.com/lunasched/lunasched/internal/usecase"
)

// maxFrameSize bounds a single request/response body, guarding the socket
// against a misbehaving client claiming an enormous length prefix.
const maxFrameSize = 16 * 1024 * 1024

// Request is the discriminated envelope every control-socket call sends.
type Request struct {
	Op      string          `json:"op"`
	Token   string          `json:"token,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorEnvelope is the structured CLI-facing error shape (spec §9
// supplement "Structured CLI-facing error envelope").
type ErrorEnvelope struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Response is the discriminated reply every control-socket call gets.
type Response struct {
	OK     bool            `json:"ok"`
	Error  *ErrorEnvelope  `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Server accepts connections on a Unix domain socket and serves one
// request/response frame per connection.
type Server struct {
	socketPath string
	jwtSecret  []byte
	service    *usecase.Service
	logger     *slog.Logger

	listener net.Listener
}

// NewServer returns a Server bound to socketPath once Run is called. An
// empty jwtSecret disables bearer-token auth entirely, for local dev.
func NewServer(socketPath string, jwtSecret []byte, service *usecase.Service, logger *slog.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		jwtSecret:  jwtSecret,
		service:    service,
		logger:     logger.With("component", "control"),
	}
}

// Run binds the Unix domain socket and serves connections until ctx is
// cancelled. A stale socket file from a prior unclean shutdown is removed
// before binding, matching the usual UDS server idiom.
func (s *Server) Run(ctx context.Context) error {
	_ = removeStaleSocket(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("bind control socket %s: %w", s.socketPath, err)
	}
	s.listener = ln

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	s.logger.InfoContext(ctx, "control socket listening", "path", s.socketPath)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.ErrorContext(ctx, "accept failed", "error", err)
			continue
		}
		go s.serve(ctx, conn)
	}
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	req, err := readFrame(conn)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.logger.WarnContext(ctx, "read request frame failed", "error", err)
		}
		return
	}

	resp := s.dispatch(ctx, req)

	if err := writeFrame(conn, resp); err != nil {
		s.logger.WarnContext(ctx, "write response frame failed", "error", err)
	}
}

func readFrame(r io.Reader) (Request, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Request{}, err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > maxFrameSize {
		return Request{}, fmt.Errorf("frame of %d bytes exceeds limit", size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return Request{}, err
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, fmt.Errorf("unmarshal request: %w", err)
	}
	return req, nil
}

func writeFrame(w io.Writer, resp Response) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

func errorResponse(kind, message string) Response {
	return Response{OK: false, Error: &ErrorEnvelope{Kind: kind, Message: message}}
}

func resultResponse(v any) Response {
	body, err := json.Marshal(v)
	if err != nil {
		return errorResponse("internal", "failed to marshal result")
	}
	return Response{OK: true, Result: body}
}

// authenticate verifies req.Token and checks that the resulting claims
// grant requiredScope. When the Server has no jwtSecret configured, auth is
// skipped entirely (local dev).
func (s *Server) authenticate(req Request, requiredScope string) (domain.OperatorClaims, error) {
	if len(s.jwtSecret) == 0 {
		return domain.OperatorClaims{Scopes: []string{domain.ScopeAdmin}}, nil
	}

	rawToken := strings.TrimSpace(req.Token)
	if rawToken == "" {
		return domain.OperatorClaims{}, domain.ErrUnauthorized
	}

	token, err := jwt.Parse(rawToken, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return domain.OperatorClaims{}, domain.ErrTokenInvalid
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.OperatorClaims{}, domain.ErrTokenInvalid
	}

	claims := domain.OperatorClaims{}
	if sub, ok := mapClaims["sub"].(string); ok {
		claims.Subject = sub
	}
	if rawScopes, ok := mapClaims["scopes"].([]any); ok {
		for _, rs := range rawScopes {
			if scope, ok := rs.(string); ok {
				claims.Scopes = append(claims.Scopes, scope)
			}
		}
	}

	if !claims.HasScope(requiredScope) {
		return domain.OperatorClaims{}, domain.ErrUnauthorized
	}
	return claims, nil
}

// removeStaleSocket unlinks a leftover socket file from a prior unclean
// shutdown so net.Listen doesn't fail with "address already in use".
func removeStaleSocket(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return os.Remove(path)
}
