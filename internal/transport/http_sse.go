package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/corebridge/platform-core/internal/dispatcher"
	"github.com/corebridge/platform-core/internal/toolspec"
)

// pairingClaims identifies the caller a GET /events stream belongs to, so a
// POST /rpc request can only be answered on the stream it paired with
// (SPEC_FULL.md §3.7 — the spec names the pairing but not how a stream is
// scoped to a caller in a multi-tenant deployment).
type pairingClaims struct {
	StreamID string `json:"streamId"`
	jwt.RegisteredClaims
}

// HTTPServer exposes the ingress pair spec.md §6 names: GET /events opens an
// SSE stream and POST /rpc delivers JSON-RPC requests answered on that
// stream. Grounded on the teacher's internal/mcp/transport_http.go (the
// sseLoop/connectSSE framing), with the client/server roles inverted and a
// bearer-JWT pairing token added so one process can serve many concurrent
// callers rather than one subprocess per server.
type HTTPServer struct {
	dispatcher *dispatcher.Dispatcher
	casing     toolspec.Casing
	info       ServerInfo
	log        *slog.Logger

	pairingKey []byte
	pairingTTL time.Duration

	mu      sync.Mutex
	streams map[string]*sseStream
}

type sseStream struct {
	id     string
	send   chan *Response
	closed chan struct{}
}

// NewHTTPServer builds an HTTP+SSE server. pairingKey signs the bearer
// token issued to a caller when it opens a stream; pairingTTL bounds how
// long that token, and therefore the stream it names, stays valid.
func NewHTTPServer(d *dispatcher.Dispatcher, casing toolspec.Casing, info ServerInfo, pairingKey []byte, pairingTTL time.Duration, log *slog.Logger) *HTTPServer {
	if log == nil {
		log = slog.Default()
	}
	if pairingTTL <= 0 {
		pairingTTL = 10 * time.Minute
	}
	return &HTTPServer{
		dispatcher: d,
		casing:     casing,
		info:       info,
		log:        log,
		pairingKey: pairingKey,
		pairingTTL: pairingTTL,
		streams:    make(map[string]*sseStream),
	}
}

// Routes registers the two endpoints on mux.
func (s *HTTPServer) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("POST /rpc", s.handleRPC)
}

func (s *HTTPServer) issuePairingToken(streamID string) (string, error) {
	claims := pairingClaims{
		StreamID: streamID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.pairingTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.pairingKey)
}

func (s *HTTPServer) validatePairingToken(raw string) (string, error) {
	parsed, err := jwt.ParseWithClaims(raw, &pairingClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.pairingKey, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*pairingClaims)
	if !ok || !parsed.Valid || claims.StreamID == "" {
		return "", errors.New("invalid pairing token")
	}
	return claims.StreamID, nil
}

// handleEvents opens an SSE stream and writes the caller a pairing token as
// the first event so it can address subsequent POST /rpc calls at this
// stream.
func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	streamID := uuid.NewString()
	stream := &sseStream{id: streamID, send: make(chan *Response, 32), closed: make(chan struct{})}

	s.mu.Lock()
	s.streams[streamID] = stream
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.streams, streamID)
		s.mu.Unlock()
		close(stream.closed)
	}()

	token, err := s.issuePairingToken(streamID)
	if err != nil {
		http.Error(w, "failed to issue pairing token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent(w, "pairing", map[string]string{"token": token})
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case resp := <-stream.send:
			writeEvent(w, "message", resp)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\n", event)
	for _, line := range strings.Split(string(raw), "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}

// handleRPC answers a JSON-RPC request carried over POST, delivering the
// response on the SSE stream named by the caller's bearer pairing token.
func (s *HTTPServer) handleRPC(w http.ResponseWriter, r *http.Request) {
	streamID, err := s.pairingTokenFrom(r)
	if err != nil {
		http.Error(w, "invalid or missing pairing token", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	stream, ok := s.streams[streamID]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "no open stream for pairing token", http.StatusGone)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	resp := dispatch(r.Context(), s.dispatcher, s.casing, s.info, req)

	select {
	case stream.send <- resp:
		w.WriteHeader(http.StatusAccepted)
	case <-stream.closed:
		http.Error(w, "stream closed before response could be delivered", http.StatusGone)
	case <-time.After(5 * time.Second):
		http.Error(w, "stream backlog full", http.StatusServiceUnavailable)
	}
}

func (s *HTTPServer) pairingTokenFrom(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errors.New("missing bearer token")
	}
	return s.validatePairingToken(strings.TrimPrefix(header, prefix))
}
