package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/corebridge/platform-core/internal/dispatcher"
	"github.com/corebridge/platform-core/internal/toolspec"
)

// StdioServer answers line-delimited JSON-RPC 2.0 requests read from an
// io.Reader and writes responses to an io.Writer, one JSON object per line
// (spec.md §6). Grounded on the teacher's internal/mcp/transport_stdio.go,
// inverted from a client that spawns a subprocess and sends requests into a
// server that reads them: the framing (read a line, parse request ID
// presence, write a matching line back) is the same idiom, the direction of
// the pipe is reversed.
type StdioServer struct {
	dispatcher *dispatcher.Dispatcher
	casing     toolspec.Casing
	info       ServerInfo
	log        *slog.Logger
}

// NewStdioServer builds a server bound to one dispatcher. info is echoed
// back verbatim in the initialize response.
func NewStdioServer(d *dispatcher.Dispatcher, casing toolspec.Casing, info ServerInfo, log *slog.Logger) *StdioServer {
	if log == nil {
		log = slog.Default()
	}
	return &StdioServer{dispatcher: d, casing: casing, info: info, log: log}
}

// Serve reads requests from r until it hits EOF or ctx is cancelled. A
// malformed line gets a -32700 response rather than killing the loop.
func (s *StdioServer) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := s.handleLine(ctx, line)
		if resp == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	return nil
}

func (s *StdioServer) handleLine(ctx context.Context, line []byte) *Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.log.Warn("malformed json-rpc request", "error", err)
		return errorResponse(nil, ErrCodeParseError, "parse error: "+err.Error())
	}
	return dispatch(ctx, s.dispatcher, s.casing, s.info, req)
}
