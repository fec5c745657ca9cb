// Package dispatch is the local request channel into a running daemon. Each
// connection carries one message.Request frame and gets one
// message.Response frame back.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.klb.dev/clipferry/internal/crypto"
	"go.klb.dev/clipferry/internal/message"
	"go.klb.dev/clipferry/internal/wire"
)

const readTimeout = 30 * time.Second

// Handler applies one request.
type Handler interface {
	Submit(ctx context.Context, req message.Request) message.Response
}

// Server accepts dispatch connections.
type Server struct {
	handler Handler
	key     *crypto.Key
}

// NewServer returns a Server. A non-nil key requires clients to seal frames
// with the same token.
func NewServer(h Handler, key *crypto.Key) *Server {
	return &Server{handler: h, key: key}
}

// Serve accepts connections on ln until ctx is done, then closes ln and
// waits for in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			slog.Error("dispatch accept failed", "err", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	wc := wire.New(conn, s.key)
	defer wc.Close()

	wc.SetReadDeadline(readTimeout)
	var req message.Request
	if err := wc.Read(&req); err != nil {
		if !errors.Is(err, io.EOF) {
			slog.Warn("dispatch: bad request frame", "err", err)
			_ = wc.Write(message.Response{Error: fmt.Sprintf("%s: %v", message.ErrMalformedMessage, err)})
		}
		return
	}
	wc.SetReadDeadline(0)

	resp := s.handler.Submit(ctx, req)
	if err := wc.Write(resp); err != nil {
		slog.Warn("dispatch: response not delivered", "err", err)
	}
}

// Send delivers req over conn and returns the daemon's response. conn is
// closed on return.
func Send(ctx context.Context, conn net.Conn, key *crypto.Key, req message.Request) (message.Response, error) {
	wc := wire.New(conn, key)
	defer wc.Close()

	stop := context.AfterFunc(ctx, func() { _ = wc.Close() })
	defer stop()

	if err := wc.Write(req); err != nil {
		return message.Response{}, fmt.Errorf("dispatch send: %w", err)
	}
	var resp message.Response
	if err := wc.Read(&resp); err != nil {
		if ctx.Err() != nil {
			return message.Response{}, ctx.Err()
		}
		return message.Response{}, fmt.Errorf("dispatch reply: %w", err)
	}
	return resp, nil
}
