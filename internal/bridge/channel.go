package bridge

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Send after the channel is closed.
var ErrClosed = errors.New("bridge channel closed")

type envelope struct {
	ctx   context.Context
	req   Request
	reply chan Response
}

// Channel carries requests between two goroutines. Each request gets its own
// reply channel so responses never cross.
type Channel struct {
	requests chan envelope
	done     chan struct{}
	once     sync.Once
}

// NewChannel creates a Channel with the given request buffer.
func NewChannel(buffer int) *Channel {
	return &Channel{
		requests: make(chan envelope, buffer),
		done:     make(chan struct{}),
	}
}

// Send delivers req and waits for its single response.
func (c *Channel) Send(ctx context.Context, req Request) (Response, error) {
	env := envelope{ctx: ctx, req: req, reply: make(chan Response, 1)}
	select {
	case c.requests <- env:
	case <-c.done:
		return Response{}, ErrClosed
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case resp := <-env.reply:
		return resp, nil
	case <-c.done:
		return Response{}, ErrClosed
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Serve answers requests with h until ctx is cancelled or the channel is
// closed. Requests are handled concurrently.
func (c *Channel) Serve(ctx context.Context, h Handler) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case env := <-c.requests:
			wg.Add(1)
			go func() {
				defer wg.Done()
				env.reply <- h.Handle(env.ctx, env.req)
			}()
		case <-c.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops Serve and fails pending and future Sends.
func (c *Channel) Close() {
	c.once.Do(func() { close(c.done) })
}
