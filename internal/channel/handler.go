package channel

import "context"

// Handler receives every application event delivered on the client's topic.
//
// HandleEvent is called synchronously from the client's receive loop, so
// events are seen in arrival order and a slow handler delays the next read.
// A returned error or a panic is logged as ErrHandlerFailure and the loop
// carries on with the next message.
type Handler interface {
	HandleEvent(ctx context.Context, event string, payload Payload) error
}

// HandlerFunc adapts an ordinary function to Handler.
type HandlerFunc func(ctx context.Context, event string, payload Payload) error

// HandleEvent calls f(ctx, event, payload).
func (f HandlerFunc) HandleEvent(ctx context.Context, event string, payload Payload) error {
	return f(ctx, event, payload)
}
