package graphql

import (
	"context"
	"fmt"
)

// Client routes operations to a transport by their Kind tag.
type Client struct {
	transports map[Kind]Transport
}

// NewClient creates a client sending queries and mutations through
// requestResponse and subscriptions through streaming. Either may be nil.
func NewClient(requestResponse, streaming Transport) *Client {
	c := &Client{transports: make(map[Kind]Transport, 3)}
	if requestResponse != nil {
		c.transports[KindQuery] = requestResponse
		c.transports[KindMutation] = requestResponse
	}
	if streaming != nil {
		c.transports[KindSubscription] = streaming
	}
	return c
}

// Submit implements Transport by dispatching on op.Kind.
func (c *Client) Submit(ctx context.Context, op Operation) (Stream, error) {
	t, ok := c.transports[op.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoTransport, op.Kind)
	}
	return t.Submit(ctx, op)
}

// Execute runs a query or mutation and decodes its data into out.
func (c *Client) Execute(ctx context.Context, op Operation, out any) error {
	if op.Kind == KindSubscription {
		return fmt.Errorf("%w: use Subscribe for subscriptions", ErrKindMismatch)
	}
	stream, err := c.Submit(ctx, op)
	if err != nil {
		return err
	}
	defer func() { _ = stream.Close() }()

	select {
	case resp, ok := <-stream.Events():
		if !ok {
			if err := stream.Err(); err != nil {
				return err
			}
			return ErrEmptyResponse
		}
		return resp.Decode(out)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe starts a subscription.
func (c *Client) Subscribe(ctx context.Context, op Operation) (Stream, error) {
	if op.Kind != KindSubscription {
		return nil, fmt.Errorf("%w: %s is not a subscription", ErrKindMismatch, op.Kind)
	}
	return c.Submit(ctx, op)
}
