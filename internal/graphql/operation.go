// Package graphql is a small GraphQL client with two transports: HTTP for
// queries and mutations, and graphql-transport-ws for subscriptions. The
// caller tags every operation with its kind; the client never inspects the
// document to decide where it goes.
package graphql

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrKindMismatch is returned when an operation is submitted to a
	// transport or helper that does not serve its kind.
	ErrKindMismatch = errors.New("operation kind not supported by transport")
	// ErrNoTransport is returned when no transport is registered for a kind.
	ErrNoTransport = errors.New("no transport for operation kind")
	// ErrEmptyResponse is returned when a stream ends without a payload.
	ErrEmptyResponse = errors.New("empty graphql response")
)

// Kind is the operation type of a GraphQL document.
type Kind string

const (
	KindQuery        Kind = "query"
	KindMutation     Kind = "mutation"
	KindSubscription Kind = "subscription"
)

// Operation is a GraphQL document plus its variables, tagged with its kind.
type Operation struct {
	Kind      Kind
	Name      string
	Query     string
	Variables map[string]any
}

// Query builds a query operation.
func Query(name, document string, vars map[string]any) Operation {
	return Operation{Kind: KindQuery, Name: name, Query: document, Variables: vars}
}

// Mutation builds a mutation operation.
func Mutation(name, document string, vars map[string]any) Operation {
	return Operation{Kind: KindMutation, Name: name, Query: document, Variables: vars}
}

// Subscription builds a subscription operation.
func Subscription(name, document string, vars map[string]any) Operation {
	return Operation{Kind: KindSubscription, Name: name, Query: document, Variables: vars}
}

// payload is the wire body shared by both transports.
type payload struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

func (op Operation) payload() payload {
	return payload{Query: op.Query, Variables: op.Variables, OperationName: op.Name}
}

// Error is a single entry of a GraphQL errors array.
type Error struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Errors is the errors array of a GraphQL response.
type Errors []Error

func (e Errors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Message)
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// Response is one GraphQL result.
type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors Errors          `json:"errors,omitempty"`
}

// Decode returns the response errors, if any, otherwise unmarshals data into out.
func (r *Response) Decode(out any) error {
	if r == nil {
		return ErrEmptyResponse
	}
	if len(r.Errors) > 0 {
		return r.Errors
	}
	if out == nil || len(r.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return fmt.Errorf("decode graphql data: %w", err)
	}
	return nil
}
