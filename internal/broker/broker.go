package broker

import (
	"context"

	"indian-stock-api/internal/api"
)

// Base carries what every broker shares: its id and the pooled HTTP session
// of its namespace.
type Base struct {
	id     string
	client *api.Client
}

// NewBase creates a broker base with a session tagged by id
func NewBase(id string, opts ...api.ClientOption) *Base {
	opts = append([]api.ClientOption{api.WithBrokerID(id)}, opts...)
	return &Base{id: id, client: api.NewClient(opts...)}
}

// ID returns the broker id
func (b *Base) ID() string {
	return b.id
}

// String renders the broker as Indian-Stock-Api.<id>()
func (b *Base) String() string {
	return "Indian-Stock-Api." + b.id + "()"
}

// Client returns the broker session
func (b *Base) Client() *api.Client {
	return b.client
}

// Fetch sends one request over the broker session
func (b *Base) Fetch(ctx context.Context, req api.FetchRequest) (*api.Response, error) {
	return b.client.Fetch(ctx, req)
}
