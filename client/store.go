package client

import "context"

// Store persists clients together with their instances.
type Store interface {
	UpsertClients(ctx context.Context, clients []*Client) error
	GetClient(ctx context.Context, nit string) (*Client, error)
	GetInstance(ctx context.Context, nit string, instanceID int64) (*Instance, error)
	ListClients(ctx context.Context) ([]*Client, error)
}
