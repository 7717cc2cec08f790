package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Prober reports the deployment as reachable when the primary answers a
// ping.
type Prober struct {
	client *mongo.Client
}

func NewProber(client *mongo.Client) *Prober {
	return &Prober{
		client,
	}
}

func (p *Prober) Probe(ctx context.Context) bool {
	return p.client.Ping(ctx, readpref.Primary()) == nil
}
