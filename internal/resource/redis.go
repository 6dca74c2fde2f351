package resource

import (
	"context"

	"github.com/deppfellow/go-dbkit/internal/dbexec"
	"github.com/redis/go-redis/v9"
)

// RedisTx is a MULTI/EXEC pipeline. Commands queued by the unit of work are
// sent on Commit; Rollback and Close drop whatever is still queued.
type RedisTx struct {
	redis.Pipeliner
}

func (t RedisTx) Commit(ctx context.Context) error {
	_, err := t.Exec(ctx)
	return err
}

func (t RedisTx) Rollback(context.Context) error {
	t.Discard()
	return nil
}

func (t RedisTx) Close(context.Context) error {
	t.Discard()
	return nil
}

// TxPipeliner is implemented by *redis.Client, *redis.ClusterClient and
// *redis.Ring.
type TxPipeliner interface {
	TxPipeline() redis.Pipeliner
}

// RedisTxPipeline opens a new MULTI pipeline on client for every scope.
func RedisTxPipeline(client TxPipeliner) dbexec.Factory[RedisTx] {
	return func(context.Context) (RedisTx, error) {
		return RedisTx{Pipeliner: client.TxPipeline()}, nil
	}
}
