// Package sharding maps entity ids onto the configured Postgres shards.
package sharding

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrInvalidShardCount = errors.New("shard count must be greater than 0")

// Router assigns every uuid to a shard in [0, count). The assignment depends
// only on the id and the count, so it is stable across processes and restarts.
type Router struct {
	count int
}

func NewRouter(count int) (*Router, error) {
	if count <= 0 {
		return nil, ErrInvalidShardCount
	}
	return &Router{count: count}, nil
}

// Count returns the number of shards.
func (r *Router) Count() int {
	return r.count
}

// Shard projects the low-order 64 bits of id onto a shard index.
func (r *Router) Shard(id uuid.UUID) int {
	low := binary.BigEndian.Uint64(id[8:])
	return int(low % uint64(r.count))
}

// Name renders the shard label used in logs and metrics.
func (r *Router) Name(index int) string {
	return fmt.Sprintf("ds%d", index)
}

// Colocate mints a random id that routes to the same shard as key.
func (r *Router) Colocate(key uuid.UUID) uuid.UUID {
	target := r.Shard(key)
	for {
		id := uuid.New()
		if r.Shard(id) == target {
			return id
		}
	}
}
