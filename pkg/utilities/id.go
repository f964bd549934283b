package utilities

import (
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// IDGenerator hands out snowflake ids from a single node. If the node cannot
// be initialized it falls back to KSUID strings so callers always get an id.
type IDGenerator struct {
	once   sync.Once
	nodeID int64
	node   *snowflake.Node
}

func NewIDGenerator(nodeID int64) *IDGenerator {
	return &IDGenerator{nodeID: nodeID}
}

func (g *IDGenerator) NewID() string {
	g.once.Do(func() {
		n, err := snowflake.NewNode(g.nodeID)
		if err == nil {
			g.node = n
		}
	})
	if g.node == nil {
		return NewKSUID()
	}
	return g.node.Generate().String()
}
