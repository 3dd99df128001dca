package utilities

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// SnowflakeGenerator hands out int64 snowflake ids from a single node.
type SnowflakeGenerator struct {
	node *snowflake.Node
}

// NewSnowflakeGenerator sets up a generator for the given node id (0..1023).
func NewSnowflakeGenerator(nodeID int64) (*SnowflakeGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &SnowflakeGenerator{node: node}, nil
}

// NextID returns a new, time-ordered id.
func (g *SnowflakeGenerator) NextID() int64 {
	return g.node.Generate().Int64()
}
