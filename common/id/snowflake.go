package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID.
// Every process that ingests webhooks needs its own node ID. The importer
// keeps GitLab's event ids and does not generate any.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a new event ID. IDs generated later compare greater,
// which is what the recent-events ordering relies on for ties.
func New() int64 {
	return node.Generate().Int64()
}
