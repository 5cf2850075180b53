package core

import (
	"encoding/json"
	"fmt"

	"github.com/xiaqy71/myWebServer/core/pools"
)

// Stats is a point-in-time view of the engine.
type Stats struct {
	// Connections counts open client sockets.
	Connections int64 `json:"connections"`
	// Tracked is the size of the fd→connection table.
	Tracked      int                       `json:"tracked"`
	TimerEntries int                       `json:"timer_entries"`
	Workers      pools.WorkerPoolStats     `json:"workers"`
	ConnPool     pools.ConnectionPoolStats `json:"conn_pool"`
}

// JSON renders the stats as indented JSON.
func (s Stats) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// String returns a one-line summary for the log.
func (s Stats) String() string {
	return fmt.Sprintf("conns=%d tracked=%d timers=%d workers=%d pending=%d completed=%d conn_pool_hit=%.1f%%",
		s.Connections, s.Tracked, s.TimerEntries,
		s.Workers.NumWorkers, s.Workers.TasksPending, s.Workers.TasksCompleted,
		s.ConnPool.HitRate*100)
}
