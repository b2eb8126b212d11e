// Package transfer implements the chunked block-transfer engine.
// It splits payloads into bounded-size blocks, moves them with controlled
// parallelism, computes end-to-end checksums, and commits the ordered
// block manifest in a single final call.
package transfer

import (
	"encoding/base64"
	"fmt"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/google/uuid"

	"github.com/PositiveExperienceLLC/blobclient/internal/restapi"
)

// TaskState tracks the lifecycle of one block transfer task.
type TaskState int32

// Task lifecycle states
const (
	// TaskPending means the segment has been partitioned but not dispatched
	TaskPending TaskState = iota

	// TaskInFlight means a worker is transferring the segment
	TaskInFlight

	// TaskDone means the segment transferred successfully
	TaskDone

	// TaskFailed means the segment transfer failed irrecoverably
	TaskFailed
)

// Task is one block-sized segment of a transfer. Tasks are created when
// the source is partitioned and owned exclusively by the scheduler; they
// are not mutated externally once dispatched.
type Task struct {
	Offset  int64
	Length  int64
	BlockID string
	State   TaskState
}

// Scheduler coordinates chunked uploads and downloads over the wire API.
type Scheduler struct {
	api    restapi.API
	logger log.Logger
}

// NewScheduler creates a transfer scheduler.
func NewScheduler(api restapi.API, logger log.Logger) *Scheduler {
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Scheduler{
		api:    api,
		logger: logger,
	}
}

// blockIDNamer assigns generated block identifiers. All identifiers from
// one namer share a uuid prefix and have equal pre-encoding length, as the
// service requires within a single commit.
type blockIDNamer struct {
	prefix string
	next   int
}

func newBlockIDNamer() *blockIDNamer {
	return &blockIDNamer{prefix: uuid.NewString()}
}

// Next returns the next identifier in generation order.
func (g *blockIDNamer) Next() string {
	id := fmt.Sprintf("%s-%06d", g.prefix, g.next)
	g.next++
	return base64.StdEncoding.EncodeToString([]byte(id))
}
