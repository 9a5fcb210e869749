// Package genqueue defines the narrow interface to the external
// world-generation scheduler. The engine relays missing leaf positions
// to the queue and folds the asynchronously generated chunk columns
// back in through the tracker it supplies.
package genqueue

import (
	"context"

	"github.com/hupe1980/lodgo/pos"
	"github.com/hupe1980/lodgo/source"
)

// Result is the terminal state of a generation task.
type Result uint8

const (
	ResultSuccess Result = iota
	ResultFailed
	ResultCancelled
)

// Tracker is supplied by the engine with every task. The queue feeds
// generated chunk columns through Consume and consults IsAlive so tasks
// whose target has been evicted can short-circuit instead of computing
// terrain nobody will fold in.
type Tracker interface {
	// Consume delivers one generated chunk of columns.
	Consume(u *source.ChunkUpdate)
	// IsAlive reports whether the requesting position still wants data.
	IsAlive() bool
}

// Queue is the generation scheduler collaborator. Implementations run
// the actual terrain computation out of process or on their own pools;
// the engine only observes completion through the returned channel.
type Queue interface {
	// SubmitGenTask requests generation of the region at p up to the
	// given generation step. The returned channel delivers exactly one
	// result and is then closed.
	SubmitGenTask(ctx context.Context, p pos.Pos, requiredStep source.GenStep, t Tracker) (<-chan Result, error)

	// CancelGenTasks cancels any outstanding tasks for the given
	// positions. Unknown positions are ignored.
	CancelGenTasks(positions []pos.Pos)

	// HighestDataDetail returns the finest detail level the queue can
	// produce data for.
	HighestDataDetail() uint8

	// LowestDataDetail returns the coarsest detail level the queue can
	// produce data for.
	LowestDataDetail() uint8
}
