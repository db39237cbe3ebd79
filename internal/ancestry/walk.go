// Package ancestry walks process trees and memoizes who launched a process.
package ancestry

import (
	"context"

	"ports/internal/model"
)

// maxDepth caps a walk even if a broken table keeps yielding fresh pids.
const maxDepth = 512

// Lookup resolves one hop of the process tree.
type Lookup interface {
	Lookup(ctx context.Context, pid uint32) (model.ProcessEntry, error)
}

// Preparer is implemented by lookups that benefit from one bulk read
// before a batch of walks.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Walk returns the chain from pid up to the root, target first. It stops
// after appending pid 1 (or any process whose parent is 0), on a revisited
// pid, or at the first failed lookup; in the last two cases the partial
// chain is returned without error. Only cancellation is an error.
func Walk(ctx context.Context, procs Lookup, pid uint32) ([]model.Ancestor, error) {
	var chain []model.Ancestor
	seen := make(map[uint32]struct{})
	cur := pid
	for len(chain) < maxDepth {
		if err := ctx.Err(); err != nil {
			return chain, err
		}
		if _, ok := seen[cur]; ok {
			break
		}
		seen[cur] = struct{}{}

		entry, err := procs.Lookup(ctx, cur)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return chain, ctxErr
			}
			break
		}
		chain = append(chain, model.Ancestor{PID: cur, Name: entry.Name, PPID: entry.PPID})
		if cur == 1 || entry.PPID == 0 {
			break
		}
		cur = entry.PPID
	}
	return chain, nil
}
