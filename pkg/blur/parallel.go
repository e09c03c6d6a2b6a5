package blur

import (
	"golang.org/x/sync/errgroup"
)

// partitioner runs blurLines over [0, lines), possibly split into
// contiguous ranges, and returns only once every range is done.
type partitioner func(lines int, blurLines func(from, to int))

func sequential(lines int, blurLines func(from, to int)) {
	blurLines(0, lines)
}

// partitioned splits the lines into at most workers contiguous ranges.
// Each range writes a disjoint set of output pixels, so no locking is
// needed; Wait is the barrier between sub-passes.
func partitioned(workers int) partitioner {
	return func(lines int, blurLines func(from, to int)) {
		chunk := (lines + workers - 1) / workers

		var g errgroup.Group
		g.SetLimit(workers)
		for from := 0; from < lines; from += chunk {
			to := min(from+chunk, lines)
			g.Go(func() error {
				blurLines(from, to)
				return nil
			})
		}
		_ = g.Wait()
	}
}
