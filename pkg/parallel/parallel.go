// Package parallel provides the data-parallel index-range dispatch
// primitive the sampler kernels are built against. This implementation
// targets the host only; a device backend would satisfy the same For
// signature.
package parallel

import (
	"runtime"
	"sync"
)

// For invokes fn(idx) for every idx in [0, n), distributing the calls across
// a worker pool sized to GOMAXPROCS. fn must be a pure function of idx and
// whatever shared read-only state and disjoint-per-idx output slices the
// caller closed over — For performs no synchronization between calls beyond
// waiting for all of them to finish before returning.
func For(n int, fn func(idx int)) {
	if n <= 0 {
		return
	}
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := range n {
			fn(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunk := (n + workers - 1) / workers
	for w := range workers {
		start := w * chunk
		if start >= n {
			break
		}
		end := min(start+chunk, n)
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				fn(i)
			}
		}(start, end)
	}
	wg.Wait()
}
