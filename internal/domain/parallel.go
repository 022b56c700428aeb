package domain

import (
	"runtime"
	"sync"
)

// parallelRows executes fn for each row in [0, rows), splitting the range into
// contiguous chunks across available CPUs. Callers must write only to slots
// owned by their row so that worker count never changes results.
func parallelRows(rows int, fn func(r int)) {
	if rows <= 0 {
		return
	}
	workers := runtime.GOMAXPROCS(0)
	if workers > rows {
		workers = rows
	}
	chunk := (rows + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > rows {
			end = rows
		}
		if start >= rows {
			break
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for r := s; r < e; r++ {
				fn(r)
			}
		}(start, end)
	}
	wg.Wait()
}
