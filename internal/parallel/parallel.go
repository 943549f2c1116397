// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

// Package parallel splits index ranges across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// For calls fn for every i in [0, n), splitting the range into contiguous
// chunks processed by up to workers goroutines. workers <= 0 uses GOMAXPROCS.
func For(workers, n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, n)
	if workers == 1 {
		for i := range n {
			fn(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := (n + workers - 1) / workers
	for start := 0; start < n; start += chunkSize {
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				fn(i)
			}
		}(start, min(start+chunkSize, n))
	}
	wg.Wait()
}
