// Package resource limits the memory, worker and IO budgets shared by
// training, matching and model transfers.
//
//	┌──────────────────────────────────────────────────────┐
//	│                     Controller                       │
//	├────────────────┬────────────────┬────────────────────┤
//	│ Memory         │ Workers        │ IO                 │
//	│ (semaphore)    │ (semaphore)    │ (token bucket)     │
//	├────────────────┼────────────────┼────────────────────┤
//	│ AcquireMemory  │ AcquireWorkers │ AcquireIO          │
//	│ ReleaseMemory  │ ReleaseWorkers │ RateLimitedWriter  │
//	│ MemoryUsage    │ MaxWorkers     │ RateLimitedReader  │
//	└────────────────┴────────────────┴────────────────────┘
//
// Training and matching reserve worker slots for their fan-out, the catalog
// reserves memory for model blobs while decoding them and throttles uploads
// and downloads through the IO limiter:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes:   1 << 30,
//	    MaxWorkers:         8,
//	    IOLimitBytesPerSec: 100 << 20,
//	})
//
// # Nil Safety
//
// All methods handle a nil Controller: it imposes no limits.
package resource
