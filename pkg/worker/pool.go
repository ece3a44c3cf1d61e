// Package worker provides a generic fan-out task executor: an input list is
// partitioned round-robin into sublists, the sublists are fed through a task
// channel to a fixed set of worker goroutines, and per-sublist results are
// drained and aggregated by the caller.
package worker

import (
	"fmt"
	"log"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Func processes one sublist. name identifies the worker goroutine for
// logging. It returns the items that succeeded, one auxiliary result list
// per configured result slot, and any diagnostics. A non-nil error marks the
// whole sublist as lost; other sublists are unaffected.
type Func[T any] func(name string, items []T) (success []T, aux [][]interface{}, diags []string, err error)

// result is the tagged outcome of one sublist: either err is set (worker
// fault, total loss for the sublist) or the success/aux/diag fields hold the
// worker's output.
type result[T any] struct {
	success []T
	aux     [][]interface{}
	diags   []string
	err     error
}

// Pool runs a worker function over partitions of an input list.
type Pool[T any] struct {
	fn       Func[T]
	identity func(T) string
}

// NewPool creates a pool around the given worker function. identity projects
// an item to a comparable key; it is used to attribute failures when a run
// completes with fewer successes than inputs. Items sharing an identity make
// that attribution unreliable, so callers should supply a projection that is
// unique across the input list.
func NewPool[T any](fn Func[T], identity func(T) string) *Pool[T] {
	return &Pool[T]{fn: fn, identity: identity}
}

// Partition deals data round-robin into numLists sublists:
// sublist[i] holds data[j] for all j ≡ i (mod numLists). Adjacent items in
// the input (often correlated in cost) land in different sublists. Sublist
// sizes differ by at most one and the union is exactly the input.
func Partition[T any](data []T, numLists int) [][]T {
	if len(data) == 0 {
		return nil
	}
	if numLists < 1 {
		numLists = 1
	}
	if numLists > len(data) {
		numLists = len(data)
	}
	out := make([][]T, numLists)
	for j, item := range data {
		out[j%numLists] = append(out[j%numLists], item)
	}
	return out
}

// RunMulti partitions data and runs the pool's worker function over the
// partitions using numWorkers goroutines. If chunkSize <= 0, the number of
// sublists equals numWorkers; otherwise it is len(data)/chunkSize (minimum
// one), so the sublist count may exceed the worker count. numResults fixes
// how many auxiliary result lists are aggregated.
//
// It returns overall success (every input item succeeded), the items that
// failed, the aggregated auxiliary lists, and de-duplicated diagnostics.
// There is no cancellation or retry: every dispatched sublist runs to
// completion.
func (p *Pool[T]) RunMulti(data []T, numWorkers, numResults, chunkSize int) (bool, []T, [][]interface{}, []string) {
	retLists := make([][]interface{}, numResults)
	if len(data) == 0 {
		return true, nil, retLists, nil
	}
	if numWorkers < 1 {
		numWorkers = runtime.NumCPU() * 2
	}
	if numWorkers > len(data) {
		numWorkers = len(data)
	}
	if chunkSize > len(data) {
		chunkSize = len(data)
	}
	numLists := numWorkers
	if chunkSize > 0 {
		numLists = len(data) / chunkSize
		if numLists < 1 {
			numLists = 1
		}
	}
	subLists := Partition(data, numLists)
	log.Printf("INFO: pool running %d workers over %d sublists (~%d items each)", numWorkers, len(subLists), len(subLists[0]))

	// Workers start before any task is enqueued and drain the task channel
	// until it is closed. Buffers are sized so neither enqueue nor result
	// publication can block.
	tasks := make(chan []T, len(subLists))
	results := make(chan result[T], len(subLists))
	g := new(errgroup.Group)
	for i := 0; i < numWorkers; i++ {
		name := fmt.Sprintf("worker-%d", i+1)
		g.Go(func() error {
			for items := range tasks {
				results <- p.runOne(name, items)
			}
			return nil
		})
	}
	for _, subList := range subLists {
		tasks <- subList
	}
	close(tasks)

	// Drain exactly one result per sublist, not per worker.
	var successList []T
	var diags []string
	seen := make(map[string]struct{})
	for range subLists {
		r := <-results
		if r.err != nil {
			d := fmt.Sprintf("worker failure: %v", r.err)
			log.Printf("ERROR: %s", d)
			if _, ok := seen[d]; !ok {
				seen[d] = struct{}{}
				diags = append(diags, d)
			}
			continue
		}
		successList = append(successList, r.success...)
		for j := 0; j < numResults && j < len(r.aux); j++ {
			retLists[j] = append(retLists[j], r.aux[j]...)
		}
		for _, d := range r.diags {
			if d == "" {
				continue
			}
			if _, ok := seen[d]; !ok {
				seen[d] = struct{}{}
				diags = append(diags, d)
			}
		}
	}
	_ = g.Wait()

	if len(successList) == len(data) {
		return true, nil, retLists, diags
	}
	failed := p.failedItems(data, successList)
	log.Printf("WARN: pool completed with %d of %d items failed", len(failed), len(data))
	return false, failed, retLists, diags
}

// runOne wraps a single worker invocation, converting a panic into a
// worker-fault result so one bad sublist cannot take down the pool.
func (p *Pool[T]) runOne(name string, items []T) (r result[T]) {
	defer func() {
		if rec := recover(); rec != nil {
			r = result[T]{err: fmt.Errorf("%s panicked: %v", name, rec)}
		}
	}()
	success, aux, diags, err := p.fn(name, items)
	if err != nil {
		return result[T]{err: fmt.Errorf("%s: %w", name, err)}
	}
	return result[T]{success: success, aux: aux, diags: diags}
}

// failedItems computes data minus successList under the identity projection,
// preserving the input order of the failures.
func (p *Pool[T]) failedItems(data, successList []T) []T {
	counts := make(map[string]int, len(successList))
	for _, item := range successList {
		counts[p.identity(item)]++
	}
	var failed []T
	for _, item := range data {
		id := p.identity(item)
		if counts[id] > 0 {
			counts[id]--
			continue
		}
		failed = append(failed, item)
	}
	return failed
}
