package alignment

import (
	"context"
	"math"
	"sync"
)

// scoreFunc evaluates one candidate; lower is better.
type scoreFunc func(ctx context.Context, candidate float64) (float64, error)

// gridSearch scores every candidate on up to workers goroutines and
// returns the index of the lowest score. Trial order is irrelevant: the
// arg-min is taken afterwards over ascending candidate index, so ties go
// to the first candidate. NaN scores never win. Cancellation is checked
// before each trial starts.
func gridSearch(ctx context.Context, candidates []float64, workers int, score scoreFunc) (best int, scores []float64, err error) {
	if workers < 1 {
		workers = 1
	}
	if workers > len(candidates) {
		workers = len(candidates)
	}

	type trialResult struct {
		index int
		score float64
		err   error
	}
	jobs := make(chan int)
	resultChan := make(chan trialResult)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					resultChan <- trialResult{index: i, err: err}
					continue
				}
				v, err := score(ctx, candidates[i])
				resultChan <- trialResult{index: i, score: v, err: err}
			}
		}()
	}
	go func() {
		defer close(jobs)
		for i := range candidates {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	scores = make([]float64, len(candidates))
	for i := range scores {
		scores[i] = math.NaN()
	}
	errIndex := len(candidates)
	for res := range resultChan {
		if res.err != nil {
			// keep the error of the lowest candidate index
			if res.index < errIndex {
				errIndex, err = res.index, res.err
			}
			continue
		}
		scores[res.index] = res.score
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return 0, scores, err
	}

	best = 0
	for i, v := range scores {
		if less(v, scores[best]) {
			best = i
		}
	}
	return best, scores, nil
}

// less orders scores with NaN treated as +Inf.
func less(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	if math.IsNaN(b) {
		return true
	}
	return a < b
}

// integerRange returns lo, lo+1, ..., hi, or nothing when lo > hi.
func integerRange(lo, hi int) []float64 {
	if lo > hi {
		return nil
	}
	out := make([]float64, 0, hi-lo+1)
	for v := lo; v <= hi; v++ {
		out = append(out, float64(v))
	}
	return out
}
