package rpc

import (
	"context"
	"fmt"
	"sync"
)

// FetchBlocks fetches [from, to] with at most concurrency in-flight
// requests. Results come back in height order regardless of completion
// order, so callers can process sequentially.
func FetchBlocks(ctx context.Context, src ChainSource, from, to uint64, concurrency int) ([]*Block, error) {
	if to < from {
		return nil, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	n := int(to - from + 1)
	blocks := make([]*Block, n)
	errs := make([]error, n)

	heights := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range heights {
				blk, err := src.GetBlock(ctx, from+uint64(i))
				blocks[i], errs[i] = blk, err
			}
		}()
	}

feed:
	for i := 0; i < n; i++ {
		select {
		case heights <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(heights)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("fetch block %d: %w", from+uint64(i), err)
		}
	}
	return blocks, nil
}
