package batchtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/samerge/internal/batch"
)

// Fake records requests and hands out sequential job ids.
type Fake struct {
	mu       sync.Mutex
	Requests []batch.Request
	Err      error
	next     int
}

func (f *Fake) Submit(ctx context.Context, req batch.Request) (batch.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)
	if f.Err != nil {
		return batch.Result{}, f.Err
	}
	f.next++
	cluster := fmt.Sprintf("%d@jobsub01.fnal.gov", 1000+f.next)
	return batch.Result{
		JobID:     fmt.Sprintf("%d.0@jobsub01.fnal.gov", 1000+f.next),
		ClusterID: cluster,
	}, nil
}

func (f *Fake) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Requests)
}
