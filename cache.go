// MIT License

// Copyright (c) 2023 wetrycode

// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:

// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.

// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package argiope

import (
	"fmt"

	queue "github.com/yireyun/go-queue"
)

// jobQueue pool-wide FIFO of jobs waiting for an idle context
type jobQueue struct {
	queue *queue.EsQueue
	// limit jobs allowed to wait at once
	limit uint32
	// slots ring size of the underlying queue, which keeps two slots free
	slots uint32
}

// enqueue appends job, failing at once with ErrQueueFull when limit jobs
// are already waiting. A Put that loses a race with another submitter is
// retried.
func (c *jobQueue) enqueue(job *Job) error {
	if job == nil || job.Request == nil {
		return ErrNilRequest
	}
	for {
		if q := c.queue.Quantity(); q >= c.limit {
			return fmt.Errorf("%w: %d jobs queued", ErrQueueFull, q)
		}
		if ok, _ := c.queue.Put(job); ok {
			return nil
		}
	}
}

// dequeue pops the oldest job. A Get that loses a race with another worker
// is retried while jobs remain, so ErrGetCacheItem means the queue was empty.
func (c *jobQueue) dequeue() (*Job, error) {
	for {
		val, ok, q := c.queue.Get()
		if ok {
			return val.(*Job), nil
		}
		if q == 0 {
			return nil, ErrGetCacheItem
		}
	}
}

// isEmpty reports whether no job is waiting
func (c *jobQueue) isEmpty() bool {
	return c.queue.Quantity() == 0
}

// getSize number of waiting jobs
func (c *jobQueue) getSize() uint64 {
	return uint64(c.queue.Quantity())
}

// capacity upper bound of jobs the queue can ever hold
func (c *jobQueue) capacity() uint32 {
	return c.slots
}

func newJobQueue(limit uint32) *jobQueue {
	slots := nextPowerOfTwo(limit + 2)
	return &jobQueue{
		queue: queue.NewQueue(slots),
		limit: limit,
		slots: slots,
	}
}
