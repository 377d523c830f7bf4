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
	"context"
	"errors"
	"fmt"
	goruntime "runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"github.com/wetrycode/argiope/sapi"
)

// Runtime is the dispatcher over a fixed pool of contexts. Every worker
// goroutine locks its OS thread and owns exactly one Context for its whole
// life. Jobs are taken from a single FIFO queue by whichever worker is idle.
type Runtime struct {
	workers            int
	argv               []string
	docroot            string
	throwRequestErrors bool
	index              string
	rules              *RewriteRules
	middlewares        Middlewares
	fs                 FileSystem
	factory            sapi.Factory
	ini                *sapi.Ini
	queueSize          uint32
	startAttempts      int
	heartbeat          time.Duration

	components ComponentInterface
	limiter    LimitInterface
	stats      StatisticInterface
	hooks      EventHooksInterface
	sink       LogSink

	queue *jobQueue
	// ready one token per queued job
	ready chan struct{}
	stop  chan struct{}
	wg    conc.WaitGroup

	mu     sync.RWMutex
	closed bool

	events      chan Event
	watcherDone chan struct{}
	status      *RuntimeStatus

	syncMu  sync.Mutex
	syncCtx *Context

	executing int64
	peak      int64
	log       *logrus.Entry
}

// Job a queued request and the future resolved when it completes
type Job struct {
	ID      string
	Request *Request
	future  *Future
}

// Future is resolved once a worker has executed its job
type Future struct {
	done chan struct{}
	once sync.Once
	resp *Response
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(resp *Response, err error) {
	f.once.Do(func() {
		f.resp = resp
		f.err = err
		close(f.done)
	})
}

// Done is closed when the result is available
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the job completes or ctx is done. Giving up on ctx
// does not cancel the job.
func (f *Future) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result blocks until the job completes
func (f *Future) Result() (*Response, error) {
	<-f.done
	return f.resp, f.err
}

var runtimeLog *logrus.Entry = GetLogger("runtime")

// NewRuntime starts every context of the pool. It fails if a worker could
// not start a context within the allowed attempts.
func NewRuntime(opts ...RuntimeOption) (*Runtime, error) {
	r := &Runtime{
		workers:       goruntime.NumCPU(),
		index:         "index.lua",
		queueSize:     1024,
		startAttempts: 3,
		ini:           sapi.DefaultIni(),
		stop:          make(chan struct{}),
		events:        make(chan Event, 64),
		watcherDone:   make(chan struct{}),
		status:        NewRuntimeStatus(),
		log:           runtimeLog,
	}
	for _, o := range opts {
		o(r)
	}
	if err := r.init(); err != nil {
		return nil, err
	}
	go func() {
		defer close(r.watcherDone)
		if err := r.hooks.EventsWatcher(r.events); err != nil {
			r.log.Errorf("events watcher exit with error %s", err.Error())
		}
	}()

	started := make(chan error, r.workers)
	for i := 0; i < r.workers; i++ {
		id := i
		r.wg.Go(func() {
			r.work(id, started)
		})
	}
	var startErr error
	for i := 0; i < r.workers; i++ {
		if err := <-started; err != nil && startErr == nil {
			startErr = err
		}
	}
	if startErr != nil {
		close(r.stop)
		r.wg.Wait()
		r.exit()
		return nil, startErr
	}
	if r.heartbeat > 0 {
		r.wg.Go(r.heartbeatLoop)
	}
	r.status.SetStartAt(time.Now().UnixMilli())
	r.status.SetStatus(ON_START)
	r.emit(START, r.workers)
	r.log.Infof("runtime started with %d workers, docroot %s", r.workers, r.docroot)
	return r, nil
}

func (r *Runtime) init() error {
	if r.workers < 1 {
		return newConfigurationError("workers", "must be at least 1, got %d", r.workers)
	}
	if r.startAttempts < 1 {
		return newConfigurationError("start_attempts", "must be at least 1, got %d", r.startAttempts)
	}
	if r.queueSize == 0 {
		return newConfigurationError("queue_size", "must be positive")
	}
	if r.docroot == "" {
		r.docroot = currentDir()
	}
	if r.fs == nil {
		r.fs = NewOsFileSystem()
	}
	if r.factory == nil {
		r.factory = sapi.LuaFactory(sapi.LuaWithLogger(GetLogger("sapi")))
	}
	if r.ini == nil {
		r.ini = sapi.DefaultIni()
	}
	if r.components == nil {
		r.components = NewDefaultComponents()
	}
	if r.limiter == nil {
		r.limiter = r.components.GetLimiter()
	}
	if r.stats == nil {
		r.stats = r.components.GetStats()
	}
	if r.hooks == nil {
		r.hooks = r.components.GetEventHooks()
	}
	if r.sink == nil {
		r.sink = r.components.GetLogSink()
	}
	r.queue = newJobQueue(r.queueSize)
	r.ready = make(chan struct{}, r.queue.capacity())
	return nil
}

// emit hands an event to the watcher without blocking the caller
func (r *Runtime) emit(typ EventType, params ...interface{}) {
	select {
	case r.events <- Event{Type: typ, Params: params}:
	default:
		r.log.Warnf("events channel is full, drop %s event", typ.String())
	}
}

// exit delivers EXIT and waits for the watcher to return
func (r *Runtime) exit() {
	select {
	case r.events <- Event{Type: EXIT}:
	case <-r.watcherDone:
	}
	<-r.watcherDone
}

// startContext starts a context, replacing failed ones up to the
// configured number of attempts
func (r *Runtime) startContext(worker int) (*Context, error) {
	var lastErr error
	for attempt := 1; attempt <= r.startAttempts; attempt++ {
		ctx, err := NewContext(r.factory,
			ContextWithIni(r.ini.Clone()),
			ContextWithLogSink(r.sink),
		)
		if err == nil {
			return ctx, nil
		}
		lastErr = err
		r.stats.Incr(StartupFailStats)
		r.log.Errorf("worker %d start context failed, attempt %d/%d: %s", worker, attempt, r.startAttempts, err.Error())
		r.emit(ERROR, err)
	}
	return nil, lastErr
}

func (r *Runtime) work(id int, started chan<- error) {
	goruntime.LockOSThread()
	defer goruntime.UnlockOSThread()

	ctx, err := r.startContext(id)
	started <- err
	if err != nil {
		return
	}
	defer func() {
		if err := ctx.Shutdown(); err != nil {
			r.log.Errorf("worker %d shutdown context error %s", id, err.Error())
		}
	}()
	for {
		select {
		case <-r.stop:
			return
		case <-r.ready:
			job, err := r.queue.dequeue()
			if err != nil {
				r.log.Errorf("worker %d dequeue error %s", id, err.Error())
				continue
			}
			resp, err := r.execute(ctx, job.Request)
			job.future.resolve(resp, err)
		}
	}
}

func (r *Runtime) heartbeatLoop() {
	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.emit(HEARTBEAT, r.stats.GetAllStats())
		}
	}
}

// resolve applies the rewrite rules and loads the target script
func (r *Runtime) resolve(req *Request) (*Script, error) {
	rewritten, err := r.rules.Rewrite(req, r.docroot, r.fs)
	if err != nil {
		return nil, err
	}
	if rewritten != req {
		r.stats.Incr(RewriteStats)
	}
	filename, err := TranslatePath(r.fs, r.docroot, rewritten.Path(), r.index)
	if err != nil {
		return nil, err
	}
	source, err := r.fs.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", filename, err)
	}
	return &Script{
		Request:  rewritten,
		Filename: filename,
		Source:   source,
		Docroot:  r.docroot,
		Argv:     r.argv,
	}, nil
}

// execute runs req on ctx and applies the error surfacing policy
func (r *Runtime) execute(ctx *Context, origin *Request) (*Response, error) {
	r.stats.Incr(RequestStats)
	r.enter()
	start := time.Now()
	defer func() {
		atomic.AddInt64(&r.executing, -1)
		r.stats.Observe(time.Since(start))
	}()

	req, err := r.middlewares.processRequest(origin)
	if err != nil {
		return r.fail(origin, err)
	}
	script, err := r.resolve(req)
	if err != nil {
		var notFound *ScriptNotFoundError
		if errors.As(err, &notFound) {
			r.stats.Incr(NotFoundStats)
			if r.throwRequestErrors {
				return nil, err
			}
			return r.complete(notFoundResponse()), nil
		}
		return r.fail(req, err)
	}
	resp, err := ctx.Handle(script)
	if err != nil {
		var scriptErr *ScriptExecutionError
		if errors.As(err, &scriptErr) && resp != nil {
			r.stats.Incr(ExceptionStats)
			if r.throwRequestErrors {
				return nil, err
			}
			return r.finish(req, resp)
		}
		return r.fail(req, err)
	}
	return r.finish(req, resp)
}

// finish runs the response middlewares and counts the response
func (r *Runtime) finish(req *Request, resp *Response) (*Response, error) {
	resp, err := r.middlewares.processResponse(req, resp)
	if err != nil {
		return r.fail(req, err)
	}
	return r.complete(resp), nil
}

func (r *Runtime) enter() {
	cur := atomic.AddInt64(&r.executing, 1)
	for {
		peak := atomic.LoadInt64(&r.peak)
		if cur <= peak || atomic.CompareAndSwapInt64(&r.peak, peak, cur) {
			return
		}
	}
}

func (r *Runtime) complete(resp *Response) *Response {
	r.stats.Incr(CompletedStats)
	r.stats.Incr(strconv.Itoa(resp.Status()))
	return resp
}

func (r *Runtime) fail(req *Request, err error) (*Response, error) {
	r.stats.Incr(ErrorStats)
	r.log.WithField("url", req.URL()).Errorf("request failed %s", err.Error())
	if r.throwRequestErrors {
		return nil, err
	}
	return r.complete(internalErrorResponse(err)), nil
}

// HandleRequest queues req and returns immediately. It fails when the
// runtime is closed or the queue is full.
func (r *Runtime) HandleRequest(req *Request) (*Future, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if err := r.limiter.CheckAndWaitLimiterPass(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrRuntimeClosed
	}
	job := &Job{ID: GetUUID(), Request: req, future: newFuture()}
	if err := r.queue.enqueue(job); err != nil {
		return nil, err
	}
	r.ready <- struct{}{}
	return job.future, nil
}

// HandleRequestSync executes req on the calling goroutine using a
// dedicated context outside the pool. Calls are serialized.
func (r *Runtime) HandleRequestSync(req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	r.syncMu.Lock()
	defer r.syncMu.Unlock()
	if r.isClosed() {
		return nil, ErrRuntimeClosed
	}
	if r.syncCtx == nil {
		ctx, err := r.startContext(-1)
		if err != nil {
			return nil, err
		}
		r.syncCtx = ctx
	}
	return r.execute(r.syncCtx, req)
}

func (r *Runtime) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// Close stops the workers and shuts their contexts down. Jobs still queued
// are resolved with ErrRuntimeClosed. Close is idempotent.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.stop)
	r.mu.Unlock()

	r.wg.Wait()
	for !r.queue.isEmpty() {
		job, err := r.queue.dequeue()
		if err != nil {
			break
		}
		job.future.resolve(nil, ErrRuntimeClosed)
	}
	var shutdownErr error
	r.syncMu.Lock()
	if r.syncCtx != nil {
		shutdownErr = r.syncCtx.Shutdown()
		r.syncCtx = nil
	}
	r.syncMu.Unlock()

	now := time.Now().UnixMilli()
	r.status.SetStopAt(now)
	r.status.SetDuration(float64(now-r.status.GetStartAt()) / 1000)
	r.status.SetStatus(ON_STOP)
	r.emit(STOP, r.stats.GetAllStats())
	r.exit()
	r.log.Infof("runtime closed, %d requests served", r.stats.Get(CompletedStats))
	return shutdownErr
}

// Workers the pool size
func (r *Runtime) Workers() int {
	return r.workers
}

// Docroot the resolved document root
func (r *Runtime) Docroot() string {
	return r.docroot
}

// Executing requests running right now
func (r *Runtime) Executing() int64 {
	return atomic.LoadInt64(&r.executing)
}

// PeakExecuting the highest number of requests ever running at once
func (r *Runtime) PeakExecuting() int64 {
	return atomic.LoadInt64(&r.peak)
}

// Pending jobs waiting for a context
func (r *Runtime) Pending() uint64 {
	return r.queue.getSize()
}

func (r *Runtime) GetStats() StatisticInterface {
	return r.stats
}

func (r *Runtime) GetRuntimeStatus() *RuntimeStatus {
	return r.status
}
