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
	"time"

	"github.com/wetrycode/argiope/sapi"
)

// RuntimeOption 运行时构造过程中的可选参数
type RuntimeOption func(r *Runtime)

// RuntimeWithWorkers number of contexts, one per worker thread
func RuntimeWithWorkers(workers int) RuntimeOption {
	return func(r *Runtime) {
		r.workers = workers
	}
}

// RuntimeWithArgv argument vector exposed to every script
func RuntimeWithArgv(argv []string) RuntimeOption {
	return func(r *Runtime) {
		r.argv = append([]string(nil), argv...)
	}
}

// RuntimeWithDocroot 脚本根目录
func RuntimeWithDocroot(docroot string) RuntimeOption {
	return func(r *Runtime) {
		r.docroot = docroot
	}
}

// RuntimeWithThrowRequestErrors surfaces per-request failures as errors
// instead of encoding them into the Response
func RuntimeWithThrowRequestErrors(throw bool) RuntimeOption {
	return func(r *Runtime) {
		r.throwRequestErrors = throw
	}
}

// RuntimeWithRewriteRules rules applied before every dispatch
func RuntimeWithRewriteRules(rules *RewriteRules) RuntimeOption {
	return func(r *Runtime) {
		r.rules = rules
	}
}

// RuntimeWithMiddlewares hooks run around every dispatch, ordered by priority
func RuntimeWithMiddlewares(middlewares ...MiddlewaresInterface) RuntimeOption {
	return func(r *Runtime) {
		r.middlewares = sortMiddlewares(append(r.middlewares, middlewares...))
	}
}

// RuntimeWithFileSystem 脚本文件系统
func RuntimeWithFileSystem(fs FileSystem) RuntimeOption {
	return func(r *Runtime) {
		r.fs = fs
	}
}

// RuntimeWithEngineFactory builds the engine of every context
func RuntimeWithEngineFactory(factory sapi.Factory) RuntimeOption {
	return func(r *Runtime) {
		r.factory = factory
	}
}

// RuntimeWithIni engine baseline configuration
func RuntimeWithIni(ini *sapi.Ini) RuntimeOption {
	return func(r *Runtime) {
		r.ini = ini
	}
}

// RuntimeWithIndex script served for directory requests
func RuntimeWithIndex(index string) RuntimeOption {
	return func(r *Runtime) {
		r.index = index
	}
}

// RuntimeWithQueueSize 等待队列容量
func RuntimeWithQueueSize(size uint32) RuntimeOption {
	return func(r *Runtime) {
		r.queueSize = size
	}
}

// RuntimeWithStartAttempts how many times a failed context is replaced
func RuntimeWithStartAttempts(attempts int) RuntimeOption {
	return func(r *Runtime) {
		r.startAttempts = attempts
	}
}

// RuntimeWithHeartbeat interval of HEARTBEAT events, zero disables them
func RuntimeWithHeartbeat(interval time.Duration) RuntimeOption {
	return func(r *Runtime) {
		r.heartbeat = interval
	}
}

// RuntimeWithComponents 运行时组件
func RuntimeWithComponents(components ComponentInterface) RuntimeOption {
	return func(r *Runtime) {
		r.components = components
	}
}

// RuntimeWithLimiter overrides the components' limiter
func RuntimeWithLimiter(limiter LimitInterface) RuntimeOption {
	return func(r *Runtime) {
		r.limiter = limiter
	}
}

// RuntimeWithStatistic overrides the components' statistic
func RuntimeWithStatistic(stats StatisticInterface) RuntimeOption {
	return func(r *Runtime) {
		r.stats = stats
	}
}

// RuntimeWithHooks overrides the components' event hooks
func RuntimeWithHooks(hooks EventHooksInterface) RuntimeOption {
	return func(r *Runtime) {
		r.hooks = hooks
	}
}

// RuntimeWithLogSink overrides the components' log sink
func RuntimeWithLogSink(sink LogSink) RuntimeOption {
	return func(r *Runtime) {
		r.sink = sink
	}
}
