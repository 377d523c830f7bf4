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

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/wetrycode/argiope"
	"github.com/wxnacy/wgo/arrays"
)

var apiLog *logrus.Entry = argiope.GetLogger("api")

// hopHeaders are not forwarded to scripts
var hopHeaders = []string{
	"connection",
	"keep-alive",
	"proxy-authenticate",
	"proxy-authorization",
	"proxy-connection",
	"te",
	"trailer",
	"transfer-encoding",
	"upgrade",
}

// maxBodyBytes upper bound of a forwarded request body
var maxBodyBytes int64 = 32 << 20

// ErrBodyTooLarge the request body exceeds maxBodyBytes
var ErrBodyTooLarge = errors.New("request body too large")

// ArgiopeAPI serves http requests through a runtime. Paths under /api/v1
// are the management api, everything else is handed to scripts.
type ArgiopeAPI struct {
	G       *gin.Engine
	R       *argiope.Runtime
	addr    string
	timeout time.Duration
}

type StatusResp struct {
	Status        string            `json:"status"`
	StartAt       string            `json:"start_at"`
	StopAt        string            `json:"stop_at"`
	Duration      float64           `json:"duration"`
	Workers       int               `json:"workers"`
	Executing     int64             `json:"executing"`
	PeakExecuting int64             `json:"peak_executing"`
	Pending       uint64            `json:"pending"`
	AverageMillis float64           `json:"average_ms"`
	Metrics       map[string]uint64 `json:"metrics"`
}

// APIOption optional parameters of NewAPI
type APIOption func(a *ArgiopeAPI)

// APIWithAddr listen address used by Server
func APIWithAddr(addr string) APIOption {
	return func(a *ArgiopeAPI) {
		a.addr = addr
	}
}

// APIWithTimeout how long a request may wait for its script
func APIWithTimeout(timeout time.Duration) APIOption {
	return func(a *ArgiopeAPI) {
		a.timeout = timeout
	}
}

func formatUnix(ts int64) string {
	if ts == 0 {
		return ""
	}
	return time.UnixMilli(ts).Format("2006-01-02 15:04:05")
}

// NewStatusResp snapshot of the runtime state and its counters
func NewStatusResp(r *argiope.Runtime) StatusResp {
	status := r.GetRuntimeStatus()
	stats := r.GetStats()
	return StatusResp{
		Status:        status.GetStatusOn().GetTypeName(),
		StartAt:       formatUnix(status.GetStartAt()),
		StopAt:        formatUnix(status.GetStopAt()),
		Duration:      status.GetDuration(),
		Workers:       r.Workers(),
		Executing:     r.Executing(),
		PeakExecuting: r.PeakExecuting(),
		Pending:       r.Pending(),
		AverageMillis: stats.AverageMillis(),
		Metrics:       stats.GetAllStats(),
	}
}

func (a *ArgiopeAPI) status(ctx *gin.Context) {
	appG := Gin{Ctx: ctx}
	appG.Response(http.StatusOK, SUCCESS, NewStatusResp(a.R))
}

func (a *ArgiopeAPI) health(ctx *gin.Context) {
	appG := Gin{Ctx: ctx}
	if a.R.GetRuntimeStatus().GetStatusOn() != argiope.ON_START {
		appG.Response(http.StatusServiceUnavailable, RUNTIME_CLOSED, nil)
		return
	}
	appG.Response(http.StatusOK, APP_HEALTH_OK, nil)
}

// ToRequest converts an incoming http request into a runtime request.
// Hop-by-hop headers are dropped. Bodies over maxBodyBytes fail with
// ErrBodyTooLarge.
func ToRequest(r *http.Request) (*argiope.Request, error) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(proto)
	}
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	headers := argiope.NewHeaders()
	for name, values := range r.Header {
		if arrays.ContainsString(hopHeaders, strings.ToLower(name)) != -1 {
			continue
		}
		for _, value := range values {
			headers.Add(name, value)
		}
	}
	if !headers.Has("Host") {
		headers.Set("Host", host)
	}
	opts := []argiope.RequestOption{
		argiope.RequestWithMethod(r.Method),
		argiope.RequestWithURL(fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())),
		argiope.RequestWithHeaders(headers),
	}
	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil {
			return nil, err
		}
		if int64(len(body)) > maxBodyBytes {
			return nil, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, maxBodyBytes)
		}
		if len(body) > 0 {
			opts = append(opts, argiope.RequestWithBody(body))
		}
	}
	return argiope.NewRequest(opts...)
}

func (a *ArgiopeAPI) dispatch(ctx *gin.Context) {
	appG := Gin{Ctx: ctx}
	req, err := ToRequest(ctx.Request)
	if errors.Is(err, ErrBodyTooLarge) {
		apiLog.Warnf("reject request %s", err.Error())
		appG.Response(http.StatusRequestEntityTooLarge, REQUEST_TOO_LARGE, err.Error())
		return
	}
	if err != nil {
		apiLog.Warnf("bad request %s", err.Error())
		appG.Response(http.StatusBadRequest, INVALID_PARAMS, err.Error())
		return
	}
	future, err := a.R.HandleRequest(req)
	if err != nil {
		a.fail(appG, err)
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx.Request.Context(), a.timeout)
	defer cancel()
	resp, err := future.Wait(waitCtx)
	if err != nil {
		a.fail(appG, err)
		return
	}
	appG.Write(resp)
}

func (a *ArgiopeAPI) fail(appG Gin, err error) {
	var notFound *argiope.ScriptNotFoundError
	switch {
	case errors.Is(err, argiope.ErrQueueFull):
		appG.Response(http.StatusServiceUnavailable, QUEUE_FULL, nil)
	case errors.Is(err, argiope.ErrRuntimeClosed):
		appG.Response(http.StatusServiceUnavailable, RUNTIME_CLOSED, nil)
	case errors.Is(err, context.DeadlineExceeded):
		appG.Response(http.StatusGatewayTimeout, REQUEST_TIMEOUT, nil)
	case errors.As(err, &notFound):
		appG.Response(http.StatusNotFound, NOT_FOUND, err.Error())
	default:
		apiLog.Errorf("handle request error %s", err.Error())
		appG.Response(http.StatusInternalServerError, ERROR, err.Error())
	}
}

// Server listens on the configured address until ctx is done
func (a *ArgiopeAPI) Server(ctx context.Context) error {
	server := &http.Server{
		Addr:        a.addr,
		Handler:     a.G,
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	apiLog.Infof("server listen on %s", a.addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func NewAPI(r *argiope.Runtime, opts ...APIOption) *ArgiopeAPI {
	API := &ArgiopeAPI{
		R:       r,
		addr:    "0.0.0.0:8080",
		timeout: 30 * time.Second,
	}
	for _, o := range opts {
		o(API)
	}
	g := SetUp()

	v1Router := g.Group("/api/v1")
	v1Router.GET("/status", API.status)
	v1Router.GET("/health", API.health)
	g.NoRoute(API.dispatch)
	API.G = g
	return API
}
