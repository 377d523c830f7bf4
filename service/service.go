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

package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	jsoniter "github.com/json-iterator/go"
	"github.com/wetrycode/argiope"
	"github.com/wetrycode/argiope/api"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/genproto/googleapis/rpc/code"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

var logger = argiope.GetLogger("service")

// ServiceName name reported by the grpc health service
const ServiceName = "argiope.Runtime"

// Server one listener for grpc health checks, the /v1 gateway routes
// and the script front end
type Server struct {
	R      *argiope.Runtime
	Host   string
	Port   int
	health *health.Server
	front  *api.ArgiopeAPI
}

func NewServer(r *argiope.Runtime, host string, port int, opts ...api.APIOption) *Server {
	return &Server{
		R:      r,
		Host:   host,
		Port:   port,
		health: health.NewServer(),
		front:  api.NewAPI(r, opts...),
	}
}

// GetStatus runtime status as a protobuf struct
func (s *Server) GetStatus() (*structpb.Struct, error) {
	raw, err := jsoniter.Marshal(api.NewStatusResp(s.R))
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := jsoniter.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func (s *Server) servingStatus() healthpb.HealthCheckResponse_ServingStatus {
	if s.R.GetRuntimeStatus().GetStatusOn() == argiope.ON_START {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// RefreshHealth publishes the runtime state to the health service
func (s *Server) RefreshHealth() {
	status := s.servingStatus()
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func writeMessage(w http.ResponseWriter, httpCode int, c code.Code, msg string, data *structpb.Struct) {
	fields := map[string]*structpb.Value{
		"code": structpb.NewNumberValue(float64(c)),
		"msg":  structpb.NewStringValue(msg),
	}
	if data != nil {
		fields["data"] = structpb.NewStructValue(data)
	}
	body, err := protojson.Marshal(&structpb.Struct{Fields: fields})
	if err != nil {
		logger.Errorf("marshal message error %s", err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpCode)
	_, _ = w.Write(body)
}

func (s *Server) gateway() (*runtime.ServeMux, error) {
	gwmux := runtime.NewServeMux()
	err := gwmux.HandlePath(http.MethodGet, "/v1/status", func(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
		data, err := s.GetStatus()
		if err != nil {
			logger.Errorf("get status error %s", err.Error())
			writeMessage(w, http.StatusInternalServerError, code.Code_INTERNAL, err.Error(), nil)
			return
		}
		writeMessage(w, http.StatusOK, code.Code_OK, "ok", data)
	})
	if err != nil {
		return nil, err
	}
	err = gwmux.HandlePath(http.MethodGet, "/v1/health", func(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
		if s.servingStatus() != healthpb.HealthCheckResponse_SERVING {
			writeMessage(w, http.StatusServiceUnavailable, code.Code_UNAVAILABLE, "not serving", nil)
			return
		}
		writeMessage(w, http.StatusOK, code.Code_OK, "serving", nil)
	})
	if err != nil {
		return nil, err
	}
	return gwmux, nil
}

// Handler grpc, gateway and script traffic on one h2c handler
func (s *Server) Handler() (http.Handler, *grpc.Server, error) {
	g := grpc.NewServer()
	healthpb.RegisterHealthServer(g, s.health)
	s.RefreshHealth()

	gwmux, err := s.gateway()
	if err != nil {
		return nil, nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/v1/", gwmux)
	mux.Handle("/", s.front.G)
	return s.grpcHandlerFunc(g, mux), g, nil
}

// Serve accepts connections on lis until ctx is done
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	handler, g, err := s.Handler()
	if err != nil {
		return err
	}
	server := &http.Server{
		Handler:     handler,
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		g.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.Infof("server listen on:http://%s", lis.Addr().String())
	if err := server.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Start listens on Host:Port
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.Host, s.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

func (s *Server) grpcHandlerFunc(grpcServer *grpc.Server, otherHandler http.Handler) http.Handler {
	return h2c.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ProtoMajor == 2 && strings.Contains(r.Header.Get("Content-Type"), "application/grpc") {
			grpcServer.ServeHTTP(w, r)
		} else {
			otherHandler.ServeHTTP(w, r)
		}
	}), &http2.Server{})
}
