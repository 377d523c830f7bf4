package service

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
	"github.com/wetrycode/argiope"
	"golang.org/x/net/http2"
	"google.golang.org/genproto/googleapis/rpc/code"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

func newTestRuntime(t *testing.T) *argiope.Runtime {
	fs := argiope.NewMemFileSystem()
	if err := fs.WriteFile("/www/index.lua", []byte(`echo("index")`)); err != nil {
		t.Fatalf("write script %s", err.Error())
	}
	r, err := argiope.NewRuntime(
		argiope.RuntimeWithWorkers(1),
		argiope.RuntimeWithDocroot("/www"),
		argiope.RuntimeWithFileSystem(fs),
	)
	if err != nil {
		t.Fatalf("start runtime %s", err.Error())
	}
	return r
}

func startTestServer(t *testing.T, r *argiope.Runtime) (string, context.CancelFunc) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen %s", err.Error())
	}
	ctx, cancel := context.WithCancel(context.Background())
	server := NewServer(r, "127.0.0.1", 0)
	go func() {
		_ = server.Serve(ctx, lis)
	}()
	return lis.Addr().String(), cancel
}

func newH2CClient() *http.Client {
	transport := &http2.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		AllowHTTP:       true,
		DialTLS: func(netw, addr string, cfg *tls.Config) (net.Conn, error) {
			return net.Dial(netw, addr)
		},
	}
	return &http.Client{Transport: transport, Timeout: 10 * time.Second}
}

func readMessage(t *testing.T, rsp *http.Response) *structpb.Struct {
	defer rsp.Body.Close()
	body, err := io.ReadAll(rsp.Body)
	if err != nil {
		t.Fatalf("read body %s", err.Error())
	}
	message := &structpb.Struct{}
	if err := protojson.Unmarshal(body, message); err != nil {
		t.Fatalf("decode %s %s", string(body), err.Error())
	}
	return message
}

func TestHealthWithRPC(t *testing.T) {
	convey.Convey("test grpc health check", t, func() {
		r := newTestRuntime(t)
		defer r.Close()
		addr, cancel := startTestServer(t, r)
		defer cancel()

		conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		convey.So(err, convey.ShouldBeNil)
		defer conn.Close()
		client := healthpb.NewHealthClient(conn)
		ctx, cancelRPC := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelRPC()
		rsp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
		convey.So(err, convey.ShouldBeNil)
		convey.So(rsp.Status, convey.ShouldEqual, healthpb.HealthCheckResponse_SERVING)
	})
}

func TestStatusWithHTTP(t *testing.T) {
	convey.Convey("test gateway status and script fallback", t, func() {
		r := newTestRuntime(t)
		defer r.Close()
		addr, cancel := startTestServer(t, r)
		defer cancel()
		client := newH2CClient()

		rsp, err := client.Get("http://" + addr + "/index.lua")
		convey.So(err, convey.ShouldBeNil)
		body, err := io.ReadAll(rsp.Body)
		rsp.Body.Close()
		convey.So(err, convey.ShouldBeNil)
		convey.So(string(body), convey.ShouldEqual, "index")

		rsp, err = client.Get("http://" + addr + "/v1/status")
		convey.So(err, convey.ShouldBeNil)
		convey.So(rsp.StatusCode, convey.ShouldEqual, http.StatusOK)
		message := readMessage(t, rsp)
		convey.So(message.Fields["code"].GetNumberValue(), convey.ShouldEqual, float64(code.Code_OK))
		data := message.Fields["data"].GetStructValue()
		convey.So(data.Fields["status"].GetStringValue(), convey.ShouldEqual, "running")
		metrics := data.Fields["metrics"].GetStructValue()
		convey.So(metrics.Fields[argiope.RequestStats].GetNumberValue(), convey.ShouldEqual, float64(1))

		rsp, err = client.Get("http://" + addr + "/v1/health")
		convey.So(err, convey.ShouldBeNil)
		convey.So(rsp.StatusCode, convey.ShouldEqual, http.StatusOK)
		convey.So(readMessage(t, rsp).Fields["msg"].GetStringValue(), convey.ShouldEqual, "serving")
	})

	convey.Convey("test gateway health after close", t, func() {
		r := newTestRuntime(t)
		server := NewServer(r, "127.0.0.1", 0)
		convey.So(r.Close(), convey.ShouldBeNil)
		server.RefreshHealth()
		status, err := server.GetStatus()
		convey.So(err, convey.ShouldBeNil)
		convey.So(status.Fields["status"].GetStringValue(), convey.ShouldEqual, "stop")
		convey.So(server.servingStatus(), convey.ShouldEqual, healthpb.HealthCheckResponse_NOT_SERVING)
	})
}
