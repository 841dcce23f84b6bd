package server

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/solatis/cratedigger/internal/core/api"
	"github.com/solatis/cratedigger/internal/core/config"
	"github.com/solatis/cratedigger/internal/report"
	"github.com/solatis/cratedigger/internal/types"
)

const testRecords = `[
	{"id": "t1", "bpm": 128, "key": "Am"},
	{"id": "t2", "bpm": 90, "key": "G"}
]`

const testContext = `{
	"currentTime": "2024-06-01T00:00:00Z",
	"rules": [
		{"id": "fast", "priority": 1, "label": "Fast", "expression": "bpm >= 120"}
	]
}`

// startTestServer serves over an in-memory listener and returns a client
// connection to it.
func startTestServer(t *testing.T, cfg *config.ServerConfig) *grpc.ClientConn {
	t.Helper()

	svc, err := api.NewReportService(report.NewGenerator(), nil, types.Policy{}, nil)
	if err != nil {
		t.Fatalf("NewReportService() error = %v", err)
	}
	srv, err := NewGRPCServer(cfg, svc, nil)
	if err != nil {
		t.Fatalf("NewGRPCServer() error = %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func testServerConfig() *config.ServerConfig {
	cfg := config.DefaultServiceConfig().Server
	cfg.MaxRequestsPerSecond = 1000
	return &cfg
}

func TestNewGRPCServer_Validation(t *testing.T) {
	svc, _ := api.NewReportService(report.NewGenerator(), nil, types.Policy{}, nil)
	if _, err := NewGRPCServer(nil, svc, nil); err == nil {
		t.Error("expected error for nil cfg")
	}
	if _, err := NewGRPCServer(testServerConfig(), nil, nil); err == nil {
		t.Error("expected error for nil service")
	}
}

func TestGenerateReportOverGRPC(t *testing.T) {
	conn := startTestServer(t, testServerConfig())
	client := api.NewClient(conn)

	rep, err := client.GenerateReport(context.Background(), []byte(testRecords), []byte(testContext))
	if err != nil {
		t.Fatalf("GenerateReport() error = %v, want nil", err)
	}
	if len(rep.Candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(rep.Candidates))
	}
	c := rep.Candidates[0]
	if c.RuleID != "fast" || len(c.RecordIDs) != 1 || c.RecordIDs[0] != "t1" {
		t.Errorf("unexpected candidate: %+v", c)
	}
	if c.Stats.KeyHistogram["Am"] != 1 {
		t.Errorf("expected histogram {Am:1}, got %v", c.Stats.KeyHistogram)
	}
}

func TestGenerateReportOverGRPC_InvalidArgument(t *testing.T) {
	conn := startTestServer(t, testServerConfig())
	client := api.NewClient(conn)

	_, err := client.GenerateReport(context.Background(), []byte(`{"not": "an array"}`), []byte(testContext))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestStoredReportWithoutCatalog(t *testing.T) {
	conn := startTestServer(t, testServerConfig())
	client := api.NewClient(conn)

	_, _, err := client.GenerateStoredReport(context.Background(), api.StoredReportRequest{CurrentTime: "2024-06-01"})
	if status.Code(err) != codes.FailedPrecondition {
		t.Errorf("expected FailedPrecondition, got %v", err)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testServerConfig()
	cfg.MaxRequestsPerSecond = 0.001 // burst of one, no refill within the test
	conn := startTestServer(t, cfg)
	client := api.NewClient(conn)
	ctx := context.Background()

	if _, err := client.GenerateReport(ctx, []byte(testRecords), []byte(testContext)); err != nil {
		t.Fatalf("first request error = %v, want nil", err)
	}
	_, err := client.GenerateReport(ctx, []byte(testRecords), []byte(testContext))
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("expected ResourceExhausted, got %v", err)
	}

	// Health checks bypass the limiter
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: api.ServiceName})
	if err != nil {
		t.Fatalf("health Check() error = %v", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING, got %v", resp.Status)
	}
}

func TestMaxRequestBytes(t *testing.T) {
	cfg := testServerConfig()
	cfg.MaxRequestBytes = 64
	conn := startTestServer(t, cfg)
	client := api.NewClient(conn)

	_, err := client.GenerateReport(context.Background(), []byte(testRecords), []byte(testContext))
	if status.Code(err) != codes.ResourceExhausted {
		t.Errorf("expected ResourceExhausted for oversized request, got %v", err)
	}
}

func TestTimeoutInterceptor(t *testing.T) {
	interceptor := timeoutInterceptor(50 * time.Millisecond)
	info := &grpc.UnaryServerInfo{FullMethod: api.GenerateReportMethod}

	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, _ any) (any, error) {
		deadline, ok := ctx.Deadline()
		if !ok {
			t.Fatal("expected deadline on handler context")
		}
		if time.Until(deadline) > 50*time.Millisecond {
			t.Errorf("deadline too far: %v", time.Until(deadline))
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor error = %v", err)
	}
}
