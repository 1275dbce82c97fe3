package health

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/codeready-toolchain/relaylink/pkg/version"
)

// GRPCProber calls grpc.health.v1.Health/Check. SERVING is healthy.
type GRPCProber struct {
	conn    *grpc.ClientConn
	client  healthpb.HealthClient
	service string
}

// NewGRPCProber creates a prober for addr (host:port). The connection is
// established lazily by the first probe. service may be empty to check the
// server as a whole.
func NewGRPCProber(addr, service string) (*GRPCProber, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUserAgent(version.Full()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC health client for %s: %w", addr, err)
	}
	return &GRPCProber{
		conn:    conn,
		client:  healthpb.NewHealthClient(conn),
		service: service,
	}, nil
}

// Probe implements Prober.
func (p *GRPCProber) Probe(ctx context.Context, timeout time.Duration) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := Result{CheckedAt: start}
	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
	res.Latency = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Detail = protojson.Format(resp)
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		res.Error = fmt.Sprintf("gRPC health status %s", resp.GetStatus())
		return res
	}
	res.Healthy = true
	return res
}

// Close releases the underlying connection.
func (p *GRPCProber) Close() error {
	return p.conn.Close()
}
