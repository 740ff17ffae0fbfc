package receiver

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/obsidianstack/valuemetric/pkg/report"
	"github.com/obsidianstack/valuemetric/server/internal/store"
)

var received = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "valuemetric",
	Subsystem: "receiver",
	Name:      "reports_total",
	Help:      "Reports received from agents by result.",
}, []string{"result"})

// Receiver implements report.Server.
// It decodes each incoming report and stores it.
type Receiver struct {
	store *store.Store
}

var _ report.Server = (*Receiver)(nil)

// New creates a Receiver that writes accepted reports to st.
func New(st *store.Store) *Receiver {
	return &Receiver{store: st}
}

// SendReport is the unary RPC handler called by agents. Authentication is
// enforced by the gRPC server interceptor before this is called.
func (r *Receiver) SendReport(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	rep, err := report.Decode(in.GetValue())
	if err != nil {
		received.WithLabelValues("invalid").Inc()
		return nil, status.Errorf(codes.InvalidArgument, "decode report: %v", err)
	}
	if rep.MetricID == "" {
		received.WithLabelValues("invalid").Inc()
		return nil, status.Error(codes.InvalidArgument, "metric_id is required")
	}

	r.store.Put(rep)
	received.WithLabelValues("stored").Inc()

	slog.Debug("receiver: report stored",
		"metric", rep.MetricID,
		"dimensions", len(rep.Dimensions),
		"buckets", rep.BucketCount(),
		"skipped", rep.SkippedBucketCount,
		"guardrail_dropped", rep.GuardrailDroppedCount,
	)

	return &emptypb.Empty{}, nil
}
