package report

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/obsidianstack/valuemetric/pkg/types"
)

func sampleReport() *Report {
	return &Report{
		MetricID:        "cpu_time",
		DumpTimestampNs: 120e9,
		Dimensions: []Dimension{
			{
				Key: types.KeyOf("app", "A"),
				Buckets: []types.ValueBucket{
					{StartNs: 0, EndNs: 60e9, Value: 7, BucketNum: 0},
					{StartNs: 60e9, EndNs: 120e9, Value: 2.5, BucketNum: 1},
				},
			},
			{
				Key:     types.DimensionKey{},
				Buckets: []types.ValueBucket{{StartNs: 0, EndNs: 60e9, Value: -1, BucketNum: 0}},
			},
		},
		SkippedBucketCount:    3,
		GuardrailDroppedCount: 1,
	}
}

func TestEncodeDecode_PreservesBuckets(t *testing.T) {
	in := sampleReport()
	out, err := Decode(Encode(in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(in, out, cmp.AllowUnexported(types.DimensionKey{})); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	if got := out.BucketCount(); got != 3 {
		t.Errorf("BucketCount = %d, want 3", got)
	}
}

func TestDecode_SkipsUnknownFields(t *testing.T) {
	b := Encode(&Report{MetricID: "m", DumpTimestampNs: 5})
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "from a newer agent")

	r, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode with unknown field: %v", err)
	}
	if r.MetricID != "m" || r.DumpTimestampNs != 5 {
		t.Errorf("got %+v", r)
	}
}

func TestDecode_FingerprintMismatch(t *testing.T) {
	var dim []byte
	dim = protowire.AppendTag(dim, fieldDimFingerprint, protowire.Fixed64Type)
	dim = protowire.AppendFixed64(dim, 12345)

	var b []byte
	b = protowire.AppendTag(b, fieldDimension, protowire.BytesType)
	b = protowire.AppendBytes(b, dim)

	_, err := Decode(b)
	if !errors.Is(err, ErrFingerprint) {
		t.Fatalf("err = %v, want ErrFingerprint", err)
	}
}

func TestDecode_Truncated(t *testing.T) {
	b := Encode(sampleReport())
	if _, err := Decode(b[:len(b)-3]); err == nil {
		t.Fatal("expected error for truncated input, got nil")
	}
}

type captureServer struct {
	got []byte
}

func (c *captureServer) SendReport(_ context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	c.got = in.GetValue()
	return &emptypb.Empty{}, nil
}

func TestSend_DeliversPayload(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &captureServer{}
	gs := grpc.NewServer()
	RegisterServer(gs, srv)
	go gs.Serve(lis) //nolint:errcheck
	t.Cleanup(gs.Stop)

	conn, err := grpc.Dial(lis.Addr().String(), //nolint:staticcheck
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	payload := Encode(sampleReport())
	if err := Send(context.Background(), conn, payload); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if diff := cmp.Diff(payload, srv.got); diff != "" {
		t.Errorf("payload mismatch (-sent +received):\n%s", diff)
	}
}
