package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"creditscore/internal/serving"
)

type Client struct {
	cc *grpc.ClientConn
}

// Dial connects without TLS; extra options are appended.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc}, nil
}

func (c *Client) Predict(ctx context.Context, in map[string]any) (serving.Result, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return serving.Result{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PredictMethod, req, out); err != nil {
		return serving.Result{}, err
	}
	f := out.GetFields()
	return serving.Result{
		Result:   f["result"].GetStringValue(),
		ErrorMsg: f["error_msg"].GetStringValue(),
	}, nil
}

// Serving reports whether the prediction service is healthy.
func (c *Client) Serving(ctx context.Context) (bool, error) {
	resp, err := healthpb.NewHealthClient(c.cc).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func (c *Client) Close() error { return c.cc.Close() }
