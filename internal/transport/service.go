// Package transport exposes prediction over gRPC. Requests and replies
// are google.protobuf.Struct values shaped like the HTTP JSON bodies.
package transport

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"creditscore/internal/serving"
	"creditscore/internal/telemetry"
)

const (
	ServiceName   = "creditscore.v1.Prediction"
	PredictMethod = "/" + ServiceName + "/Predict"
)

// PredictionServer is the server API of ServiceName.
type PredictionServer interface {
	Predict(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var predictionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PredictionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Predict", Handler: predictHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "creditscore/v1/prediction.proto",
}

func RegisterPredictionServer(s grpc.ServiceRegistrar, srv PredictionServer) {
	s.RegisterService(&predictionServiceDesc, srv)
}

func predictHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PredictionServer).Predict(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PredictMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PredictionServer).Predict(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type predictionService struct {
	scorer serving.Scorer
}

func (p predictionService) Predict(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	res, err := p.scorer.Predict(ctx, in.AsMap())
	if err != nil {
		code := codes.Internal
		label := "error"
		switch {
		case serving.IsInputError(err):
			code, label = codes.InvalidArgument, "invalid"
		case errors.Is(err, serving.ErrNotReady):
			code, label = codes.Unavailable, "not_ready"
		case errors.Is(err, context.Canceled):
			code, label = codes.Canceled, "canceled"
		}
		telemetry.Predictions.WithLabelValues("grpc", label).Inc()
		return nil, status.Error(code, res.ErrorMsg)
	}
	telemetry.Predictions.WithLabelValues("grpc", "ok").Inc()
	return resultStruct(res), nil
}

func resultStruct(r serving.Result) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"result":    structpb.NewStringValue(r.Result),
		"error_msg": structpb.NewStringValue(r.ErrorMsg),
	}}
}
