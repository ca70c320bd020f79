// Package grpcclient talks to the remote face provider that issues reference
// tokens at registration and similarity scores at check-in.
package grpcclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/face-attendance/internal/faceoracle"
	"github.com/example/face-attendance/internal/logging"
)

// Service method names. Messages are google.protobuf.Struct so the client
// needs no generated stubs.
const (
	ServiceName   = "faceprovider.v1.FaceProvider"
	EnrollMethod  = "/" + ServiceName + "/Enroll"
	CompareMethod = "/" + ServiceName + "/Compare"

	// DefaultCallTimeout bounds every provider round trip.
	DefaultCallTimeout = 15 * time.Second

	strategyRemote = "remote"
)

// FaceProvider implements faceoracle.Oracle and faceoracle.Enroller over gRPC.
type FaceProvider struct {
	conn        *grpc.ClientConn
	logger      *zap.Logger
	callTimeout time.Duration
}

var (
	_ faceoracle.Oracle   = (*FaceProvider)(nil)
	_ faceoracle.Enroller = (*FaceProvider)(nil)
)

// DialFaceProvider connects to addr and blocks until the connection is ready
// or ctx expires. Extra dial options are appended (tests pass a bufconn
// dialer).
func DialFaceProvider(ctx context.Context, addr string, callTimeout time.Duration, logger *zap.Logger, opts ...grpc.DialOption) (*FaceProvider, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)

	conn, err := grpc.DialContext(dialCtx, addr, dialOpts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_face_provider", "", err)
		logger.Error("failed to dial face provider", zap.Error(wrapped), zap.String("addr", addr))
		return nil, wrapped
	}
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &FaceProvider{conn: conn, logger: logger.Named("face_provider"), callTimeout: callTimeout}, nil
}

// Close releases the underlying connection.
func (p *FaceProvider) Close() error {
	return p.conn.Close()
}

// Enroll detects the face in image and returns the provider's reference token.
func (p *FaceProvider) Enroll(ctx context.Context, image []byte) (string, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"image_base64": base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return "", faceoracle.NewVerificationError(strategyRemote, err)
	}

	resp, err := p.invoke(ctx, EnrollMethod, req)
	if err != nil {
		return "", err
	}
	if err := requireFace(resp); err != nil {
		return "", err
	}

	token := resp.GetFields()["face_token"].GetStringValue()
	if token == "" {
		return "", faceoracle.NewVerificationError(strategyRemote, fmt.Errorf("%w: missing face_token", faceoracle.ErrMalformedResponse))
	}
	return token, nil
}

// Verify compares sample.Image against the token in ref.
func (p *FaceProvider) Verify(ctx context.Context, ref faceoracle.Reference, sample faceoracle.Sample) (float64, error) {
	if ref.Kind() != faceoracle.KindToken {
		return 0, faceoracle.NewVerificationError(strategyRemote, faceoracle.ErrMalformedReference)
	}
	if len(sample.Image) == 0 {
		return 0, faceoracle.NewVerificationError(strategyRemote, faceoracle.ErrUnsupportedSample)
	}

	req, err := structpb.NewStruct(map[string]interface{}{
		"face_token":   ref.Token,
		"image_base64": base64.StdEncoding.EncodeToString(sample.Image),
	})
	if err != nil {
		return 0, faceoracle.NewVerificationError(strategyRemote, err)
	}

	resp, err := p.invoke(ctx, CompareMethod, req)
	if err != nil {
		return 0, err
	}
	if err := requireFace(resp); err != nil {
		return 0, err
	}

	value, ok := resp.GetFields()["similarity"]
	if !ok {
		return 0, faceoracle.NewVerificationError(strategyRemote, fmt.Errorf("%w: missing similarity", faceoracle.ErrMalformedResponse))
	}
	if _, isNumber := value.GetKind().(*structpb.Value_NumberValue); !isNumber {
		return 0, faceoracle.NewVerificationError(strategyRemote, fmt.Errorf("%w: similarity is not a number", faceoracle.ErrMalformedResponse))
	}
	score := value.GetNumberValue()
	if score < 0 || score > 1 {
		return 0, faceoracle.NewVerificationError(strategyRemote, fmt.Errorf("%w: similarity %v out of range", faceoracle.ErrMalformedResponse, score))
	}
	return score, nil
}

func (p *FaceProvider) invoke(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	ctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	resp := new(structpb.Struct)
	if err := p.conn.Invoke(ctx, method, req, resp); err != nil {
		if status.Code(err) == codes.DeadlineExceeded {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		wrapped := logging.NewOperationError("grpcclient."+method, "", err)
		p.logger.Warn("face provider call failed", zap.Error(wrapped))
		return nil, faceoracle.NewVerificationError(strategyRemote, wrapped)
	}
	return resp, nil
}

func requireFace(resp *structpb.Struct) error {
	faces, ok := resp.GetFields()["faces_detected"]
	if !ok {
		return faceoracle.NewVerificationError(strategyRemote, fmt.Errorf("%w: missing faces_detected", faceoracle.ErrMalformedResponse))
	}
	if faces.GetNumberValue() < 1 {
		return faceoracle.NewVerificationError(strategyRemote, faceoracle.ErrNoFace)
	}
	return nil
}
