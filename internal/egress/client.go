package egress

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/adaptive-input/internal/engine"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
)

// #region client-struct
// Client consumes the control-egress service.
type Client struct {
	conn *grpc.ClientConn
}

// #endregion client-struct

// #region constructor
// Dial connects to an egress server. Extra options are appended to the
// insecure transport default.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// #endregion constructor

// #region calls
// Phenotype fetches the phenotype in force.
func (c *Client) Phenotype(ctx context.Context) (phenotype.Phenotype, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodPhenotype, &emptypb.Empty{}, out); err != nil {
		return phenotype.Phenotype{}, fmt.Errorf("phenotype rpc: %w", err)
	}
	return PhenotypeFromStruct(out)
}

// Stats fetches the session counters.
func (c *Client) Stats(ctx context.Context) (engine.Stats, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodStats, &emptypb.Empty{}, out); err != nil {
		return engine.Stats{}, fmt.Errorf("stats rpc: %w", err)
	}
	return StatsFromStruct(out), nil
}

// Stream calls fn for each control until the server ends the stream, ctx
// is cancelled, or fn returns an error.
func (c *Client) Stream(ctx context.Context, fn func(Control) error) error {
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], methodStream)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return fmt.Errorf("stream request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("stream close send: %w", err)
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("stream recv: %w", err)
		}
		ctl, err := ControlFromStruct(msg)
		if err != nil {
			return err
		}
		if err := fn(ctl); err != nil {
			return err
		}
	}
}

// #endregion calls
