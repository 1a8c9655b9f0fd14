// Package remote submits operations to a carevaultd instance over gRPC.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"carevault.org/internal/grpcapi"
	"carevault.org/internal/ledger"
	"carevault.org/internal/submit"
)

// TokenSource returns a bearer token for caller.
type TokenSource func(caller ledger.Address) (string, error)

// Client implements submit.Submitter against a remote gateway. The caller is
// established by the token, so each Submit asks tokens for one.
type Client struct {
	conn   *grpc.ClientConn
	tokens TokenSource
}

var _ submit.Submitter = (*Client)(nil)

// Dial creates a new client with sensible defaults (insecure transport).
func Dial(target string, tokens TokenSource, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, tokens: tokens}, nil
}

// NewClient wraps an existing connection.
func NewClient(conn *grpc.ClientConn, tokens TokenSource) *Client {
	return &Client{conn: conn, tokens: tokens}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Submit sends op as caller and returns the gateway's receipt. Ledger and
// gateway rejections come back as their sentinel errors.
func (c *Client) Submit(ctx context.Context, caller ledger.Address, op submit.Operation) (submit.Receipt, error) {
	token, err := c.tokens(caller)
	if err != nil {
		return submit.Receipt{}, fmt.Errorf("remote: token for %s: %w", caller, err)
	}
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)

	body, err := json.Marshal(op)
	if err != nil {
		return submit.Receipt{}, fmt.Errorf("%w: %v", submit.ErrInvalidArgs, err)
	}
	in := new(structpb.Struct)
	if err := protojson.Unmarshal(body, in); err != nil {
		return submit.Receipt{}, fmt.Errorf("%w: %v", submit.ErrInvalidArgs, err)
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, grpcapi.SubmitMethod, in, out); err != nil {
		return submit.Receipt{}, mapError(err)
	}

	raw, err := protojson.Marshal(out)
	if err != nil {
		return submit.Receipt{}, fmt.Errorf("remote: decode receipt: %w", err)
	}
	var rcpt submit.Receipt
	if err := json.Unmarshal(raw, &rcpt); err != nil {
		return submit.Receipt{}, fmt.Errorf("remote: decode receipt: %w", err)
	}
	return rcpt, nil
}

// mapError recovers the sentinel from a status whose message starts with a
// wire code. Other errors pass through unchanged.
func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok || st.Code() == codes.OK {
		return err
	}
	code, msg, found := strings.Cut(st.Message(), ": ")
	if !found {
		code = st.Message()
	}
	sentinel, ok := submit.FromCode(code)
	if !ok {
		return err
	}
	return &remoteError{sentinel: sentinel, msg: msg, status: st.Code()}
}

type remoteError struct {
	sentinel error
	msg      string
	status   codes.Code
}

func (e *remoteError) Error() string {
	if e.msg == "" {
		return e.sentinel.Error()
	}
	return e.msg
}

func (e *remoteError) Unwrap() error { return e.sentinel }

// GRPCStatus keeps status.Code working on mapped errors.
func (e *remoteError) GRPCStatus() *status.Status { return status.New(e.status, e.Error()) }

// WithTimeout returns a context with default timeout useful for CLI tools.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(parent, d)
}
