package gatewaygrpc

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"pkt.systems/attackdeck/internal/version"
	"pkt.systems/attackdeck/schema"
	"pkt.systems/pslog"
)

// Client implements core.Gateway over a bidirectional gRPC channel. The
// channel is opened on the first Send and reopened after it breaks.
type Client struct {
	conn   *grpc.ClientConn
	logger pslog.Logger

	mu       sync.Mutex
	stream   grpc.ClientStream
	cancel   context.CancelFunc
	handlers map[schema.EventKind]map[uint64]func(schema.InboundMessage)
	nextID   uint64
	closed   bool

	sendMu sync.Mutex
	wg     sync.WaitGroup
}

// Dial creates a gateway client for the executor at cfg.Address.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("gateway address is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	network := cfg.network()
	dialer := func(ctx context.Context, addr string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, network, addr)
	}
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialer),
		grpc.WithUserAgent(version.UserAgent()),
	}
	if cfg.KeepaliveInterval > 0 {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveInterval,
			Timeout:             cfg.KeepaliveInterval,
			PermitWithoutStream: true,
		}))
	}
	conn, err := grpc.NewClient("passthrough:///"+cfg.Address, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:     conn,
		logger:   pslog.Ctx(ctx).With("gateway", cfg.Address),
		handlers: make(map[schema.EventKind]map[uint64]func(schema.InboundMessage)),
	}, nil
}

// Close tears down the channel and the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	c.stream = nil
	c.cancel = nil
	c.mu.Unlock()
	var err error
	if c.conn != nil {
		err = c.conn.Close()
	}
	c.wg.Wait()
	return err
}

// Send writes one message to the executor.
func (c *Client) Send(ctx context.Context, msg schema.OutboundMessage) error {
	st, err := EncodeOutbound(msg)
	if err != nil {
		return &GatewayError{Kind: ErrorEncode, Op: "send", Err: err}
	}
	id := uuid.NewString()
	st.Fields[messageIDField] = structpb.NewStringValue(id)
	stream, err := c.ensureStream()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return wrapGatewayError("send", err)
	}
	c.sendMu.Lock()
	err = stream.SendMsg(st)
	c.sendMu.Unlock()
	if err != nil {
		c.dropStream(stream)
		logGRPCError(c.logger, "gateway grpc send failed", err)
		return wrapGatewayError("send", err)
	}
	c.logger.Trace("gateway grpc sent", "id", id, "type", msg.Type, "tab", msg.TabID, "stream", msg.OutputID)
	return nil
}

// Subscribe registers handler for inbound messages of kind. Handlers run on
// the receive goroutine in arrival order.
func (c *Client) Subscribe(kind schema.EventKind, handler func(schema.InboundMessage)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	if c.handlers[kind] == nil {
		c.handlers[kind] = make(map[uint64]func(schema.InboundMessage))
	}
	c.handlers[kind][id] = handler
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[kind], id)
	}
}

func (c *Client) ensureStream() (grpc.ClientStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, &GatewayError{Kind: ErrorClosed, Op: "connect"}
	}
	if c.stream != nil {
		return c.stream, nil
	}
	streamCtx, cancel := context.WithCancel(context.Background())
	stream, err := c.conn.NewStream(streamCtx, &channelStreamDesc, channelMethod)
	if err != nil {
		cancel()
		logGRPCError(c.logger, "gateway grpc connect failed", err)
		return nil, wrapGatewayError("connect", err)
	}
	c.stream = stream
	c.cancel = cancel
	c.wg.Add(1)
	go c.recvLoop(stream)
	c.logger.Info("gateway grpc channel opened")
	return stream, nil
}

func (c *Client) dropStream(stream grpc.ClientStream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != stream {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.stream = nil
	c.cancel = nil
}

func (c *Client) recvLoop(stream grpc.ClientStream) {
	defer c.wg.Done()
	for {
		in := new(structpb.Struct)
		if err := stream.RecvMsg(in); err != nil {
			c.dropStream(stream)
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
				c.logger.Debug("gateway grpc channel closed")
				return
			}
			logGRPCError(c.logger, "gateway grpc channel failed", err)
			return
		}
		msg, err := DecodeInbound(in)
		if err != nil {
			c.logger.Warn("gateway grpc event rejected", "err", err)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg schema.InboundMessage) {
	c.mu.Lock()
	handlers := make([]func(schema.InboundMessage), 0, len(c.handlers[msg.Type]))
	for _, handler := range c.handlers[msg.Type] {
		handlers = append(handlers, handler)
	}
	c.mu.Unlock()
	c.logger.Trace("gateway grpc event", "type", msg.Type, "tab", msg.TabID, "stream", msg.OutputID, "handlers", len(handlers))
	for _, handler := range handlers {
		handler(msg)
	}
}

func logGRPCError(log pslog.Logger, msg string, err error) {
	if log == nil || err == nil {
		return
	}
	if st, ok := status.FromError(err); ok {
		log.Warn(msg, "err", err, "code", st.Code().String(), "message", st.Message())
		return
	}
	log.Warn(msg, "err", err)
}
