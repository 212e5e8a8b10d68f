package plugins

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// callbackTimeout bounds a single delivery of a result to the host.
const callbackTimeout = 30 * time.Second

// providerService is the server-side shape of the Provider service.
type providerService interface {
	Name(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	MediaCategories(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	GetMediaItems(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	GetSubcategoryItems(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	SearchMediaItems(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	GetMediaURL(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Preferences(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	Icon(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
	Callbacks(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	HandleRedirect(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error)
}

func providerMethod[Req any](method string, call func(providerService, context.Context, *Req) (interface{}, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler:    unaryHandler(FullMethod(ProviderService, method), call),
	}
}

var providerServiceDesc = grpc.ServiceDesc{
	ServiceName: ProviderService,
	HandlerType: (*providerService)(nil),
	Methods: []grpc.MethodDesc{
		providerMethod(MethodName, func(s providerService, ctx context.Context, in *emptypb.Empty) (interface{}, error) {
			return s.Name(ctx, in)
		}),
		providerMethod(MethodMediaCategories, func(s providerService, ctx context.Context, in *emptypb.Empty) (interface{}, error) {
			return s.MediaCategories(ctx, in)
		}),
		providerMethod(MethodGetMediaItems, func(s providerService, ctx context.Context, in *structpb.Struct) (interface{}, error) {
			return s.GetMediaItems(ctx, in)
		}),
		providerMethod(MethodGetSubcategoryItems, func(s providerService, ctx context.Context, in *structpb.Struct) (interface{}, error) {
			return s.GetSubcategoryItems(ctx, in)
		}),
		providerMethod(MethodSearchMediaItems, func(s providerService, ctx context.Context, in *structpb.Struct) (interface{}, error) {
			return s.SearchMediaItems(ctx, in)
		}),
		providerMethod(MethodGetMediaURL, func(s providerService, ctx context.Context, in *structpb.Struct) (interface{}, error) {
			return s.GetMediaURL(ctx, in)
		}),
		providerMethod(MethodPreferences, func(s providerService, ctx context.Context, in *emptypb.Empty) (interface{}, error) {
			return s.Preferences(ctx, in)
		}),
		providerMethod(MethodIcon, func(s providerService, ctx context.Context, in *emptypb.Empty) (interface{}, error) {
			return s.Icon(ctx, in)
		}),
		providerMethod(MethodCallbacks, func(s providerService, ctx context.Context, in *emptypb.Empty) (interface{}, error) {
			return s.Callbacks(ctx, in)
		}),
		providerMethod(MethodHandleRedirect, func(s providerService, ctx context.Context, in *structpb.Struct) (interface{}, error) {
			return s.HandleRedirect(ctx, in)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "soundcrowd/provider",
}

// providerServer exposes a Provider over gRPC inside the plugin process.
type providerServer struct {
	impl   Provider
	broker *goplugin.GRPCBroker
	logger hclog.Logger

	mu    sync.Mutex
	conns map[uint32]*grpc.ClientConn
}

func newProviderServer(impl Provider, broker *goplugin.GRPCBroker, logger hclog.Logger) *providerServer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &providerServer{
		impl:   impl,
		broker: broker,
		logger: logger,
		conns:  make(map[uint32]*grpc.ClientConn),
	}
}

func (s *providerServer) Name(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String(s.impl.Name()), nil
}

func (s *providerServer) MediaCategories(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	return stringList(s.impl.MediaCategories()), nil
}

func (s *providerServer) GetMediaItems(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	cb, err := s.callbackFor(req)
	if err != nil {
		return nil, err
	}
	category := stringField(req, FieldCategory)
	go s.impl.GetMediaItems(category, cb)
	return &emptypb.Empty{}, nil
}

func (s *providerServer) GetSubcategoryItems(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	cb, err := s.callbackFor(req)
	if err != nil {
		return nil, err
	}
	category, subcategory := stringField(req, FieldCategory), stringField(req, FieldSubcategory)
	go s.impl.GetSubcategoryItems(category, subcategory, cb)
	return &emptypb.Empty{}, nil
}

func (s *providerServer) SearchMediaItems(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	cb, err := s.callbackFor(req)
	if err != nil {
		return nil, err
	}
	category, query := stringField(req, FieldCategory), stringField(req, FieldQuery)
	page := int(numberField(req, FieldPage))
	go s.impl.SearchMediaItems(category, query, page, cb)
	return &emptypb.Empty{}, nil
}

func (s *providerServer) GetMediaURL(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	cb, err := s.callbackFor(req)
	if err != nil {
		return nil, err
	}
	metadata := Object{}
	if v, ok := req.GetFields()[FieldMetadata]; ok && v.GetStructValue() != nil {
		metadata = v.GetStructValue().AsMap()
	}
	go s.impl.GetMediaURL(metadata, cb)
	return &emptypb.Empty{}, nil
}

func (s *providerServer) Preferences(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	prefs := s.impl.Preferences()
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(prefs))}
	for _, p := range prefs {
		list.Values = append(list.Values, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"key":         structpb.NewStringValue(p.Key),
			"label":       structpb.NewStringValue(p.Label),
			"description": structpb.NewStringValue(p.Description),
			"secret":      structpb.NewBoolValue(p.Secret),
		}}))
	}
	return list, nil
}

func (s *providerServer) Icon(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	return wrapperspb.Bytes(s.impl.Icon()), nil
}

func (s *providerServer) Callbacks(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	hosts := make([]string, 0)
	for host := range s.impl.Callbacks() {
		hosts = append(hosts, host)
	}
	return stringList(hosts), nil
}

func (s *providerServer) HandleRedirect(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	handler, ok := s.impl.Callbacks()[stringField(req, FieldHost)]
	if !ok || handler == nil {
		return wrapperspb.Bool(false), nil
	}
	go handler(stringField(req, FieldQuery))
	return wrapperspb.Bool(true), nil
}

// callbackFor builds the callback that reports back to the host's callback
// server for one call.
func (s *providerServer) callbackFor(req *structpb.Struct) (*remoteCallback, error) {
	callID := stringField(req, FieldCallID)
	if callID == "" {
		return nil, status.Error(codes.InvalidArgument, "missing call_id")
	}
	return &remoteCallback{
		server:   s,
		brokerID: uint32(numberField(req, FieldBrokerID)),
		callID:   callID,
	}, nil
}

func (s *providerServer) dial(brokerID uint32) (*grpc.ClientConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conn, ok := s.conns[brokerID]; ok {
		return conn, nil
	}
	if s.broker == nil {
		return nil, errors.New("no broker available")
	}
	conn, err := s.broker.Dial(brokerID)
	if err != nil {
		return nil, fmt.Errorf("failed to dial host callback server: %w", err)
	}
	s.conns[brokerID] = conn
	return conn, nil
}

// remoteCallback forwards a result to the host exactly once.
type remoteCallback struct {
	server   *providerServer
	brokerID uint32
	callID   string
	done     atomic.Bool
}

func (c *remoteCallback) OnResult(value interface{}) {
	c.deliver(value, nil)
}

func (c *remoteCallback) OnError(err error) {
	if err == nil {
		err = errors.New("unspecified provider error")
	}
	c.deliver(nil, err)
}

func (c *remoteCallback) deliver(value interface{}, cbErr error) {
	logger := c.server.logger
	if !c.done.CompareAndSwap(false, true) {
		logger.Warn("callback completed more than once", "call_id", c.callID)
		return
	}

	fields := map[string]*structpb.Value{
		FieldCallID: structpb.NewStringValue(c.callID),
	}
	if cbErr != nil {
		fields[FieldError] = structpb.NewStringValue(cbErr.Error())
	} else {
		encoded, err := EncodeValue(value)
		if err != nil {
			fields[FieldError] = structpb.NewStringValue(fmt.Sprintf("unencodable result %T: %v", value, err))
		} else {
			fields[FieldValue] = encoded
		}
	}

	conn, err := c.server.dial(c.brokerID)
	if err != nil {
		logger.Error("cannot reach host callback server", "call_id", c.callID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	err = conn.Invoke(ctx, FullMethod(CallbackService, MethodOnResult), &structpb.Struct{Fields: fields}, &emptypb.Empty{})
	if err != nil {
		logger.Error("host rejected callback", "call_id", c.callID, "error", err)
	}
}

func (s *providerServer) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, id)
	}
}

func stringField(s *structpb.Struct, key string) string {
	if v, ok := s.GetFields()[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func numberField(s *structpb.Struct, key string) float64 {
	if v, ok := s.GetFields()[key]; ok {
		return v.GetNumberValue()
	}
	return 0
}

func stringList(values []string) *structpb.ListValue {
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(values))}
	for _, v := range values {
		list.Values = append(list.Values, structpb.NewStringValue(v))
	}
	return list
}
