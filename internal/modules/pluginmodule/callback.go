package pluginmodule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/mantonx/soundcrowd/internal/errors"
)

// dispatchValue delivers a wire value to the callback method matching its
// shape. Shapes outside the four supported ones are reported as an error and
// nothing is delivered.
func dispatchValue(cb Callback, value *structpb.Value) error {
	switch kind := value.GetKind().(type) {
	case *structpb.Value_StringValue:
		cb.OnString(kind.StringValue)
	case *structpb.Value_StructValue:
		cb.OnObject(kind.StructValue.AsMap())
	case *structpb.Value_ListValue:
		objects := make([]Object, 0, len(kind.ListValue.GetValues()))
		for i, v := range kind.ListValue.GetValues() {
			s := v.GetStructValue()
			if s == nil {
				return fmt.Errorf("%w: list element %d is %s", apperrors.ErrUnsupportedValue, i, kindName(v))
			}
			objects = append(objects, s.AsMap())
		}
		cb.OnObjects(objects)
	case *structpb.Value_BoolValue:
		cb.OnBool(kind.BoolValue)
	default:
		return fmt.Errorf("%w: %s", apperrors.ErrUnsupportedValue, kindName(value))
	}
	return nil
}

func kindName(v *structpb.Value) string {
	switch v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return "null"
	case *structpb.Value_NumberValue:
		return "number"
	case *structpb.Value_StringValue:
		return "string"
	case *structpb.Value_BoolValue:
		return "bool"
	case *structpb.Value_StructValue:
		return "object"
	case *structpb.Value_ListValue:
		return "list"
	default:
		return "empty"
	}
}

type callbackService interface {
	OnResult(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

var callbackServiceDesc = grpc.ServiceDesc{
	ServiceName: callbackServiceName,
	HandlerType: (*callbackService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: methodOnResult,
			Handler: unaryHandler(fullMethod(callbackServiceName, methodOnResult),
				func(s callbackService, ctx context.Context, in *structpb.Struct) (interface{}, error) {
					return s.OnResult(ctx, in)
				}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "soundcrowd/callback",
}

type pendingCall struct {
	op    string
	cb    Callback
	timer *time.Timer
}

// callbackServer receives results from one plugin and routes each to the
// callback registered for its call id. Every registered callback is completed
// exactly once: by the plugin, by expiry, or by close.
type callbackServer struct {
	plugin  string
	timeout time.Duration
	logger  hclog.Logger

	mu     sync.Mutex
	calls  map[string]*pendingCall
	closed bool
}

func newCallbackServer(plugin string, timeout time.Duration, logger hclog.Logger) *callbackServer {
	return &callbackServer{
		plugin:  plugin,
		timeout: timeout,
		logger:  logger,
		calls:   make(map[string]*pendingCall),
	}
}

// register records cb and returns the call id the plugin must echo back.
func (s *callbackServer) register(op string, cb Callback) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", apperrors.ErrShutdown
	}

	id := uuid.NewString()
	pc := &pendingCall{op: op, cb: cb}
	if s.timeout > 0 {
		pc.timer = time.AfterFunc(s.timeout, func() {
			s.fail(id, apperrors.BridgeFailure(op, apperrors.ErrCallbackTimeout).WithSubject(s.plugin))
		})
	}
	s.calls[id] = pc
	return id, nil
}

func (s *callbackServer) take(id string) (*pendingCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pc, ok := s.calls[id]
	if !ok {
		return nil, false
	}
	delete(s.calls, id)
	if pc.timer != nil {
		pc.timer.Stop()
	}
	return pc, true
}

// fail completes a pending call with err, if it is still pending.
func (s *callbackServer) fail(id string, err error) {
	if pc, ok := s.take(id); ok {
		pc.cb.OnError(err)
	}
}

func (s *callbackServer) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// close fails every outstanding call and rejects new ones.
func (s *callbackServer) close(err error) {
	s.mu.Lock()
	s.closed = true
	calls := s.calls
	s.calls = make(map[string]*pendingCall)
	s.mu.Unlock()

	for _, pc := range calls {
		if pc.timer != nil {
			pc.timer.Stop()
		}
		pc.cb.OnError(apperrors.BridgeFailure(pc.op, err).WithSubject(s.plugin))
	}
}

// OnResult implements the callback service the plugin reports results to.
func (s *callbackServer) OnResult(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	id := stringField(req, fieldCallID)
	pc, ok := s.take(id)
	if !ok {
		s.logger.Warn("result for unknown or completed call", "call_id", id)
		return nil, status.Errorf(codes.NotFound, "call %q is not pending", id)
	}

	if msg := stringField(req, fieldError); msg != "" {
		pc.cb.OnError(fmt.Errorf("%w: %s", apperrors.ErrPluginReported, msg))
		return &emptypb.Empty{}, nil
	}

	err := dispatchValue(pc.cb, req.GetFields()[fieldValue])
	if err != nil {
		violation := apperrors.ContractViolation(pc.op, err).WithSubject(s.plugin)
		s.logger.Error("plugin violated callback contract", "op", pc.op, "call_id", id, "error", err)
		pc.cb.OnError(violation)
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return &emptypb.Empty{}, nil
}
