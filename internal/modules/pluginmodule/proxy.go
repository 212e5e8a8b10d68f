package pluginmodule

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/mantonx/soundcrowd/internal/errors"
)

// ProxyOptions tunes how a proxy talks to its plugin.
type ProxyOptions struct {
	CallTimeout   time.Duration // bounds each RPC, including the describe calls
	ResultTimeout time.Duration // bounds the wait for an asynchronous result
	RateLimit     float64       // calls per second; 0 disables throttling
	RateBurst     int
}

// Proxy implements Plugin by forwarding every call over gRPC to a plugin
// process. Asynchronous calls are submitted to the executor and their results
// come back through the callback server served on the go-plugin broker.
type Proxy struct {
	handle    ModuleHandle
	conn      grpc.ClientConnInterface
	brokerID  uint32
	callbacks *callbackServer
	executor  Submitter
	limiter   *rate.Limiter
	opts      ProxyOptions
	logger    hclog.Logger

	desc    Descriptor
	closeFn func()
	closed  atomic.Bool
}

var _ BridgedPlugin = (*Proxy)(nil)

// newProxy builds a proxy on an established connection and starts serving its
// callback server on the broker. The descriptor is empty until describe runs.
func newProxy(handle ModuleHandle, conn grpc.ClientConnInterface, broker *goplugin.GRPCBroker, executor Submitter, opts ProxyOptions, logger hclog.Logger) *Proxy {
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.RateBurst
	if burst < 1 {
		burst = 1
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}

	p := &Proxy{
		handle:    handle,
		conn:      conn,
		callbacks: newCallbackServer(handle.ID, opts.ResultTimeout, logger),
		executor:  executor,
		limiter:   rate.NewLimiter(limit, burst),
		opts:      opts,
		logger:    logger,
	}

	p.brokerID = broker.NextId()
	go broker.AcceptAndServe(p.brokerID, func(serverOpts []grpc.ServerOption) *grpc.Server {
		s := grpc.NewServer(serverOpts...)
		s.RegisterService(&callbackServiceDesc, p.callbacks)
		return s
	})
	return p
}

// describe performs the trial calls that make up the descriptor.
func (p *Proxy) describe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	defer cancel()

	name := &wrapperspb.StringValue{}
	if err := p.invoke(ctx, methodName, &emptypb.Empty{}, name); err != nil {
		return err
	}
	if name.GetValue() == "" {
		return fmt.Errorf("%w: empty plugin name", apperrors.ErrHandshakeMismatch)
	}

	categories := &structpb.ListValue{}
	if err := p.invoke(ctx, methodMediaCategories, &emptypb.Empty{}, categories); err != nil {
		return err
	}

	prefs := &structpb.ListValue{}
	if err := p.invoke(ctx, methodPreferences, &emptypb.Empty{}, prefs); err != nil {
		return err
	}

	icon := &wrapperspb.BytesValue{}
	if err := p.invoke(ctx, methodIcon, &emptypb.Empty{}, icon); err != nil {
		return err
	}

	redirects := &structpb.ListValue{}
	if err := p.invoke(ctx, methodCallbacks, &emptypb.Empty{}, redirects); err != nil {
		return err
	}

	p.desc = Descriptor{
		ID:          p.handle.ID,
		Name:        name.GetValue(),
		Version:     p.handle.Version,
		Description: p.handle.Description,
		Categories:  stringValues(categories),
		Preferences: decodePreferences(prefs),
		Icon:        icon.GetValue(),
		Redirects:   stringValues(redirects),
	}
	p.callbacks.plugin = p.desc.Name
	p.logger = p.logger.With("plugin", p.desc.Name)
	p.callbacks.logger = p.logger
	return nil
}

func (p *Proxy) invoke(ctx context.Context, method string, in, out interface{}) error {
	if err := p.conn.Invoke(ctx, fullMethod(providerService, method), in, out); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// Descriptor returns the identity captured when the plugin was bridged.
func (p *Proxy) Descriptor() Descriptor {
	return p.desc
}

func (p *Proxy) Name() string {
	return p.desc.Name
}

func (p *Proxy) MediaCategories() []string {
	return append([]string(nil), p.desc.Categories...)
}

func (p *Proxy) Preferences() []Preference {
	return append([]Preference(nil), p.desc.Preferences...)
}

func (p *Proxy) Icon() []byte {
	return p.desc.Icon
}

// Callbacks returns one handler per redirect host the plugin claimed. Each
// handler forwards the query to the plugin without waiting for it.
func (p *Proxy) Callbacks() map[string]RedirectHandler {
	handlers := make(map[string]RedirectHandler, len(p.desc.Redirects))
	for _, host := range p.desc.Redirects {
		host := host
		handlers[host] = func(query string) {
			p.executor.Submit(func() { p.redirect(host, query) })
		}
	}
	return handlers
}

func (p *Proxy) redirect(host, query string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.CallTimeout)
	defer cancel()

	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldHost:  structpb.NewStringValue(host),
		fieldQuery: structpb.NewStringValue(query),
	}}
	handled := &wrapperspb.BoolValue{}
	if err := p.invoke(ctx, methodHandleRedirect, req, handled); err != nil {
		p.logger.Error("redirect delivery failed", "host", host, "error", err)
		return
	}
	if !handled.GetValue() {
		p.logger.Warn("plugin ignored redirect", "host", host)
	}
}

func (p *Proxy) GetMediaItems(category string, cb Callback) {
	p.dispatch(methodGetMediaItems, map[string]*structpb.Value{
		fieldCategory: structpb.NewStringValue(category),
	}, cb)
}

func (p *Proxy) GetSubcategoryItems(category, subcategory string, cb Callback) {
	p.dispatch(methodGetSubcategoryItems, map[string]*structpb.Value{
		fieldCategory:    structpb.NewStringValue(category),
		fieldSubcategory: structpb.NewStringValue(subcategory),
	}, cb)
}

func (p *Proxy) SearchMediaItems(category, query string, page int, cb Callback) {
	p.dispatch(methodSearchMediaItems, map[string]*structpb.Value{
		fieldCategory: structpb.NewStringValue(category),
		fieldQuery:    structpb.NewStringValue(query),
		fieldPage:     structpb.NewNumberValue(float64(page)),
	}, cb)
}

func (p *Proxy) GetMediaURL(metadata Object, cb Callback) {
	s, err := encodeObject(metadata)
	if err != nil {
		if cb != nil {
			cb.OnError(apperrors.BridgeFailure(methodGetMediaURL, err).WithSubject(p.desc.Name))
		}
		return
	}
	p.dispatch(methodGetMediaURL, map[string]*structpb.Value{
		fieldMetadata: structpb.NewStructValue(s),
	}, cb)
}

// dispatch registers cb and sends the request from a worker. The caller never
// waits on the plugin; any transport failure completes cb with an error.
func (p *Proxy) dispatch(method string, fields map[string]*structpb.Value, cb Callback) {
	if cb == nil {
		cb = CallbackFuncs{}
	}
	if p.closed.Load() {
		cb.OnError(apperrors.BridgeFailure(method, apperrors.ErrShutdown).WithSubject(p.desc.Name))
		return
	}

	callID, err := p.callbacks.register(method, cb)
	if err != nil {
		cb.OnError(apperrors.BridgeFailure(method, err).WithSubject(p.desc.Name))
		return
	}
	fields[fieldCallID] = structpb.NewStringValue(callID)
	fields[fieldBrokerID] = structpb.NewNumberValue(float64(p.brokerID))

	work := func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.opts.CallTimeout)
		defer cancel()

		if err := p.limiter.Wait(ctx); err != nil {
			p.callbacks.fail(callID, apperrors.BridgeFailure(method, fmt.Errorf("throttled: %w", err)).WithSubject(p.desc.Name))
			return
		}

		p.logger.Debug("calling plugin", "method", method, "call_id", callID)
		if err := p.invoke(ctx, method, &structpb.Struct{Fields: fields}, &emptypb.Empty{}); err != nil {
			p.callbacks.fail(callID, apperrors.BridgeFailure(method, err).WithSubject(p.desc.Name))
		}
	}

	if !p.executor.Submit(work) {
		p.callbacks.fail(callID, apperrors.BridgeFailure(method, apperrors.ErrShutdown).WithSubject(p.desc.Name))
	}
}

// Close fails outstanding calls and stops the plugin process.
func (p *Proxy) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.callbacks.close(apperrors.ErrShutdown)
	if p.closeFn != nil {
		p.closeFn()
	}
	return nil
}

func stringValues(list *structpb.ListValue) []string {
	values := make([]string, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		if s, ok := v.GetKind().(*structpb.Value_StringValue); ok {
			values = append(values, s.StringValue)
		}
	}
	return values
}

func decodePreferences(list *structpb.ListValue) []Preference {
	prefs := make([]Preference, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			continue
		}
		prefs = append(prefs, Preference{
			Key:         stringField(s, "key"),
			Label:       stringField(s, "label"),
			Description: stringField(s, "description"),
			Secret:      s.GetFields()["secret"].GetBoolValue(),
		})
	}
	return prefs
}
