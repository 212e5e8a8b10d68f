package pluginmodule

import (
	"context"
	"encoding/json"
	"fmt"

	goplugin "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// HandshakeConfig for provider plugins (must match the SDK)
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "SOUNDCROWD_PLUGIN",
	MagicCookieValue: "soundcrowd_provider_v1",
}

// pluginName is the dispense key shared with the SDK.
const pluginName = "provider"

// Service, method and field names agreed with the SDK by name only.
const (
	providerService     = "soundcrowd.plugin.Provider"
	callbackServiceName = "soundcrowd.plugin.Callback"

	methodName                = "Name"
	methodMediaCategories     = "MediaCategories"
	methodGetMediaItems       = "GetMediaItems"
	methodGetSubcategoryItems = "GetSubcategoryItems"
	methodSearchMediaItems    = "SearchMediaItems"
	methodGetMediaURL         = "GetMediaURL"
	methodPreferences         = "Preferences"
	methodIcon                = "Icon"
	methodCallbacks           = "Callbacks"
	methodHandleRedirect      = "HandleRedirect"
	methodOnResult            = "OnResult"

	fieldCallID      = "call_id"
	fieldBrokerID    = "broker_id"
	fieldCategory    = "category"
	fieldSubcategory = "subcategory"
	fieldQuery       = "query"
	fieldPage        = "page"
	fieldMetadata    = "metadata"
	fieldHost        = "host"
	fieldValue       = "value"
	fieldError       = "error"
)

func fullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// encodeObject converts an Object into a protobuf Struct, going through JSON
// for nested values protobuf cannot take directly.
func encodeObject(obj Object) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(obj)
	if err == nil {
		return s, nil
	}
	data, jerr := json.Marshal(obj)
	if jerr != nil {
		return nil, fmt.Errorf("encode object: %w", err)
	}
	var generic map[string]interface{}
	if jerr := json.Unmarshal(data, &generic); jerr != nil {
		return nil, fmt.Errorf("encode object: %w", jerr)
	}
	return structpb.NewStruct(generic)
}

func stringField(s *structpb.Struct, key string) string {
	if v, ok := s.GetFields()[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func unaryHandler[S any, Req any](method string, call func(srv S, ctx context.Context, req *Req) (interface{}, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(S), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(S), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
