package plugins

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service and method names shared with the host. They are the whole of the
// compile-time agreement between the two sides.
const (
	ProviderService = "soundcrowd.plugin.Provider"
	CallbackService = "soundcrowd.plugin.Callback"

	MethodName                = "Name"
	MethodMediaCategories     = "MediaCategories"
	MethodGetMediaItems       = "GetMediaItems"
	MethodGetSubcategoryItems = "GetSubcategoryItems"
	MethodSearchMediaItems    = "SearchMediaItems"
	MethodGetMediaURL         = "GetMediaURL"
	MethodPreferences         = "Preferences"
	MethodIcon                = "Icon"
	MethodCallbacks           = "Callbacks"
	MethodHandleRedirect      = "HandleRedirect"
	MethodOnResult            = "OnResult"
)

// Request fields
const (
	FieldCallID      = "call_id"
	FieldBrokerID    = "broker_id"
	FieldCategory    = "category"
	FieldSubcategory = "subcategory"
	FieldQuery       = "query"
	FieldPage        = "page"
	FieldMetadata    = "metadata"
	FieldHost        = "host"
	FieldValue       = "value"
	FieldError       = "error"
)

// FullMethod returns the gRPC path of a method on a service.
func FullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// EncodeValue converts a callback result into its wire form. Shapes outside
// the four supported ones still encode when protobuf can represent them; the
// host decides whether they are acceptable.
func EncodeValue(value interface{}) (*structpb.Value, error) {
	switch v := value.(type) {
	case *structpb.Value:
		return v, nil
	case string:
		return structpb.NewStringValue(v), nil
	case bool:
		return structpb.NewBoolValue(v), nil
	case map[string]interface{}:
		s, err := EncodeObject(v)
		if err != nil {
			return nil, err
		}
		return structpb.NewStructValue(s), nil
	case []map[string]interface{}:
		list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(v))}
		for i, obj := range v {
			s, err := EncodeObject(obj)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			list.Values = append(list.Values, structpb.NewStructValue(s))
		}
		return structpb.NewListValue(list), nil
	default:
		return structpb.NewValue(value)
	}
}

// EncodeObject converts an Object to a protobuf Struct. Nested values that
// protobuf cannot take directly (typed slices, structs) go through JSON.
func EncodeObject(obj Object) (*structpb.Struct, error) {
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

// unaryHandler adapts a typed method to grpc.MethodHandler.
func unaryHandler[S any, Req any](fullMethod string, call func(srv S, ctx context.Context, req *Req) (interface{}, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(S), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(S), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
