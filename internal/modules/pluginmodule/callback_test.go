package pluginmodule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/mantonx/soundcrowd/internal/errors"
)

// recorder captures which callback method was invoked.
type recorder struct {
	method string
	value  interface{}
	err    error
	calls  int
}

func (r *recorder) OnString(v string) { r.record("string", v) }
func (r *recorder) OnObject(v Object) { r.record("object", v) }
func (r *recorder) OnObjects(v []Object) { r.record("objects", v) }
func (r *recorder) OnBool(v bool) { r.record("bool", v) }
func (r *recorder) OnError(err error) { r.calls++; r.method = "error"; r.err = err }
func (r *recorder) record(m string, v interface{}) { r.calls++; r.method = m; r.value = v }

func mustValue(t *testing.T, v interface{}) *structpb.Value {
	t.Helper()
	pv, err := structpb.NewValue(v)
	require.NoError(t, err)
	return pv
}

func TestDispatchValue_SupportedShapes(t *testing.T) {
	tests := []struct {
		name   string
		value  *structpb.Value
		method string
		want   interface{}
	}{
		{"string", structpb.NewStringValue(`[{"title":"x"}]`), "string", `[{"title":"x"}]`},
		{"object", mustValue(t, map[string]interface{}{"url": "https://a"}), "object", Object{"url": "https://a"}},
		{"list of objects", mustValue(t, []interface{}{
			map[string]interface{}{"title": "a"},
			map[string]interface{}{"title": "b"},
		}), "objects", []Object{{"title": "a"}, {"title": "b"}}},
		{"empty list", mustValue(t, []interface{}{}), "objects", []Object{}},
		{"bool", structpb.NewBoolValue(false), "bool", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			require.NoError(t, dispatchValue(rec, tt.value))
			assert.Equal(t, 1, rec.calls)
			assert.Equal(t, tt.method, rec.method)
			assert.Equal(t, tt.want, rec.value)
		})
	}
}

func TestDispatchValue_RejectsOtherShapes(t *testing.T) {
	values := map[string]*structpb.Value{
		"number":     structpb.NewNumberValue(42),
		"null":       structpb.NewNullValue(),
		"mixed list": mustValue(t, []interface{}{map[string]interface{}{"a": 1}, "b"}),
		"missing":    nil,
	}

	for name, v := range values {
		t.Run(name, func(t *testing.T) {
			rec := &recorder{}
			err := dispatchValue(rec, v)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrUnsupportedValue)
			assert.Equal(t, 0, rec.calls)
		})
	}
}

func resultRequest(t *testing.T, fields map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return s
}

func TestCallbackServer_RoutesResultOnce(t *testing.T) {
	s := newCallbackServer("Test", 0, hclog.NewNullLogger())
	rec := &recorder{}
	id, err := s.register(methodGetMediaItems, rec)
	require.NoError(t, err)
	assert.Equal(t, 1, s.pending())

	_, err = s.OnResult(context.Background(), resultRequest(t, map[string]interface{}{
		fieldCallID: id,
		fieldValue:  true,
	}))
	require.NoError(t, err)
	assert.Equal(t, "bool", rec.method)
	assert.Equal(t, 0, s.pending())

	// a duplicate completion is refused and not delivered
	_, err = s.OnResult(context.Background(), resultRequest(t, map[string]interface{}{
		fieldCallID: id,
		fieldValue:  "again",
	}))
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Equal(t, 1, rec.calls)
}

func TestCallbackServer_PluginReportedError(t *testing.T) {
	s := newCallbackServer("Test", 0, hclog.NewNullLogger())
	rec := &recorder{}
	id, err := s.register(methodGetMediaItems, rec)
	require.NoError(t, err)

	_, err = s.OnResult(context.Background(), resultRequest(t, map[string]interface{}{
		fieldCallID: id,
		fieldError:  "quota exceeded",
	}))
	require.NoError(t, err)
	assert.Equal(t, "error", rec.method)
	assert.ErrorIs(t, rec.err, apperrors.ErrPluginReported)
	assert.Contains(t, rec.err.Error(), "quota exceeded")
}

func TestCallbackServer_ContractViolation(t *testing.T) {
	s := newCallbackServer("Test", 0, hclog.NewNullLogger())
	rec := &recorder{}
	id, err := s.register(methodGetMediaURL, rec)
	require.NoError(t, err)

	_, err = s.OnResult(context.Background(), resultRequest(t, map[string]interface{}{
		fieldCallID: id,
		fieldValue:  3.5,
	}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, 1, rec.calls)
	assert.True(t, apperrors.IsKind(rec.err, apperrors.KindContract))
	assert.ErrorIs(t, rec.err, apperrors.ErrUnsupportedValue)
}

func TestCallbackServer_ExpiresPendingCalls(t *testing.T) {
	s := newCallbackServer("Test", 20*time.Millisecond, hclog.NewNullLogger())
	done := make(chan error, 1)
	_, err := s.register(methodGetMediaItems, CallbackFuncs{Error: func(err error) { done <- err }})
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, apperrors.ErrCallbackTimeout)
		assert.True(t, apperrors.IsKind(err, apperrors.KindBridge))
	case <-time.After(2 * time.Second):
		t.Fatal("pending call never expired")
	}
	assert.Equal(t, 0, s.pending())
}

func TestCallbackServer_CloseFailsPending(t *testing.T) {
	s := newCallbackServer("Test", 0, hclog.NewNullLogger())
	rec := &recorder{}
	_, err := s.register(methodGetMediaItems, rec)
	require.NoError(t, err)

	s.close(apperrors.ErrShutdown)
	assert.True(t, errors.Is(rec.err, apperrors.ErrShutdown))

	_, err = s.register(methodGetMediaItems, &recorder{})
	assert.ErrorIs(t, err, apperrors.ErrShutdown)
}
