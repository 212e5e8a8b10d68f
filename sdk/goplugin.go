package plugins

import (
	"context"
	"errors"
	"os"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
)

// Handshake configuration for plugin communication
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "SOUNDCROWD_PLUGIN",
	MagicCookieValue: "soundcrowd_provider_v1",
}

// PluginName is the key under which the provider is dispensed.
const PluginName = "provider"

// ProviderPlugin is the go-plugin definition of the plugin side. The host
// ships its own client half.
type ProviderPlugin struct {
	goplugin.NetRPCUnsupportedPlugin

	Impl   Provider
	Logger hclog.Logger
}

// GRPCServer registers the provider service on the plugin's gRPC server.
func (p *ProviderPlugin) GRPCServer(broker *goplugin.GRPCBroker, s *grpc.Server) error {
	if p.Impl == nil {
		return errors.New("provider implementation is nil")
	}
	s.RegisterService(&providerServiceDesc, newProviderServer(p.Impl, broker, p.Logger))
	return nil
}

// GRPCClient is not available in the SDK; the host implements its own.
func (p *ProviderPlugin) GRPCClient(context.Context, *goplugin.GRPCBroker, *grpc.ClientConn) (interface{}, error) {
	return nil, errors.New("provider client is implemented by the host")
}

// Serve runs impl as a plugin process. It blocks until the host goes away.
func Serve(impl Provider) {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:       impl.Name(),
		Level:      hclog.LevelFromString(os.Getenv("SOUNDCROWD_PLUGIN_LOG_LEVEL")),
		Output:     os.Stderr,
		JSONFormat: true,
	})

	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			PluginName: &ProviderPlugin{Impl: impl, Logger: logger},
		},
		GRPCServer: goplugin.DefaultGRPCServer,
		Logger:     logger,
	})
}
