package pluginmodule

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"

	"github.com/mantonx/soundcrowd/internal/config"
	apperrors "github.com/mantonx/soundcrowd/internal/errors"
)

// providerGRPCPlugin is the host half of the go-plugin definition.
type providerGRPCPlugin struct {
	goplugin.NetRPCUnsupportedPlugin

	handle   ModuleHandle
	executor Submitter
	opts     ProxyOptions
	logger   hclog.Logger
}

// GRPCServer is not used on the host side
func (p *providerGRPCPlugin) GRPCServer(*goplugin.GRPCBroker, *grpc.Server) error {
	return errors.New("provider server is not implemented on the host side")
}

// GRPCClient creates the proxy for a connected plugin
func (p *providerGRPCPlugin) GRPCClient(ctx context.Context, broker *goplugin.GRPCBroker, conn *grpc.ClientConn) (interface{}, error) {
	return newProxy(p.handle, conn, broker, p.executor, p.opts, p.logger), nil
}

// GoPluginBridge starts plugin executables as go-plugin subprocesses.
type GoPluginBridge struct {
	startTimeout time.Duration
	logLevel     string
	opts         ProxyOptions
	executor     Submitter
	logger       hclog.Logger
}

var _ Bridger = (*GoPluginBridge)(nil)

// NewBridge creates a bridge configured from the plugin settings.
func NewBridge(cfg config.PluginConfig, logLevel string, executor Submitter, logger hclog.Logger) *GoPluginBridge {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &GoPluginBridge{
		startTimeout: cfg.StartTimeout,
		logLevel:     logLevel,
		opts: ProxyOptions{
			CallTimeout:   cfg.CallTimeout,
			ResultTimeout: cfg.ResultTimeout,
			RateLimit:     cfg.RateLimit,
			RateBurst:     cfg.RateBurst,
		},
		executor: executor,
		logger:   logger,
	}
}

// Bridge starts the module, connects to it and runs the trial describe call.
// On any failure the subprocess is killed and a bridge failure is returned.
func (b *GoPluginBridge) Bridge(ctx context.Context, handle ModuleHandle) (BridgedPlugin, error) {
	pluginLogger := b.logger.Named(handle.ID)

	cmd := exec.Command(handle.EntryPoint)
	cmd.Dir = handle.Dir
	cmd.Env = append(os.Environ(),
		"SOUNDCROWD_PLUGIN_ID="+handle.ID,
		"SOUNDCROWD_PLUGIN_LOG_LEVEL="+b.logLevel,
	)

	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			pluginName: &providerGRPCPlugin{
				handle:   handle,
				executor: b.executor,
				opts:     b.opts,
				logger:   pluginLogger,
			},
		},
		Cmd:              cmd,
		Logger:           pluginLogger,
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolGRPC},
		StartTimeout:     b.startTimeout,
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, apperrors.BridgeFailure("connect", err).WithSubject(handle.ID)
	}

	raw, err := rpcClient.Dispense(pluginName)
	if err != nil {
		client.Kill()
		return nil, apperrors.BridgeFailure("dispense", err).WithSubject(handle.ID)
	}

	proxy, ok := raw.(*Proxy)
	if !ok {
		client.Kill()
		return nil, apperrors.BridgeFailure("dispense", fmt.Errorf("%w: unexpected client type %T", apperrors.ErrHandshakeMismatch, raw)).WithSubject(handle.ID)
	}
	proxy.closeFn = client.Kill

	if err := proxy.describe(ctx); err != nil {
		_ = proxy.Close()
		return nil, apperrors.BridgeFailure("describe", err).WithSubject(handle.ID)
	}

	pluginLogger.Info("plugin bridged", "name", proxy.Name(), "categories", proxy.MediaCategories(), "pid", pidOf(client))
	return proxy, nil
}

func pidOf(client *goplugin.Client) int {
	if rc := client.ReattachConfig(); rc != nil {
		return rc.Pid
	}
	return 0
}
