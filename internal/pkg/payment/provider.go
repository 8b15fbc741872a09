package payment

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/aifans/aifans/app/repository"
	"github.com/aifans/aifans/internal/pkg/alipay"
	"github.com/aifans/aifans/internal/pkg/apperror"
	"github.com/gofiber/fiber/v2/log"
)

// Gateway is the part of *alipay.Client the ledger uses.
type Gateway interface {
	PreCreate(ctx context.Context, req alipay.PreCreateRequest) (*alipay.PreCreateResponse, error)
	VerifyNotification(values url.Values) error
	AppID() string
	IsSandbox() bool
}

// ClientFactory builds a gateway for one resolved configuration.
type ClientFactory func(cfg alipay.Config) (Gateway, error)

var ErrGatewayUnavailable = apperror.BadRequest("支付宝配置不完整")

type snapshot struct {
	gateway Gateway
	source  string
	version string
}

// RefreshResult describes the configuration in effect after a refresh.
type RefreshResult struct {
	Source  string `json:"source"`
	Version string `json:"version"`
	Changed bool   `json:"changed"`
}

// Provider hands out the current gateway client. Clients are never mutated;
// a configuration change swaps in a new one.
type Provider struct {
	settings repository.PaymentSettingsRepository
	envCfg   alipay.Config
	factory  ClientFactory

	current atomic.Pointer[snapshot]
	mu      sync.Mutex
}

func NewProvider(settings repository.PaymentSettingsRepository, envCfg alipay.Config, factory ClientFactory) *Provider {
	if factory == nil {
		factory = func(cfg alipay.Config) (Gateway, error) {
			c, err := alipay.NewClient(cfg)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	return &Provider{settings: settings, envCfg: envCfg, factory: factory}
}

// Current returns the active gateway. When none has been built yet a single
// refresh is attempted first.
func (p *Provider) Current(ctx context.Context) (Gateway, error) {
	if snap := p.current.Load(); snap != nil {
		return snap.gateway, nil
	}
	if _, err := p.Refresh(ctx); err != nil {
		log.Warnf("[Payment] gateway refresh failed: %v", err)
	}
	if snap := p.current.Load(); snap != nil {
		return snap.gateway, nil
	}
	return nil, ErrGatewayUnavailable
}

// Refresh re-reads the settings row and swaps the client when the resolved
// configuration changed. A configuration that cannot build a client leaves
// the previous client in place.
func (p *Provider) Refresh(ctx context.Context) (RefreshResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	row, err := p.settings.Get(ctx)
	if err != nil {
		return RefreshResult{}, apperror.Internal("读取支付配置失败", err)
	}
	resolved := ResolveConfig(p.envCfg, row)

	if cur := p.current.Load(); cur != nil && cur.version == resolved.Version {
		return RefreshResult{Source: cur.source, Version: cur.version}, nil
	}

	gw, err := p.factory(resolved.Config)
	if err != nil {
		return RefreshResult{}, ErrGatewayUnavailable.Wrap(err)
	}
	p.current.Store(&snapshot{gateway: gw, source: resolved.Source, version: resolved.Version})
	log.Infof("[Payment] alipay client loaded from %s (version %s, sandbox=%t)", resolved.Source, resolved.Version, resolved.Config.Sandbox)
	return RefreshResult{Source: resolved.Source, Version: resolved.Version, Changed: true}, nil
}

// Info reports the active configuration without building anything.
func (p *Provider) Info() (source, version string, ok bool) {
	snap := p.current.Load()
	if snap == nil {
		return "", "", false
	}
	return snap.source, snap.version, true
}
