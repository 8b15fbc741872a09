package payment

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/aifans/aifans/app/models"
	"github.com/aifans/aifans/internal/pkg/alipay"
	"github.com/aifans/aifans/internal/pkg/env"
)

const (
	SourceEnv      = "env"
	SourceDatabase = "database"
)

// ResolvedConfig is one immutable gateway configuration version.
type ResolvedConfig struct {
	Config  alipay.Config
	Source  string
	Version string
}

// EnvConfig reads the fallback gateway credentials from the environment.
func EnvConfig() alipay.Config {
	return alipay.Config{
		AppID:      env.GetEnv("ALIPAY_APP_ID", ""),
		PrivateKey: env.GetEnv("ALIPAY_PRIVATE_KEY", ""),
		PublicKey:  env.GetEnv("ALIPAY_PUBLIC_KEY", ""),
		GatewayURL: env.GetEnv("ALIPAY_GATEWAY_URL", ""),
		NotifyURL:  env.GetEnv("ALIPAY_NOTIFY_URL", defaultNotifyURL()),
		Sandbox:    env.GetEnvBool("ALIPAY_SANDBOX", !env.IsProd()),
	}
}

func defaultNotifyURL() string {
	domain := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	if domain == "" {
		return ""
	}
	return domain + "/payments/alipay/notify"
}

// ResolveConfig picks the database row when it is complete and not in
// sandbox mode, otherwise the environment values. An empty notify URL on the
// row is filled from the environment.
func ResolveConfig(envCfg alipay.Config, row *models.PaymentSettings) ResolvedConfig {
	if row.IsComplete() && !row.Sandbox {
		cfg := alipay.Config{
			AppID:      strings.TrimSpace(row.AlipayAppID),
			PrivateKey: row.AlipayPrivate,
			PublicKey:  row.AlipayPublicKey,
			GatewayURL: strings.TrimSpace(row.GatewayURL),
			NotifyURL:  strings.TrimSpace(row.NotifyURL),
			Sandbox:    false,
		}
		if cfg.NotifyURL == "" {
			cfg.NotifyURL = envCfg.NotifyURL
		}
		return ResolvedConfig{Config: cfg, Source: SourceDatabase, Version: fingerprint(cfg)}
	}
	return ResolvedConfig{Config: envCfg, Source: SourceEnv, Version: fingerprint(envCfg)}
}

func fingerprint(cfg alipay.Config) string {
	sandbox := "0"
	if cfg.Sandbox {
		sandbox = "1"
	}
	h := sha256.New()
	for _, part := range []string{cfg.AppID, cfg.PrivateKey, cfg.PublicKey, cfg.Gateway(), cfg.NotifyURL, sandbox} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
