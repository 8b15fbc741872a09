package payment

import (
	"context"
	"strings"
	"time"

	"github.com/aifans/aifans/app/models"
	"github.com/aifans/aifans/app/repository"
	"github.com/aifans/aifans/internal/pkg/alipay"
	"github.com/aifans/aifans/internal/pkg/apperror"
	"github.com/gofiber/fiber/v2/log"
)

// SettingsView is the admin projection of the settings row. Keys are never
// returned in full.
type SettingsView struct {
	AlipayAppID      string     `json:"alipayAppId"`
	PrivateKeyMasked string     `json:"privateKeyMasked"`
	PublicKeyMasked  string     `json:"publicKeyMasked"`
	GatewayURL       string     `json:"gatewayUrl"`
	NotifyURL        string     `json:"notifyUrl"`
	Sandbox          bool       `json:"sandbox"`
	Complete         bool       `json:"complete"`
	ActiveSource     string     `json:"activeSource,omitempty"`
	ActiveVersion    string     `json:"activeVersion,omitempty"`
	UpdatedAt        *time.Time `json:"updatedAt,omitempty"`
}

// SettingsInput is the admin update payload. An empty key keeps the stored one.
type SettingsInput struct {
	AlipayAppID      string `json:"alipayAppId" validate:"required,max=64"`
	AlipayPrivateKey string `json:"alipayPrivateKey"`
	AlipayPublicKey  string `json:"alipayPublicKey"`
	GatewayURL       string `json:"gatewayUrl" validate:"omitempty,url,max=255"`
	NotifyURL        string `json:"notifyUrl" validate:"omitempty,url,max=255"`
	Sandbox          bool   `json:"sandbox"`
}

type SettingsService struct {
	settings repository.PaymentSettingsRepository
	provider *Provider
}

func NewSettingsService(settings repository.PaymentSettingsRepository, provider *Provider) *SettingsService {
	return &SettingsService{settings: settings, provider: provider}
}

func (s *SettingsService) Get(ctx context.Context) (*SettingsView, error) {
	row, err := s.settings.Get(ctx)
	if err != nil {
		return nil, apperror.Internal("读取支付配置失败", err)
	}
	return s.view(row), nil
}

// Save upserts the settings row and reloads the gateway client.
func (s *SettingsService) Save(ctx context.Context, in SettingsInput) (*SettingsView, error) {
	row, err := s.settings.Get(ctx)
	if err != nil {
		return nil, apperror.Internal("读取支付配置失败", err)
	}
	if row == nil {
		row = &models.PaymentSettings{ID: models.PAYMENT_SETTINGS_ID}
	}

	fields := map[string]string{}
	if key := strings.TrimSpace(in.AlipayPrivateKey); key != "" {
		if _, err := alipay.ParsePrivateKey(key); err != nil {
			fields["alipayPrivateKey"] = "invalid"
		}
		row.AlipayPrivate = key
	}
	if key := strings.TrimSpace(in.AlipayPublicKey); key != "" {
		if _, err := alipay.ParsePublicKey(key); err != nil {
			fields["alipayPublicKey"] = "invalid"
		}
		row.AlipayPublicKey = key
	}
	if len(fields) > 0 {
		return nil, apperror.BadRequest("密钥格式无效").WithFields(fields)
	}

	row.AlipayAppID = strings.TrimSpace(in.AlipayAppID)
	row.GatewayURL = strings.TrimSpace(in.GatewayURL)
	row.NotifyURL = strings.TrimSpace(in.NotifyURL)
	row.Sandbox = in.Sandbox

	if err := s.settings.Save(ctx, row); err != nil {
		return nil, apperror.Internal("保存支付配置失败", err)
	}
	log.Infof("[Payment] payment settings updated (app %s, sandbox=%t)", row.AlipayAppID, row.Sandbox)

	if _, err := s.provider.Refresh(ctx); err != nil {
		log.Warnf("[Payment] settings saved but gateway refresh failed: %v", err)
	}
	return s.view(row), nil
}

func (s *SettingsService) view(row *models.PaymentSettings) *SettingsView {
	v := &SettingsView{}
	if row != nil {
		v.AlipayAppID = row.AlipayAppID
		v.PrivateKeyMasked = maskSecret(row.AlipayPrivate)
		v.PublicKeyMasked = maskSecret(row.AlipayPublicKey)
		v.GatewayURL = row.GatewayURL
		v.NotifyURL = row.NotifyURL
		v.Sandbox = row.Sandbox
		v.Complete = row.IsComplete()
		if !row.UpdatedAt.IsZero() {
			t := row.UpdatedAt
			v.UpdatedAt = &t
		}
	}
	v.ActiveSource, v.ActiveVersion, _ = s.provider.Info()
	return v
}

func maskSecret(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return ""
	case len(s) <= 12:
		return "******"
	default:
		return s[:6] + "******" + s[len(s)-4:]
	}
}
