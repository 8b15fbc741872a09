package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aifans/aifans/app/controllers"
	"github.com/aifans/aifans/app/models"
	"github.com/aifans/aifans/app/repository"
	"github.com/aifans/aifans/internal/pkg/alipay"
	"github.com/aifans/aifans/internal/pkg/apperror"
	"github.com/aifans/aifans/internal/pkg/membership"
	"github.com/aifans/aifans/internal/pkg/payment"
	"github.com/aifans/aifans/internal/pkg/scheduler"
	"github.com/aifans/aifans/internal/pkg/security"
	"github.com/aifans/aifans/internal/pkg/storage"
	"github.com/aifans/aifans/internal/pkg/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	verifyErr error
}

func (g *stubGateway) PreCreate(_ context.Context, req alipay.PreCreateRequest) (*alipay.PreCreateResponse, error) {
	return &alipay.PreCreateResponse{Code: "10000", OutTradeNo: req.OutTradeNo, QRCode: "https://qr.alipay.com/" + req.OutTradeNo}, nil
}
func (g *stubGateway) VerifyNotification(url.Values) error { return g.verifyErr }
func (g *stubGateway) AppID() string                       { return "2021000000000000" }
func (g *stubGateway) IsSandbox() bool                     { return false }

// heldLocker reports every lock as taken by another process.
type heldLocker struct{}

func (heldLocker) TryLock(context.Context, string, time.Duration) (func(), error) {
	return nil, errors.New("lock already taken")
}

type env struct {
	app     *fiber.App
	repos   *repository.Repositories
	issuer  *security.TokenIssuer
	gateway *stubGateway
	product *models.MembershipProduct
}

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()
	return newEnvWithLocker(t, opts, scheduler.NopLocker{})
}

func newEnvWithLocker(t *testing.T, opts Options, locker scheduler.Locker) *env {
	t.Helper()
	ctx := context.Background()
	repos := repository.NewRepositories(testutil.NewDB(t))

	issuer, err := security.NewTokenIssuer("router-test-secret-value", time.Hour)
	require.NoError(t, err)

	gw := &stubGateway{}
	provider := payment.NewProvider(repos.PaymentSettings, alipay.Config{AppID: gw.AppID()}, func(alipay.Config) (payment.Gateway, error) {
		return gw, nil
	})
	granter := membership.NewGranter(repos.User, nil)

	local, err := storage.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	files, err := storage.NewService(repos.StoredFile, local, nil, models.STORAGE_BACKEND_LOCAL)
	require.NoError(t, err)

	svc := &controllers.Services{
		Users:    repos.User,
		Tokens:   issuer,
		Catalog:  membership.NewCatalogService(repos, nil),
		Codes:    membership.NewCodeService(repos, granter, nil, nil),
		Sweeper:  membership.NewSweeper(repos.User, nil, nil),
		Jobs:     scheduler.New(scheduler.Config{}, locker),
		Payments: payment.NewService(repos, granter, provider, payment.WithMockPayments(opts.MockPayments)),
		Provider: provider,
		Settings: payment.NewSettingsService(repos.PaymentSettings, provider),
		Storage:  files,
	}

	app := fiber.New(fiber.Config{ErrorHandler: apperror.FiberErrorHandler})
	InstallRouter(app, svc, opts)

	product := &models.MembershipProduct{
		Title: "月度会员", Price: decimal.RequireFromString("29.9"), DurationDays: 30,
		Type: models.PRODUCT_TYPE_PREMIUM, IsActive: true,
	}
	require.NoError(t, repos.Product.Create(ctx, product))

	return &env{app: app, repos: repos, issuer: issuer, gateway: gw, product: product}
}

func (e *env) user(t *testing.T, email, role string) (*models.User, string) {
	t.Helper()
	u := &models.User{Name: "tester", Email: email, Password: "x", Role: role, Status: models.STATUS_ACTIVE}
	require.NoError(t, e.repos.User.Create(context.Background(), u))
	token, _, err := e.issuer.Issue(u)
	require.NoError(t, err)
	return u, token
}

func (e *env) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.send(t, req)
}

func (e *env) send(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	e := newEnv(t, Options{})
	status, body := e.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestAuthFlow(t *testing.T) {
	e := newEnv(t, Options{})

	status, body := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Alice", "email": "Alice@Example.com", "password": "correct-horse",
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.NotEmpty(t, body["token"])

	status, body = e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": "correct-horse",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "邮箱已被注册", body["message"])

	status, body = e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Bob", "email": "not-an-email", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["fields"], "email")
	assert.Contains(t, body["fields"], "password")

	status, _ = e.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = e.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, status)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	status, body = e.do(t, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice@example.com", body["email"])
	assert.Equal(t, models.ROLE_NORMAL, body["role"])
	assert.Equal(t, false, body["hasPremiumAccess"])

	status, _ = e.do(t, http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestOrderFlowWithMockPayment(t *testing.T) {
	e := newEnv(t, Options{MockPayments: true})
	_, token := e.user(t, "buyer@example.com", models.ROLE_NORMAL)

	status, body := e.do(t, http.MethodGet, "/membership/products", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["items"], 1)

	status, body = e.do(t, http.MethodPost, "/payments/create-order", token, map[string]any{"productId": e.product.ID})
	require.Equal(t, http.StatusCreated, status, body)
	orderID := uint(body["orderId"].(float64))
	assert.Equal(t, payment.FormatOutTradeNo(orderID), body["outTradeNo"])
	assert.NotEmpty(t, body["qrCode"])

	path := "/payments/order-status/" + jsonNumber(orderID)
	status, body = e.do(t, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.ORDER_STATUS_PENDING, body["status"])

	status, body = e.do(t, http.MethodGet, "/payments/mock-pay?orderId="+jsonNumber(orderID), token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["mock"])

	status, _ = e.do(t, http.MethodPost, "/payments/mock-success", token, map[string]any{"orderId": orderID})
	require.Equal(t, http.StatusOK, status)

	status, body = e.do(t, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.ORDER_STATUS_SUCCESS, body["status"])

	status, body = e.do(t, http.MethodGet, "/membership/status", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.ROLE_PREMIUM, body["role"])
	assert.Equal(t, true, body["hasPremiumAccess"])
	assert.EqualValues(t, 30, body["remainingDays"])

	status, body = e.do(t, http.MethodGet, "/payments/orders", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["items"], 1)

	_, other := e.user(t, "other@example.com", models.ROLE_NORMAL)
	status, _ = e.do(t, http.MethodGet, path, other, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestMockRoutesAbsentWhenDisabled(t *testing.T) {
	e := newEnv(t, Options{})
	_, token := e.user(t, "buyer@example.com", models.ROLE_NORMAL)

	status, _ := e.do(t, http.MethodGet, "/payments/mock-pay?orderId=1", token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = e.do(t, http.MethodPost, "/payments/mock-success", token, map[string]any{"orderId": 1})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAlipayNotifyAlwaysAnswers200(t *testing.T) {
	e := newEnv(t, Options{})
	u, _ := e.user(t, "buyer@example.com", models.ROLE_NORMAL)
	order := &models.PaymentOrder{
		UserID: u.ID, ProductID: e.product.ID, Amount: e.product.Price, Status: models.ORDER_STATUS_PENDING,
	}
	require.NoError(t, e.repos.Order.Create(context.Background(), order))

	form := url.Values{}
	form.Set("app_id", e.gateway.AppID())
	form.Set("out_trade_no", payment.FormatOutTradeNo(order.ID))
	form.Set("trade_no", "2026101422001400000000000001")
	form.Set("trade_status", alipay.TradeStatusSuccess)
	form.Set("total_amount", "29.90")
	form.Set("sign", "c2lnbmF0dXJl")

	post := func(path string) (int, map[string]any) {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return e.send(t, req)
	}

	e.gateway.verifyErr = alipay.ErrInvalidSignature
	status, body := post("/payments/alipay/notify")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "签名验证失败", body["message"])

	e.gateway.verifyErr = nil
	status, body = post("/payments/alipay-notify")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "支付成功", body["message"])

	status, body = post("/payments/alipay/notify")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "订单已处理", body["message"])

	stored, err := e.repos.User.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ROLE_PREMIUM, stored.Role)
}

func TestAdminRoutes(t *testing.T) {
	e := newEnv(t, Options{})
	_, userToken := e.user(t, "user@example.com", models.ROLE_NORMAL)
	_, adminToken := e.user(t, "admin@example.com", models.ROLE_ADMIN)

	status, body := e.do(t, http.MethodGet, "/admin/membership/products", userToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "需要管理员权限", body["message"])

	status, _ = e.do(t, http.MethodPost, "/payments/refresh-alipay-config", userToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = e.do(t, http.MethodPost, "/admin/membership/products", adminToken, map[string]any{
		"title": "终身会员", "price": "199.00", "durationDays": 0, "type": models.PRODUCT_TYPE_LIFETIME,
	})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = e.do(t, http.MethodGet, "/admin/membership/products", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["items"], 2)

	status, body = e.do(t, http.MethodPost, "/admin/membership/codes", adminToken, map[string]any{
		"durationDays": 7, "count": 2,
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.EqualValues(t, 2, body["count"])
	items := body["items"].([]any)
	code := items[0].(map[string]any)["code"].(string)

	status, body = e.do(t, http.MethodPost, "/membership/redeem", userToken, map[string]string{"code": code})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, models.ROLE_PREMIUM, body["role"])

	status, body = e.do(t, http.MethodPost, "/membership/redeem", userToken, map[string]string{"code": code})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "兑换码已被使用", body["message"])

	status, body = e.do(t, http.MethodGet, "/admin/membership/codes?used=true", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["total"])

	status, body = e.do(t, http.MethodGet, "/admin/membership/orders?page=1&limit=10", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["total"])

	status, body = e.do(t, http.MethodGet, "/admin/membership/stats", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "roles")

	status, body = e.do(t, http.MethodPost, "/admin/membership/sweep", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ran"])
	assert.EqualValues(t, 0, body["downgraded"])

	status, _ = e.do(t, http.MethodDelete, "/admin/membership/codes/abc", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func seedExpiredPremium(t *testing.T, e *env, email string) *models.User {
	t.Helper()
	expired := time.Now().UTC().Add(-time.Hour)
	u := &models.User{Name: "lapsed", Email: email, Password: "x", Role: models.ROLE_PREMIUM,
		PremiumExpiryDate: &expired, Status: models.STATUS_ACTIVE}
	require.NoError(t, e.repos.User.Create(context.Background(), u))
	return u
}

func TestAdminSweepDowngradesExpired(t *testing.T) {
	e := newEnv(t, Options{})
	_, adminToken := e.user(t, "admin@example.com", models.ROLE_ADMIN)
	lapsed := seedExpiredPremium(t, e, "lapsed@example.com")

	status, body := e.do(t, http.MethodPost, "/admin/membership/sweep", adminToken, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["ran"])
	assert.EqualValues(t, 1, body["downgraded"])

	got, err := e.repos.User.GetByID(context.Background(), lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ROLE_NORMAL, got.Role)
}

func TestAdminSweepSkipsWhenLockHeld(t *testing.T) {
	e := newEnvWithLocker(t, Options{}, heldLocker{})
	_, adminToken := e.user(t, "admin@example.com", models.ROLE_ADMIN)
	lapsed := seedExpiredPremium(t, e, "lapsed@example.com")

	status, body := e.do(t, http.MethodPost, "/admin/membership/sweep", adminToken, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, false, body["ran"])
	assert.EqualValues(t, 0, body["downgraded"])

	got, err := e.repos.User.GetByID(context.Background(), lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ROLE_PREMIUM, got.Role)
}

func TestFileUploadAndServe(t *testing.T) {
	e := newEnv(t, Options{})
	_, token := e.user(t, "uploader@example.com", models.ROLE_NORMAL)

	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 640, 320))))

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	fw, err := mw.CreateFormFile("file", "cover.png")
	require.NoError(t, err)
	_, err = fw.Write(img.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/files/upload", &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	status, body := e.send(t, req)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "image/png", body["contentType"])
	fileURL := body["url"].(string)
	thumbURL := body["thumbnailUrl"].(string)

	req = httptest.NewRequest(http.MethodGet, fileURL, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	served, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, img.Bytes(), served)

	req = httptest.NewRequest(http.MethodGet, thumbURL, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = e.app.Test(req, -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))

	status, _ = e.do(t, http.MethodGet, "/files/2026/01/missing.png", token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	_, otherToken := e.user(t, "other@example.com", models.ROLE_NORMAL)
	status, body = e.do(t, http.MethodGet, fileURL, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "文件不存在", body["message"])

	_, adminToken := e.user(t, "admin@example.com", models.ROLE_ADMIN)
	req = httptest.NewRequest(http.MethodGet, fileURL, nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err = e.app.Test(req, -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func jsonNumber(id uint) string {
	raw, _ := json.Marshal(id)
	return string(raw)
}
