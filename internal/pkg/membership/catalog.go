package membership

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aifans/aifans/app/models"
	"github.com/aifans/aifans/app/repository"
	"github.com/aifans/aifans/internal/pkg/apperror"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	productsCacheKey = "membership:products"
	productsCacheTTL = 10 * time.Minute
)

// JSONCache is the subset of cache.Store the catalog needs.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type CatalogService struct {
	products repository.MembershipProductRepository
	orders   repository.PaymentOrderRepository
	cache    JSONCache
}

// NewCatalogService accepts a nil cache; reads then always hit the database.
func NewCatalogService(repos *repository.Repositories, cache JSONCache) *CatalogService {
	return &CatalogService{products: repos.Product, orders: repos.Order, cache: cache}
}

// ProductInput is the admin create/update payload.
type ProductInput struct {
	Title        string          `json:"title" validate:"required,max=100"`
	Description  string          `json:"description" validate:"max=2000"`
	Price        decimal.Decimal `json:"price"`
	DurationDays int             `json:"durationDays" validate:"gte=0,lte=36500"`
	Type         string          `json:"type" validate:"required,oneof=PREMIUM LIFETIME"`
	IsActive     *bool           `json:"isActive"`
	SortOrder    int             `json:"sortOrder"`
}

func (in ProductInput) check() error {
	if !in.Price.IsPositive() {
		return apperror.BadRequest("价格必须大于 0").WithFields(map[string]string{"price": "gt"})
	}
	if in.Price.Exponent() < -2 {
		return apperror.BadRequest("价格最多两位小数").WithFields(map[string]string{"price": "scale"})
	}
	if in.Type == models.PRODUCT_TYPE_PREMIUM && in.DurationDays < 1 {
		return apperror.BadRequest("高级会员时长至少 1 天").WithFields(map[string]string{"durationDays": "min"})
	}
	return nil
}

// ListProducts returns the public catalog, cached in Redis when available.
func (s *CatalogService) ListProducts(ctx context.Context) ([]models.MembershipProduct, error) {
	if s.cache != nil {
		var cached []models.MembershipProduct
		ok, err := s.cache.GetJSON(ctx, productsCacheKey, &cached)
		if err != nil {
			log.Warnf("[Membership] product cache read failed: %v", err)
		} else if ok {
			return cached, nil
		}
	}

	products, err := s.products.ListActive(ctx)
	if err != nil {
		return nil, apperror.Internal("获取会员产品失败", err)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, productsCacheKey, products, productsCacheTTL); err != nil {
			log.Warnf("[Membership] product cache write failed: %v", err)
		}
	}
	return products, nil
}

func (s *CatalogService) ListAllProducts(ctx context.Context) ([]models.MembershipProduct, error) {
	products, err := s.products.ListAll(ctx)
	if err != nil {
		return nil, apperror.Internal("获取会员产品失败", err)
	}
	return products, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id uint) (*models.MembershipProduct, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("会员产品不存在")
		}
		return nil, apperror.Internal("获取会员产品失败", err)
	}
	return p, nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, in ProductInput) (*models.MembershipProduct, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	p := &models.MembershipProduct{IsActive: true}
	applyProductInput(p, in)
	if err := s.products.Create(ctx, p); err != nil {
		return nil, apperror.Internal("创建会员产品失败", err)
	}
	// gorm skips zero values of columns with a default on insert.
	if in.IsActive != nil && !*in.IsActive {
		p.IsActive = false
		if err := s.products.Update(ctx, p); err != nil {
			return nil, apperror.Internal("创建会员产品失败", err)
		}
	}
	s.invalidate(ctx)
	return p, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, id uint, in ProductInput) (*models.MembershipProduct, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	applyProductInput(p, in)
	if err := s.products.Update(ctx, p); err != nil {
		return nil, apperror.Internal("更新会员产品失败", err)
	}
	s.invalidate(ctx)
	return p, nil
}

// DeleteProduct refuses products that orders still reference; deactivate
// those instead.
func (s *CatalogService) DeleteProduct(ctx context.Context, id uint) error {
	if _, err := s.GetProduct(ctx, id); err != nil {
		return err
	}
	n, err := s.orders.CountByProduct(ctx, id)
	if err != nil {
		return apperror.Internal("删除会员产品失败", err)
	}
	if n > 0 {
		return apperror.BadRequest("该产品已有订单，无法删除，请改为下架")
	}
	if err := s.products.Delete(ctx, id); err != nil {
		return apperror.Internal("删除会员产品失败", err)
	}
	s.invalidate(ctx)
	return nil
}

func (s *CatalogService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, productsCacheKey); err != nil {
		log.Warnf("[Membership] product cache invalidation failed: %v", err)
	}
}

func applyProductInput(p *models.MembershipProduct, in ProductInput) {
	p.Title = strings.TrimSpace(in.Title)
	p.Description = strings.TrimSpace(in.Description)
	p.Price = in.Price
	p.DurationDays = in.DurationDays
	p.Type = in.Type
	p.SortOrder = in.SortOrder
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
}
