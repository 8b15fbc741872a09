package membership

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/aifans/aifans/app/models"
	"github.com/aifans/aifans/app/repository"
	"github.com/aifans/aifans/internal/pkg/apperror"
	"github.com/aifans/aifans/internal/pkg/metrics/counter"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

const (
	codeAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxIssueAttempts = 10
	maxBatchSize     = 500
	maxCodeDays      = 3650
)

var (
	ErrCodeInvalid  = apperror.BadRequest("兑换码无效")
	ErrCodeUsed     = apperror.BadRequest("兑换码已被使用")
	ErrLifetimeUser = apperror.BadRequest("终身会员无需兑换")
)

// GenerateCode returns a random uppercase alphanumeric code.
func GenerateCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, models.REDEMPTION_CODE_LENGTH)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// NormalizeCode uppercases and validates the code shape.
func NormalizeCode(code string) (string, bool) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if len(c) != models.REDEMPTION_CODE_LENGTH {
		return "", false
	}
	for i := 0; i < len(c); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(c[i])) {
			return "", false
		}
	}
	return c, true
}

type CodeService struct {
	tx      repository.Transactor
	codes   repository.RedemptionCodeRepository
	users   repository.UserRepository
	granter *Granter
	counter counter.Recorder
	now     Clock
	// generate is swapped in tests to force collisions.
	generate func() (string, error)
}

func NewCodeService(repos *repository.Repositories, granter *Granter, rec counter.Recorder, now Clock) *CodeService {
	if now == nil {
		now = utcNow
	}
	if rec == nil {
		rec = counter.Nop{}
	}
	return &CodeService{
		tx:       repos.Tx,
		codes:    repos.RedemptionCode,
		users:    repos.User,
		granter:  granter,
		counter:  rec,
		now:      now,
		generate: GenerateCode,
	}
}

// Issue creates one unused code worth durationDays of premium.
func (s *CodeService) Issue(ctx context.Context, durationDays int) (*models.RedemptionCode, error) {
	if durationDays < 1 || durationDays > maxCodeDays {
		return nil, apperror.BadRequest(fmt.Sprintf("有效天数必须在 1 到 %d 之间", maxCodeDays))
	}

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return nil, apperror.Internal("生成兑换码失败", err)
		}
		exists, err := s.codes.ExistsByCode(ctx, code)
		if err != nil {
			return nil, apperror.Internal("生成兑换码失败", err)
		}
		if exists {
			continue
		}

		rc := &models.RedemptionCode{Code: code, DurationDays: durationDays}
		if err := s.codes.Create(ctx, rc); err != nil {
			// Another issuer won the same value between check and insert.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				continue
			}
			return nil, apperror.Internal("保存兑换码失败", err)
		}
		return rc, nil
	}
	return nil, apperror.Internal("生成兑换码失败", fmt.Errorf("no unique code after %d attempts", maxIssueAttempts))
}

// IssueBatch issues count codes. Codes created before a failure are kept and
// returned together with the error.
func (s *CodeService) IssueBatch(ctx context.Context, durationDays, count int) ([]models.RedemptionCode, error) {
	if count < 1 || count > maxBatchSize {
		return nil, apperror.BadRequest(fmt.Sprintf("数量必须在 1 到 %d 之间", maxBatchSize))
	}
	out := make([]models.RedemptionCode, 0, count)
	for i := 0; i < count; i++ {
		rc, err := s.Issue(ctx, durationDays)
		if err != nil {
			return out, err
		}
		out = append(out, *rc)
	}
	log.Infof("[Membership] issued %d redemption codes (%d days)", len(out), durationDays)
	return out, nil
}

// RedeemResult is the user's membership after a successful redemption.
type RedeemResult struct {
	Code              string     `json:"code"`
	DurationDays      int        `json:"durationDays"`
	Role              string     `json:"role"`
	PremiumExpiryDate *time.Time `json:"premiumExpiryDate"`
}

// Redeem claims the code and grants its duration in one transaction. The
// claim is a conditional update, so at most one caller wins a code.
func (s *CodeService) Redeem(ctx context.Context, userID uint, rawCode string) (*RedeemResult, error) {
	code, ok := NormalizeCode(rawCode)
	if !ok {
		return nil, ErrCodeInvalid
	}

	var result *RedeemResult
	err := s.tx.Exec(ctx, func(ctx context.Context) error {
		user, err := s.users.GetByIDForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("用户不存在")
			}
			return err
		}
		if user.Role == models.ROLE_LIFETIME {
			return ErrLifetimeUser
		}

		rc, err := s.codes.GetByCode(ctx, code)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCodeInvalid
			}
			return err
		}
		if rc.IsUsed {
			return ErrCodeUsed
		}

		claimed, err := s.codes.Claim(ctx, code, userID, s.now())
		if err != nil {
			return err
		}
		if !claimed {
			return ErrCodeUsed
		}

		updated, err := s.granter.Grant(ctx, userID, models.PRODUCT_TYPE_PREMIUM, rc.DurationDays)
		if err != nil {
			return err
		}
		result = &RedeemResult{
			Code:              code,
			DurationDays:      rc.DurationDays,
			Role:              updated.Role,
			PremiumExpiryDate: updated.PremiumExpiryDate,
		}
		return nil
	})
	if err != nil {
		if _, typed := apperror.As(err); typed {
			return nil, err
		}
		return nil, apperror.Internal("兑换失败", err)
	}

	s.counter.Add(ctx, counter.CodesRedeemed, 1)
	log.Infof("[Membership] user %d redeemed code %s***", userID, code[:4])
	return result, nil
}

// Delete removes an unused code. Used codes are kept as redemption history.
func (s *CodeService) Delete(ctx context.Context, id uint) error {
	rc, err := s.codes.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("兑换码不存在")
		}
		return apperror.Internal("删除兑换码失败", err)
	}
	if rc.IsUsed {
		return apperror.BadRequest("已使用的兑换码不能删除")
	}
	deleted, err := s.codes.DeleteUnused(ctx, id)
	if err != nil {
		return apperror.Internal("删除兑换码失败", err)
	}
	if !deleted {
		return apperror.BadRequest("已使用的兑换码不能删除")
	}
	return nil
}

func (s *CodeService) List(ctx context.Context, filter repository.CodeFilter) ([]models.RedemptionCode, int64, error) {
	codes, total, err := s.codes.List(ctx, filter)
	if err != nil {
		return nil, 0, apperror.Internal("查询兑换码失败", err)
	}
	return codes, total, nil
}
