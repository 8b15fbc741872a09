package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/aifans/aifans/app/models"
	"github.com/aifans/aifans/app/repository"
	"github.com/aifans/aifans/internal/pkg/apperror"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MaxUploadSize    = 20 << 20
	defaultBatchSize = 100
)

type Service struct {
	files  repository.StoredFileRepository
	local  Backend
	oss    Backend
	active Backend
	now    func() time.Time
}

// NewService writes new uploads to the backend named by driver. oss may be
// nil when no OSS bucket is configured.
func NewService(files repository.StoredFileRepository, local, oss Backend, driver string) (*Service, error) {
	s := &Service{files: files, local: local, oss: oss, now: time.Now}
	switch driver {
	case "", models.STORAGE_BACKEND_LOCAL:
		s.active = local
	case models.STORAGE_BACKEND_OSS:
		if oss == nil {
			return nil, errors.New("storage: STORAGE_DRIVER=oss but OSS is not configured")
		}
		s.active = oss
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
	return s, nil
}

func (s *Service) backend(name string) (Backend, error) {
	switch name {
	case models.STORAGE_BACKEND_LOCAL:
		return s.local, nil
	case models.STORAGE_BACKEND_OSS:
		if s.oss != nil {
			return s.oss, nil
		}
	}
	return nil, fmt.Errorf("storage: backend %q not available", name)
}

func (s *Service) newKey(ext string) string {
	t := s.now().UTC()
	return fmt.Sprintf("%04d/%02d/%s%s", t.Year(), int(t.Month()), uuid.NewString(), ext)
}

// Upload stores the file on the active backend and records it. Images also
// get a JPEG thumbnail next to the original.
func (s *Service) Upload(ctx context.Context, userID uint, filename string, r io.Reader) (*models.StoredFile, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, apperror.Internal("读取上传文件失败", err)
	}
	if len(data) == 0 {
		return nil, apperror.BadRequest("文件为空")
	}
	if len(data) > MaxUploadSize {
		return nil, apperror.BadRequest("文件过大")
	}

	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	contentType, err := DetectContentType(filename, head)
	if err != nil {
		return nil, apperror.BadRequest(err.Error())
	}

	ext := strings.ToLower(filepath.Ext(filename))
	file := &models.StoredFile{
		UserID:       userID,
		Key:          s.newKey(ext),
		OriginalName: filepath.Base(filename),
		ContentType:  contentType,
		Size:         int64(len(data)),
		Backend:      s.active.Name(),
	}

	if err := s.active.Put(ctx, file.Key, bytes.NewReader(data), file.Size, contentType); err != nil {
		return nil, apperror.Internal("保存文件失败", err)
	}

	if thumbnailable[contentType] {
		if thumb, err := makeThumbnail(data); err != nil {
			log.Warnf("[Storage] thumbnail for %s failed: %v", file.Key, err)
		} else {
			thumbKey := strings.TrimSuffix(file.Key, ext) + "_thumb.jpg"
			if err := s.active.Put(ctx, thumbKey, bytes.NewReader(thumb), int64(len(thumb)), "image/jpeg"); err != nil {
				log.Warnf("[Storage] storing thumbnail %s failed: %v", thumbKey, err)
			} else {
				file.ThumbnailKey = thumbKey
			}
		}
	}

	if err := s.files.Create(ctx, file); err != nil {
		return nil, apperror.Internal("保存文件记录失败", err)
	}
	log.Infof("[Storage] user %d uploaded %s (%d bytes) to %s", userID, file.Key, file.Size, file.Backend)
	return file, nil
}

// Open streams key (an object or thumbnail key) from the backend its row
// names. The caller closes the reader.
func (s *Service) Open(ctx context.Context, key string) (io.ReadCloser, *models.StoredFile, error) {
	file, err := s.lookup(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	return s.stream(ctx, file, key)
}

// OpenAs is Open restricted to the uploader and admins. Other callers get
// NotFound so keys of foreign files are not confirmed.
func (s *Service) OpenAs(ctx context.Context, key string, userID uint, isAdmin bool) (io.ReadCloser, *models.StoredFile, error) {
	file, err := s.lookup(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if !isAdmin && file.UserID != userID {
		log.Warnf("[Storage] user %d denied access to %s (owner %d)", userID, key, file.UserID)
		return nil, nil, apperror.NotFound("文件不存在")
	}
	return s.stream(ctx, file, key)
}

func (s *Service) lookup(ctx context.Context, key string) (*models.StoredFile, error) {
	file, err := s.files.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("文件不存在")
		}
		return nil, apperror.Internal("查询文件失败", err)
	}
	return file, nil
}

func (s *Service) stream(ctx context.Context, file *models.StoredFile, key string) (io.ReadCloser, *models.StoredFile, error) {
	b, err := s.backend(file.Backend)
	if err != nil {
		return nil, nil, apperror.Internal("文件存储不可用", err)
	}
	rc, err := b.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, nil, apperror.NotFound("文件不存在")
		}
		return nil, nil, apperror.Internal("读取文件失败", err)
	}
	return rc, file, nil
}

type MigrateOptions struct {
	BatchSize   int
	DeleteLocal bool
}

type MigrateReport struct {
	Migrated int      `json:"migrated"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// MigrateToOSS copies every local file to OSS and flips its row. Failed files
// stay local, so running it again picks them up.
func (s *Service) MigrateToOSS(ctx context.Context, opts MigrateOptions) (*MigrateReport, error) {
	if s.oss == nil {
		return nil, apperror.BadRequest("OSS 未配置")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	report := &MigrateReport{}
	var afterID uint
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		files, err := s.files.ListByBackend(ctx, models.STORAGE_BACKEND_LOCAL, afterID, opts.BatchSize)
		if err != nil {
			return report, apperror.Internal("查询文件失败", err)
		}
		if len(files) == 0 {
			break
		}
		for i := range files {
			f := &files[i]
			afterID = f.ID
			if err := s.migrateOne(ctx, f, opts.DeleteLocal); err != nil {
				report.Failed++
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", f.Key, err))
				log.Errorf("[Storage] migrating %s failed: %v", f.Key, err)
				continue
			}
			report.Migrated++
		}
	}
	log.Infof("[Storage] OSS migration finished: %d migrated, %d failed", report.Migrated, report.Failed)
	return report, nil
}

func (s *Service) migrateOne(ctx context.Context, f *models.StoredFile, deleteLocal bool) error {
	keys := []string{f.Key}
	if err := s.copyObject(ctx, f.Key, f.ContentType); err != nil {
		return err
	}
	if f.ThumbnailKey != "" {
		if err := s.copyObject(ctx, f.ThumbnailKey, "image/jpeg"); err != nil {
			return err
		}
		keys = append(keys, f.ThumbnailKey)
	}
	if err := s.files.UpdateBackend(ctx, f.ID, models.STORAGE_BACKEND_OSS); err != nil {
		return err
	}
	if deleteLocal {
		for _, key := range keys {
			if err := s.local.Delete(ctx, key); err != nil {
				log.Warnf("[Storage] could not delete local copy %s: %v", key, err)
			}
		}
	}
	return nil
}

func (s *Service) copyObject(ctx context.Context, key, contentType string) error {
	rc, err := s.local.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	return s.oss.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
}
