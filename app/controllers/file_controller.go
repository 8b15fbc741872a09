package controllers

import (
	"strconv"
	"strings"

	"github.com/aifans/aifans/internal/pkg/apperror"
	"github.com/aifans/aifans/internal/pkg/storage"
	"github.com/aifans/aifans/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

type FileController struct {
	storage *storage.Service
}

func NewFileController(s *storage.Service) *FileController {
	return &FileController{storage: s}
}

func (fc *FileController) HandleUpload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return apperror.BadRequest("请选择要上传的文件")
	}
	if fh.Size > storage.MaxUploadSize {
		return apperror.BadRequest("文件过大")
	}
	f, err := fh.Open()
	if err != nil {
		return apperror.Internal("读取上传文件失败", err)
	}
	defer f.Close()

	file, err := fc.storage.Upload(c.UserContext(), usercontext.GetUserID(c), fh.Filename, f)
	if err != nil {
		return err
	}
	resp := fiber.Map{
		"id":          file.ID,
		"key":         file.Key,
		"url":         "/files/" + file.Key,
		"contentType": file.ContentType,
		"size":        file.Size,
	}
	if file.ThumbnailKey != "" {
		resp["thumbnailUrl"] = "/files/" + file.ThumbnailKey
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// HandleServe streams /files/<key> to its uploader or an admin. Keys contain
// slashes, so the route uses a wildcard.
func (fc *FileController) HandleServe(c *fiber.Ctx) error {
	key := strings.TrimPrefix(c.Params("*"), "/")
	if key == "" {
		return apperror.NotFound("文件不存在")
	}
	rc, file, err := fc.storage.OpenAs(c.UserContext(), key, usercontext.GetUserID(c), usercontext.IsAdmin(c))
	if err != nil {
		return err
	}

	contentType := file.ContentType
	if key == file.ThumbnailKey {
		contentType = "image/jpeg"
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, "private, max-age=86400")
	// fasthttp closes the stream once the body is written.
	return c.SendStream(rc)
}

func (fc *FileController) HandleMigrateToOSS(c *fiber.Ctx) error {
	deleteLocal, _ := strconv.ParseBool(c.Query("deleteLocal", "false"))
	report, err := fc.storage.MigrateToOSS(c.UserContext(), storage.MigrateOptions{
		BatchSize:   c.QueryInt("batchSize", 0),
		DeleteLocal: deleteLocal,
	})
	if err != nil && report == nil {
		return err
	}
	if err != nil {
		log.Warnf("[Admin] OSS migration interrupted: %v", err)
	}
	return c.JSON(report)
}
