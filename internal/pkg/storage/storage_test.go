package storage

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aifans/aifans/app/models"
	"github.com/aifans/aifans/app/repository"
	"github.com/aifans/aifans/internal/pkg/apperror"
	"github.com/aifans/aifans/internal/pkg/testutil"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBackend stands in for OSS.
type memBackend struct {
	mu      sync.Mutex
	objects map[string][]byte
	failKey string
}

func newMemBackend() *memBackend { return &memBackend{objects: map[string][]byte{}} }

func (m *memBackend) Name() string { return models.STORAGE_BACKEND_OSS }

func (m *memBackend) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if key == m.failKey {
		return errors.New("put refused")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return nil
}

func (m *memBackend) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func readAll(t *testing.T, rc io.ReadCloser) []byte {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func newTestService(t *testing.T) (*Service, *repository.Repositories, *LocalBackend, *memBackend) {
	t.Helper()
	repos := repository.NewRepositories(testutil.NewDB(t))
	local, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	oss := newMemBackend()
	svc, err := NewService(repos.StoredFile, local, oss, models.STORAGE_BACKEND_LOCAL)
	require.NoError(t, err)
	return svc, repos, local, oss
}

func TestLocalBackend(t *testing.T) {
	ctx := context.Background()
	b, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, b.Put(ctx, "2026/10/a.txt", strings.NewReader("hello"), 5, "text/plain"))
	rc, err := b.Get(ctx, "2026/10/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(readAll(t, rc)))

	require.NoError(t, b.Delete(ctx, "2026/10/a.txt"))
	require.NoError(t, b.Delete(ctx, "2026/10/a.txt"))
	_, err = b.Get(ctx, "2026/10/a.txt")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	// Traversal stays inside the root.
	require.NoError(t, b.Put(ctx, "../../escape.txt", strings.NewReader("x"), 1, ""))
	rc, err = b.Get(ctx, "escape.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", string(readAll(t, rc)))

	assert.Error(t, b.Put(ctx, "", strings.NewReader("x"), 1, ""))
}

func TestDetectContentType(t *testing.T) {
	ct, err := DetectContentType("photo.PNG", pngBytes(t, 4, 4))
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)

	_, err = DetectContentType("page.png", []byte("<html><body>hi</body></html>"))
	assert.Error(t, err)

	_, err = DetectContentType("script.sh", []byte("#!/bin/sh"))
	assert.Error(t, err)
}

func TestUploadImageWithThumbnail(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	data := pngBytes(t, 800, 400)
	f, err := svc.Upload(ctx, 7, "cover.png", bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, models.STORAGE_BACKEND_LOCAL, f.Backend)
	assert.Equal(t, "image/png", f.ContentType)
	assert.EqualValues(t, len(data), f.Size)
	assert.True(t, strings.HasSuffix(f.Key, ".png"))
	require.NotEmpty(t, f.ThumbnailKey)

	rc, row, err := svc.Open(ctx, f.Key)
	require.NoError(t, err)
	assert.Equal(t, data, readAll(t, rc))
	assert.Equal(t, f.ID, row.ID)

	rc, _, err = svc.Open(ctx, f.ThumbnailKey)
	require.NoError(t, err)
	thumb, err := imaging.Decode(bytes.NewReader(readAll(t, rc)))
	require.NoError(t, err)
	assert.Equal(t, thumbnailWidth, thumb.Bounds().Dx())
	assert.Equal(t, 160, thumb.Bounds().Dy())
}

func TestUploadRejections(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	_, err := svc.Upload(ctx, 1, "empty.png", bytes.NewReader(nil))
	assert.True(t, apperror.Is(err, apperror.KindBadRequest))

	_, err = svc.Upload(ctx, 1, "notes.txt", strings.NewReader("plain text"))
	assert.True(t, apperror.Is(err, apperror.KindBadRequest))

	_, _, err = svc.Open(ctx, "2026/01/missing.png")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestOpenAsOwnership(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	f, err := svc.Upload(ctx, 7, "cover.png", bytes.NewReader(pngBytes(t, 64, 64)))
	require.NoError(t, err)

	rc, _, err := svc.OpenAs(ctx, f.Key, 7, false)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	rc, _, err = svc.OpenAs(ctx, f.ThumbnailKey, 8, true)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	_, _, err = svc.OpenAs(ctx, f.Key, 8, false)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
	_, _, err = svc.OpenAs(ctx, f.ThumbnailKey, 8, false)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestMigrateToOSS(t *testing.T) {
	ctx := context.Background()
	svc, repos, local, oss := newTestService(t)

	var uploaded []*models.StoredFile
	for i := 0; i < 3; i++ {
		f, err := svc.Upload(ctx, 1, "img.png", bytes.NewReader(pngBytes(t, 10+i, 10)))
		require.NoError(t, err)
		uploaded = append(uploaded, f)
	}
	oss.failKey = uploaded[1].Key

	report, err := svc.MigrateToOSS(ctx, MigrateOptions{BatchSize: 2, DeleteLocal: true})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Migrated)
	assert.Equal(t, 1, report.Failed)

	row, err := repos.StoredFile.GetByKey(ctx, uploaded[0].Key)
	require.NoError(t, err)
	assert.Equal(t, models.STORAGE_BACKEND_OSS, row.Backend)
	_, err = local.Get(ctx, uploaded[0].Key)
	assert.ErrorIs(t, err, ErrObjectNotFound)

	rc, _, err := svc.Open(ctx, uploaded[0].Key)
	require.NoError(t, err)
	assert.NotEmpty(t, readAll(t, rc))

	// The failed file stays local and is picked up by the next run.
	row, err = repos.StoredFile.GetByKey(ctx, uploaded[1].Key)
	require.NoError(t, err)
	assert.Equal(t, models.STORAGE_BACKEND_LOCAL, row.Backend)

	oss.failKey = ""
	report, err = svc.MigrateToOSS(ctx, MigrateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Migrated)
	assert.Zero(t, report.Failed)
}

func TestNewServiceDriver(t *testing.T) {
	repos := repository.NewRepositories(testutil.NewDB(t))
	local, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)

	_, err = NewService(repos.StoredFile, local, nil, models.STORAGE_BACKEND_OSS)
	assert.Error(t, err)
	_, err = NewService(repos.StoredFile, local, nil, "ftp")
	assert.Error(t, err)

	svc, err := NewService(repos.StoredFile, local, nil, "")
	require.NoError(t, err)
	_, err = svc.MigrateToOSS(context.Background(), MigrateOptions{})
	assert.True(t, apperror.Is(err, apperror.KindBadRequest))
}
