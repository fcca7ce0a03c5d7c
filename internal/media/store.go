// Package media stores report photos next to the detail records and hands
// them to publishers.
package media

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"civicrelay/internal/constants"
	apperrors "civicrelay/internal/errors"
	"civicrelay/internal/models"
	"civicrelay/internal/storage"
	pkgconstants "civicrelay/pkg/constants"
	"civicrelay/pkg/publisher"

	"github.com/sirupsen/logrus"
)

type Store struct {
	store    storage.Store
	layout   storage.Layout
	maxBytes int64
	logger   *logrus.Logger
}

// New creates an image store. maxBytes <= 0 uses the default image limit.
func New(store storage.Store, tenantKey string, maxBytes int64, logger *logrus.Logger) *Store {
	if maxBytes <= 0 {
		maxBytes = pkgconstants.DefaultMaxImageSizeMB * pkgconstants.BytesPerMegabyte
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{
		store:    store,
		layout:   storage.NewLayout(tenantKey),
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Extension maps the declared MIME type to the stored file extension.
func Extension(mimeType string) string {
	return constants.ImageExtensions[strings.ToLower(mimeType)]
}

// MimeType resolves the MIME type of a stored image from its name, falling
// back to sniffing the content.
func MimeType(name string, data []byte) string {
	if mt, ok := constants.MimeTypes[strings.ToLower(path.Ext(name))]; ok {
		return mt
	}
	if len(data) > pkgconstants.MimeDetectionBufferSize {
		data = data[:pkgconstants.MimeDetectionBufferSize]
	}
	return http.DetectContentType(data)
}

// IsImage reports whether the file name carries an allowed image extension.
func IsImage(name string) bool {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	for _, allowed := range pkgconstants.DefaultImageTypes {
		if ext == allowed {
			return true
		}
	}
	return false
}

// Save stores the photo of e as images/<id>-<imageId><ext> and returns the key.
func (s *Store) Save(ctx context.Context, e *models.Entity, data []byte) (string, error) {
	if e.Image == nil {
		return "", apperrors.NewMediaError("save", "", fmt.Errorf("entity %s has no image", e.ID))
	}
	if err := s.validate(e.Image.ID, data); err != nil {
		return "", err
	}

	key := s.layout.Image(e.ID.String(), e.Image.ID, Extension(e.Image.MimeType))
	if err := s.store.Write(ctx, key, data); err != nil {
		return "", apperrors.NewStorageError("write", key, err)
	}

	s.logger.WithFields(logrus.Fields{
		"entity_id": e.ID,
		"media_id":  e.Image.ID,
		"key":       key,
		"size":      len(data),
	}).Debug("Image saved")
	return key, nil
}

// Load returns the stored photo of e ready for upload. ok is false when the
// entity has no image or it was never stored.
func (s *Store) Load(ctx context.Context, e *models.Entity) (media *publisher.Media, ok bool, err error) {
	if e.Image == nil {
		return nil, false, nil
	}

	prefix := s.layout.Image(e.ID.String(), e.Image.ID, "")
	keys, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, false, apperrors.NewStorageError("list", prefix, err)
	}
	want := storage.Base(prefix)
	for _, key := range keys {
		name := storage.Base(key)
		if name != want && strings.TrimSuffix(name, path.Ext(name)) != want {
			continue
		}
		data, err := s.store.Read(ctx, key)
		if err != nil {
			return nil, false, apperrors.NewStorageError("read", key, err)
		}
		mimeType := e.Image.MimeType
		if mimeType == "" {
			mimeType = MimeType(name, data)
		}
		return &publisher.Media{Name: name, MimeType: mimeType, Data: data}, true, nil
	}
	return nil, false, nil
}

func (s *Store) validate(mediaID string, data []byte) error {
	if len(data) == 0 {
		return apperrors.NewMediaError("validate", mediaID, fmt.Errorf("empty image"))
	}
	if int64(len(data)) > s.maxBytes {
		return apperrors.NewMediaError("validate", mediaID,
			fmt.Errorf("image of %d bytes exceeds limit of %d", len(data), s.maxBytes))
	}
	sniffed := MimeType("", data)
	if !strings.HasPrefix(sniffed, "image/") {
		return apperrors.NewMediaError("validate", mediaID,
			fmt.Errorf("content is %s, not an image", sniffed))
	}
	return nil
}
