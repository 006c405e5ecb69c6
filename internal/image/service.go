package image

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/radif/imagestore/internal/storage"
)

// Service contains the image lifecycle logic. It keeps no state between
// calls; the storage backend is the only shared resource.
type Service struct {
	store   storage.Storage
	variant Variant
	log     *slog.Logger
}

// NewService creates a new image Service.
func NewService(store storage.Storage, variant Variant, log *slog.Logger) *Service {
	return &Service{store: store, variant: variant, log: log}
}

// Variant returns the backend variant the service was built for.
func (s *Service) Variant() Variant {
	return s.variant
}

// Create stores up under a new unique name.
func (s *Service) Create(ctx context.Context, up Upload) (*Image, error) {
	if up.Body == nil {
		return nil, ErrNoFile
	}

	obj, err := s.store.Save(ctx, storage.File{
		Name:        up.Name,
		Body:        up.Body,
		Size:        up.Size,
		ContentType: up.ContentType,
	})
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	s.log.Info("image stored", "backend", s.variant.Name, "url", obj.URL, "id", obj.ID, "size", up.Size)
	return &Image{URL: obj.URL, PublicID: obj.ID}, nil
}

// Replace stores up and removes the image referenced by oldRef. An empty
// oldRef makes it a plain Create. Removing the old image is best-effort:
// its failure is logged and never fails the call.
func (s *Service) Replace(ctx context.Context, up Upload, oldRef string) (*Image, error) {
	if up.Body == nil {
		return nil, ErrNoFile
	}
	oldRef = strings.TrimSpace(oldRef)

	if s.variant.CleanupFirst && oldRef != "" {
		s.removeOld(ctx, oldRef)
	}

	img, err := s.Create(ctx, up)
	if err != nil {
		return nil, err
	}

	if !s.variant.CleanupFirst && oldRef != "" && oldRef != img.PublicID {
		s.removeOld(ctx, oldRef)
	}
	return img, nil
}

// Delete removes the image referenced by ref.
func (s *Service) Delete(ctx context.Context, ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ErrNoReference
	}
	if err := s.store.Delete(ctx, ref); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	s.log.Info("image deleted", "backend", s.variant.Name, "ref", ref)
	return nil
}

// IsNotFound returns true when the error indicates the image does not exist.
func (s *Service) IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

// removeOld deletes a superseded image, detached from request cancellation.
func (s *Service) removeOld(ctx context.Context, ref string) {
	err := s.store.Delete(context.WithoutCancel(ctx), ref)
	switch {
	case err == nil:
		s.log.Info("superseded image removed", "backend", s.variant.Name, "ref", ref)
	case errors.Is(err, storage.ErrNotFound):
		s.log.Debug("superseded image already gone", "backend", s.variant.Name, "ref", ref)
	default:
		s.log.Warn("failed to remove superseded image", "backend", s.variant.Name, "ref", ref, "err", err)
	}
}
