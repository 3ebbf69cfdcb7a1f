package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/conea/internal/desktop"
	"github.com/dukerupert/conea/internal/model"
	"github.com/dukerupert/conea/internal/store"
)

// PermissionKey is the local storage key holding the permission last
// reported by the browser.
const PermissionKey = "conea_desktop_permission"

// Subscriptions is the part of store.PushStore the platform needs.
type Subscriptions interface {
	List() ([]model.PushSubscription, error)
	Count() (int, error)
	DeleteByEndpoint(endpoint string) error
}

// Platform shows desktop alerts as web push messages on every registered
// browser.
type Platform struct {
	svc       *Service
	subs      Subscriptions
	kv        store.Storage
	logger    *slog.Logger
	onRequest func(ctx context.Context)
}

// NewPlatform builds a Platform. onRequest runs when a permission prompt is
// requested; it should ask connected browsers to show one.
func NewPlatform(svc *Service, subs Subscriptions, kv store.Storage, logger *slog.Logger, onRequest func(ctx context.Context)) *Platform {
	return &Platform{
		svc:       svc,
		subs:      subs,
		kv:        kv,
		logger:    logger,
		onRequest: onRequest,
	}
}

var _ desktop.Platform = (*Platform)(nil)

func (p *Platform) Supported() bool {
	return p.svc.Configured()
}

// Permission is denied when the browser reported a denial, granted while at
// least one browser is subscribed, and default otherwise.
func (p *Platform) Permission() desktop.Permission {
	stored, err := p.kv.Get(PermissionKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		p.logger.Error("read desktop permission", "error", err)
	}
	if desktop.Permission(stored) == desktop.PermissionDenied {
		return desktop.PermissionDenied
	}

	n, err := p.subs.Count()
	if err != nil {
		p.logger.Error("count push subscriptions", "error", err)
		return desktop.PermissionDefault
	}
	if n > 0 {
		return desktop.PermissionGranted
	}
	return desktop.PermissionDefault
}

// SetPermission records the permission a browser reported.
func (p *Platform) SetPermission(perm desktop.Permission) error {
	if !perm.Valid() {
		return fmt.Errorf("unknown permission %q", perm)
	}
	if err := p.kv.Set(PermissionKey, string(perm)); err != nil {
		return fmt.Errorf("save desktop permission: %w", err)
	}
	return nil
}

func (p *Platform) RequestPermission(ctx context.Context) error {
	if !p.Supported() {
		return desktop.ErrUnsupported
	}
	if p.onRequest != nil {
		p.onRequest(ctx)
	}
	return nil
}

// Show pushes the alert to every subscription. Expired subscriptions are
// removed; other failures are joined into the returned error.
func (p *Platform) Show(ctx context.Context, a desktop.Alert) error {
	if !p.Supported() {
		return desktop.ErrUnsupported
	}
	subs, err := p.subs.List()
	if err != nil {
		return fmt.Errorf("list push subscriptions: %w", err)
	}

	payload := Payload{
		NotificationID: a.NotificationID,
		Title:          a.Title,
		Body:           a.Body,
		URL:            a.URL,
		Tag:            a.Tag,
		Duration:       a.Duration.Milliseconds(),
	}

	var errs []error
	for _, sub := range subs {
		err := p.svc.Send(ctx, sub, payload)
		if errors.Is(err, ErrExpired) {
			p.logger.Info("removing expired push subscription", "id", sub.ID)
			if err := p.subs.DeleteByEndpoint(sub.Endpoint); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("subscription %d: %w", sub.ID, err))
		}
	}
	return errors.Join(errs...)
}
