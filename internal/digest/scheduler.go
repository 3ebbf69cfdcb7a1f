// Package digest mails periodic summaries of unread notifications for
// users who chose daily or weekly email.
package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/conea/internal/model"
	"github.com/dukerupert/conea/internal/store"
)

// LastDigestKey is the local storage key holding the time of the last digest.
const LastDigestKey = "conea_last_digest_at"

// Source is where digests read notifications and settings from.
type Source interface {
	GetNotifications(f model.Filters) []model.Notification
	GetNotificationSettings() model.NotificationSettings
}

// Sender mails a digest.
type Sender interface {
	SendDigest(ctx context.Context, list []model.Notification) error
}

// Scheduler periodically checks whether a digest is due.
type Scheduler struct {
	mu       sync.RWMutex
	source   Source
	sender   Sender
	kv       store.Storage
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates a digest scheduler.
func NewScheduler(source Source, sender Sender, kv store.Storage, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		source:   source,
		sender:   sender,
		kv:       kv,
		logger:   logger,
		interval: 15 * time.Minute,
		now:      time.Now,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func period(f model.EmailFrequency) time.Duration {
	switch f {
	case model.EmailDaily:
		return 24 * time.Hour
	case model.EmailWeekly:
		return 7 * 24 * time.Hour
	}
	return 0
}

func (s *Scheduler) tick(ctx context.Context) {
	settings := s.source.GetNotificationSettings()
	every := period(settings.EmailFrequency)
	if !settings.EmailNotifications || every == 0 {
		return
	}

	now := s.now()
	last, err := s.lastDigest()
	if errors.Is(err, store.ErrNotFound) {
		// First run: start counting from now.
		s.record(now)
		return
	}
	if err != nil {
		s.logger.Error("read last digest time, restarting the period", "error", err)
		s.record(now)
		return
	}
	if now.Sub(last) < every {
		return
	}

	// Candidates are picked by arrival time, not the producer's timestamp.
	unread := false
	var list []model.Notification
	for _, n := range s.source.GetNotifications(model.Filters{Read: &unread}) {
		received := n.Received()
		if !received.After(last) || received.After(now) {
			continue
		}
		if settings.EmailAllowed(n.Category) {
			list = append(list, n)
		}
	}

	if len(list) > 0 {
		if err := s.sender.SendDigest(ctx, list); err != nil {
			s.logger.Error("send digest", "count", len(list), "error", err)
			return
		}
		s.logger.Info("sent digest", "count", len(list), "frequency", settings.EmailFrequency)
	}
	s.record(now)
}

func (s *Scheduler) lastDigest() (time.Time, error) {
	raw, err := s.kv.Get(LastDigestKey)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last digest time: %w", err)
	}
	return t, nil
}

func (s *Scheduler) record(t time.Time) {
	if err := s.kv.Set(LastDigestKey, t.UTC().Format(time.RFC3339Nano)); err != nil {
		s.logger.Error("record digest time", "error", err)
	}
}
