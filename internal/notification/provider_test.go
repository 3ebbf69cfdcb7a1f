package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/conea/internal/model"
)

func TestProviderMountLoadsState(t *testing.T) {
	svc := newTestService(t, newMemStore(filterFixture()...))
	p := NewProvider(svc, discardLogger())

	assert.Empty(t, p.Notifications(), "nothing mirrored before mount")

	p.Mount()
	defer p.Unmount()

	st := p.State()
	assert.Len(t, st.Notifications, 5)
	assert.Equal(t, 4, st.UnreadCount)
	assert.Equal(t, model.DefaultNotificationSettings(), st.Settings)
}

func TestProviderReloadsOnEvents(t *testing.T) {
	svc := newTestService(t, newMemStore(filterFixture()...))
	p := NewProvider(svc, discardLogger())
	p.Mount()
	defer p.Unmount()

	var changes int
	p.OnChange(func(State) { changes++ })

	n := p.AddNotification(orderInput())
	assert.Len(t, p.Notifications(), 6)
	assert.Equal(t, 5, p.UnreadCount())

	p.MarkAsRead(n.ID)
	assert.Equal(t, 4, p.UnreadCount())

	p.DeleteNotifications([]string{"1", "2"})
	assert.Len(t, p.Notifications(), 4)

	p.MarkAllAsRead()
	assert.Equal(t, 0, p.UnreadCount())

	p.ClearAllNotifications()
	assert.Empty(t, p.Notifications())

	// create, markAsRead, 2 deletes, markAllAsRead, 4 deletes
	assert.Equal(t, 9, changes)
}

func TestProviderSetFiltersReloadsImmediately(t *testing.T) {
	svc := newTestService(t, newMemStore(filterFixture()...))
	p := NewProvider(svc, discardLogger())
	p.Mount()
	defer p.Unmount()

	p.SetFilters(model.Filters{Category: ptr(model.CategoryOrders)})

	list := p.Notifications()
	require.Len(t, list, 3)
	for _, n := range list {
		assert.Equal(t, model.CategoryOrders, n.Category)
	}
	assert.Equal(t, 4, p.UnreadCount(), "unread count ignores filters")
	assert.Equal(t, model.CategoryOrders, *p.Filters().Category)

	// Later reloads keep applying the active filters.
	svc.AddNotification(model.NotificationInput{Type: model.TypeInfo, Title: "x", Category: model.CategoryReports})
	assert.Len(t, p.Notifications(), 3)
}

func TestProviderUnmountStopsUpdates(t *testing.T) {
	svc := newTestService(t, newMemStore())
	p := NewProvider(svc, discardLogger())
	p.Mount()
	p.Unmount()
	p.Unmount()

	svc.AddNotification(orderInput())
	assert.Empty(t, p.Notifications())
	assert.Equal(t, 0, p.UnreadCount())
}

func TestProviderDeliversStatesInOrder(t *testing.T) {
	svc := newTestService(t, newMemStore())
	p := NewProvider(svc, discardLogger())
	p.Mount()
	defer p.Unmount()

	entered := make(chan struct{})
	release := make(chan struct{})
	var (
		mu     sync.Mutex
		counts []int
		first  = true
	)
	p.OnChange(func(st State) {
		mu.Lock()
		block := first
		first = false
		mu.Unlock()
		if block {
			close(entered)
			<-release
		}
		mu.Lock()
		counts = append(counts, st.UnreadCount)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		svc.AddNotification(orderInput())
	}()
	<-entered
	go func() {
		defer wg.Done()
		svc.AddNotification(orderInput())
	}()

	// Give the second reload time to reach delivery before the first
	// hook returns.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, counts)
	assert.Equal(t, p.UnreadCount(), counts[len(counts)-1])
}

func TestProviderUpdateSettings(t *testing.T) {
	svc := newTestService(t, newMemStore())
	p := NewProvider(svc, discardLogger())
	p.Mount()
	defer p.Unmount()

	s := p.Settings()
	s.DesktopNotifications = false
	delete(s.Categories, model.CategoryReports)

	require.NoError(t, p.UpdateSettings(s))

	got := p.Settings()
	assert.False(t, got.DesktopNotifications)
	assert.Equal(t, model.DefaultNotificationSettings().Categories[model.CategoryReports],
		got.Categories[model.CategoryReports], "missing categories are filled in")
	assert.Equal(t, got, svc.GetNotificationSettings())
}

func TestProviderStateIsACopy(t *testing.T) {
	svc := newTestService(t, newMemStore(filterFixture()...))
	p := NewProvider(svc, discardLogger())
	p.Mount()
	defer p.Unmount()

	st := p.State()
	st.Notifications[0].Read = true
	st.Settings.Categories[model.CategoryOrders] = model.CategorySettings{}

	assert.Equal(t, 4, p.UnreadCount())
	assert.True(t, p.Settings().Categories[model.CategoryOrders].Enabled)
	assert.False(t, p.Notifications()[0].Read)
}

func TestMustProvider(t *testing.T) {
	svc := newTestService(t, newMemStore())
	p := NewProvider(svc, discardLogger())

	ctx := WithProvider(context.Background(), p)
	assert.Same(t, p, MustProvider(ctx))

	_, ok := ProviderFrom(context.Background())
	assert.False(t, ok)

	assert.PanicsWithError(t, ErrNoProvider.Error(), func() {
		MustProvider(context.Background())
	})
}
