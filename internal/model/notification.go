package model

import "time"

// Type is the kind of a notification. It only drives iconography and severity.
type Type string

const (
	TypeSuccess   Type = "success"
	TypeError     Type = "error"
	TypeWarning   Type = "warning"
	TypeInfo      Type = "info"
	TypeOrder     Type = "order"
	TypeSales     Type = "sales"
	TypeInventory Type = "inventory"
	TypeSystem    Type = "system"
)

// Types lists every notification type in display order.
var Types = []Type{
	TypeSuccess, TypeError, TypeWarning, TypeInfo,
	TypeOrder, TypeSales, TypeInventory, TypeSystem,
}

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	for _, v := range Types {
		if v == t {
			return true
		}
	}
	return false
}

// Category groups notifications and keys the per-category delivery settings.
type Category string

const (
	CategorySystem    Category = "システム"
	CategoryOrders    Category = "注文"
	CategoryInventory Category = "在庫"
	CategorySales     Category = "売上"
	CategoryCustomers Category = "顧客"
	CategoryReports   Category = "レポート"
)

// Categories lists every category. The settings map always holds all of them.
var Categories = []Category{
	CategorySystem, CategoryOrders, CategoryInventory,
	CategorySales, CategoryCustomers, CategoryReports,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Priority is optional; the zero value means no priority was set.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is a known priority or unset.
func (p Priority) Valid() bool {
	switch p {
	case "", PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rank orders priorities for sorting: high > medium > low > unset.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

type Notification struct {
	ID        string     `json:"id"`
	Type      Type       `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
	Read      bool       `json:"read"`
	ActionURL string     `json:"actionUrl,omitempty"`
	Category  Category   `json:"category"`
	Priority  Priority   `json:"priority,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	// ReceivedAt is when this service stored the record. Timestamp may be
	// set by an upstream producer and can be older.
	ReceivedAt time.Time `json:"receivedAt,omitzero"`
}

// Received is ReceivedAt, or Timestamp for records stored before
// ReceivedAt existed.
func (n Notification) Received() time.Time {
	if n.ReceivedAt.IsZero() {
		return n.Timestamp
	}
	return n.ReceivedAt
}

// Clone returns a copy that shares no pointers with n.
func (n Notification) Clone() Notification {
	if n.ExpiresAt != nil {
		exp := *n.ExpiresAt
		n.ExpiresAt = &exp
	}
	return n
}

// NotificationInput holds the caller-supplied fields of a new notification.
// ID, Timestamp and Read are assigned on creation.
type NotificationInput struct {
	Type      Type       `json:"type" validate:"required,notiftype"`
	Title     string     `json:"title" validate:"required,max=200"`
	Message   string     `json:"message" validate:"max=2000"`
	ActionURL string     `json:"actionUrl,omitempty" validate:"omitempty,max=2048"`
	Category  Category   `json:"category" validate:"required,category"`
	Priority  Priority   `json:"priority,omitempty" validate:"priority"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// DateRange bounds timestamps inclusively. A zero bound is open.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Filters narrows a notification listing. Every non-nil field must match.
type Filters struct {
	Read      *bool      `json:"read,omitempty"`
	Type      *Type      `json:"type,omitempty"`
	Category  *Category  `json:"category,omitempty"`
	Priority  *Priority  `json:"priority,omitempty"`
	DateRange *DateRange `json:"dateRange,omitempty"`
}

type SortField string

const (
	SortByTimestamp SortField = "timestamp"
	SortByPriority  SortField = "priority"
	SortByType      SortField = "type"
)

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

type SortOptions struct {
	Field     SortField     `json:"field"`
	Direction SortDirection `json:"direction"`
}
