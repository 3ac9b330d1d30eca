package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Meetings
	CreateMeeting(ctx context.Context, m *Meeting) error
	GetMeeting(ctx context.Context, id int64) (*Meeting, error)
	GetMeetingByCalendarEventID(ctx context.Context, userID int64, eventID string) (*Meeting, error)
	UpdateMeeting(ctx context.Context, id int64, update MeetingUpdate) error
	ListMeetings(ctx context.Context, filter MeetingFilter) ([]*Meeting, error)

	// Clients
	CreateClient(ctx context.Context, c *Client) error
	GetClient(ctx context.Context, id int64) (*Client, error)
	SearchClientsByName(ctx context.Context, userID int64, name string) ([]*Client, error)

	// Memory
	GetMemory(ctx context.Context, userID int64, key string) (*MemoryEntry, error)
	SetMemory(ctx context.Context, entry *MemoryEntry) error
	DeleteMemory(ctx context.Context, userID int64, key string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
