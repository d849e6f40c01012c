package confluence

import "context"

// API is the only contract the core depends on (spec §6). The
// orchestrator, restricted-page handler and macro discovery code all
// program against this interface, never against the concrete client,
// so tests substitute a fake.
type API interface {
	GetPageWithBody(ctx context.Context, id string) (*Page, error)
	GetChildPages(ctx context.Context, id string, cursor Cursor) ([]ChildPage, Cursor, error)
	ListAttachments(ctx context.Context, id string, cursor Cursor) ([]Attachment, Cursor, error)
	DownloadAttachment(ctx context.Context, url string) ([]byte, error)
	GetUser(ctx context.Context, userKey string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	SearchPages(ctx context.Context, cql string, pageSize int) ([]Page, error)
}
