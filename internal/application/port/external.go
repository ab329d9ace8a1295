package port

import (
	"context"
	"io"

	"github.com/garyjia/hr-requests/internal/domain/entity"
)

// NotificationPublisher hands a notification to the external delivery transport
type NotificationPublisher interface {
	Publish(ctx context.Context, n *entity.Notification) error
}

// RequestExporter renders requests into a spreadsheet
type RequestExporter interface {
	Export(ctx context.Context, w io.Writer, requests []*entity.Request) error
	ContentType() string
	FileExtension() string
}
