package clients

import (
	"context"
	"net/http"
	"time"
)

// NotificationClient dispatches messages through the mail service. Delivery
// is best-effort: callers log failures and move on.
type NotificationClient struct {
	serviceClient
}

func NewNotificationClient(baseURL string, timeout time.Duration) *NotificationClient {
	return &NotificationClient{serviceClient: newServiceClient("notification", baseURL, timeout)}
}

type sendMailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (c *NotificationClient) Send(ctx context.Context, customerID int64, to, subject, body string) error {
	return c.do(ctx, http.MethodPost, "/send", customerID, sendMailRequest{To: to, Subject: subject, Body: body}, nil)
}
