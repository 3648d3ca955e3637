package gworkspace

import (
	"context"
	"encoding/base64"

	gmail "google.golang.org/api/gmail/v1"
)

// SendMail delivers an RFC 5322 message as the authorized user.
func (c *Client) SendMail(ctx context.Context, raw []byte) error {
	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	return c.call(ctx, "gmail.send", func(ctx context.Context) error {
		_, err := c.gmail.Users.Messages.Send("me", msg).Context(ctx).Do()
		return err
	})
}
