package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"slotbook/backend/internal/googleauth"
)

type GmailConfig struct {
	ClientID     string
	ClientSecret string
	TokenFile    string
	// From is used when a message carries no sender of its own. Gmail rewrites it to the
	// authorized account unless it is a verified send-as alias.
	From string
}

// GmailMailer sends mail as the authorized Google account through the Gmail API.
type GmailMailer struct {
	svc  *gmail.Service
	from string
	now  func() time.Time
}

func NewGmailMailer(ctx context.Context, cfg GmailConfig) (*GmailMailer, error) {
	client, err := googleauth.HTTPClient(ctx, googleauth.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenFile:    cfg.TokenFile,
	}, gmail.GmailSendScope)
	if err != nil {
		return nil, err
	}
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return NewGmailMailerWithService(svc, cfg.From), nil
}

func NewGmailMailerWithService(svc *gmail.Service, from string) *GmailMailer {
	return &GmailMailer{svc: svc, from: from, now: time.Now}
}

func (m *GmailMailer) Send(ctx context.Context, msg Message) error {
	from, err := addresses(msg, m.from)
	if err != nil {
		return err
	}
	raw := base64.URLEncoding.EncodeToString(compose(from, msg, m.now()))
	if _, err := m.svc.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gmail send: %w", err)
	}
	return nil
}
