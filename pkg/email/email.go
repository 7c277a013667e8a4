package email

import (
	"context"
	"errors"
	"regexp"
)

var (
	ErrFailedToSend  = errors.New("email: failed to send")
	ErrInvalidConfig = errors.New("email: invalid config")
	ErrInvalidParams = errors.New("email: invalid send params")
)

var addressRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, params SendParams) error
}

// SendParams describes one outbound message.
type SendParams struct {
	To       string
	Subject  string
	BodyHTML string
	Tag      string // provider-side categorization, optional
}

// Validate checks the params before handing them to a provider.
func (p SendParams) Validate() error {
	if !addressRegex.MatchString(p.To) {
		return errors.Join(ErrInvalidParams, errors.New("invalid recipient address"))
	}
	if p.Subject == "" {
		return errors.Join(ErrInvalidParams, errors.New("subject is required"))
	}
	if p.BodyHTML == "" {
		return errors.Join(ErrInvalidParams, errors.New("body is required"))
	}
	return nil
}

// Config holds sender identity and Postmark credentials. The tokens are
// optional so development environments can run on the log sender.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL,required"`
	SupportEmail         string `env:"SUPPORT_EMAIL,required"`
}
