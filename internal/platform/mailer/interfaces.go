package mailer

import "context"

type Message struct {
	To      []string
	Bcc     []string
	Subject string
	Text    string
	HTML    string
}

type Service interface {
	// Send delivers msg and returns the provider message id when known.
	Send(ctx context.Context, msg Message) (string, error)
}
