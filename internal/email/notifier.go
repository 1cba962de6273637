package email

import (
	"context"
	"fmt"
	"time"

	"github.com/ErlanBelekov/catalog-access/internal/metrics"
)

const loginLinkSubject = "Your login link"

// LinkNotifier renders the login link email and hands it to a Sender.
type LinkNotifier struct {
	sender  Sender
	linkTTL time.Duration
}

func NewLinkNotifier(sender Sender, linkTTL time.Duration) *LinkNotifier {
	return &LinkNotifier{sender: sender, linkTTL: linkTTL}
}

func (n *LinkNotifier) SendLoginLink(ctx context.Context, to, link string) error {
	body := fmt.Sprintf(
		"Click the secure link below to sign in:\n\n%s\n\nThe link expires in %d minutes and can only be used once.\n",
		link, int(n.linkTTL.Minutes()),
	)
	if err := n.sender.Send(ctx, to, loginLinkSubject, body); err != nil {
		metrics.EmailDeliveriesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("send login link: %w", err)
	}
	metrics.EmailDeliveriesTotal.WithLabelValues("ok").Inc()
	return nil
}
