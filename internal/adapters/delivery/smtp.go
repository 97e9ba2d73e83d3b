// Package delivery hands outgoing messages to the upstream relay and stores
// unparseable ones for inspection.
package delivery

import (
	"bytes"
	"context"
	"fmt"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"
)

// SMTPDelivery forwards messages to an upstream SMTP relay.
type SMTPDelivery struct {
	addr   string
	logger *zap.Logger
}

// NewSMTP creates a delivery client for the given relay address
// (host:port).
func NewSMTP(addr string, logger *zap.Logger) *SMTPDelivery {
	return &SMTPDelivery{addr: addr, logger: logger}
}

// Deliver sends the raw message to every recipient via the upstream relay.
func (d *SMTPDelivery) Deliver(ctx context.Context, from string, recipients []string, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := smtp.SendMail(d.addr, nil, from, recipients, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("delivery: sending via %s: %w", d.addr, err)
	}
	d.logger.Debug("message handed to upstream relay",
		zap.String("relay", d.addr), zap.Int("recipients", len(recipients)))
	return nil
}
