package email

import (
	"context"
	"errors"
	"time"
)

// ErrDisabled indica que no hay transporte de correo configurado.
var ErrDisabled = errors.New("email sender disabled")

// Sender entrega códigos de un solo uso fuera de banda.
type Sender interface {
	SendPasscode(ctx context.Context, to string, code string, expiresAt time.Time) error
	Enabled() bool
}

type disabledSender struct{}

// NewDisabledSender devuelve un Sender que siempre falla con ErrDisabled.
func NewDisabledSender() Sender {
	return disabledSender{}
}

func (disabledSender) SendPasscode(context.Context, string, string, time.Time) error {
	return ErrDisabled
}

func (disabledSender) Enabled() bool { return false }
