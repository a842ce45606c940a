package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/schedulo/verify/internal/models"
)

// Message is the rendered text handed to a gateway. Rendering is a pure
// function of the code, purpose and expiry window; it must not embed the
// account's email, phone or name.
type Message struct {
	Subject string
	Body    string
}

// Gateway sends a rendered message to one destination over one channel.
// Implementations are interchangeable; the engine never branches on channel
// beyond picking which gateway to call.
type Gateway interface {
	Channel() models.Channel
	Send(ctx context.Context, destination string, msg Message) error
}

// Sender dispatches to the configured gateway for a channel and bounds every
// send with a timeout so a hanging provider fails the issuance instead of
// blocking it.
type Sender struct {
	gateways map[models.Channel]Gateway
	timeout  time.Duration
}

func NewSender(timeout time.Duration, gateways ...Gateway) *Sender {
	byChannel := make(map[models.Channel]Gateway, len(gateways))
	for _, gw := range gateways {
		byChannel[gw.Channel()] = gw
	}
	return &Sender{gateways: byChannel, timeout: timeout}
}

func (s *Sender) Send(ctx context.Context, channel models.Channel, destination string, msg Message) error {
	gw, ok := s.gateways[channel]
	if !ok {
		return fmt.Errorf("no gateway configured for channel %q", channel)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return gw.Send(ctx, destination, msg)
}

var purposeSubjects = map[models.Purpose]string{
	models.PurposeRegistration:  "Confirm your registration",
	models.PurposeLogin:         "Your sign-in code",
	models.PurposePasswordReset: "Reset your password",
	models.PurposeContactChange: "Confirm your contact change",
}

var purposeLines = map[models.Purpose]string{
	models.PurposeRegistration:  "Use this code to confirm your registration.",
	models.PurposeLogin:         "Use this code to finish signing in.",
	models.PurposePasswordReset: "Use this code to reset your password.",
	models.PurposeContactChange: "Use this code to confirm your new contact details.",
}

// RenderMessage builds the human-readable text for a verification code.
func RenderMessage(code string, purpose models.Purpose, ttl time.Duration) Message {
	subject, ok := purposeSubjects[purpose]
	if !ok {
		subject = "Your verification code"
	}
	line := purposeLines[purpose]

	body := fmt.Sprintf("Your verification code is %s. %s It expires in %d minutes. If you did not request this, ignore this message.",
		code, line, int(ttl.Minutes()))

	return Message{Subject: subject, Body: body}
}
