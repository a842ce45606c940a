package delivery

import (
	"context"
	"crypto/tls"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/schedulo/verify/internal/models"
)

// EmailGateway sends plain-text mail over SMTP. It speaks STARTTLS when the
// server offers it and authenticates only when credentials are configured,
// so it works against both a local MailHog and a real relay.
type EmailGateway struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

func NewEmailGateway(host string, port int, user, pass, from string) *EmailGateway {
	return &EmailGateway{Host: host, Port: port, User: user, Pass: pass, From: from}
}

func (g *EmailGateway) Channel() models.Channel {
	return models.ChannelEmail
}

func (g *EmailGateway) Send(ctx context.Context, destination string, msg Message) error {
	var sb strings.Builder
	sb.WriteString("From: " + g.From + "\r\n")
	sb.WriteString("To: " + destination + "\r\n")
	sb.WriteString("Subject: " + msg.Subject + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(msg.Body)

	dialer := &net.Dialer{Timeout: 5 * time.Second}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	addr := net.JoinHostPort(g.Host, strconv.Itoa(g.Port))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, g.Host)
	if err != nil {
		return err
	}
	defer client.Quit()

	if err := client.Hello("localhost"); err != nil {
		return err
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: g.Host}); err != nil {
			return err
		}
		if err := client.Hello("localhost"); err != nil {
			return err
		}
	}

	if g.User != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", g.User, g.Pass, g.Host)
			if err := client.Auth(auth); err != nil {
				return err
			}
		}
	}

	if err := client.Mail(g.From); err != nil {
		return err
	}
	if err := client.Rcpt(destination); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(sb.String())); err != nil {
		return err
	}
	return w.Close()
}
