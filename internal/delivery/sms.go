package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/schedulo/verify/internal/models"
)

// SMSGateway posts messages to an HTTP SMS provider. The provider API is a
// plain JSON endpoint authenticated with an API key; which vendor sits
// behind it is a deployment concern.
type SMSGateway struct {
	Endpoint string
	APIKey   string
	Sender   string
	Client   *http.Client
}

func NewSMSGateway(endpoint, apiKey, sender string) *SMSGateway {
	return &SMSGateway{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Sender:   sender,
		Client:   &http.Client{},
	}
}

func (g *SMSGateway) Channel() models.Channel {
	return models.ChannelSMS
}

func (g *SMSGateway) Send(ctx context.Context, destination string, msg Message) error {
	if g.Endpoint == "" {
		return fmt.Errorf("sms gateway not configured")
	}

	payload, err := json.Marshal(map[string]string{
		"to":      destination,
		"from":    g.Sender,
		"message": msg.Body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", g.APIKey)

	resp, err := g.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms provider returned status %d", resp.StatusCode)
	}
	return nil
}
