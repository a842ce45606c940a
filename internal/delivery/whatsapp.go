package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/schedulo/verify/internal/models"
)

// WhatsAppGateway posts text messages to a WhatsApp Business API endpoint.
type WhatsAppGateway struct {
	Endpoint string
	Token    string
	Client   *http.Client
}

func NewWhatsAppGateway(endpoint, token string) *WhatsAppGateway {
	return &WhatsAppGateway{
		Endpoint: endpoint,
		Token:    token,
		Client:   &http.Client{},
	}
}

func (g *WhatsAppGateway) Channel() models.Channel {
	return models.ChannelWhatsApp
}

func (g *WhatsAppGateway) Send(ctx context.Context, destination string, msg Message) error {
	if g.Endpoint == "" {
		return fmt.Errorf("whatsapp gateway not configured")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                destination,
		"type":              "text",
		"text":              map[string]string{"body": msg.Body},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.Token)

	resp, err := g.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp provider returned status %d", resp.StatusCode)
	}
	return nil
}
