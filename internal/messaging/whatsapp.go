package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultGraphURL = "https://graph.facebook.com"

// WhatsAppClient sends text messages through the WhatsApp Cloud API.
type WhatsAppClient struct {
	baseURL       string
	apiVersion    string
	phoneNumberID string
	token         string
	httpClient    *http.Client
}

type textMessage struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func NewWhatsAppClient(baseURL, apiVersion, phoneNumberID, token string) (*WhatsAppClient, error) {
	if phoneNumberID == "" || token == "" {
		return nil, errors.New("whatsapp: phone number id and token are required")
	}
	if baseURL == "" {
		baseURL = defaultGraphURL
	}
	if apiVersion == "" {
		apiVersion = "v17.0"
	}
	return &WhatsAppClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiVersion:    apiVersion,
		phoneNumberID: phoneNumberID,
		token:         token,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *WhatsAppClient) Name() string { return "whatsapp" }

func (c *WhatsAppClient) Send(ctx context.Context, to, text string) error {
	msg := textMessage{MessagingProduct: "whatsapp", To: to, Type: "text"}
	msg.Text.Body = text
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.apiVersion, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: send to %s: %w", to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var ge graphError
		if json.Unmarshal(body, &ge) == nil && ge.Error.Message != "" {
			return fmt.Errorf("whatsapp: http %d: %s", resp.StatusCode, ge.Error.Message)
		}
		return fmt.Errorf("whatsapp: http %d", resp.StatusCode)
	}
	return nil
}
