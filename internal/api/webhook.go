package api

import (
	"encoding/json"
	"strings"

	"github.com/superst1/chatbot-whatsapp-citas/internal/messaging"
)

// ChannelWhatsApp is the channel name inbound webhook messages carry.
const ChannelWhatsApp = "whatsapp"

// Kind classifies a webhook delivery.
type Kind int

const (
	KindMessage Kind = iota
	KindStatus
	KindNoMessage
	KindNoText
)

// envelope is the subset of the WhatsApp Cloud API webhook payload we read.
type envelope struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []waMessage      `json:"messages"`
				Statuses []json.RawMessage `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type waMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
	Button struct {
		Text string `json:"text"`
	} `json:"button"`
	Interactive struct {
		ButtonReply struct {
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply struct {
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

// text returns the user-visible text of a message; quick replies count.
func (m waMessage) text() string {
	for _, s := range []string{m.Text.Body, m.Interactive.ButtonReply.Title, m.Interactive.ListReply.Title, m.Button.Text} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// ParseWebhook decodes the first message of the first change. Only the first
// message is handled, matching how Meta batches user messages one per call.
func ParseWebhook(body []byte) (messaging.Inbound, Kind, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return messaging.Inbound{}, 0, err
	}
	if len(env.Entry) == 0 || len(env.Entry[0].Changes) == 0 {
		return messaging.Inbound{}, KindNoMessage, nil
	}
	value := env.Entry[0].Changes[0].Value
	if len(value.Statuses) > 0 {
		return messaging.Inbound{}, KindStatus, nil
	}
	if len(value.Messages) == 0 {
		return messaging.Inbound{}, KindNoMessage, nil
	}

	msg := value.Messages[0]
	in := messaging.Inbound{
		Channel:     ChannelWhatsApp,
		UserID:      msg.From,
		Text:        msg.text(),
		DisplayName: messaging.DefaultDisplayName,
		MessageID:   msg.ID,
	}
	if len(value.Contacts) > 0 {
		if name := strings.TrimSpace(value.Contacts[0].Profile.Name); name != "" {
			in.DisplayName = name
		}
	}
	if in.Text == "" || in.UserID == "" {
		return in, KindNoText, nil
	}
	return in, KindMessage, nil
}
