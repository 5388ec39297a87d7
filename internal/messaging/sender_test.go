package messaging

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type mockTwilio struct {
	mock.Mock
}

func (m *mockTwilio) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	args := m.Called(params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*twilioApi.ApiV2010Message), args.Error(1)
}

func TestTwilioClient_Send(t *testing.T) {
	api := new(mockTwilio)
	c := &TwilioClient{api: api, fromWhats: whatsappAddress("+15550001111")}

	api.On("CreateMessage", mock.MatchedBy(func(p *twilioApi.CreateMessageParams) bool {
		return *p.To == "whatsapp:+593991234567" && *p.From == "whatsapp:+15550001111" && *p.Body == "Hola"
	})).Return(&twilioApi.ApiV2010Message{}, nil).Once()

	require.NoError(t, c.Send(context.Background(), "+593991234567", "Hola"))
	api.AssertExpectations(t)

	api.On("CreateMessage", mock.Anything).Return(nil, errors.New("denied")).Once()
	assert.Error(t, c.Send(context.Background(), "+593991234567", "Hola"))

	_, err := NewTwilioClient(WithAccountSID("AC1"))
	assert.Error(t, err)
	_, err = NewTwilioClient(WithAccountSID("AC1"), WithAuthToken("t"))
	assert.Error(t, err)
	c2, err := NewTwilioClient(WithAccountSID("AC1"), WithAuthToken("t"), WithFromWhats("whatsapp:+1"))
	require.NoError(t, err)
	assert.Equal(t, "whatsapp:+1", c2.fromWhats)
}

type mockTelegram struct {
	mock.Mock
	updates chan tgbotapi.Update
}

func (m *mockTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func (m *mockTelegram) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updates
}

func (m *mockTelegram) StopReceivingUpdates() {}

func TestTelegram_SendAndPoll(t *testing.T) {
	tg := &mockTelegram{updates: make(chan tgbotapi.Update, 3)}
	logger := zerolog.New(io.Discard)
	bot := NewTelegramWithClient(tg, &logger)

	tg.On("Send", tgbotapi.NewMessage(42, "Hola")).Return(tgbotapi.Message{}, nil).Once()
	require.NoError(t, bot.Send(context.Background(), "42", "Hola"))
	assert.Error(t, bot.Send(context.Background(), "abc", "Hola"))
	tg.AssertExpectations(t)

	tg.updates <- tgbotapi.Update{UpdateID: 1, Message: &tgbotapi.Message{
		Text: "quiero una cita",
		Chat: &tgbotapi.Chat{ID: 42},
		From: &tgbotapi.User{FirstName: "Ana", LastName: "Pérez"},
	}}
	tg.updates <- tgbotapi.Update{UpdateID: 2}
	close(tg.updates)

	var got []Inbound
	bot.Poll(context.Background(), func(in Inbound) { got = append(got, in) })

	require.Len(t, got, 1)
	assert.Equal(t, Inbound{Channel: "telegram", UserID: "42", Text: "quiero una cita", DisplayName: "Ana Pérez", MessageID: "1"}, got[0])
}

type recordingSender struct {
	sent []string
}

func (r *recordingSender) Name() string { return "rec" }

func (r *recordingSender) Send(_ context.Context, to, text string) error {
	r.sent = append(r.sent, to+":"+text)
	return nil
}

func TestRateLimited(t *testing.T) {
	rec := &recordingSender{}
	assert.Same(t, Sender(rec), NewRateLimited(rec, 0, 0))

	limited := NewRateLimited(rec, 1, 1)
	assert.Equal(t, "rec", limited.Name())
	require.NoError(t, limited.Send(context.Background(), "a", "1"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, limited.Send(ctx, "b", "2"))
	assert.Equal(t, []string{"a:1"}, rec.sent)
}
