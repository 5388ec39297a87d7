package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhatsAppClient_Send(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody textMessage
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.x"}]}`))
	}))
	defer srv.Close()

	c, err := NewWhatsAppClient(srv.URL, "v17.0", "12345", "secret")
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(), "593991234567", "Hola"))
	assert.Equal(t, "/v17.0/12345/messages", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "whatsapp", gotBody.MessagingProduct)
	assert.Equal(t, "593991234567", gotBody.To)
	assert.Equal(t, "text", gotBody.Type)
	assert.Equal(t, "Hola", gotBody.Text.Body)
}

func TestWhatsAppClient_Errors(t *testing.T) {
	_, err := NewWhatsAppClient("", "", "", "")
	assert.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token","code":190}}`))
	}))
	defer srv.Close()

	c, err := NewWhatsAppClient(srv.URL, "", "1", "bad")
	require.NoError(t, err)
	err = c.Send(context.Background(), "1", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid OAuth access token")
}
