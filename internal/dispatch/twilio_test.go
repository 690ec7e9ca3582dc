package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojohq/crm-automation/internal/config"
)

func TestTwilioSendSMS(t *testing.T) {
	var gotPath, gotTo, gotBody string
	var gotAuth bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _, gotAuth = r.BasicAuth()
		require.NoError(t, r.ParseForm())
		gotTo = r.PostFormValue("To")
		gotBody = r.PostFormValue("Body")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM123"}`))
	}))
	defer srv.Close()

	client := NewTwilioClient(config.TwilioConfig{
		AccountSID:     "AC42",
		AuthToken:      "token",
		FromNumber:     "+15555550100",
		BaseURL:        srv.URL,
		TimeoutSeconds: 5,
	})

	err := client.SendSMS(context.Background(), "+15555550123", "See you soon Ann")
	require.NoError(t, err)

	assert.Equal(t, "/2010-04-01/Accounts/AC42/Messages.json", gotPath)
	assert.True(t, gotAuth, "expected basic auth")
	assert.Equal(t, "+15555550123", gotTo)
	assert.Equal(t, "See you soon Ann", gotBody)
}

func TestTwilioSendSMSAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"invalid to number"}`))
	}))
	defer srv.Close()

	client := NewTwilioClient(config.TwilioConfig{
		AccountSID: "AC42", AuthToken: "token",
		FromNumber: "+15555550100", BaseURL: srv.URL, TimeoutSeconds: 5,
	})

	err := client.SendSMS(context.Background(), "not-a-number", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestMultiplexerNilProviders(t *testing.T) {
	m := NewMultiplexer(nil, nil)
	assert.Error(t, m.SendSMS(context.Background(), "+15555550123", "hi"))
	assert.Error(t, m.SendEmail(context.Background(), "a@b.com", "s", "<p>b</p>", ""))
}
