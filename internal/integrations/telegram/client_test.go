package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClient_SendMessage(t *testing.T) {
	var got sendMessageReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "TOKEN", time.Second)
	require.NoError(t, c.SendMessage(context.Background(), 42, "<b>hi</b>"))
	require.Equal(t, int64(42), got.ChatID)
	require.Equal(t, "<b>hi</b>", got.Text)
	require.Equal(t, "HTML", got.ParseMode)
	require.True(t, got.DisableWebPagePreview)
}

func TestClient_SendMessage_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	}))
	defer srv.Close()

	err := New(srv.URL, "TOKEN", time.Second).SendMessage(context.Background(), 1, "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "blocked")
}

func TestClient_SendMessage_NoToken(t *testing.T) {
	require.NoError(t, New("http://127.0.0.1:1", "", time.Second).SendMessage(context.Background(), 1, "x"))
}

func TestUpdate_Decode(t *testing.T) {
	var u Update
	require.NoError(t, json.Unmarshal([]byte(`{"update_id":1,"message":{"message_id":2,"from":{"id":5,"username":"bob","first_name":"Bob"},"chat":{"id":5},"text":"/track AB123"}}`), &u))
	require.NotNil(t, u.Message)
	require.Equal(t, int64(5), u.Message.Chat.ID)
	require.Equal(t, "bob", u.Message.From.Username)
	require.Equal(t, "/track AB123", u.Message.Text)
}
