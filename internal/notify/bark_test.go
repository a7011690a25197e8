package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarkNotifierSend(t *testing.T) {
	var gotTitle, gotBody, gotGroup string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotTitle = q.Get("title")
		gotBody = q.Get("body")
		gotGroup = q.Get("group")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n, err := NewBarkNotifier(server.URL + "/")
	require.NoError(t, err)

	require.NoError(t, n.Send(context.Background(), "task completed", "taskid-ab12-cd34"))
	assert.Equal(t, "task completed", gotTitle)
	assert.Equal(t, "taskid-ab12-cd34", gotBody)
	assert.Equal(t, "otptaskd", gotGroup)
}

func TestBarkNotifierServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	n, err := NewBarkNotifier(server.URL)
	require.NoError(t, err)
	assert.Error(t, n.Send(context.Background(), "t", "b"))
}

func TestBarkNotifierRequiresURL(t *testing.T) {
	_, err := NewBarkNotifier("")
	assert.Error(t, err)
}

func TestNoOpNotifier(t *testing.T) {
	assert.NoError(t, NoOpNotifier{}.Send(context.Background(), "t", "b"))
}
