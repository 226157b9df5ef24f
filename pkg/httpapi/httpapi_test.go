package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	contractx "github.com/wrenhq/wren/agent/contract"
)

type fakeDispatcher struct {
	reply contractx.TurnReply
	err   error

	lastReq contractx.TurnRequest
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, req contractx.TurnRequest) (contractx.TurnReply, error) {
	f.lastReq = req
	return f.reply, f.err
}

func TestHealth(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(NewHandler(&fakeDispatcher{}))
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestChatReturnsReply(t *testing.T) {
	t.Parallel()

	dispatcher := &fakeDispatcher{reply: contractx.TurnReply{
		Text:      "hello Petr",
		Citations: []string{"https://go.dev"},
	}}
	server := httptest.NewServer(NewHandler(dispatcher))
	defer server.Close()

	resp, err := http.Post(server.URL+"/chat", "application/json",
		strings.NewReader(`{"user_id":"u1","guild_id":"g1","channel_id":"c1","content":"hi"}`))
	if err != nil {
		t.Fatalf("POST /chat error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	var reply contractx.TurnReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.Text != "hello Petr" || len(reply.Citations) != 1 {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if dispatcher.lastReq.UserID != "u1" || dispatcher.lastReq.ChannelID != "c1" {
		t.Fatalf("request not forwarded: %+v", dispatcher.lastReq)
	}
	if dispatcher.lastReq.ReceivedAt.IsZero() {
		t.Fatal("received_at must be stamped")
	}
}

func TestChatRejectsBadBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(NewHandler(&fakeDispatcher{}))
	defer server.Close()

	resp, err := http.Post(server.URL+"/chat", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST /chat error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestChatMapsErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: message content is empty", contractx.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: upstream 500", contractx.ErrModelInvoke), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		server := httptest.NewServer(NewHandler(&fakeDispatcher{err: tc.err}))
		resp, err := http.Post(server.URL+"/chat", "application/json",
			strings.NewReader(`{"user_id":"u1","content":"hi"}`))
		if err != nil {
			t.Fatalf("POST /chat error = %v", err)
		}
		resp.Body.Close()
		server.Close()
		if resp.StatusCode != tc.status {
			t.Fatalf("error %v: expected status %d, got %d", tc.err, tc.status, resp.StatusCode)
		}
	}
}
