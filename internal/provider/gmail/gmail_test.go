package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/dray-supadev/api-gmail/internal/apperr"
	"github.com/dray-supadev/api-gmail/internal/provider"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := gmailapi.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("creating fake Gmail service: %v", err)
	}
	return newWithServices(svc, nil)
}

const sampleRaw = "From: alice@example.com\r\n" +
	"To: bob@example.com\r\n" +
	"Subject: hello\r\n" +
	"Date: Mon, 02 Jun 2025 10:30:00 +0000\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"plain body\r\n"

func TestGetMessage(t *testing.T) {
	t.Parallel()

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/messages/m1") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("format"); got != "raw" {
			t.Errorf("format = %q, want raw", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":           "m1",
			"threadId":     "t1",
			"snippet":      "plain body",
			"labelIds":     []string{"INBOX", "UNREAD"},
			"internalDate": "1748860200000",
			"raw":          base64.RawURLEncoding.EncodeToString([]byte(sampleRaw)),
		})
	}))

	msg, err := client.GetMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetMessage() returned error: %v", err)
	}

	if msg.ID != "m1" || msg.ThreadID != "t1" {
		t.Errorf("ids = %q/%q", msg.ID, msg.ThreadID)
	}
	if msg.From != "alice@example.com" {
		t.Errorf("from = %q", msg.From)
	}
	if !msg.Unread {
		t.Error("UNREAD label should map to unread")
	}
	if !strings.Contains(msg.TextBody, "plain body") {
		t.Errorf("text body = %q", msg.TextBody)
	}
	if msg.Date.IsZero() {
		t.Error("internalDate not mapped")
	}
}

func TestModifyLabelsTranslatesArchive(t *testing.T) {
	t.Parallel()

	var captured gmailapi.BatchModifyMessagesRequest
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "batchModify") {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusNoContent)
	}))

	err := client.ModifyLabels(context.Background(), provider.ModifyRequest{
		IDs:    []string{"m1", "m2"},
		AddIDs: []string{"ARCHIVE"},
	})
	if err != nil {
		t.Fatalf("ModifyLabels() returned error: %v", err)
	}

	if !reflect.DeepEqual(captured.Ids, []string{"m1", "m2"}) {
		t.Errorf("ids = %v", captured.Ids)
	}
	if len(captured.AddLabelIds) != 0 {
		t.Errorf("archive must not add labels, got %v", captured.AddLabelIds)
	}
	if !reflect.DeepEqual(captured.RemoveLabelIds, []string{"INBOX"}) {
		t.Errorf("archive should remove INBOX, got %v", captured.RemoveLabelIds)
	}
}

func TestExpiredTokenNeverRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 401, "message": "Invalid Credentials"},
		})
	}))

	_, err := client.GetMessage(context.Background(), "m1")
	var ue *apperr.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if !ue.AuthExpired() {
		t.Errorf("expected auth-expired classification, got status %d", ue.StatusCode)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestDecodeBase64URL(t *testing.T) {
	t.Parallel()

	payload := []byte("hello world")
	padded := base64.URLEncoding.EncodeToString(payload)
	unpadded := base64.RawURLEncoding.EncodeToString(payload)

	for _, encoded := range []string{padded, unpadded} {
		got, err := decodeBase64URL(encoded)
		if err != nil {
			t.Fatalf("decodeBase64URL(%q) returned error: %v", encoded, err)
		}
		if string(got) != "hello world" {
			t.Errorf("decoded = %q", got)
		}
	}
}

func TestSplitAddresses(t *testing.T) {
	t.Parallel()

	got := splitAddresses("a@example.com, Bob <b@example.com> , ")
	want := []string{"a@example.com", "Bob <b@example.com>"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitAddresses() = %v, want %v", got, want)
	}
	if splitAddresses("") != nil {
		t.Error("empty header should yield nil")
	}
}

func TestPayloadHasAttachments(t *testing.T) {
	t.Parallel()

	withAttachment := &gmailapi.MessagePart{
		Parts: []*gmailapi.MessagePart{
			{MimeType: "text/plain"},
			{MimeType: "application/pdf", Filename: "quote.pdf"},
		},
	}
	if !payloadHasAttachments(withAttachment) {
		t.Error("nested filename part not detected")
	}

	plain := &gmailapi.MessagePart{
		Parts: []*gmailapi.MessagePart{{MimeType: "text/plain"}},
	}
	if payloadHasAttachments(plain) {
		t.Error("plain payload misdetected as attachment")
	}
}
