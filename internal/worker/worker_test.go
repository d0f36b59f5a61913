package worker

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/stenograph/internal/accumulate"
	"github.com/zulandar/stenograph/internal/archive"
	"github.com/zulandar/stenograph/internal/config"
	"github.com/zulandar/stenograph/internal/db"
	"github.com/zulandar/stenograph/internal/models"
	"github.com/zulandar/stenograph/internal/queue"
	"github.com/zulandar/stenograph/internal/summarize"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	sessions []uint
}

func (r *recordingNotifier) SessionUpdated(ctx context.Context, session *models.WorkSession, analytics *accumulate.Analytics) error {
	r.sessions = append(r.sessions, session.ID)
	return nil
}

// fakeCompletionFactory answers every prompt with a title-ish string.
func fakeCompletionFactory(_ *gorm.DB, _ uint) (summarize.CompletionFunc, error) {
	return func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "title for this summary") {
			return "Added login support", nil
		}
		return "result", nil
	}, nil
}

func newTestWorker(t *testing.T) (*Worker, *gorm.DB, archive.Store, *recordingNotifier) {
	t.Helper()
	conn, err := db.ConnectMemory()
	if err != nil {
		t.Fatalf("ConnectMemory: %v", err)
	}
	if err := db.AutoMigrate(conn); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	store, err := archive.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	notifier := &recordingNotifier{}
	w, err := New(Opts{
		DB:            conn,
		Store:         store,
		Queue:         queue.New(conn),
		Config:        config.WorkerConfig{Slots: 1, PollIntervalSeconds: 1},
		Notifier:      notifier,
		CompletionFor: fakeCompletionFactory,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w, conn, store, notifier
}

func archiveExchange(t *testing.T, store archive.Store, msg queue.ProviderRequestMessage) {
	t.Helper()
	body := map[string]any{
		"model": "claude-sonnet-4",
		"messages": []any{
			map[string]any{"role": "user", "content": "add login support"},
		},
		"metadata": map[string]any{"user_id": "user_alice_account_acct9_session_sess42"},
	}
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	if err := store.Put(archive.RequestBodyPath(msg.TenantID, msg.ProxyID, msg.RequestDate, msg.RequestID), data); err != nil {
		t.Fatalf("put request body: %v", err)
	}

	response := map[string]any{
		"role": "assistant",
		"content": []any{
			map[string]any{"type": "text", "text": "Done, login added."},
		},
		"model": "claude-sonnet-4",
		"usage": map[string]any{"input_tokens": 25, "output_tokens": 12},
	}
	respData, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	if err := store.Put(archive.ResponseBodyPath(msg.TenantID, msg.ProxyID, msg.RequestDate, msg.RequestID), respData); err != nil {
		t.Fatalf("put response body: %v", err)
	}
}

func providerRequestMessage(proxyID uint, requestID string) queue.ProviderRequestMessage {
	return queue.ProviderRequestMessage{
		Type:        queue.TypeProviderRequest,
		TenantID:    1,
		ProxyID:     proxyID,
		RequestID:   requestID,
		Provider:    "anthropic",
		RequestDate: time.Date(2025, 7, 14, 10, 30, 0, 0, time.UTC),
	}
}

func claimedMessage(t *testing.T, msgType string, payload any) *models.QueueMessage {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &models.QueueMessage{Type: msgType, Payload: string(data)}
}

func TestHandle_FullPipeline(t *testing.T) {
	w, conn, store, notifier := newTestWorker(t)
	proxy := models.Proxy{TenantID: 1, Name: "edge", APIKey: "px_test"}
	if err := conn.Create(&proxy).Error; err != nil {
		t.Fatalf("create proxy: %v", err)
	}

	ctx := context.Background()

	msg := providerRequestMessage(proxy.ID, "req-1")
	archiveExchange(t, store, msg)
	if err := w.Handle(ctx, claimedMessage(t, queue.TypeProviderRequest, msg)); err != nil {
		t.Fatalf("handle provider-request: %v", err)
	}

	var session models.WorkSession
	if err := conn.First(&session).Error; err != nil {
		t.Fatalf("no session after correlation: %v", err)
	}

	update := queue.UpdateSessionMessage{
		Type:      queue.TypeUpdateSession,
		TenantID:  1,
		SessionID: session.ID,
		Provider:  "anthropic",
	}
	if err := w.Handle(ctx, claimedMessage(t, queue.TypeUpdateSession, update)); err != nil {
		t.Fatalf("handle update-session: %v", err)
	}

	if err := conn.First(&session, session.ID).Error; err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if session.Title != "Added login support" {
		t.Errorf("Title = %q", session.Title)
	}
	if session.TotalRequests != 1 {
		t.Errorf("TotalRequests = %d, want 1", session.TotalRequests)
	}
	if session.TotalInputTokens != 25 || session.TotalOutputTokens != 12 {
		t.Errorf("tokens = %d/%d, want 25/12", session.TotalInputTokens, session.TotalOutputTokens)
	}

	var request models.ProviderRequest
	if err := conn.First(&request).Error; err != nil {
		t.Fatalf("load request: %v", err)
	}
	if session.LastProcessedRequestID != request.ID {
		t.Errorf("cursor = %d, want %d", session.LastProcessedRequestID, request.ID)
	}

	var stored accumulate.Analytics
	if err := json.Unmarshal([]byte(session.AnalyticsJSON), &stored); err != nil {
		t.Fatalf("analytics not valid JSON: %v", err)
	}
	if stored.TotalRequests != 1 {
		t.Errorf("stored TotalRequests = %d", stored.TotalRequests)
	}
	if len(stored.ModelUsage) != 1 || stored.ModelUsage[0].Model != "claude-sonnet-4" {
		t.Errorf("stored ModelUsage = %+v", stored.ModelUsage)
	}

	combined, err := store.Get(archive.CombinedPath(1, session.ID, session.CreatedAt))
	if err != nil {
		t.Fatalf("no combined transcript: %v", err)
	}
	var doc combinedDocument
	if err := json.Unmarshal(combined, &doc); err != nil {
		t.Fatalf("transcript not valid JSON: %v", err)
	}
	if doc.MessageCount != 2 || len(doc.Messages) != 2 {
		t.Errorf("transcript messages = %d/%d, want 2 (user + assistant)", doc.MessageCount, len(doc.Messages))
	}

	if len(notifier.sessions) != 1 || notifier.sessions[0] != session.ID {
		t.Errorf("notified sessions = %v, want [%d]", notifier.sessions, session.ID)
	}
}

func TestUpdateSession_RerunIsIdempotent(t *testing.T) {
	w, conn, store, _ := newTestWorker(t)
	proxy := models.Proxy{TenantID: 1, Name: "edge", APIKey: "px_test"}
	if err := conn.Create(&proxy).Error; err != nil {
		t.Fatalf("create proxy: %v", err)
	}

	ctx := context.Background()
	msg := providerRequestMessage(proxy.ID, "req-1")
	archiveExchange(t, store, msg)
	if err := w.Handle(ctx, claimedMessage(t, queue.TypeProviderRequest, msg)); err != nil {
		t.Fatalf("handle provider-request: %v", err)
	}

	var session models.WorkSession
	if err := conn.First(&session).Error; err != nil {
		t.Fatalf("load session: %v", err)
	}
	update := queue.UpdateSessionMessage{Type: queue.TypeUpdateSession, TenantID: 1, SessionID: session.ID, Provider: "anthropic"}

	for i := 0; i < 2; i++ {
		if err := w.Handle(ctx, claimedMessage(t, queue.TypeUpdateSession, update)); err != nil {
			t.Fatalf("update run %d: %v", i, err)
		}
	}

	if err := conn.First(&session, session.ID).Error; err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if session.TotalRequests != 1 {
		t.Errorf("TotalRequests after rerun = %d, want 1", session.TotalRequests)
	}
	var usageRows int64
	conn.Model(&models.ModelUsage{}).Count(&usageRows)
	if usageRows != 1 {
		t.Errorf("model usage rows after rerun = %d, want 1", usageRows)
	}
}

func TestUpdateSession_MissingSessionIsDropped(t *testing.T) {
	w, _, _, notifier := newTestWorker(t)

	update := queue.UpdateSessionMessage{Type: queue.TypeUpdateSession, TenantID: 1, SessionID: 999, Provider: "anthropic"}
	if err := w.Handle(context.Background(), claimedMessage(t, queue.TypeUpdateSession, update)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(notifier.sessions) != 0 {
		t.Error("notified for a missing session")
	}
}

func TestHandle_UnknownTypeDropped(t *testing.T) {
	w, _, _, _ := newTestWorker(t)
	msg := &models.QueueMessage{Type: "mystery", Payload: "{}"}
	if err := w.Handle(context.Background(), msg); err != nil {
		t.Errorf("Handle(unknown) = %v, want nil so the message is acked away", err)
	}
}

func TestSweep_EnqueuesStaleSessions(t *testing.T) {
	w, conn, _, _ := newTestWorker(t)

	session := models.WorkSession{TenantID: 1, Provider: "anthropic", ProxyID: 1, ProviderSpecificID: "sess-1"}
	if err := conn.Create(&session).Error; err != nil {
		t.Fatalf("create session: %v", err)
	}
	request := models.ProviderRequest{
		TenantID:      1,
		ProxyID:       1,
		GeneratedID:   "req-1",
		Provider:      "anthropic",
		WorkSessionID: &session.ID,
	}
	if err := conn.Create(&request).Error; err != nil {
		t.Fatalf("create request: %v", err)
	}

	w.Sweep()
	w.Sweep() // second pass must see the pending event and stay quiet

	var events []models.QueueMessage
	if err := conn.Where("type = ?", queue.TypeUpdateSession).Find(&events).Error; err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("sweep events = %d, want 1", len(events))
	}
	var update queue.UpdateSessionMessage
	if err := queue.DecodePayload(&events[0], &update); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if update.SessionID != session.ID {
		t.Errorf("swept session = %d, want %d", update.SessionID, session.ID)
	}
}

func TestSweep_SkipsCaughtUpSessions(t *testing.T) {
	w, conn, _, _ := newTestWorker(t)

	session := models.WorkSession{TenantID: 1, Provider: "anthropic", ProxyID: 1, ProviderSpecificID: "sess-1"}
	if err := conn.Create(&session).Error; err != nil {
		t.Fatalf("create session: %v", err)
	}
	request := models.ProviderRequest{
		TenantID:      1,
		ProxyID:       1,
		GeneratedID:   "req-1",
		Provider:      "anthropic",
		WorkSessionID: &session.ID,
	}
	if err := conn.Create(&request).Error; err != nil {
		t.Fatalf("create request: %v", err)
	}
	if err := conn.Model(&session).Update("last_processed_request_id", request.ID).Error; err != nil {
		t.Fatalf("advance cursor: %v", err)
	}

	w.Sweep()

	var count int64
	conn.Model(&models.QueueMessage{}).Count(&count)
	if count != 0 {
		t.Errorf("events = %d, want 0 for a caught-up session", count)
	}
}
