package persist

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/zulandar/stenograph/internal/accumulate"
	"github.com/zulandar/stenograph/internal/db"
	"github.com/zulandar/stenograph/internal/models"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.ConnectMemory()
	if err != nil {
		t.Fatalf("ConnectMemory: %v", err)
	}
	if err := db.AutoMigrate(conn); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return conn
}

func seedSession(t *testing.T, conn *gorm.DB) *models.WorkSession {
	t.Helper()
	session := models.WorkSession{
		TenantID:           1,
		Provider:           "anthropic",
		ProxyID:            7,
		ProviderSpecificID: "sess-1",
		AccountID:          "acct9",
	}
	if err := conn.Create(&session).Error; err != nil {
		t.Fatalf("create session: %v", err)
	}
	return &session
}

func sampleAnalytics() *accumulate.Analytics {
	a := accumulate.NewAnalytics()
	a.TotalRequests = 3
	a.Title = "Added login support"
	a.Summary = "## Did auth work"
	a.Projects = []string{"login", "extra"}
	a.Topics = []string{"Auth"}
	a.TopicImplementations = map[string]string{"Auth": "## Implemented login handler"}
	a.ModelUsage = []accumulate.ModelUsageEntry{
		{Model: "sonnet", InputTokens: 100, OutputTokens: 40},
		{Model: "haiku", InputTokens: 10, OutputTokens: 5},
	}
	return a
}

func TestSaveSession_UpdatesRowAndLinksProject(t *testing.T) {
	conn := newTestDB(t)
	session := seedSession(t, conn)

	lastReceived := time.Date(2025, 7, 14, 10, 30, 0, 0, time.UTC)
	if err := SaveSession(conn, session, sampleAnalytics(), 12, &lastReceived); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	var fresh models.WorkSession
	if err := conn.First(&fresh, session.ID).Error; err != nil {
		t.Fatalf("load session: %v", err)
	}
	if fresh.Title != "Added login support" {
		t.Errorf("Title = %q", fresh.Title)
	}
	if fresh.TotalRequests != 3 || fresh.TotalInputTokens != 110 || fresh.TotalOutputTokens != 45 {
		t.Errorf("totals = %d/%d/%d, want 3/110/45", fresh.TotalRequests, fresh.TotalInputTokens, fresh.TotalOutputTokens)
	}
	if fresh.LastProcessedRequestID != 12 {
		t.Errorf("cursor = %d, want 12", fresh.LastProcessedRequestID)
	}
	if fresh.LastReceivedRequestAt == nil || !fresh.LastReceivedRequestAt.Equal(lastReceived) {
		t.Errorf("LastReceivedRequestAt = %v, want %v", fresh.LastReceivedRequestAt, lastReceived)
	}

	var stored accumulate.Analytics
	if err := json.Unmarshal([]byte(fresh.AnalyticsJSON), &stored); err != nil {
		t.Fatalf("stored analytics not valid JSON: %v", err)
	}
	if stored.Summary != "## Did auth work" {
		t.Errorf("stored Summary = %q", stored.Summary)
	}

	// First guessed name wins.
	var project models.Project
	if err := conn.First(&project).Error; err != nil {
		t.Fatalf("load project: %v", err)
	}
	if project.Name != "login" {
		t.Errorf("project name = %q, want login", project.Name)
	}
	if fresh.ProjectID == nil || *fresh.ProjectID != project.ID {
		t.Error("session not linked to project")
	}
	if fresh.Project != "login" {
		t.Errorf("session project denorm = %q, want login", fresh.Project)
	}
}

func TestSaveSession_CursorNeverRegresses(t *testing.T) {
	conn := newTestDB(t)
	session := seedSession(t, conn)

	if err := SaveSession(conn, session, sampleAnalytics(), 20, nil); err != nil {
		t.Fatalf("first SaveSession: %v", err)
	}
	if err := SaveSession(conn, session, sampleAnalytics(), 5, nil); err != nil {
		t.Fatalf("second SaveSession: %v", err)
	}

	var fresh models.WorkSession
	if err := conn.First(&fresh, session.ID).Error; err != nil {
		t.Fatalf("load session: %v", err)
	}
	if fresh.LastProcessedRequestID != 20 {
		t.Errorf("cursor = %d, want 20 (no regression)", fresh.LastProcessedRequestID)
	}
}

func TestSaveSession_ModelUsageRecreated(t *testing.T) {
	conn := newTestDB(t)
	session := seedSession(t, conn)

	if err := SaveSession(conn, session, sampleAnalytics(), 1, nil); err != nil {
		t.Fatalf("first SaveSession: %v", err)
	}

	second := sampleAnalytics()
	second.ModelUsage = []accumulate.ModelUsageEntry{
		{Model: "sonnet", InputTokens: 200, OutputTokens: 80},
	}
	if err := SaveSession(conn, session, second, 2, nil); err != nil {
		t.Fatalf("second SaveSession: %v", err)
	}

	var rows []models.ModelUsage
	if err := conn.Where("work_session_id = ?", session.ID).Find(&rows).Error; err != nil {
		t.Fatalf("load model usage: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("model usage rows = %d, want 1 (recreated, not appended)", len(rows))
	}
	if rows[0].ModelName != "sonnet" || rows[0].InputTokens != 200 {
		t.Errorf("row = %+v, want sonnet/200", rows[0])
	}
	if rows[0].AccountID == nil || *rows[0].AccountID != "acct9" {
		t.Error("model usage missing account linkage")
	}
}

func TestSaveSession_MemoryRecordsRecreated(t *testing.T) {
	conn := newTestDB(t)
	session := seedSession(t, conn)

	if err := SaveSession(conn, session, sampleAnalytics(), 1, nil); err != nil {
		t.Fatalf("first SaveSession: %v", err)
	}

	second := sampleAnalytics()
	second.Topics = []string{"Auth", "Cleanup"}
	second.TopicImplementations = map[string]string{
		"Auth":    "## Reworked login handler",
		"Cleanup": "## Removed dead code",
	}
	if err := SaveSession(conn, session, second, 2, nil); err != nil {
		t.Fatalf("second SaveSession: %v", err)
	}

	var records []models.MemoryRecord
	if err := conn.Where("work_session_id = ?", session.ID).Order("id").Find(&records).Error; err != nil {
		t.Fatalf("load memory records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("memory records = %d, want 2", len(records))
	}
	if records[0].Title != "Auth" || records[0].Body != "## Reworked login handler" {
		t.Errorf("record[0] = %q/%q", records[0].Title, records[0].Body)
	}
}

func TestSaveSession_EmptyImplementationSkipped(t *testing.T) {
	conn := newTestDB(t)
	session := seedSession(t, conn)

	a := sampleAnalytics()
	a.Topics = []string{"Auth", "Silent"}
	a.TopicImplementations = map[string]string{"Auth": "## Did things", "Silent": ""}

	if err := SaveSession(conn, session, a, 1, nil); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	var count int64
	conn.Model(&models.MemoryRecord{}).Count(&count)
	if count != 1 {
		t.Errorf("memory records = %d, want 1 (empty body skipped)", count)
	}
}

func TestSaveSession_ProjectAggregatesRecomputed(t *testing.T) {
	conn := newTestDB(t)
	first := seedSession(t, conn)
	second := models.WorkSession{
		TenantID:           1,
		Provider:           "anthropic",
		ProxyID:            7,
		ProviderSpecificID: "sess-2",
	}
	if err := conn.Create(&second).Error; err != nil {
		t.Fatalf("create second session: %v", err)
	}

	if err := SaveSession(conn, first, sampleAnalytics(), 1, nil); err != nil {
		t.Fatalf("save first: %v", err)
	}

	other := sampleAnalytics()
	other.TotalRequests = 2
	other.ModelUsage = []accumulate.ModelUsageEntry{{Model: "sonnet", InputTokens: 50, OutputTokens: 20}}
	if err := SaveSession(conn, &second, other, 1, nil); err != nil {
		t.Fatalf("save second: %v", err)
	}

	var project models.Project
	if err := conn.Where("name = ?", "login").First(&project).Error; err != nil {
		t.Fatalf("load project: %v", err)
	}
	if project.TotalRequests != 5 {
		t.Errorf("project TotalRequests = %d, want 5", project.TotalRequests)
	}
	if project.TotalInputTokens != 160 || project.TotalOutputTokens != 65 {
		t.Errorf("project tokens = %d/%d, want 160/65", project.TotalInputTokens, project.TotalOutputTokens)
	}

	// Re-running the first session must not double-count.
	if err := SaveSession(conn, first, sampleAnalytics(), 3, nil); err != nil {
		t.Fatalf("re-save first: %v", err)
	}
	if err := conn.First(&project, project.ID).Error; err != nil {
		t.Fatalf("reload project: %v", err)
	}
	if project.TotalRequests != 5 {
		t.Errorf("project TotalRequests after re-run = %d, want 5", project.TotalRequests)
	}
}

func TestSaveSession_NoProjectGuessKeepsExistingLink(t *testing.T) {
	conn := newTestDB(t)
	session := seedSession(t, conn)

	if err := SaveSession(conn, session, sampleAnalytics(), 1, nil); err != nil {
		t.Fatalf("first SaveSession: %v", err)
	}

	noGuess := sampleAnalytics()
	noGuess.Projects = []string{}
	if err := SaveSession(conn, session, noGuess, 2, nil); err != nil {
		t.Fatalf("second SaveSession: %v", err)
	}

	var fresh models.WorkSession
	if err := conn.First(&fresh, session.ID).Error; err != nil {
		t.Fatalf("load session: %v", err)
	}
	if fresh.ProjectID == nil {
		t.Error("project link lost when no new guess was produced")
	}
}
