// Package persist writes a computed analytics snapshot back to the
// relational store: the session row, its per-model usage rows, project
// membership and aggregates, and memory records.
package persist

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zulandar/stenograph/internal/accumulate"
	"github.com/zulandar/stenograph/internal/models"
	"gorm.io/gorm"
)

// SaveSession persists one accumulator run for session. cursor is the
// highest request row id folded into the snapshot and lastReceived its
// receipt timestamp; the cursor only ever advances. The whole write
// runs in one transaction so a crash cannot leave the cursor ahead of
// the analytics it describes.
func SaveSession(db *gorm.DB, session *models.WorkSession, analytics *accumulate.Analytics, cursor uint, lastReceived *time.Time) error {
	return db.Transaction(func(tx *gorm.DB) error {
		project, err := resolveProject(tx, session, analytics)
		if err != nil {
			return err
		}

		if err := saveSessionRow(tx, session, analytics, project, cursor, lastReceived); err != nil {
			return err
		}
		if err := saveModelUsage(tx, session, analytics, project); err != nil {
			return err
		}
		if err := saveMemoryRecords(tx, session, analytics, project); err != nil {
			return err
		}
		if project != nil {
			if err := recomputeProject(tx, project); err != nil {
				return err
			}
		}
		return nil
	})
}

// resolveProject finds or creates the project for the first guessed
// name. Sessions with no guess keep their previous project link.
func resolveProject(tx *gorm.DB, session *models.WorkSession, analytics *accumulate.Analytics) (*models.Project, error) {
	if len(analytics.Projects) == 0 {
		if session.ProjectID == nil {
			return nil, nil
		}
		var existing models.Project
		if err := tx.First(&existing, *session.ProjectID).Error; err != nil {
			return nil, fmt.Errorf("persist: load project %d: %w", *session.ProjectID, err)
		}
		return &existing, nil
	}

	name := analytics.Projects[0]
	project := models.Project{TenantID: session.TenantID, Name: name}
	err := tx.Where(models.Project{TenantID: session.TenantID, Name: name}).
		FirstOrCreate(&project).Error
	if err != nil {
		return nil, fmt.Errorf("persist: upsert project %q: %w", name, err)
	}
	return &project, nil
}

func saveSessionRow(tx *gorm.DB, session *models.WorkSession, analytics *accumulate.Analytics, project *models.Project, cursor uint, lastReceived *time.Time) error {
	data, err := json.Marshal(analytics)
	if err != nil {
		return fmt.Errorf("persist: marshal analytics for session %d: %w", session.ID, err)
	}

	var inputTokens, outputTokens int64
	for _, m := range analytics.ModelUsage {
		inputTokens += m.InputTokens
		outputTokens += m.OutputTokens
	}

	updates := map[string]any{
		"analytics_json":      string(data),
		"title":               analytics.Title,
		"total_requests":      int64(analytics.TotalRequests),
		"total_input_tokens":  inputTokens,
		"total_output_tokens": outputTokens,
	}
	if cursor > session.LastProcessedRequestID {
		updates["last_processed_request_id"] = cursor
	}
	if lastReceived != nil {
		updates["last_received_request_at"] = *lastReceived
	}
	if project != nil {
		updates["project_id"] = project.ID
		updates["project"] = project.Name
	}

	if err := tx.Model(&models.WorkSession{}).Where("id = ?", session.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("persist: update session %d: %w", session.ID, err)
	}

	session.AnalyticsJSON = string(data)
	session.Title = analytics.Title
	session.TotalRequests = int64(analytics.TotalRequests)
	session.TotalInputTokens = inputTokens
	session.TotalOutputTokens = outputTokens
	if cursor > session.LastProcessedRequestID {
		session.LastProcessedRequestID = cursor
	}
	if lastReceived != nil {
		session.LastReceivedRequestAt = lastReceived
	}
	if project != nil {
		session.ProjectID = &project.ID
		session.Project = project.Name
	}
	return nil
}

// saveModelUsage replaces the session's per-model rows with the
// snapshot's aggregation.
func saveModelUsage(tx *gorm.DB, session *models.WorkSession, analytics *accumulate.Analytics, project *models.Project) error {
	if err := tx.Where("work_session_id = ?", session.ID).Delete(&models.ModelUsage{}).Error; err != nil {
		return fmt.Errorf("persist: clear model usage for session %d: %w", session.ID, err)
	}

	for _, entry := range analytics.ModelUsage {
		row := models.ModelUsage{
			TenantID:      session.TenantID,
			WorkSessionID: session.ID,
			ProxyID:       session.ProxyID,
			Provider:      session.Provider,
			ContributorID: session.ContributorID,
			ModelName:     entry.Model,
			InputTokens:   entry.InputTokens,
			OutputTokens:  entry.OutputTokens,
		}
		if session.AccountID != "" {
			account := session.AccountID
			row.AccountID = &account
		}
		if project != nil {
			row.ProjectID = &project.ID
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("persist: create model usage for session %d: %w", session.ID, err)
		}
	}
	return nil
}

// saveMemoryRecords replaces the session's memory records with one per
// topic implementation.
func saveMemoryRecords(tx *gorm.DB, session *models.WorkSession, analytics *accumulate.Analytics, project *models.Project) error {
	if err := tx.Where("work_session_id = ?", session.ID).Delete(&models.MemoryRecord{}).Error; err != nil {
		return fmt.Errorf("persist: clear memory records for session %d: %w", session.ID, err)
	}

	for _, topic := range analytics.Topics {
		body, ok := analytics.TopicImplementations[topic]
		if !ok || body == "" {
			continue
		}
		record := models.MemoryRecord{
			TenantID:      session.TenantID,
			WorkSessionID: session.ID,
			Title:         topic,
			Body:          body,
		}
		if project != nil {
			record.ProjectID = &project.ID
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("persist: create memory record %q: %w", topic, err)
		}
	}
	return nil
}

// recomputeProject rebuilds the project's totals from its member
// sessions. Summing from scratch keeps the aggregate correct when a
// session re-runs or moves between projects.
func recomputeProject(tx *gorm.DB, project *models.Project) error {
	type totals struct {
		Requests int64
		Input    int64
		Output   int64
	}
	var t totals
	err := tx.Model(&models.WorkSession{}).
		Select("COALESCE(SUM(total_requests), 0) AS requests, COALESCE(SUM(total_input_tokens), 0) AS input, COALESCE(SUM(total_output_tokens), 0) AS output").
		Where("project_id = ?", project.ID).
		Scan(&t).Error
	if err != nil {
		return fmt.Errorf("persist: sum project %d: %w", project.ID, err)
	}

	err = tx.Model(&models.Project{}).Where("id = ?", project.ID).Updates(map[string]any{
		"total_requests":      t.Requests,
		"total_input_tokens":  t.Input,
		"total_output_tokens": t.Output,
	}).Error
	if err != nil {
		return fmt.Errorf("persist: update project %d: %w", project.ID, err)
	}
	return nil
}
