package queue

import (
	"database/sql"
	"errors"
	"time"
)

const itemColumns = "id, batch_id, item_id, rank, title, source_url, stage, attempt_count, story_json, article_text, script_text, audio_path, episode_url, last_error, error_kind, terminal, last_heartbeat, created_at, updated_at"

const batchColumns = "batch_id, created_at, deadline, item_count, succeeded, dead_lettered, outcome, completed_at"

const deadLetterColumns = "id, batch_id, item_id, stage, error_kind, message, attempt_count, created_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id               int64
		batchID          string
		itemID           int64
		rank             int
		title            sql.NullString
		sourceURL        sql.NullString
		stageStr         string
		attemptCount     int
		storyJSON        sql.NullString
		articleText      sql.NullString
		scriptText       sql.NullString
		audioPath        sql.NullString
		episodeURL       sql.NullString
		lastError        sql.NullString
		errorKind        sql.NullString
		terminal         sql.NullInt64
		lastHeartbeatRaw sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&batchID,
		&itemID,
		&rank,
		&title,
		&sourceURL,
		&stageStr,
		&attemptCount,
		&storyJSON,
		&articleText,
		&scriptText,
		&audioPath,
		&episodeURL,
		&lastError,
		&errorKind,
		&terminal,
		&lastHeartbeatRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:           id,
		BatchID:      batchID,
		ItemID:       itemID,
		Rank:         rank,
		Title:        title.String,
		SourceURL:    sourceURL.String,
		Stage:        Stage(stageStr),
		AttemptCount: attemptCount,
		StoryJSON:    storyJSON.String,
		ArticleText:  articleText.String,
		ScriptText:   scriptText.String,
		AudioPath:    audioPath.String,
		EpisodeURL:   episodeURL.String,
		LastError:    lastError.String,
		ErrorKind:    errorKind.String,
	}
	if terminal.Valid {
		item.Terminal = terminal.Int64 != 0
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			item.LastHeartbeat = &heartbeat
		}
	}
	return item, nil
}

func scanBatch(scanner interface{ Scan(dest ...any) error }) (*Batch, error) {
	var (
		id           string
		createdRaw   sql.NullString
		deadlineRaw  sql.NullString
		itemCount    int
		succeeded    int
		deadLettered int
		outcome      sql.NullString
		completedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&createdRaw,
		&deadlineRaw,
		&itemCount,
		&succeeded,
		&deadLettered,
		&outcome,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	batch := &Batch{
		ID:           id,
		ItemCount:    itemCount,
		Succeeded:    succeeded,
		DeadLettered: deadLettered,
		Outcome:      outcome.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		batch.CreatedAt = created
	}
	if deadlineRaw.Valid {
		if deadline, err := parseTimeString(deadlineRaw.String); err == nil {
			batch.Deadline = &deadline
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			batch.CompletedAt = &completed
		}
	}
	return batch, nil
}

func scanDeadLetter(scanner interface{ Scan(dest ...any) error }) (*DeadLetter, error) {
	var (
		id           int64
		batchID      string
		itemID       int64
		stageStr     string
		errorKind    string
		message      sql.NullString
		attemptCount int
		createdRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&batchID,
		&itemID,
		&stageStr,
		&errorKind,
		&message,
		&attemptCount,
		&createdRaw,
	); err != nil {
		return nil, err
	}

	entry := &DeadLetter{
		ID:           id,
		BatchID:      batchID,
		ItemID:       itemID,
		Stage:        Stage(stageStr),
		ErrorKind:    errorKind,
		Message:      message.String,
		AttemptCount: attemptCount,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		entry.CreatedAt = created
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	v := value.UTC().Format(time.RFC3339Nano)
	return v
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
