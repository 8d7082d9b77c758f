package ipc

import (
	"time"

	"hackercast/internal/queue"
)

// StartRequest begins scheduling and batch processing.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops scheduling and cancels any in-flight batch.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// Item is the wire representation of a queue item.
type Item struct {
	ID            int64  `json:"id"`
	BatchID       string `json:"batch_id"`
	ItemID        int64  `json:"item_id"`
	Rank          int    `json:"rank"`
	Title         string `json:"title"`
	SourceURL     string `json:"source_url"`
	Stage         string `json:"stage"`
	AttemptCount  int    `json:"attempt_count"`
	AudioPath     string `json:"audio_path,omitempty"`
	EpisodeURL    string `json:"episode_url,omitempty"`
	LastError     string `json:"last_error,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
	Terminal      bool   `json:"terminal"`
	LastHeartbeat string `json:"last_heartbeat,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// FromQueueItem converts a queue item into its wire representation.
func FromQueueItem(item *queue.Item) Item {
	dto := Item{
		ID:           item.ID,
		BatchID:      item.BatchID,
		ItemID:       item.ItemID,
		Rank:         item.Rank,
		Title:        item.Title,
		SourceURL:    item.SourceURL,
		Stage:        string(item.Stage),
		AttemptCount: item.AttemptCount,
		AudioPath:    item.AudioPath,
		EpisodeURL:   item.EpisodeURL,
		LastError:    item.LastError,
		ErrorKind:    item.ErrorKind,
		Terminal:     item.Terminal,
		CreatedAt:    item.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    item.UpdatedAt.Format(time.RFC3339),
	}
	if item.LastHeartbeat != nil {
		dto.LastHeartbeat = item.LastHeartbeat.Format(time.RFC3339)
	}
	return dto
}

// StageHealth describes readiness of one pipeline stage.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// BreakerStatus describes one circuit breaker.
type BreakerStatus struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
	OpenedAt string `json:"opened_at,omitempty"`
}

// BatchReport summarizes a finished batch run.
type BatchReport struct {
	BatchID         string         `json:"batch_id"`
	Outcome         string         `json:"outcome"`
	ItemCount       int            `json:"item_count"`
	Published       int            `json:"published"`
	DeadLettered    int            `json:"dead_lettered"`
	KindBreakdown   map[string]int `json:"kind_breakdown,omitempty"`
	DurationSeconds float64        `json:"duration_seconds"`
}

// StatusResponse represents combined daemon and workflow status.
type StatusResponse struct {
	Running         bool            `json:"running"`
	PID             int             `json:"pid"`
	LockPath        string          `json:"lock_path"`
	DatabasePath    string          `json:"database_path"`
	ScheduleEnabled bool            `json:"schedule_enabled"`
	ScheduleCron    string          `json:"schedule_cron"`
	NextRun         string          `json:"next_run,omitempty"`
	BatchActive     bool            `json:"batch_active"`
	LastError       string          `json:"last_error,omitempty"`
	LastBatch       *BatchReport    `json:"last_batch,omitempty"`
	QueueStats      map[string]int  `json:"queue_stats"`
	StageHealth     []StageHealth   `json:"stage_health"`
	Breakers        []BreakerStatus `json:"breakers,omitempty"`
}

// LogTailRequest fetches daemon log lines. A negative offset asks for the
// last Limit lines; follow requests block up to WaitMillis for new output.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the offset to resume from.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// RunBatchRequest triggers a pipeline run. Zero values fall back to the
// daemon's configured defaults.
type RunBatchRequest struct {
	BatchID         string  `json:"batch_id"`
	StoryIDs        []int64 `json:"story_ids"`
	StoryCount      int     `json:"story_count"`
	DeadlineMinutes int     `json:"deadline_minutes"`
}

// RunBatchResponse reports whether the run was accepted.
type RunBatchResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// QueueListRequest filters queue listing by batch and stages.
type QueueListRequest struct {
	Batch  string   `json:"batch"`
	Stages []string `json:"stages"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Items []Item `json:"items"`
}

// QueueDescribeRequest fetches a single queue item by row id.
type QueueDescribeRequest struct {
	ID int64 `json:"id"`
}

// QueueDescribeResponse contains a single queue entry.
type QueueDescribeResponse struct {
	Item Item `json:"item"`
}

// QueueRemoveRequest removes specific items by row ID.
type QueueRemoveRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueRemoveResponse reports number of removed entries.
type QueueRemoveResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearRequest removes all items.
type QueueClearRequest struct{}

// QueueClearResponse reports number of removed entries.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearTerminalRequest removes published and dead-lettered items.
type QueueClearTerminalRequest struct{}

// QueueClearTerminalResponse reports number of removed entries.
type QueueClearTerminalResponse struct {
	Removed int64 `json:"removed"`
}

// QueueHealthRequest fetches aggregate diagnostics.
type QueueHealthRequest struct{}

// QueueHealthResponse reports queue health counts.
type QueueHealthResponse struct {
	Total        int `json:"total"`
	Pending      int `json:"pending"`
	Processing   int `json:"processing"`
	Published    int `json:"published"`
	DeadLettered int `json:"dead_lettered"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    string   `json:"schema_version"`
	TablesPresent    []string `json:"tables_present"`
	MissingTables    []string `json:"missing_tables"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalItems       int      `json:"total_items"`
	Error            string   `json:"error,omitempty"`
}

// BatchSummary is the wire representation of a batch row.
type BatchSummary struct {
	ID           string `json:"id"`
	CreatedAt    string `json:"created_at"`
	Deadline     string `json:"deadline,omitempty"`
	ItemCount    int    `json:"item_count"`
	Succeeded    int    `json:"succeeded"`
	DeadLettered int    `json:"dead_lettered"`
	Outcome      string `json:"outcome,omitempty"`
	CompletedAt  string `json:"completed_at,omitempty"`
}

// BatchListRequest fetches recent batches.
type BatchListRequest struct {
	Limit int `json:"limit"`
}

// BatchListResponse contains recent batches, newest first.
type BatchListResponse struct {
	Batches []BatchSummary `json:"batches"`
}

// DeadLetterEntry is the wire representation of one dead-letter record.
type DeadLetterEntry struct {
	ID           int64  `json:"id"`
	BatchID      string `json:"batch_id"`
	ItemID       int64  `json:"item_id"`
	Stage        string `json:"stage"`
	ErrorKind    string `json:"error_kind"`
	Message      string `json:"message,omitempty"`
	AttemptCount int    `json:"attempt_count"`
	CreatedAt    string `json:"created_at"`
}

// DeadLetterListRequest fetches the dead-letter log for one batch.
type DeadLetterListRequest struct {
	Batch string `json:"batch"`
}

// DeadLetterListResponse contains dead-letter entries in recording order.
type DeadLetterListResponse struct {
	Entries []DeadLetterEntry `json:"entries"`
}

// ReplayRequest resets one dead-lettered item for another try.
type ReplayRequest struct {
	Batch  string `json:"batch"`
	ItemID int64  `json:"item_id"`
}

// ReplayResponse returns the item after the reset.
type ReplayResponse struct {
	Item Item `json:"item"`
}

// FeedWriteRequest regenerates the RSS feed.
type FeedWriteRequest struct{}

// FeedWriteResponse reports where the feed was written.
type FeedWriteResponse struct {
	Path     string `json:"path"`
	Episodes int    `json:"episodes"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
