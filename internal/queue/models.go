package queue

import (
	"strings"
	"time"
)

// Stage represents the lifecycle position of a pipeline item.
type Stage string

const (
	StagePending          Stage = "pending"
	StageContentFetched   Stage = "content_fetched"
	StageContentExtracted Stage = "content_extracted"
	StageScriptGenerated  Stage = "script_generated"
	StageAudioGenerated   Stage = "audio_generated"
	StagePublished        Stage = "published"
	StageDeadLettered     Stage = "dead_lettered"
)

var allStages = []Stage{
	StagePending,
	StageContentFetched,
	StageContentExtracted,
	StageScriptGenerated,
	StageAudioGenerated,
	StagePublished,
	StageDeadLettered,
}

var stageIndex = func() map[Stage]int {
	idx := make(map[Stage]int, len(allStages))
	for i, stage := range allStages {
		idx[stage] = i
	}
	return idx
}()

// AllStages returns the ordered list of known stages.
func AllStages() []Stage {
	cp := make([]Stage, len(allStages))
	copy(cp, allStages)
	return cp
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stageIndex[normalized]
	return normalized, ok
}

// Index returns the position of the stage within the forward ordering.
// Unknown stages sort after all known ones.
func (s Stage) Index() int {
	if idx, ok := stageIndex[s]; ok {
		return idx
	}
	return len(allStages)
}

// PrevStage returns the stage immediately before s in the forward ordering.
func PrevStage(s Stage) (Stage, bool) {
	idx, ok := stageIndex[s]
	if !ok || idx == 0 {
		return "", false
	}
	return allStages[idx-1], true
}

// NextStage returns the lifecycle position immediately after s. Dead-letter
// entries for items that never entered a stage handler are labeled with this
// position. StagePublished has no next position; dead_lettered is an exit,
// not a successor.
func NextStage(s Stage) (Stage, bool) {
	idx, ok := stageIndex[s]
	if !ok || allStages[idx] == StagePublished || allStages[idx] == StageDeadLettered {
		return "", false
	}
	return allStages[idx+1], true
}

// IsTerminal reports whether the stage ends an item's lifecycle.
func (s Stage) IsTerminal() bool {
	return s == StagePublished || s == StageDeadLettered
}

// Batch outcome values recorded when a batch is finalized.
const (
	OutcomeFullSuccess    = "full_success"
	OutcomePartialSuccess = "partial_success"
	OutcomeTotalFailure   = "total_failure"
)

// Batch groups the items of one pipeline run.
type Batch struct {
	ID           string
	CreatedAt    time.Time
	Deadline     *time.Time
	ItemCount    int
	Succeeded    int
	DeadLettered int
	Outcome      string
	CompletedAt  *time.Time
}

// Completed reports whether the batch has been finalized.
func (b Batch) Completed() bool {
	return b.CompletedAt != nil
}

// Item represents one story moving through the pipeline, persisted in SQLite.
//
// Payload columns (StoryJSON, ArticleText, ScriptText, AudioPath, EpisodeURL)
// are written by the stage that produces them and never rewritten once the
// item advances past that stage.
type Item struct {
	ID            int64
	BatchID       string
	ItemID        int64
	Rank          int
	Title         string
	SourceURL     string
	Stage         Stage
	AttemptCount  int
	StoryJSON     string
	ArticleText   string
	ScriptText    string
	AudioPath     string
	EpisodeURL    string
	LastError     string
	ErrorKind     string
	Terminal      bool
	LastHeartbeat *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AdvanceTo moves the item to the next stage after a successful attempt.
// The attempt counter resets and any recorded error from earlier attempts
// is cleared.
func (i *Item) AdvanceTo(next Stage) {
	i.Stage = next
	i.AttemptCount = 0
	i.LastError = ""
	i.ErrorKind = ""
	if next.IsTerminal() {
		i.Terminal = true
		i.LastHeartbeat = nil
	}
}

// SetDeadLettered marks the item terminally failed with its cause.
func (i *Item) SetDeadLettered(kind, message string) {
	i.Stage = StageDeadLettered
	i.ErrorKind = kind
	i.LastError = message
	i.Terminal = true
	i.LastHeartbeat = nil
}

// InFlight reports whether the item still has work ahead of it.
func (i Item) InFlight() bool {
	return !i.Terminal
}

// DeadLetter is one append-only record of a terminal item failure.
// Stage names the lifecycle position the item failed to reach, so an
// extraction failure records content_extracted. Replay resets the item to
// the position just before it, which reruns only the failed step.
type DeadLetter struct {
	ID           int64
	BatchID      string
	ItemID       int64
	Stage        Stage
	ErrorKind    string
	Message      string
	AttemptCount int
	CreatedAt    time.Time
}

// HealthSummary describes aggregated item counts per key lifecycle states.
type HealthSummary struct {
	Total        int
	Pending      int
	Processing   int
	Published    int
	DeadLettered int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}
