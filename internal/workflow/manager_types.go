package workflow

import (
	"time"

	"hackercast/internal/queue"
	"hackercast/internal/stage"
)

// StageSet bundles the concrete stage handlers the manager orchestrates.
type StageSet struct {
	Fetch   stage.Handler
	Extract stage.Handler
	Script  stage.Handler
	Audio   stage.Handler
	Publish stage.Handler
}

type pipelineStage struct {
	name    string
	class   string
	handler stage.Handler
	from    queue.Stage
	target  queue.Stage
}

// buildPipeline maps the handler set onto the fixed stage order. Stages
// without a handler are skipped; items then park at that lifecycle position
// until the deadline sweep resolves them.
func buildPipeline(set StageSet) []pipelineStage {
	table := []pipelineStage{
		{name: "fetch", class: "hackernews", handler: set.Fetch, from: queue.StagePending, target: queue.StageContentFetched},
		{name: "extract", class: "scraper", handler: set.Extract, from: queue.StageContentFetched, target: queue.StageContentExtracted},
		{name: "script", class: "gemini", handler: set.Script, from: queue.StageContentExtracted, target: queue.StageScriptGenerated},
		{name: "audio", class: "tts", handler: set.Audio, from: queue.StageScriptGenerated, target: queue.StageAudioGenerated},
		{name: "publish", class: "transistor", handler: set.Publish, from: queue.StageAudioGenerated, target: queue.StagePublished},
	}
	stages := make([]pipelineStage, 0, len(table))
	for _, stg := range table {
		if stg.handler == nil {
			continue
		}
		stages = append(stages, stg)
	}
	return stages
}

// BatchRequest describes one batch run.
type BatchRequest struct {
	// BatchID names the batch; defaults to the current UTC date.
	BatchID string
	// StoryIDs pins the item set explicitly. When empty the manager
	// enumerates the configured story source. Ignored when the batch
	// already has items; a batch's item set is fixed at creation.
	StoryIDs []int64
	// StoryCount bounds source enumeration; defaults to the configured
	// story count.
	StoryCount int
	// Deadline bounds the whole run; defaults to the configured batch
	// deadline. A resumed batch keeps its original deadline.
	Deadline time.Duration
}

// BatchReport summarizes one finished batch run.
type BatchReport struct {
	BatchID       string
	Outcome       string
	ItemCount     int
	Published     int
	DeadLettered  int
	KindBreakdown map[string]int
	Duration      time.Duration
}
