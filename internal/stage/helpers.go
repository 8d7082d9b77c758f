package stage

import (
	"encoding/json"
	"strings"

	"hackercast/internal/services"
	"hackercast/internal/services/hackernews"
)

// ParseStory parses an item's stored story JSON.
// On failure it returns a services.ErrPermanent suitable for stage Execute
// methods: a missing or corrupt payload cannot be fixed by retrying.
func ParseStory(raw string) (hackernews.Story, error) {
	if strings.TrimSpace(raw) == "" {
		return hackernews.Story{}, services.Wrap(
			services.ErrPermanent, "stage", "parse story",
			"Story payload missing; re-enqueue the item", nil)
	}
	var story hackernews.Story
	if err := json.Unmarshal([]byte(raw), &story); err != nil {
		return hackernews.Story{}, services.Wrap(
			services.ErrPermanent, "stage", "parse story",
			"Story payload invalid; re-enqueue the item", err)
	}
	return story, nil
}
