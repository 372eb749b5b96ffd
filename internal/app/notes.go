package app

import (
	"time"

	"branchwatch/internal/config"
	"branchwatch/internal/releasenotes"
	"branchwatch/pkg/chunk"
)

// RenderNotes diffs two release-notes texts offline and returns the
// messages a notification would carry. plain selects the patch-notes file
// rendering, which is never chunked.
func RenderNotes(cfg *config.Config, oldText, newText string, plain bool, now time.Time) ([]string, error) {
	cls, err := mapClassifier(cfg)
	if err != nil {
		return nil, err
	}
	notes := releasenotes.Format(cls.Classify(releasenotes.DiffAdded(oldText, newText)), now)
	if plain {
		return []string{notes.Plain()}, nil
	}
	return chunk.Split(notes.Rich(), cfg.Notifier.MaxMessageLength), nil
}
