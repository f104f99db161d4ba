package service

import "github.com/studtime/studtime/internal/models"

// DiffLessonIDs compares two synchronizations of the same week. Added ids
// are present only in current, removed only in previous. Removed lessons are
// soft-expired by the sync path, never deleted.
func DiffLessonIDs(previous, current []string) models.DiffResult {
	prevSet := make(map[string]struct{}, len(previous))
	for _, id := range previous {
		prevSet[id] = struct{}{}
	}
	currSet := make(map[string]struct{}, len(current))
	for _, id := range current {
		currSet[id] = struct{}{}
	}

	var result models.DiffResult
	for _, id := range current {
		if _, ok := prevSet[id]; !ok {
			result.Added = append(result.Added, id)
		}
	}
	for _, id := range previous {
		if _, ok := currSet[id]; !ok {
			result.Removed = append(result.Removed, id)
		}
	}
	return result
}
