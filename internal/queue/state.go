package queue

import "backend-clinic-queue/internal/models"

// Status machine: waiting -> called -> in-progress -> served, with a no-show
// branch waiting|called -> skipped. served and skipped are terminal.
var transitions = map[models.QueueStatus][]models.QueueStatus{
	models.StatusWaiting:    {models.StatusCalled, models.StatusSkipped},
	models.StatusCalled:     {models.StatusInProgress, models.StatusSkipped},
	models.StatusInProgress: {models.StatusServed},
}

func CanTransition(from, to models.QueueStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminal(s models.QueueStatus) bool {
	return s == models.StatusServed || s == models.StatusSkipped
}

// OccupiesDoctor reports whether the status counts against the one
// called-or-in-progress patient a doctor may have at a time.
func OccupiesDoctor(s models.QueueStatus) bool {
	return s == models.StatusCalled || s == models.StatusInProgress
}

func priorityRank(p models.PriorityLevel) int {
	switch p {
	case models.PriorityEmergency:
		return 0
	case models.PriorityPriority:
		return 1
	default:
		return 2
	}
}

// NextInLine picks the entry CallNext would call: among waiting entries with
// an assigned number, highest priority tier first, lowest queue number within
// a tier. Returns nil when nothing is callable.
func NextInLine(entries []models.QueueEntry) *models.QueueEntry {
	var best *models.QueueEntry

	for i := range entries {
		e := &entries[i]
		if e.QueueStatus != models.StatusWaiting || e.QueueNumber == 0 {
			continue
		}
		if best == nil {
			best = e
			continue
		}
		if priorityRank(e.PriorityLevel) < priorityRank(best.PriorityLevel) {
			best = e
			continue
		}
		if priorityRank(e.PriorityLevel) == priorityRank(best.PriorityLevel) &&
			e.QueueNumber < best.QueueNumber {
			best = e
		}
	}

	return best
}
