package services

import "time"

// CalculateFine computes the overdue fine for a loan.
//
// Rules:
//   - No fine if there is no due date or the return is on time.
//   - Otherwise the fine is full-days-late (floor of the overdue hours / 24)
//     times the per-day rate. Returning a few hours late costs nothing.
//
// The result depends only on the two timestamps and the rate, so recomputing
// the fine for an already-returned loan from its stored dates reproduces the
// same amount.
func CalculateFine(dueDate *time.Time, returnedAt time.Time, perDay float64) float64 {
	if dueDate == nil || !returnedAt.After(*dueDate) {
		return 0
	}
	daysLate := int(returnedAt.Sub(*dueDate).Hours() / 24)
	if daysLate < 1 {
		return 0
	}
	return float64(daysLate) * perDay
}
