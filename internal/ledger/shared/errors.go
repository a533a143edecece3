package shared

import "errors"

var (
	// ErrUnbalanced indicates total debits differ from total credits.
	ErrUnbalanced = errors.New("ledger: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("ledger: journal entry requires at least two lines")
	// ErrInvalidLine indicates a line with both sides set, both zero, or a negative amount.
	ErrInvalidLine = errors.New("ledger: journal line must carry exactly one positive side")
	// ErrPeriodLocked indicates the entry date falls before the period-lock cutoff.
	ErrPeriodLocked = errors.New("ledger: accounting period is locked")
	// ErrAlreadyPosted indicates a second posting attempt.
	ErrAlreadyPosted = errors.New("ledger: entry already posted")
	// ErrEntryPosted indicates an edit or delete against a posted entry.
	ErrEntryPosted = errors.New("ledger: posted entries are immutable, use a reversing entry")
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = errors.New("ledger: journal entry not found")
	// ErrAccountNotFound indicates a line referencing an unknown account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrNumberingConflict indicates the sequence retry budget was exhausted.
	ErrNumberingConflict = errors.New("ledger: reference number conflict")
)
