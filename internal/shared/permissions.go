package shared

// Ledger permissions gating privileged operations.
const (
	PermCloseBooks         = "can_close_books"
	PermUndoReconciliation = "can_undo_reconciliation"
	PermDeleteJournal      = "can_delete_journal_entries"
)

// LedgerScopes lists all ledger permissions.
func LedgerScopes() []string {
	return []string{
		PermCloseBooks,
		PermUndoReconciliation,
		PermDeleteJournal,
	}
}
