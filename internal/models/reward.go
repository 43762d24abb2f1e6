package models

import "time"

// RewardGrant is a ledger entry awarding points to a user. Grants are
// append-only and unique per (source_type, source_id), which makes awarding
// safe to re-drive: a duplicate grant attempt resolves to the existing row.
type RewardGrant struct {
	ID          string    `db:"id" json:"id"`
	RecipientID string    `db:"recipient_id" json:"recipient_id"`
	SourceType  string    `db:"source_type" json:"source_type"`
	SourceID    string    `db:"source_id" json:"source_id"`
	Amount      int       `db:"amount" json:"amount"`
	Reason      string    `db:"reason" json:"reason"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
