package model

import "time"

// UnknownRecipient is used when a mail item carries no readable addressee.
const UnknownRecipient = "Unknown Recipient"

// MailItem is one scanned piece of physical mail as reported by the feed.
type MailItem struct {
	ID            string
	RecipientName string
	// DocumentURL is empty when the feed did not provide a scan.
	DocumentURL string
}

// ProcessedRecord is a ledger entry for a mail item already delivered.
type ProcessedRecord struct {
	MailID        string    `json:"mail_id" db:"mail_id"`
	RecipientName string    `json:"recipient_name,omitempty" db:"recipient_name"`
	ProcessedAt   time.Time `json:"processed_at" db:"processed_at"`
}

// Folder is a destination folder candidate.
type Folder struct {
	ID       string
	Name     string
	ParentID string
}

// Resolution is the outcome of matching a recipient against the destination folders.
// FolderID is always usable; Matched is false when the item went to the default folder.
type Resolution struct {
	FolderID   string
	FolderName string
	Matched    bool
	Created    bool
	Score      int
}
