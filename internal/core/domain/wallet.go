package domain

import (
	"time"
)

// WalletAddress is a monitored address whose incoming payments are watched.
type WalletAddress struct {
	Address               string
	Reference             string
	RequiredConfirmations int
	CreatedAt             time.Time
}
