package models

import "time"

// Party is a record-store user together with the wallet-equivalent address
// it acts under on the ledger side. Either identifier may be used as an
// actor id in intents; Address is what the ledger program sees.
type Party struct {
	Id        string    `json:"id"`
	Username  string    `json:"username"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"-"`
}
