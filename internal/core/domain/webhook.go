package domain

import "time"

type (
	// TransactionStatus is the projection of a provider webhook onto the
	// transaction it references.
	TransactionStatus struct {
		RefID      string  `json:"ref_id"`
		CustomerNo string  `json:"customer_no"`
		SKU        string  `json:"buyer_sku_code"`
		Status     string  `json:"status"`
		Message    string  `json:"message"`
		RC         string  `json:"rc"`
		SN         string  `json:"sn"`
		Price      float64 `json:"price"`
	}

	WebhookEvent struct {
		Status     TransactionStatus
		Raw        map[string]any
		ReceivedAt time.Time
	}

	Identity struct {
		UserID string
		Admin  bool
	}
)

// CanReset reports whether the identity may wipe the data of userID.
func (i Identity) CanReset(userID string) bool {
	return i.Admin || (i.UserID != "" && i.UserID == userID)
}
