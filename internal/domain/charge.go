/**
 * @description
 * Payment-gateway charge model. Charges are owned by the gateway; this
 * system only creates and polls them.
 */
package domain

// ChargeStatus is the gateway-side status of a charge.
type ChargeStatus string

const (
	ChargePending   ChargeStatus = "PENDING"
	ChargeConfirmed ChargeStatus = "CONFIRMED"
	ChargeOverdue   ChargeStatus = "OVERDUE"
	ChargeRefused   ChargeStatus = "REFUSED"
	ChargeReceived  ChargeStatus = "RECEIVED"
	ChargeRefunded  ChargeStatus = "REFUNDED"
)

// IsInterim reports whether the status means the charge may still settle and
// polling should continue.
func (s ChargeStatus) IsInterim() bool {
	return s == ChargePending || s == ChargeOverdue
}

// IsSettled reports whether the gateway considers the charge paid.
func (s ChargeStatus) IsSettled() bool {
	return s == ChargeConfirmed || s == ChargeReceived
}

// Charge is the gateway billing resource as read back during polling.
type Charge struct {
	ID     string       `json:"id"`
	Status ChargeStatus `json:"status"`
	Value  float64      `json:"value"`
}
