package amqp

import (
	"encoding/json"
	"time"
)

// AccrualClosedMessage describes one local day folded into a user's
// balance by the recalculation sweep. Day is the closed local calendar
// date (YYYY-MM-DD); amounts are cents.
type AccrualClosedMessage struct {
	UserID       int64     `json:"user_id"`
	Day          string    `json:"day"`
	SpentCents   int64     `json:"spent_cents"`
	BalanceCents int64     `json:"balance_cents"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewAccrualClosedMessage(userID int64, day string, spentCents, balanceCents int64) *AccrualClosedMessage {
	return &AccrualClosedMessage{
		UserID:       userID,
		Day:          day,
		SpentCents:   spentCents,
		BalanceCents: balanceCents,
		Timestamp:    time.Now(),
	}
}

func (m *AccrualClosedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func AccrualClosedMessageFromJSON(data []byte) (*AccrualClosedMessage, error) {
	var msg AccrualClosedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
