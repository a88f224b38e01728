// Package queue carries ticket notifications over RabbitMQ.  The ledger
// side publishes through Publisher; a Consumer hands each delivery to a
// notify.Sink (normally the SMTP mailer).
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/iliyamo/raffle-ledger/internal/notify"
)

// NotificationQueue is the durable queue holding pending notifications.
const NotificationQueue = "raffle.notifications"

// Encode serializes msg for publishing.
func Encode(msg notify.Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode parses a delivery body and rejects messages that cannot be
// delivered to anyone.
func Decode(body []byte) (notify.Message, error) {
	var msg notify.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return notify.Message{}, fmt.Errorf("unmarshal: %w", err)
	}
	if msg.Kind == "" || msg.Contact == "" || len(msg.Numbers) == 0 {
		return notify.Message{}, fmt.Errorf("incomplete notification %q", msg.ID)
	}
	return msg, nil
}
