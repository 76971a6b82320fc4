package billing

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stripe/stripe-go/v82"
)

func eventPayload(id, eventType, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"created":1700000000,"data":{"object":%s}}`, id, eventType, object))
}

func newEvent(t *testing.T, id, eventType, object string) *stripe.Event {
	t.Helper()
	var ev stripe.Event
	if err := json.Unmarshal(eventPayload(id, eventType, object), &ev); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return &ev
}

func checkoutObject(sessionID, paymentIntent, paymentStatus string, amount int64, metadata string) string {
	pi := "null"
	if paymentIntent != "" {
		pi = fmt.Sprintf("%q", paymentIntent)
	}
	return fmt.Sprintf(`{"id":%q,"object":"checkout.session","mode":"payment","payment_status":%q,"payment_intent":%s,"amount_total":%d,"currency":"usd","customer":"cus_42","metadata":%s}`,
		sessionID, paymentStatus, pi, amount, metadata)
}

func paymentIntentObject(id, status string, amount int64, metadata string) string {
	return fmt.Sprintf(`{"id":%q,"object":"payment_intent","status":%q,"amount":%d,"amount_received":%d,"currency":"usd","metadata":%s}`,
		id, status, amount, amount, metadata)
}

func subscriptionObject(id, customer, status, metadata string, priceIDs ...string) string {
	items := ""
	for i, p := range priceIDs {
		if i > 0 {
			items += ","
		}
		items += fmt.Sprintf(`{"id":"si_%d","object":"subscription_item","price":{"id":%q,"object":"price"}}`, i, p)
	}
	return fmt.Sprintf(`{"id":%q,"object":"subscription","customer":%q,"status":%q,"metadata":%s,"items":{"object":"list","data":[%s]}}`,
		id, customer, status, metadata, items)
}
