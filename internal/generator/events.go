package generator

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"workloadgen/internal/workload"
)

// Schema builds one event. The key may be a string or a map, which is
// serialized as JSON.
type Schema func(rng *rand.Rand, now time.Time) (key any, headers map[string]string, payload map[string]any)

// Schemas by topic prefix.
var Schemas = map[string]Schema{
	"events_user":        eventsUser,
	"notifications_user": notificationsUser,
	"orders_user":        ordersUser,
}

// Events produces broker events for one topic.
type Events struct {
	rng    *rand.Rand
	schema Schema
	now    func() time.Time
}

// NewEvents picks the schema from the topic prefix (text before the first
// dot). Unknown prefixes get a generic event padded to the requested size.
func NewEvents(topic string, rng *rand.Rand) *Events {
	prefix, _, _ := strings.Cut(topic, ".")
	schema, ok := Schemas[prefix]
	if !ok {
		schema = genericEvent(topic)
	}
	return &Events{rng: rng, schema: schema, now: time.Now}
}

func (e *Events) Generate(sizeBytes int) workload.Record {
	key, headers, payload := e.schema(e.rng, e.now().UTC())
	if _, generic := payload["padding"]; generic {
		if pad := sizeBytes - encodedSize(payload); pad > 0 {
			payload["padding"] = strings.Repeat("x", pad)
		}
	}
	return workload.Record{Key: serializeKey(key), Headers: headers, Fields: payload}
}

func serializeKey(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case nil:
		return ""
	default:
		b, err := json.Marshal(k)
		if err != nil {
			return fmt.Sprint(k)
		}
		return string(b)
	}
}

func timestamp(now time.Time) string {
	return now.Format("2006-01-02T15:04:05.000000") + "Z"
}

func pick(rng *rand.Rand, opts ...string) string { return opts[rng.Intn(len(opts))] }

func eventsUser(rng *rand.Rand, now time.Time) (any, map[string]string, map[string]any) {
	userID := fmt.Sprintf("user-%d", rng.Intn(1000)+1)
	eventType := pick(rng, "click", "view", "purchase")
	key := map[string]any{"user_id": userID, "source": "web"}
	headers := map[string]string{"env": "prod", "source": "events-user-gen"}
	payload := map[string]any{
		"event_type": eventType,
		"timestamp":  timestamp(now),
		"source":     "web",
		"meta":       map[string]any{"trace_id": fmt.Sprintf("trace-%d", rng.Intn(9000)+1000)},
		"user": map[string]any{
			"id": userID,
			"profile": map[string]any{
				"active": rng.Intn(2) == 1,
				"age":    rng.Intn(53) + 18,
				"preferences": map[string]any{
					"lang":       "en",
					"categories": []string{"news", "sports"},
				},
			},
		},
		"event": map[string]any{"type": eventType},
	}
	return key, headers, payload
}

func notificationsUser(rng *rand.Rand, now time.Time) (any, map[string]string, map[string]any) {
	userID := fmt.Sprintf("user-%d", rng.Intn(1000)+1)
	ts := timestamp(now)
	headers := map[string]string{"env": "staging", "source": "notifications-gen"}
	payload := map[string]any{
		"timestamp":         ts,
		"notification_type": pick(rng, "push", "email"),
		"channel":           "sms",
		"notification": map[string]any{
			"id":        fmt.Sprintf("notif-%d", rng.Intn(9000)+1000),
			"content":   map[string]any{"title": "Welcome", "body": "Check this out"},
			"timestamp": ts,
		},
		"receiver": map[string]any{"id": userID},
	}
	return userID, headers, payload
}

func ordersUser(rng *rand.Rand, now time.Time) (any, map[string]string, map[string]any) {
	orderID := fmt.Sprintf("order-%d", rng.Intn(90000)+10000)
	ts := timestamp(now)
	status := pick(rng, "placed", "shipped", "delivered")
	tier := pick(rng, "gold", "silver", "bronze")
	items := make([]map[string]any, 3)
	for i := range items {
		items[i] = map[string]any{"sku": fmt.Sprintf("sku-%d", i), "qty": rng.Intn(5) + 1}
	}
	key := map[string]any{"order_id": orderID}
	headers := map[string]string{"env": "prod", "source": "orders-gen", "tier": tier}
	payload := map[string]any{
		"timestamp":    ts,
		"order_status": status,
		"tier":         tier,
		"order": map[string]any{
			"id":        orderID,
			"status":    status,
			"items":     items,
			"total":     math.Round((100+rng.Float64()*900)*100) / 100,
			"timestamp": ts,
		},
	}
	return key, headers, payload
}

func genericEvent(topic string) Schema {
	return func(rng *rand.Rand, now time.Time) (any, map[string]string, map[string]any) {
		id := fmt.Sprintf("evt-%d", rng.Int63())
		headers := map[string]string{"source": "workloadgen"}
		payload := map[string]any{
			"id":        id,
			"topic":     topic,
			"timestamp": timestamp(now),
			"padding":   "",
		}
		return id, headers, payload
	}
}
