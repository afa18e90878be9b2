package generator

import (
	"encoding/json"
	"math/rand"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"workloadgen/internal/workload"
)

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

var decimalValue, _ = primitive.ParseDecimal128("123.45")

// Document produces nested random documents for document stores. Each
// document starts from one random value set and grows with extra
// five-letter keys until its JSON encoding reaches the requested size.
type Document struct {
	rng *rand.Rand
	now func() time.Time
}

func NewDocument(rng *rand.Rand) *Document {
	return &Document{rng: rng, now: time.Now}
}

func (d *Document) Generate(sizeBytes int) workload.Record {
	doc := d.value()
	size := encodedSize(doc)
	for size < sizeBytes {
		key := d.letters(5)
		if _, taken := doc[key]; taken {
			continue
		}
		v := d.value()
		doc[key] = v
		// "key": value plus the separating comma
		size += len(key) + 4 + encodedSize(v)
	}
	return workload.Record{Fields: doc}
}

func (d *Document) value() map[string]any {
	arr := make([]int, 5)
	for i := range arr {
		arr[i] = d.rng.Intn(101)
	}
	return map[string]any{
		"string":   d.letters(20),
		"int":      d.rng.Intn(1000) + 1,
		"float":    d.rng.Float64(),
		"bool":     d.rng.Intn(2) == 1,
		"array":    arr,
		"object":   map[string]any{"x": d.rng.Intn(10) + 1},
		"date":     d.now().UTC(),
		"objectId": primitive.NewObjectID(),
		"null":     nil,
		"decimal":  decimalValue,
	}
}

func (d *Document) letters(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[d.rng.Intn(len(letters))]
	}
	return string(b)
}

func encodedSize(v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(b)
}
