package schedule

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ReservationID identifies a reservation within one bucket. IDs are not global:
// the same ID appears in many buckets. Within a bucket they grow and are never reused.
type ReservationID int

// Bucket maps reservation IDs to message bodies for one minute.
type Bucket map[ReservationID]string

// Document is the whole persisted state of one account.
//
// Invariant: no bucket key maps to an empty Bucket.
//
// JSON layout: {"20240115-0930": {"1": "hello"}}
type Document map[string]Bucket

// Account is the routing identity a reservation is dispatched to.
type Account struct {
	ID   string
	Name string
}

// Reservation is one flattened document entry.
type Reservation struct {
	Bucket  string
	ID      ReservationID
	Message string
}

// NextID returns max(ids)+1 for the bucket, or 1 if the bucket is empty or absent.
func (d Document) NextID(key string) ReservationID {
	var maxID ReservationID
	for id := range d[key] {
		if id > maxID {
			maxID = id
		}
	}
	return maxID + 1
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, b := range d {
		nb := make(Bucket, len(b))
		for id, msg := range b {
			nb[id] = msg
		}
		out[k] = nb
	}
	return out
}

// prune drops empty buckets so the document never stores present-but-empty keys.
func (d Document) prune() {
	for k, b := range d {
		if len(b) == 0 {
			delete(d, k)
		}
	}
}

// Reservations flattens the document, ordered by bucket then ID.
func (d Document) Reservations() []Reservation {
	out := make([]Reservation, 0, len(d))
	for k, b := range d {
		for id, msg := range b {
			out = append(out, Reservation{Bucket: k, ID: id, Message: msg})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bucket != out[j].Bucket {
			return out[i].Bucket < out[j].Bucket
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// IDs returns the reservation IDs of one bucket in ascending order.
func (b Bucket) IDs() []ReservationID {
	ids := make([]ReservationID, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func decodeDocument(raw []byte) (Document, error) {
	doc := Document{}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode schedule document: %w", err)
	}
	if doc == nil {
		// "null" decodes to a nil map.
		doc = Document{}
	}
	doc.prune()
	return doc, nil
}

func encodeDocument(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode schedule document: %w", err)
	}
	return b, nil
}
