package graph

import (
	"errors"
	"testing"
)

func TestTupleDecoderDecode(t *testing.T) {
	d := NewTupleDecoder()

	reply := `Here is what I found:
("entity"$$$$RADIO CITY$$$$ORGANIZATION$$$$India's first private FM radio station.)
("entity"$$$$INDIA$$$$LOCATION$$$$A country in South Asia.)
some commentary the model added
("relationship"$$$$RADIO CITY$$$$INDIA$$$$located in$$$$Radio City operates in India.$$$$0.8)
("relationship"$$$$broken record$$$$)
`

	decoded, err := d.Decode(reply)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if len(decoded.Entities) != 2 {
		t.Fatalf("got %d entities, want 2", len(decoded.Entities))
	}
	if decoded.Entities[0].Name != "RADIO CITY" || decoded.Entities[0].Category != "ORGANIZATION" {
		t.Errorf("unexpected first entity: %+v", decoded.Entities[0])
	}

	if len(decoded.Relationships) != 1 {
		t.Fatalf("got %d relationships, want 1", len(decoded.Relationships))
	}
	rel := decoded.Relationships[0]
	if rel.Subject != "RADIO CITY" || rel.Object != "INDIA" || rel.Predicate != "located in" {
		t.Errorf("unexpected relationship: %+v", rel)
	}
	if rel.Weight != 0.8 {
		t.Errorf("got weight %v, want 0.8", rel.Weight)
	}
}

func TestTupleDecoderDefaultsWeight(t *testing.T) {
	d := NewTupleDecoder()

	reply := `("entity"$$$$A$$$$CONCEPT$$$$First.)
("entity"$$$$B$$$$CONCEPT$$$$Second.)
("relationship"$$$$A$$$$B$$$$related to$$$$A and B.$$$$not-a-number)`

	decoded, err := d.Decode(reply)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(decoded.Relationships) != 1 {
		t.Fatalf("got %d relationships, want 1", len(decoded.Relationships))
	}
	if decoded.Relationships[0].Weight != 1.0 {
		t.Errorf("got weight %v, want default 1.0", decoded.Relationships[0].Weight)
	}
}

func TestTupleDecoderNoRecords(t *testing.T) {
	d := NewTupleDecoder()

	if _, err := d.Decode("I could not find any entities in this text."); !errors.Is(err, ErrNoRecords) {
		t.Errorf("got err = %v, want ErrNoRecords", err)
	}
}

func TestJSONDecoderDecode(t *testing.T) {
	d := NewJSONDecoder()

	reply := "```json\n" + `{
		"entities": [
			{"name": "RADIO CITY", "category": "ORGANIZATION", "description": "FM radio station."},
			{"name": "  ", "category": "LOCATION", "description": "blank name is dropped"}
		],
		"relationships": [
			{"subject": "RADIO CITY", "object": "INDIA", "predicate": "located in", "description": "ops", "weight": 0}
		]
	}` + "\n```"

	decoded, err := d.Decode(reply)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(decoded.Entities) != 1 {
		t.Fatalf("got %d entities, want 1", len(decoded.Entities))
	}
	if len(decoded.Relationships) != 1 {
		t.Fatalf("got %d relationships, want 1", len(decoded.Relationships))
	}
	if decoded.Relationships[0].Weight != 1.0 {
		t.Errorf("got weight %v, want 1.0 for zero weight", decoded.Relationships[0].Weight)
	}
}
