package graph

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/graphfold/graphfold/pkg/ai"
)

// ErrNoRecords is returned by decoders when a reply yields nothing usable.
var ErrNoRecords = errors.New("no records decoded from reply")

// DecodedEntity is one entity record parsed out of an LLM reply, before ids
// and provenance are attached.
type DecodedEntity struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// DecodedRelationship is one relationship record parsed out of an LLM reply.
type DecodedRelationship struct {
	Subject     string  `json:"subject"`
	Object      string  `json:"object"`
	Predicate   string  `json:"predicate"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
}

// Decoded is a decoder's view of one extraction reply.
type Decoded struct {
	Entities      []DecodedEntity      `json:"entities"`
	Relationships []DecodedRelationship `json:"relationships"`
}

// Decoder turns a raw LLM extraction reply into structured records. Each
// implementation handles one reply format and is testable without an LLM.
type Decoder interface {
	Name() string
	Prompt() string
	Decode(reply string) (*Decoded, error)
}

var (
	entityPattern   = regexp.MustCompile(`\(\s*"entity"\$\$\$\$(.*?)\$\$\$\$(.*?)\$\$\$\$(.*?)\s*\)`)
	relationPattern = regexp.MustCompile(`\(\s*"relationship"\$\$\$\$(.*?)\$\$\$\$(.*?)\$\$\$\$(.*?)\$\$\$\$(.*?)\$\$\$\$(.*?)\s*\)`)
)

// TupleDecoder parses the tuple micro-format, one record per line:
//
//	("entity"$$$$<name>$$$$<category>$$$$<description>)
//	("relationship"$$$$<subject>$$$$<object>$$$$<predicate>$$$$<description>$$$$<weight>)
//
// Records that do not match are skipped; the format is matched per record,
// not parsed as a grammar.
type TupleDecoder struct{}

func NewTupleDecoder() *TupleDecoder {
	return &TupleDecoder{}
}

func (d *TupleDecoder) Name() string {
	return "tuple"
}

func (d *TupleDecoder) Prompt() string {
	return ai.ExtractPrompt
}

func (d *TupleDecoder) Decode(reply string) (*Decoded, error) {
	out := &Decoded{}

	for _, m := range entityPattern.FindAllStringSubmatch(reply, -1) {
		name := strings.TrimSpace(m[1])
		if name == "" {
			continue
		}
		out.Entities = append(out.Entities, DecodedEntity{
			Name:        name,
			Category:    strings.TrimSpace(m[2]),
			Description: strings.TrimSpace(m[3]),
		})
	}

	for _, m := range relationPattern.FindAllStringSubmatch(reply, -1) {
		subject := strings.TrimSpace(m[1])
		object := strings.TrimSpace(m[2])
		if subject == "" || object == "" {
			continue
		}
		weight := 1.0
		if w, err := strconv.ParseFloat(strings.TrimSpace(m[5]), 64); err == nil {
			weight = w
		}
		out.Relationships = append(out.Relationships, DecodedRelationship{
			Subject:     subject,
			Object:      object,
			Predicate:   strings.TrimSpace(m[3]),
			Description: strings.TrimSpace(m[4]),
			Weight:      weight,
		})
	}

	if len(out.Entities) == 0 && len(out.Relationships) == 0 {
		return nil, ErrNoRecords
	}
	return out, nil
}

// JSONDecoder parses a JSON object reply with entities and relationships
// arrays, repairing slightly broken JSON. Intended for models with native
// JSON output modes.
type JSONDecoder struct{}

func NewJSONDecoder() *JSONDecoder {
	return &JSONDecoder{}
}

func (d *JSONDecoder) Name() string {
	return "json"
}

func (d *JSONDecoder) Prompt() string {
	return ai.ExtractJSONPrompt
}

func (d *JSONDecoder) Decode(reply string) (*Decoded, error) {
	var out Decoded
	if err := ai.UnmarshalFlexible(reply, &out); err != nil {
		return nil, err
	}

	kept := out.Entities[:0]
	for _, e := range out.Entities {
		e.Name = strings.TrimSpace(e.Name)
		if e.Name != "" {
			kept = append(kept, e)
		}
	}
	out.Entities = kept

	keptRel := out.Relationships[:0]
	for _, r := range out.Relationships {
		r.Subject = strings.TrimSpace(r.Subject)
		r.Object = strings.TrimSpace(r.Object)
		if r.Subject == "" || r.Object == "" {
			continue
		}
		if r.Weight == 0 {
			r.Weight = 1.0
		}
		keptRel = append(keptRel, r)
	}
	out.Relationships = keptRel

	if len(out.Entities) == 0 && len(out.Relationships) == 0 {
		return nil, ErrNoRecords
	}
	return &out, nil
}
