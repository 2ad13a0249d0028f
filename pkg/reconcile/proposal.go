package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentstation/freshen/pkg/content"
	"github.com/agentstation/freshen/pkg/errors"
)

// Proposal is a parsed generative response.
type Proposal struct {
	Updates  []Update  `json:"updates"`
	NewItems []NewItem `json:"newItems"`
	Removals []Removal `json:"removals"`
	Notes    string    `json:"notes,omitempty"`
}

// Empty reports whether the proposal changes nothing.
func (p Proposal) Empty() bool {
	return len(p.Updates) == 0 && len(p.NewItems) == 0 && len(p.Removals) == 0
}

// Update replaces the data of an existing key.
type Update struct {
	Key        string           `json:"contentKey"`
	Data       content.Document `json:"data"`
	Confidence *float64         `json:"confidence,omitempty"`
	SourceURL  string           `json:"sourceUrl,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// NewItem adds a section to the module.
type NewItem struct {
	Section    string           `json:"section"`
	Data       content.Document `json:"data"`
	Confidence *float64         `json:"confidence,omitempty"`
	SourceURL  string           `json:"sourceUrl,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// Removal deactivates a key.
type Removal struct {
	Key    string `json:"contentKey"`
	Reason string `json:"reason,omitempty"`
}

// UnmarshalJSON accepts a bare key string as well as an object.
func (r *Removal) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte(`"`)) {
		return json.Unmarshal(data, &r.Key)
	}
	type plain Removal
	return json.Unmarshal(data, (*plain)(r))
}

var buckets = []string{"updates", "newItems", "removals"}

// Parse extracts the single JSON object in text and checks it against the
// output contract. Every failure is a *errors.ContractError.
func Parse(text string) (Proposal, error) {
	raw, err := extractObject(text)
	if err != nil {
		return Proposal{}, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Proposal{}, errors.NewContractError("response is not a JSON object", "", err)
	}
	for _, name := range buckets {
		v, ok := fields[name]
		if !ok {
			return Proposal{}, errors.NewContractError("missing bucket", name, nil)
		}
		if !bytes.HasPrefix(bytes.TrimSpace(v), []byte("[")) {
			return Proposal{}, errors.NewContractError("bucket is not an array", name, nil)
		}
	}

	var p Proposal
	if err := json.Unmarshal(raw, &p); err != nil {
		return Proposal{}, errors.NewContractError("malformed bucket entry", "", err)
	}
	if err := p.validate(); err != nil {
		return Proposal{}, err
	}
	return p, nil
}

func (p Proposal) validate() error {
	for i, u := range p.Updates {
		field := fmt.Sprintf("updates[%d]", i)
		if strings.TrimSpace(u.Key) == "" {
			return errors.NewContractError("contentKey is required", field, nil)
		}
		if !hasData(u.Data) {
			return errors.NewContractError("data is required", field, nil)
		}
	}
	for i, n := range p.NewItems {
		field := fmt.Sprintf("newItems[%d]", i)
		if strings.TrimSpace(n.Section) == "" {
			return errors.NewContractError("section is required", field, nil)
		}
		if strings.Contains(n.Section, ":") {
			return errors.NewContractError("section must not contain ':'", field, nil)
		}
		if !hasData(n.Data) {
			return errors.NewContractError("data is required", field, nil)
		}
	}
	for i, r := range p.Removals {
		if strings.TrimSpace(r.Key) == "" {
			return errors.NewContractError("contentKey is required", fmt.Sprintf("removals[%d]", i), nil)
		}
	}
	return nil
}

func hasData(d content.Document) bool {
	t := bytes.TrimSpace(d)
	return len(t) > 0 && !bytes.Equal(t, []byte("null"))
}

// extractObject finds exactly one top-level JSON object in text. Prose and
// markdown fences around it are tolerated; a second object is not.
func extractObject(text string) ([]byte, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, errors.NewContractError("no JSON object in response", "", nil)
	}

	dec := json.NewDecoder(strings.NewReader(text[start:]))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.NewContractError("invalid JSON object", "", err)
	}

	rest := text[start+int(dec.InputOffset()):]
	if next := strings.IndexByte(rest, '{'); next >= 0 {
		var extra json.RawMessage
		if json.NewDecoder(strings.NewReader(rest[next:])).Decode(&extra) == nil {
			return nil, errors.NewContractError("more than one JSON object in response", "", nil)
		}
	}
	return raw, nil
}
