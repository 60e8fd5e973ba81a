package steps

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Question is the optional quiz attached to an object.
type Question struct {
	Title              string   `json:"title,omitempty" yaml:"title"`
	Text               string   `json:"text" yaml:"text"`
	Type               string   `json:"type,omitempty" yaml:"type"`
	Options            []string `json:"options,omitempty" yaml:"options"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex" yaml:"correctAnswerIndex"`
	CorrectFeedback    string   `json:"correctFeedback,omitempty" yaml:"correctFeedback"`
	IncorrectFeedback  string   `json:"incorrectFeedback,omitempty" yaml:"incorrectFeedback"`
}

// Entry is one object of the metadata "unity" section.
// Order is nil when missing or unparsable.
type Entry struct {
	ID          string
	Title       string
	Description string
	Order       *float64
	Question    *Question
}

// Metadata is a training metadata document with entries in encounter order.
type Metadata struct {
	ID          string
	Title       string
	Description string
	Version     string
	Entries     []Entry
}

var ErrEmptyDocument = errors.New("empty metadata document")

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type documentJSON struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Version     string          `json:"version"`
	Unity       json.RawMessage `json:"unity"`
}

type entryJSON struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Order       json.RawMessage `json:"order"`
	Question    *Question       `json:"question"`
}

// ParseJSON reads a metadata document, either bare or wrapped in a
// {success, data, error} API envelope.
func ParseJSON(data []byte) (*Metadata, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid metadata json: %w", err)
	}
	if env.Success != nil {
		if !*env.Success {
			if env.Error == "" {
				env.Error = "unknown error"
			}
			return nil, fmt.Errorf("metadata api error: %s", env.Error)
		}
		if len(env.Data) == 0 || string(env.Data) == "null" {
			return nil, ErrEmptyDocument
		}
		data = env.Data
	}

	var doc documentJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid metadata document: %w", err)
	}

	md := &Metadata{
		ID:          doc.ID,
		Title:       doc.Title,
		Description: doc.Description,
		Version:     doc.Version,
	}
	if len(doc.Unity) == 0 || string(doc.Unity) == "null" {
		return md, nil
	}

	entries, err := parseUnityJSON(doc.Unity)
	if err != nil {
		return nil, err
	}
	md.Entries = entries
	return md, nil
}

// parseUnityJSON walks the object tokens so entries keep their encounter order.
func parseUnityJSON(raw json.RawMessage) ([]Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("invalid unity section: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("invalid unity section: expected object")
	}

	var entries []Entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid unity section: %w", err)
		}
		id, _ := tok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("invalid unity entry %q: %w", id, err)
		}

		var e entryJSON
		if string(value) == "null" {
			continue
		}
		if err := json.Unmarshal(value, &e); err != nil {
			// Not an object: not a usable entry.
			continue
		}

		var order interface{}
		if len(e.Order) > 0 {
			_ = json.Unmarshal(e.Order, &order)
		}
		entries = append(entries, Entry{
			ID:          id,
			Title:       e.Title,
			Description: e.Description,
			Order:       parseOrder(order),
			Question:    e.Question,
		})
	}
	return entries, nil
}

type entryYAML struct {
	Title       string      `yaml:"title"`
	Description string      `yaml:"description"`
	Order       interface{} `yaml:"order"`
	Question    *Question   `yaml:"question"`
}

// ParseYAML reads the YAML form of a metadata document.
func ParseYAML(data []byte) (*Metadata, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("invalid metadata yaml: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, ErrEmptyDocument
	}

	doc := root.Content[0]
	if inner := mappingValue(doc, "data"); inner != nil && mappingValue(doc, "success") != nil {
		doc = inner
	}
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("invalid metadata yaml: expected mapping")
	}

	md := &Metadata{}
	for key, dst := range map[string]*string{
		"id": &md.ID, "title": &md.Title, "description": &md.Description, "version": &md.Version,
	} {
		if n := mappingValue(doc, key); n != nil && n.Kind == yaml.ScalarNode {
			*dst = n.Value
		}
	}

	unity := mappingValue(doc, "unity")
	if unity == nil || unity.Kind != yaml.MappingNode {
		return md, nil
	}
	for i := 0; i+1 < len(unity.Content); i += 2 {
		id := unity.Content[i].Value
		var e entryYAML
		if err := unity.Content[i+1].Decode(&e); err != nil {
			continue
		}
		md.Entries = append(md.Entries, Entry{
			ID:          id,
			Title:       e.Title,
			Description: e.Description,
			Order:       parseOrder(e.Order),
			Question:    e.Question,
		})
	}
	return md, nil
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func parseOrder(v interface{}) *float64 {
	var f float64
	switch o := v.(type) {
	case float64:
		f = o
	case int:
		f = float64(o)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(o), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	// NaN breaks the sort comparator; infinities are not orders either.
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
