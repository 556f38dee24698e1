package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is a workflow as authored in a file: metadata plus its definition.
type Document struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	WorkflowDefinition
}

// ParseDocument decodes a JSON or YAML workflow document.
// Mapping key order is preserved so step input order survives YAML authoring.
func ParseDocument(data []byte) (*Document, error) {
	js, err := toJSON(data)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(js, &doc); err != nil {
		return nil, NewErrorf(ErrCodeValidation, "invalid workflow document: %s", err.Error()).WithCause(err)
	}
	return &doc, nil
}

// ParseDefinition decodes a JSON or YAML workflow definition.
func ParseDefinition(data []byte) (*WorkflowDefinition, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	return &doc.WorkflowDefinition, nil
}

func toJSON(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, NewError(ErrCodeValidation, "empty workflow document")
	}
	if trimmed[0] == '{' {
		return trimmed, nil
	}
	var root yaml.Node
	if err := yaml.Unmarshal(trimmed, &root); err != nil {
		return nil, NewErrorf(ErrCodeValidation, "invalid YAML: %s", err.Error()).WithCause(err)
	}
	var buf bytes.Buffer
	if err := writeNode(&buf, &root); err != nil {
		return nil, NewErrorf(ErrCodeValidation, "invalid YAML: %s", err.Error()).WithCause(err)
	}
	return buf.Bytes(), nil
}

func writeNode(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeNode(buf, n.Content[0])
	case yaml.AliasNode:
		return writeNode(buf, n.Alias)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(n.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeNode(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeNode(buf, c); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return err
		}
		out, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		buf.Write(out)
		return nil
	default:
		return fmt.Errorf("unsupported YAML node kind %d", n.Kind)
	}
}
