package tool

import "encoding/json"

// Property describes one field of an object input schema.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// objectSchema is the flat JSON-Schema object shape used by built-in tools.
type objectSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// ObjectSchema builds a JSON-Schema object from named properties and the
// list of required property names.
func ObjectSchema(props map[string]Property, required ...string) json.RawMessage {
	s := objectSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
	data, err := json.Marshal(s)
	if err != nil {
		// Marshal of a plain struct with string keys cannot fail.
		panic(err)
	}
	return data
}

// StringProp returns a string property with a description.
func StringProp(description string) Property {
	return Property{Type: "string", Description: description}
}

// NumberProp returns a number property with a description.
func NumberProp(description string) Property {
	return Property{Type: "number", Description: description}
}

// BoolProp returns a boolean property with a description.
func BoolProp(description string) Property {
	return Property{Type: "boolean", Description: description}
}
