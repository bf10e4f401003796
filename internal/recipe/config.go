package recipe

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Dimension is one named expansion axis. Values multiply into the
// Cartesian product in declaration order.
type Dimension struct {
	Name   string
	Values []Settings
}

// Config is one parsed recipe document.
type Config struct {
	Includes    []string    `yaml:"include,omitempty"`
	Fixtures    Settings    `yaml:"fixtures,omitempty"`
	Adjustments []Settings  `yaml:"adjustments,omitempty"`
	Dimensions  []Dimension `yaml:"dimensions,omitempty"`
}

// rawConfig defers dimension decoding so declaration order survives.
// yaml.v3 decodes mappings into Go maps with no order, so dimensions
// are walked as a node instead.
type rawConfig struct {
	Includes    []string   `yaml:"include"`
	Fixtures    Settings   `yaml:"fixtures"`
	Adjustments []Settings `yaml:"adjustments"`
	Dimensions  yaml.Node  `yaml:"dimensions"`
}

// UnmarshalYAML decodes a recipe document preserving the declaration
// order of dimensions.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw rawConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.Includes = raw.Includes
	c.Fixtures = raw.Fixtures
	c.Adjustments = raw.Adjustments
	c.Dimensions = nil

	if raw.Dimensions.Kind == 0 || raw.Dimensions.Tag == "!!null" {
		return nil
	}
	if raw.Dimensions.Kind != yaml.MappingNode {
		return fmt.Errorf("dimensions must be a mapping, got %s", raw.Dimensions.Tag)
	}
	// mapping node content alternates key, value
	for i := 0; i+1 < len(raw.Dimensions.Content); i += 2 {
		keyNode := raw.Dimensions.Content[i]
		valNode := raw.Dimensions.Content[i+1]
		var values []Settings
		if err := valNode.Decode(&values); err != nil {
			return fmt.Errorf("dimension %q: %w", keyNode.Value, err)
		}
		c.Dimensions = append(c.Dimensions, Dimension{
			Name:   keyNode.Value,
			Values: values,
		})
	}
	return nil
}

// MarshalYAML emits the document in canonical section order with
// dimensions as an ordered mapping.
func (c Config) MarshalYAML() (any, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	appendField := func(name string, v any) error {
		var val yaml.Node
		if err := val.Encode(v); err != nil {
			return err
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: name}, &val)
		return nil
	}
	if len(c.Includes) > 0 {
		if err := appendField("include", c.Includes); err != nil {
			return nil, err
		}
	}
	if !c.Fixtures.IsZero() {
		if err := appendField("fixtures", c.Fixtures); err != nil {
			return nil, err
		}
	}
	if len(c.Adjustments) > 0 {
		if err := appendField("adjustments", c.Adjustments); err != nil {
			return nil, err
		}
	}
	if len(c.Dimensions) > 0 {
		dims := &yaml.Node{Kind: yaml.MappingNode}
		for _, d := range c.Dimensions {
			var val yaml.Node
			if err := val.Encode(d.Values); err != nil {
				return nil, err
			}
			dims.Content = append(dims.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: d.Name}, &val)
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: "dimensions"}, dims)
	}
	return root, nil
}
