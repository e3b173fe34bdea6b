package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/vidpipe/internal/pipeline/core"
)

// pipelineDoc is the on-disk shape of a pipeline description. YAML and JSON
// documents both parse; JSON is a YAML subset.
type pipelineDoc struct {
	Name        string            `yaml:"name"`
	Platform    string            `yaml:"platform"`
	Blocks      []blockDoc        `yaml:"blocks"`
	Connections []connectionDoc   `yaml:"connections"`
	Settings    map[string]string `yaml:"settings"`
}

type blockDoc struct {
	Name   string            `yaml:"name"`
	Type   string            `yaml:"type"`
	Params map[string]string `yaml:"params"`
}

// connectionDoc accepts two forms:
//
//	- ["src.output", "sink.input"]
//	- {source: src, output: output, sink: out, input: input}
type connectionDoc struct {
	Source string
	Output string
	Sink   string
	Input  string
}

func (c *connectionDoc) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var pair []string
		if err := node.Decode(&pair); err != nil {
			return err
		}
		if len(pair) != 2 {
			return fmt.Errorf("connection shorthand needs 2 endpoints, got %d", len(pair))
		}
		var err error
		if c.Source, c.Output, err = splitEndpoint(pair[0]); err != nil {
			return err
		}
		c.Sink, c.Input, err = splitEndpoint(pair[1])
		return err

	case yaml.MappingNode:
		var rec struct {
			Source string `yaml:"source"`
			Output string `yaml:"output"`
			Sink   string `yaml:"sink"`
			Input  string `yaml:"input"`
		}
		if err := node.Decode(&rec); err != nil {
			return err
		}
		c.Source, c.Output, c.Sink, c.Input = rec.Source, rec.Output, rec.Sink, rec.Input
		return nil

	default:
		return fmt.Errorf("connection must be a 2-element list or a mapping")
	}
}

// splitEndpoint parses "block.tag" shorthand. The tag is optional.
func splitEndpoint(s string) (block, tag string, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", fmt.Errorf("empty connection endpoint")
	}
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[:i], s[i+1:], nil
	}
	return s, "", nil
}

// LoadPipeline reads a pipeline description document from disk.
func LoadPipeline(path string) (*core.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline file: %w", err)
	}
	cfg, err := ParsePipeline(data)
	if err != nil {
		return nil, fmt.Errorf("parsing pipeline file %s: %w", path, err)
	}
	return cfg, nil
}

// ParsePipeline parses a pipeline description document and validates it.
func ParsePipeline(data []byte) (*core.Config, error) {
	var doc pipelineDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	cfg := &core.Config{
		Name:     doc.Name,
		Platform: doc.Platform,
		Settings: doc.Settings,
	}
	for _, b := range doc.Blocks {
		cfg.Blocks = append(cfg.Blocks, core.BlockDef{
			Name:       b.Name,
			Type:       b.Type,
			Parameters: core.Params(b.Params),
		})
	}
	for _, c := range doc.Connections {
		conn := core.Connection{
			SourceBlock:  c.Source,
			SourceOutput: c.Output,
			SinkBlock:    c.Sink,
			SinkInput:    c.Input,
		}
		conn.ApplyDefaults()
		cfg.Connections = append(cfg.Connections, conn)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
