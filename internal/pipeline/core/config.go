package core

import "fmt"

// BlockDef describes one block instance in a pipeline configuration.
type BlockDef struct {
	Name       string
	Type       string
	Parameters Params
}

// Connection is a directed source→sink edge. The output and input tags
// default to "output" and "input".
type Connection struct {
	SourceBlock  string
	SourceOutput string
	SinkBlock    string
	SinkInput    string
}

// ApplyDefaults fills in the default output and input tags.
func (c *Connection) ApplyDefaults() {
	if c.SourceOutput == "" {
		c.SourceOutput = "output"
	}
	if c.SinkInput == "" {
		c.SinkInput = "input"
	}
}

// String renders the connection in shorthand form.
func (c Connection) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", c.SourceBlock, c.SourceOutput, c.SinkBlock, c.SinkInput)
}

// Config is a parsed pipeline description: the blocks to instantiate, the
// edges between them, and free-form settings.
type Config struct {
	Name     string
	Platform string

	Blocks      []BlockDef
	Connections []Connection

	Settings map[string]string
}

// Validate checks structural invariants: block names are unique and every
// connection references defined blocks.
func (c *Config) Validate() error {
	names := make(map[string]struct{}, len(c.Blocks))
	for _, def := range c.Blocks {
		if def.Name == "" {
			return fmt.Errorf("block with empty name: %w", ErrInvalidArgument)
		}
		if def.Type == "" {
			return fmt.Errorf("block %q has empty type: %w", def.Name, ErrInvalidArgument)
		}
		if _, dup := names[def.Name]; dup {
			return fmt.Errorf("duplicate block name %q: %w", def.Name, ErrInvalidArgument)
		}
		names[def.Name] = struct{}{}
	}

	for _, conn := range c.Connections {
		if _, ok := names[conn.SourceBlock]; !ok {
			return fmt.Errorf("connection %s: source block: %w", conn, ErrNotFound)
		}
		if _, ok := names[conn.SinkBlock]; !ok {
			return fmt.Errorf("connection %s: sink block: %w", conn, ErrNotFound)
		}
	}
	return nil
}
