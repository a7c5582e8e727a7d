package yaml

import (
	"bytes"
	"fmt"
	"io"
	"os"

	goyaml "github.com/goccy/go-yaml"
)

// Parser reads and writes store definition documents.
type Parser struct{}

// NewParser creates a new YAML parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse reads a store definition from a reader.
func (p *Parser) Parse(r io.Reader) (*StoreDefinition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	var doc Document
	if err := goyaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}
	return &doc.Store, nil
}

// ParseFile reads a store definition from a file.
func (p *Parser) ParseFile(filename string) (*StoreDefinition, error) {
	// #nosec G304 - the parser accepts caller-provided paths
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return p.Parse(file)
}

// ParseString parses a store definition from a string.
func (p *Parser) ParseString(s string) (*StoreDefinition, error) {
	return p.Parse(bytes.NewReader([]byte(s)))
}

// Marshal converts a store definition back to YAML.
func (p *Parser) Marshal(def *StoreDefinition) ([]byte, error) {
	data, err := goyaml.Marshal(Document{Store: *def})
	if err != nil {
		return nil, fmt.Errorf("marshal definition: %w", err)
	}
	return data, nil
}

// MarshalToFile writes a store definition to a YAML file.
func (p *Parser) MarshalToFile(def *StoreDefinition, filename string) error {
	data, err := p.Marshal(def)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o600)
}
