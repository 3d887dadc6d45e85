package prompts

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Modes []Mode `yaml:"modes"`
}

// LoadFile reads a YAML catalog of the form:
//
//	modes:
//	  - name: mentor
//	    description: career advice & learning paths
//	    prompt: |
//	      You are ...
//	    greeting: Hi there!
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt catalog %q: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Registry, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse prompt catalog: %w", err)
	}
	return New(f.Modes)
}

// Load returns the catalog at path, or the built-in one when path is empty.
func Load(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return LoadFile(path)
}
