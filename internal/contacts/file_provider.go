package contacts

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileProvider reads contacts from a YAML file shaped as a list of
// {name, phone_number} entries.
type FileProvider struct {
	Path string
}

// NewFileProvider returns a provider reading path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{Path: path}
}

// Contacts parses the file on every call so edits are picked up by the next sync.
func (p *FileProvider) Contacts(ctx context.Context) ([]ProviderContact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("contacts: read %s: %w", p.Path, err)
	}

	var entries []ProviderContact
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("contacts: parse %s: %w", p.Path, err)
	}
	if entries == nil {
		entries = []ProviderContact{}
	}
	return entries, nil
}

// StaticProvider serves a fixed list of contacts.
type StaticProvider []ProviderContact

// Contacts returns a copy of the list.
func (p StaticProvider) Contacts(context.Context) ([]ProviderContact, error) {
	out := make([]ProviderContact, len(p))
	copy(out, p)
	return out, nil
}
