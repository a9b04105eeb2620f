package contacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "+44 20 7946 0958", want: "+442079460958"},
		{in: "(020) 7946-0958", want: "02079460958"},
		{in: "  +1-555-0100  ", want: "+15550100"},
		{in: "12+34", want: "1234"},
		{in: "+", want: ""},
		{in: "n/a", want: ""},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := NormalizePhone(tt.in); got != tt.want {
				t.Fatalf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestContactID(t *testing.T) {
	t.Parallel()

	t.Run("is stable across formatting", func(t *testing.T) {
		t.Parallel()
		a := ContactID("+44 20 7946 0958")
		b := ContactID("+44-20-7946-0958")
		if a == "" || a != b {
			t.Fatalf("expected matching ids, got %q and %q", a, b)
		}
		if len(a) != 32 {
			t.Fatalf("expected 32 hex characters, got %d", len(a))
		}
	})

	t.Run("differs for different numbers", func(t *testing.T) {
		t.Parallel()
		if ContactID("+15550100") == ContactID("+15550101") {
			t.Fatalf("expected different ids for different numbers")
		}
	})

	t.Run("country prefix is significant", func(t *testing.T) {
		t.Parallel()
		if ContactID("+15550100") == ContactID("15550100") {
			t.Fatalf("expected leading plus to change the id")
		}
	})

	t.Run("empty for numbers without digits", func(t *testing.T) {
		t.Parallel()
		if id := ContactID("unknown"); id != "" {
			t.Fatalf("expected empty id, got %q", id)
		}
	})
}

func TestFileProvider(t *testing.T) {
	t.Parallel()

	t.Run("parses yaml entries", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "contacts.yaml")
		content := "- name: Alice\n  phone_number: \"+1 555 0100\"\n- name: Bob\n  phone_number: \"+1 555 0101\"\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}

		entries, err := NewFileProvider(path).Contacts(context.Background())
		if err != nil {
			t.Fatalf("Contacts failed: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(entries))
		}
		if entries[0].Name != "Alice" || entries[0].PhoneNumber != "+1 555 0100" {
			t.Fatalf("unexpected first entry: %#v", entries[0])
		}
	})

	t.Run("empty file yields no entries", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "contacts.yaml")
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}

		entries, err := NewFileProvider(path).Contacts(context.Background())
		if err != nil {
			t.Fatalf("Contacts failed: %v", err)
		}
		if len(entries) != 0 {
			t.Fatalf("expected no entries, got %d", len(entries))
		}
	})

	t.Run("missing file is an error", func(t *testing.T) {
		t.Parallel()

		_, err := NewFileProvider(filepath.Join(t.TempDir(), "missing.yaml")).Contacts(context.Background())
		if err == nil {
			t.Fatalf("expected error for missing file")
		}
	})

	t.Run("invalid yaml is an error", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "contacts.yaml")
		if err := os.WriteFile(path, []byte("name: [unterminated"), 0o600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		if _, err := NewFileProvider(path).Contacts(context.Background()); err == nil {
			t.Fatalf("expected parse error")
		}
	})
}
