package tool

import (
	"context"
	"reflect"
	"testing"
)

type stubClient struct{ name string }

func (s *stubClient) CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	return map[string]any{"success": true}, nil
}

func (s *stubClient) ListTools(ctx context.Context) ([]Info, error) {
	return []Info{{Name: s.name}}, nil
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry()
	fs := &stubClient{name: "filesystem"}
	reg.Register("filesystem", fs)

	got, err := reg.Lookup("filesystem")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got != fs {
		t.Error("Lookup() returned a different client")
	}

	if _, err := reg.Lookup("browser"); err == nil {
		t.Error("Lookup() of unregistered tool should fail")
	}
}

func TestRegistryRegisterReplaces(t *testing.T) {
	reg := NewRegistry()
	first := &stubClient{name: "a"}
	second := &stubClient{name: "b"}
	reg.Register("shell", first)
	reg.Register("shell", second)

	got, err := reg.Lookup("shell")
	if err != nil {
		t.Fatal(err)
	}
	if got != second {
		t.Error("second registration should replace the first")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Register("shell", &stubClient{})
	reg.Register("browser", &stubClient{})
	reg.Register("filesystem", &stubClient{})

	want := []string{"browser", "filesystem", "shell"}
	if got := reg.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestResultSuccess(t *testing.T) {
	tests := []struct {
		name   string
		result map[string]any
		want   bool
	}{
		{"nil result", nil, true},
		{"no tag", map[string]any{"content": "x"}, true},
		{"explicit true", map[string]any{"success": true}, true},
		{"explicit false", map[string]any{"success": false}, false},
		{"wrong type", map[string]any{"success": "no"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResultSuccess(tt.result); got != tt.want {
				t.Errorf("ResultSuccess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResultError(t *testing.T) {
	if got := ResultError(map[string]any{"error": "not found"}); got != "not found" {
		t.Errorf("ResultError() = %q", got)
	}
	if got := ResultError(nil); got != "" {
		t.Errorf("ResultError(nil) = %q, want empty", got)
	}
}
