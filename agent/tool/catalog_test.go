package tool

import (
	"context"
	"errors"
	"strings"
	"testing"

	contractx "github.com/wrenhq/wren/agent/contract"
)

func TestDefaultCatalogRegistersBuiltins(t *testing.T) {
	t.Parallel()

	catalog, err := DefaultCatalog(SearchConfig{}, NowPlayingConfig{})
	if err != nil {
		t.Fatalf("DefaultCatalog() error = %v", err)
	}

	for _, name := range []string{ToolWebSearch, ToolCurrentDateTime, ToolNowPlaying, ToolMathEvaluate} {
		if !catalog.Has(name) {
			t.Fatalf("expected tool %s registered", name)
		}
	}

	infos := catalog.Definitions()
	if len(infos) != 4 {
		t.Fatalf("expected 4 tool infos, got %d", len(infos))
	}
	if infos[0].Name != ToolWebSearch {
		t.Fatalf("unexpected first tool: %s", infos[0].Name)
	}
}

func TestCatalogRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	catalog := NewCatalog()
	if err := catalog.Register(currentDateTimeInfo(), currentDateTimeUsage(), NewCurrentDateTimeTool()); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	err := catalog.Register(currentDateTimeInfo(), currentDateTimeUsage(), NewCurrentDateTimeTool())
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestInventoryJSONListsAllTools(t *testing.T) {
	t.Parallel()

	catalog, err := DefaultCatalog(SearchConfig{}, NowPlayingConfig{})
	if err != nil {
		t.Fatalf("DefaultCatalog() error = %v", err)
	}

	inventory := catalog.InventoryJSON()
	for _, name := range []string{ToolWebSearch, ToolCurrentDateTime, ToolNowPlaying, ToolMathEvaluate} {
		if !strings.Contains(inventory, name) {
			t.Fatalf("inventory missing tool %s:\n%s", name, inventory)
		}
	}
	if !strings.Contains(inventory, "args_schema") {
		t.Fatalf("inventory missing args schema:\n%s", inventory)
	}
}

func TestWebSearchWithoutKeyReportsConfigurationError(t *testing.T) {
	t.Parallel()

	search := NewWebSearchTool(SearchConfig{})
	_, err := search.Invoke(context.Background(), map[string]any{"query": "latest rust release"})
	if !errors.Is(err, contractx.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestCurrentDateTimeReportsUTCFields(t *testing.T) {
	t.Parallel()

	out, err := NewCurrentDateTimeTool().Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !out.Success {
		t.Fatal("expected success")
	}
	for _, want := range []string{"Current UTC datetime:", "Current UTC date:", "Current UTC year:"} {
		if !strings.Contains(out.Text, want) {
			t.Fatalf("missing %q in %q", want, out.Text)
		}
	}
	if len(out.Citations) != 0 {
		t.Fatalf("unexpected citations: %v", out.Citations)
	}
}

func TestMathEvaluate(t *testing.T) {
	t.Parallel()

	out, err := NewMathEvaluateTool().Invoke(context.Background(), map[string]any{
		"expression": "2 + 3 * (4 - 1)",
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !strings.Contains(out.Text, "= 11") {
		t.Fatalf("unexpected result: %q", out.Text)
	}

	_, err = NewMathEvaluateTool().Invoke(context.Background(), map[string]any{
		"expression": "2 + abc",
	})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
