package tool

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/wrenhq/wren/agent/contract"
)

// Usage describes when the planner should reach for a tool; it is rendered
// into the planner prompt's tool inventory.
type Usage struct {
	Args         map[string]string
	WhenToUse    string
	WhenNotToUse string
}

type entry struct {
	info  *schema.ToolInfo
	usage Usage
	impl  contractx.Tool
}

// Catalog is the process-wide tool registry. Registration happens at startup;
// the catalog is immutable during a run.
type Catalog struct {
	entries map[string]entry
	order   []string
}

func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]entry, 4)}
}

func (c *Catalog) Register(info *schema.ToolInfo, usage Usage, impl contractx.Tool) error {
	if info == nil || strings.TrimSpace(info.Name) == "" {
		return fmt.Errorf("%w: tool info requires a name", contractx.ErrValidation)
	}
	if impl == nil {
		return fmt.Errorf("%w: tool %s has no implementation", contractx.ErrValidation, info.Name)
	}
	if _, exists := c.entries[info.Name]; exists {
		return fmt.Errorf("%w: tool %s registered twice", contractx.ErrValidation, info.Name)
	}
	c.entries[info.Name] = entry{info: info, usage: usage, impl: impl}
	c.order = append(c.order, info.Name)
	return nil
}

// Lookup returns the implementation for a registered tool name.
func (c *Catalog) Lookup(name string) (contractx.Tool, bool) {
	e, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	return e.impl, true
}

func (c *Catalog) Has(name string) bool {
	_, ok := c.entries[name]
	return ok
}

// Definitions returns the registered tool infos in registration order.
func (c *Catalog) Definitions() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(c.order))
	for _, name := range c.order {
		infos = append(infos, c.entries[name].info)
	}
	return infos
}

type inventoryEntry struct {
	ToolName     string            `json:"tool_name"`
	Description  string            `json:"description"`
	ArgsSchema   map[string]string `json:"args_schema,omitempty"`
	WhenToUse    string            `json:"when_to_use,omitempty"`
	WhenNotToUse string            `json:"when_not_to_use,omitempty"`
}

// InventoryJSON renders the registry as the JSON block the planner prompt
// embeds. Registration order is preserved.
func (c *Catalog) InventoryJSON() string {
	inventory := make([]inventoryEntry, 0, len(c.order))
	for _, name := range c.order {
		e := c.entries[name]
		inventory = append(inventory, inventoryEntry{
			ToolName:     e.info.Name,
			Description:  e.info.Desc,
			ArgsSchema:   e.usage.Args,
			WhenToUse:    e.usage.WhenToUse,
			WhenNotToUse: e.usage.WhenNotToUse,
		})
	}

	raw, err := json.MarshalIndent(inventory, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(raw)
}
