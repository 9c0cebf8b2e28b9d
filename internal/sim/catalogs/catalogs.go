package catalogs

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed items.schema.json
var itemsSchemaJSON string

var itemsSchema = jsonschema.MustCompileString("items.schema.json", itemsSchemaJSON)

const (
	KindDish       = "DISH"
	KindConsumable = "CONSUMABLE"
)

type Catalogs struct {
	Items ItemCatalog
}

type ItemCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]ItemDef
	PaletteDigest string
	DefsDigest    string

	dishes      []string
	consumables []string
}

type ItemDef struct {
	ID          string  `json:"id"`
	Kind        string  `json:"kind"` // "DISH","CONSUMABLE"
	Weight      int     `json:"weight,omitempty"`
	StackHeight float64 `json:"stack_height,omitempty"`
	Impairing   bool    `json:"impairing,omitempty"`
	Boost       float64 `json:"boost,omitempty"`
	LifetimeMs  int     `json:"lifetime_ms,omitempty"`
}

func (d ItemDef) Lifetime() time.Duration { return time.Duration(d.LifetimeMs) * time.Millisecond }

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadItems(filepath.Join(configDir, "items.json"), &c.Items); err != nil {
		return nil, err
	}
	return &c, nil
}

// Parse builds a catalog from raw items.json content.
func Parse(raw []byte) (*Catalogs, error) {
	var c Catalogs
	if err := parseItems(raw, &c.Items); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadItems(path string, out *ItemCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return parseItems(raw, out)
}

func parseItems(raw []byte, out *ItemCatalog) error {
	var doc any
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&doc); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	if err := itemsSchema.Validate(doc); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.Defs = map[string]ItemDef{}
	for _, d := range defs {
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("items.json: duplicate id %s", d.ID)
		}
		if d.Kind == KindConsumable && (d.Boost <= 0 || d.LifetimeMs <= 0) {
			return fmt.Errorf("items.json: consumable %s needs boost and lifetime_ms", d.ID)
		}
		if d.Weight == 0 {
			d.Weight = 1
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	out.dishes, out.consumables = nil, nil
	for i, id := range ids {
		out.Index[id] = uint16(i)
		switch out.Defs[id].Kind {
		case KindDish:
			out.dishes = append(out.dishes, id)
		case KindConsumable:
			out.consumables = append(out.consumables, id)
		}
	}
	if len(out.dishes) == 0 {
		return fmt.Errorf("items.json: no DISH kinds defined")
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

// Dishes lists collectible kinds in palette order.
func (c *ItemCatalog) Dishes() []string { return append([]string(nil), c.dishes...) }

// Consumables lists consumable kinds in palette order.
func (c *ItemCatalog) Consumables() []string { return append([]string(nil), c.consumables...) }

// Pick chooses among ids by weight. roll must be uniform in [0, total weight).
func (c *ItemCatalog) Pick(ids []string, roll func(n int) int) (string, bool) {
	total := 0
	for _, id := range ids {
		total += c.Defs[id].Weight
	}
	if total <= 0 {
		return "", false
	}
	r := roll(total)
	for _, id := range ids {
		r -= c.Defs[id].Weight
		if r < 0 {
			return id, true
		}
	}
	return ids[len(ids)-1], true
}
