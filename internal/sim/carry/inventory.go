package carry

// Item is an item kind id from the item catalog. Inventory entries reference
// kinds only; there is no per-instance state.
type Item string

// Side is the visual stack an item was placed on. Items alternate between
// the two hands, starting on the right.
type Side int

const (
	SideRight Side = iota
	SideLeft
)

type Entry struct {
	Item Item
	Side Side
}

// Inventory is an ordered, append-only stack of carried items. The only way
// to remove items is Clear, which drops everything at once.
type Inventory struct {
	entries  []Entry
	left     int
	right    int
	nextLeft bool
}

// Add appends unconditionally.
func (inv *Inventory) Add(item Item) Entry {
	e := Entry{Item: item, Side: SideRight}
	if inv.nextLeft {
		e.Side = SideLeft
		inv.left++
	} else {
		inv.right++
	}
	inv.nextLeft = !inv.nextLeft
	inv.entries = append(inv.entries, e)
	return e
}

// Clear empties the inventory and returns what was dropped, in pickup order.
// The side alternation is not reset.
func (inv *Inventory) Clear() []Item {
	dropped := inv.Items()
	inv.entries = nil
	inv.left, inv.right = 0, 0
	return dropped
}

func (inv *Inventory) Count() int { return len(inv.entries) }

func (inv *Inventory) Empty() bool { return len(inv.entries) == 0 }

// Items returns a copy of the carried kinds in pickup order.
func (inv *Inventory) Items() []Item {
	out := make([]Item, len(inv.entries))
	for i, e := range inv.entries {
		out[i] = e.Item
	}
	return out
}

func (inv *Inventory) Entries() []Entry {
	return append([]Entry(nil), inv.entries...)
}

// Stacks reports how many items sit on each hand.
func (inv *Inventory) Stacks() (left, right int) { return inv.left, inv.right }

func itemStrings(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = string(it)
	}
	return out
}
