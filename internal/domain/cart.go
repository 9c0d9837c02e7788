package domain

// CartLine is one menu item in a cart. ItemRef is an opaque catalog
// identifier; the engine never interprets it.
type CartLine struct {
	ItemRef  string `json:"item_ref" bson:"item_ref"`
	Quantity int    `json:"quantity" bson:"quantity"`
}

// Cart is the authoritative shared cart for one account. Version is a
// server-assigned Unix-millisecond timestamp and never decreases.
type Cart struct {
	AccountID string     `json:"account_id" bson:"account_id"`
	Lines     []CartLine `json:"lines" bson:"lines"`
	Version   int64      `json:"version" bson:"version"`
}

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.Lines = make([]CartLine, len(c.Lines))
	copy(out.Lines, c.Lines)
	return &out
}

func (c *Cart) Empty() bool {
	return c == nil || len(c.Lines) == 0
}

// NormalizeLines merges duplicate item refs (quantities summed, first
// position kept) and drops lines with a non-positive quantity. Insertion
// order is the display order, so it is preserved.
func NormalizeLines(lines []CartLine) []CartLine {
	merged := make([]CartLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.ItemRef == "" {
			continue
		}
		if i, ok := index[line.ItemRef]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ItemRef] = len(merged)
		merged = append(merged, line)
	}
	out := merged[:0]
	for _, line := range merged {
		if line.Quantity > 0 {
			out = append(out, line)
		}
	}
	return out
}
