package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Descriptor is the metadata of one CAN channel. Identity is ID alone; an
// empty Name, Description or Unit means the header did not provide one.
type Descriptor struct {
	ID          uint32   `json:"id"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Scale       *float32 `json:"scale,omitempty"`
	Unit        string   `json:"unit,omitempty"`

	// Derived marks descriptors synthesized by device masking.
	Derived bool `json:"derived,omitempty"`
}

// Anonymous returns a descriptor carrying only the id.
func Anonymous(id uint32) Descriptor {
	return Descriptor{ID: id}
}

func (d Descriptor) Equal(other Descriptor) bool {
	return d.ID == other.ID
}

func (d Descriptor) ScaleValue() (float32, bool) {
	if d.Scale == nil {
		return 0, false
	}
	return *d.Scale, true
}

// Key is the dataset name for the channel: the symbolic name, or the decimal
// id for anonymous channels.
func (d Descriptor) Key() string {
	if d.Name != "" {
		return d.Name
	}
	return fmt.Sprintf("%d", d.ID)
}

func (d Descriptor) String() string {
	scale := "None"
	if s, ok := d.ScaleValue(); ok {
		scale = fmt.Sprintf("%g", s)
	}
	return fmt.Sprintf("%s = 0x%08X (%s) [%s, %s]",
		noneIfEmpty(d.Name), d.ID, noneIfEmpty(d.Description), scale, noneIfEmpty(d.Unit))
}

func noneIfEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "None"
	}
	return s
}

// DuplicatePolicy decides which header entry wins when an id repeats.
type DuplicatePolicy string

const (
	LastWins  DuplicatePolicy = "last"
	FirstWins DuplicatePolicy = "first"
)

func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last":
		return LastWins, nil
	case "first":
		return FirstWins, nil
	default:
		return LastWins, fmt.Errorf("unknown duplicate policy %q", s)
	}
}

// Catalog maps channel ids to descriptors. Entries are never removed; every
// insertion bumps Version so callers can tell snapshots apart.
type Catalog struct {
	entries map[uint32]Descriptor
	version uint64

	deviceShift uint
	hasShift    bool
}

func New() *Catalog {
	return &Catalog{entries: make(map[uint32]Descriptor)}
}

// FromDescriptors deduplicates ds by id according to policy and returns the
// ids that occurred more than once.
func FromDescriptors(ds []Descriptor, policy DuplicatePolicy) (*Catalog, []uint32) {
	c := New()
	seen := make(map[uint32]bool)
	var dups []uint32
	for _, d := range ds {
		if _, exists := c.entries[d.ID]; exists {
			if !seen[d.ID] {
				dups = append(dups, d.ID)
				seen[d.ID] = true
			}
			if policy == FirstWins {
				continue
			}
		}
		c.entries[d.ID] = d
		c.version++
	}
	return c, dups
}

// Lookup returns the descriptor registered for id.
func (c *Catalog) Lookup(id uint32) (Descriptor, bool) {
	if c == nil {
		return Descriptor{}, false
	}
	d, ok := c.entries[id]
	return d, ok
}

// Resolve returns the registered descriptor or an anonymous one.
func (c *Catalog) Resolve(id uint32) Descriptor {
	if d, ok := c.Lookup(id); ok {
		return d
	}
	return Anonymous(id)
}

// Insert adds d if its id is not yet present. Existing entries are kept.
func (c *Catalog) Insert(d Descriptor) bool {
	if _, exists := c.entries[d.ID]; exists {
		return false
	}
	c.entries[d.ID] = d
	c.version++
	return true
}

// Clone returns an independent copy with the same version.
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{entries: make(map[uint32]Descriptor, c.Len()), version: c.Version()}
	if c == nil {
		return out
	}
	out.deviceShift, out.hasShift = c.deviceShift, c.hasShift
	for id, d := range c.entries {
		out.entries[id] = d
	}
	return out
}

// SetDeviceShift records the device field offset declared by the header.
func (c *Catalog) SetDeviceShift(shift uint) {
	c.deviceShift = shift
	c.hasShift = true
}

// DeviceShift returns the device field offset declared by the header, if any.
func (c *Catalog) DeviceShift() (uint, bool) {
	if c == nil {
		return 0, false
	}
	return c.deviceShift, c.hasShift
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

func (c *Catalog) Version() uint64 {
	if c == nil {
		return 0
	}
	return c.version
}

func (c *Catalog) IsEmpty() bool {
	return c.Len() == 0
}

// Descriptors returns all entries ordered by id.
func (c *Catalog) Descriptors() []Descriptor {
	if c == nil {
		return nil
	}
	out := make([]Descriptor, 0, len(c.entries))
	for _, d := range c.entries {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
