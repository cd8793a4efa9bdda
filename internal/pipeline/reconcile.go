package pipeline

import (
	"fmt"
	"sort"

	"example.com/canlog/internal/canlog"
	"example.com/canlog/internal/catalog"
	"example.com/canlog/internal/common"
)

// DefaultDeviceShift is the bit offset of the 4-bit device field when
// neither the caller nor the header names one.
const DefaultDeviceShift = 12

const deviceMask = 0xF

// DeviceOf returns the device number encoded in id.
func DeviceOf(id uint32, shift uint) uint32 {
	return (id >> shift) & deviceMask
}

// BaseID clears the device field of id.
func BaseID(id uint32, shift uint) uint32 {
	return id &^ (deviceMask << shift)
}

// Reconciliation is the outcome of matching samples against a catalogue.
type Reconciliation struct {
	// Catalog is the input catalogue plus every derived descriptor.
	Catalog *catalog.Catalog
	// Derived lists the synthesized descriptors in id order.
	Derived []catalog.Descriptor
	// Unmappable holds ids with neither a direct nor a masked match.
	Unmappable []uint32
}

// Reconcile resolves the id of every sample against cat. The input catalogue
// is not modified: derived descriptors go into a clone that only ever grows.
//
// An id without an entry is retried with its device field cleared. On a
// match a descriptor named "<base>-DEV<n>" is inserted under the original
// id; otherwise the id is reported as unmappable and later resolves to an
// anonymous descriptor.
func Reconcile(cat *catalog.Catalog, samples []canlog.Sample, shift uint) Reconciliation {
	out := Reconciliation{Catalog: cat.Clone()}
	unmappable := make(map[uint32]struct{})
	for _, s := range samples {
		if _, ok := out.Catalog.Lookup(s.ID); ok {
			continue
		}
		if _, ok := unmappable[s.ID]; ok {
			continue
		}
		base, ok := cat.Lookup(BaseID(s.ID, shift))
		if !ok {
			unmappable[s.ID] = struct{}{}
			continue
		}
		d := deriveDescriptor(base, s.ID, DeviceOf(s.ID, shift))
		out.Catalog.Insert(d)
		out.Derived = append(out.Derived, d)
		common.Debugf("derived %s from 0x%08X", d, base.ID)
	}
	sort.Slice(out.Derived, func(i, j int) bool { return out.Derived[i].ID < out.Derived[j].ID })
	for id := range unmappable {
		out.Unmappable = append(out.Unmappable, id)
	}
	sort.Slice(out.Unmappable, func(i, j int) bool { return out.Unmappable[i] < out.Unmappable[j] })
	return out
}

func deriveDescriptor(base catalog.Descriptor, id, device uint32) catalog.Descriptor {
	name := base.Name
	if name == "" {
		name = fmt.Sprintf("0x%08X", base.ID)
	}
	d := base
	d.ID = id
	d.Name = fmt.Sprintf("%s-DEV%d", name, device)
	d.Derived = true
	return d
}
