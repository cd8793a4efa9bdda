package pipeline

import (
	"sort"

	"example.com/canlog/internal/canlog"
	"example.com/canlog/internal/catalog"
)

// ChannelCollection is every sample of one channel in file order.
type ChannelCollection struct {
	Descriptor catalog.Descriptor
	Samples    []canlog.Sample
}

// SortSamples orders samples by id in place. Equal ids keep their relative
// order, which is the order they were read in.
func SortSamples(samples []canlog.Sample) {
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].ID < samples[j].ID })
}

// Group sorts samples and partitions them into one collection per id, in
// ascending id order. Descriptors come from cat; ids it does not know get an
// anonymous descriptor.
func Group(cat *catalog.Catalog, samples []canlog.Sample) []ChannelCollection {
	SortSamples(samples)
	return groupSorted(cat, samples)
}

// groupSorted walks samples once, opening a collection whenever the id
// increases. samples must already be sorted by id.
func groupSorted(cat *catalog.Catalog, samples []canlog.Sample) []ChannelCollection {
	var out []ChannelCollection
	start := 0
	for i := 1; i <= len(samples); i++ {
		if i < len(samples) && samples[i].ID == samples[start].ID {
			continue
		}
		out = append(out, ChannelCollection{
			Descriptor: cat.Resolve(samples[start].ID),
			Samples:    samples[start:i:i],
		})
		start = i
	}
	return out
}

// Flatten concatenates the samples of cols in collection order.
func Flatten(cols []ChannelCollection) []canlog.Sample {
	n := 0
	for _, c := range cols {
		n += len(c.Samples)
	}
	out := make([]canlog.Sample, 0, n)
	for _, c := range cols {
		out = append(out, c.Samples...)
	}
	return out
}
