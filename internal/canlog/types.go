package canlog

import (
	"fmt"
	"strings"
)

// Sample is one numeric CAN value. Timestamp is in the resolution chosen for
// the run and is filled in by the Reconstructor.
type Sample struct {
	ID        uint32  `json:"id"`
	Value     float32 `json:"value"`
	Timestamp uint64  `json:"ts"`
}

func (s Sample) String() string {
	return fmt.Sprintf("0x%08X @ %d = %g", s.ID, s.Timestamp, s.Value)
}

// Annotation is a free-text note from the comment file. It is never matched
// against the catalogue.
type Annotation struct {
	ID        uint32 `json:"id"`
	Timestamp uint64 `json:"ts"`
	Text      string `json:"text"`
}

// Grammar selects the on-disk log variant.
type Grammar uint8

const (
	// Simple lines look like "0x10FE0102\t0 Prozent\t08:52:25.19".
	Simple Grammar = iota
	// Extended lines carry DLC and raw payload bytes before the value:
	// "100C0000h\t8\t2E 00 00 00 01 00 00 00\t0,44921875 L/min\t1\t average Blood Flow\t\t08:44:04.97".
	Extended
)

func (g Grammar) String() string {
	if g == Extended {
		return "extended"
	}
	return "simple"
}

// GrammarFor maps the caller's extended-log flag to a Grammar.
func GrammarFor(extended bool) Grammar {
	if extended {
		return Extended
	}
	return Simple
}

// Resolution is the unit of reconstructed timestamps.
type Resolution uint8

const (
	Nanosecond Resolution = iota
	Millisecond
)

func ParseResolution(s string) (Resolution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ns", "nanosecond", "nanoseconds":
		return Nanosecond, nil
	case "ms", "millisecond", "milliseconds":
		return Millisecond, nil
	default:
		return Nanosecond, fmt.Errorf("unknown timestamp resolution %q", s)
	}
}

func (r Resolution) String() string {
	if r == Millisecond {
		return "ms"
	}
	return "ns"
}
