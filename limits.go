package kfx

type Limits struct {
	MaxContainerSize uint64
	MaxSymbols       uint32
	MaxSymbolLen     uint32
	MaxFragments     uint32
	MaxRecordLen     uint32 // stored payload length, before decompression
	MaxUncompressed  uint64 // per record, after decompression
	MaxDepth         int    // value nesting
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxContainerSize: 2 << 30,   // 2 GiB
		MaxSymbols:       1 << 20,   // 1M local symbols
		MaxSymbolLen:     4 << 10,   // 4 KiB
		MaxFragments:     1 << 20,   // 1M records
		MaxRecordLen:     1 << 30,   // 1 GiB
		MaxUncompressed:  512 << 20, // 512 MiB
		MaxDepth:         64,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxContainerSize == 0 {
		l.MaxContainerSize = d.MaxContainerSize
	}
	if l.MaxSymbols == 0 {
		l.MaxSymbols = d.MaxSymbols
	}
	if l.MaxSymbolLen == 0 {
		l.MaxSymbolLen = d.MaxSymbolLen
	}
	if l.MaxFragments == 0 {
		l.MaxFragments = d.MaxFragments
	}
	if l.MaxRecordLen == 0 {
		l.MaxRecordLen = d.MaxRecordLen
	}
	if l.MaxUncompressed == 0 {
		l.MaxUncompressed = d.MaxUncompressed
	}
	if l.MaxDepth == 0 {
		l.MaxDepth = d.MaxDepth
	}
	return l
}
