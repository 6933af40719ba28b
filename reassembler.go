package rstream

import (
	"log/slog"

	"github.com/google/btree"
)

const btreeDegree = 8

// Reassembler rebuilds a contiguous byte stream from indexed substrings that may
// arrive out of order, overlap or be duplicated. Bytes are written to the output
// as soon as they are contiguous with what was already written. Bytes known ahead
// of a gap are held until the gap is filled, as long as they fit the output's
// available capacity; bytes past it are discarded.
type Reassembler struct {
	logger
	output StreamWriter
	// pending holds bytes received past a gap, keyed by stream index.
	// Stored ranges never overlap and all start after nextIndex.
	pending      *btree.BTreeG[pendingRange]
	pendingBytes uint64
	// nextIndex is the first stream index not yet written to output.
	nextIndex uint64
	// finSeen is set once any insert carried the end of stream. end is then
	// the index one past the final byte.
	finSeen bool
	end     uint64
}

type pendingRange struct {
	start uint64
	data  []byte
}

func (p pendingRange) end() uint64 { return p.start + uint64(len(p.data)) }

func lessRange(a, b pendingRange) bool { return a.start < b.start }

// NewReassembler returns a Reassembler that writes to output.
func NewReassembler(output StreamWriter) *Reassembler {
	return &Reassembler{
		output:  output,
		pending: btree.NewG(btreeDegree, lessRange),
	}
}

// SetLogger sets the logger used by the Reassembler.
func (r *Reassembler) SetLogger(log *slog.Logger) { r.log = log }

// Writer returns the output the Reassembler writes to.
func (r *Reassembler) Writer() StreamWriter { return r.output }

// BytesPending returns the number of bytes stored that cannot be written yet.
func (r *Reassembler) BytesPending() uint64 { return r.pendingBytes }

// FirstUnassembled returns the stream index of the next byte expected by the output.
func (r *Reassembler) FirstUnassembled() uint64 { return r.nextIndex }

// Insert adds data, which starts at stream index firstIndex, to the stream.
// isLast marks data as the end of the stream. The output is closed once every
// byte up to the end has been written, which may be on a later call if this one
// was truncated by capacity.
func (r *Reassembler) Insert(firstIndex uint64, data []byte, isLast bool) {
	if r.output.IsClosed() || r.output.HasError() {
		return
	}
	if isLast {
		r.finSeen = true
		r.end = firstIndex + uint64(len(data))
	}
	firstUnacceptable := r.nextIndex + r.output.AvailableCapacity()
	dataEnd := firstIndex + uint64(len(data))
	// Trim what was already written and what does not fit the output.
	if firstIndex < r.nextIndex {
		if dataEnd <= r.nextIndex {
			data = nil
		} else {
			data = data[r.nextIndex-firstIndex:]
			firstIndex = r.nextIndex
		}
	}
	if dataEnd > firstUnacceptable {
		if firstIndex >= firstUnacceptable {
			data = nil
		} else {
			data = data[:firstUnacceptable-firstIndex]
		}
		if len(data) > 0 || isLast {
			r.trace("reasm:truncate", slog.Uint64("index", firstIndex), slog.Uint64("unacceptable", firstUnacceptable))
		}
	}
	if len(data) > 0 {
		r.store(firstIndex, data)
	}
	r.flush()
	if r.finSeen && r.pending.Len() == 0 && r.nextIndex == r.end {
		r.debug("reasm:close", slog.Uint64("end", r.end))
		r.output.Close()
	}
}

// store merges [start, start+len(data)) into the pending set. Every stored
// range that overlaps or touches the new one is absorbed into a single range.
func (r *Reassembler) store(start uint64, data []byte) {
	end := start + uint64(len(data))
	var absorbed []pendingRange
	r.pending.DescendLessOrEqual(pendingRange{start: start}, func(p pendingRange) bool {
		if p.start < start && p.end() >= start {
			absorbed = append(absorbed, p)
		}
		return false // Only the closest predecessor can reach into start.
	})
	r.pending.AscendGreaterOrEqual(pendingRange{start: start}, func(p pendingRange) bool {
		if p.start > end {
			return false
		}
		absorbed = append(absorbed, p)
		return true
	})

	mergedStart, mergedEnd := start, end
	for _, p := range absorbed {
		mergedStart = min(mergedStart, p.start)
		mergedEnd = max(mergedEnd, p.end())
	}
	if len(absorbed) == 1 && absorbed[0].start == mergedStart && absorbed[0].end() == mergedEnd {
		return // Nothing new.
	}
	merged := make([]byte, mergedEnd-mergedStart)
	for _, p := range absorbed {
		copy(merged[p.start-mergedStart:], p.data)
		r.pending.Delete(p)
		r.pendingBytes -= uint64(len(p.data))
	}
	copy(merged[start-mergedStart:], data)
	r.pending.ReplaceOrInsert(pendingRange{start: mergedStart, data: merged})
	r.pendingBytes += uint64(len(merged))
}

// flush writes every pending range that is contiguous with the output.
func (r *Reassembler) flush() {
	for {
		p, ok := r.pending.Min()
		if !ok || p.start != r.nextIndex {
			return
		}
		r.pending.DeleteMin()
		r.pendingBytes -= uint64(len(p.data))
		n := r.output.Push(p.data)
		r.nextIndex += uint64(n)
		if n < len(p.data) {
			// Output shrank under us. Keep the remainder for a later insert.
			rest := pendingRange{start: r.nextIndex, data: p.data[n:]}
			r.pending.ReplaceOrInsert(rest)
			r.pendingBytes += uint64(len(rest.data))
			return
		}
	}
}
