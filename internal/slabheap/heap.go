// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package slabheap implements a size-classed slab allocator, ported from
// the engine's original heap.rs: one free-listed slab per size class plus
// an overflow path for oversize requests, with mark-and-sweep GC states
// overlaid on the first byte of every block.
package slabheap

import (
	"errors"
	"fmt"

	"github.com/edsrzf/mmap-go"
)

// Mark is the GC state of a single allocated block, ported from heap.rs's
// DataMarker.
type Mark uint8

const (
	NotAllocated Mark = iota
	KeepAlive
	InUse
	Old
	NotUse
)

// sizeClasses lists the 9 block sizes a slab can hand out, smallest to
// largest. Anything larger than the last class is an oversize allocation.
var sizeClasses = [9]uint32{16, 32, 64, 128, 256, 512, 1024, 2048, 4096}

const maxClassSize = 4096

// DefaultPageSize is the size of each page a slab grows by, 4x the largest
// size class, matching heap.rs's alloc_zeroed(4096*4) grow call.
const DefaultPageSize = maxClassSize * 4

var ErrPageAcquisitionFailed = errors.New("slabheap: page acquisition failed")
var ErrInvalidBlock = errors.New("slabheap: invalid block pointer")

// entry is the free-list node overlaid on the first bytes of a free block,
// ported from heap.rs's SlabEntry.
type entry struct {
	mark Mark
	next uint32 // index into the owning slab's backing arena, 0 means nil
}

const entryHeaderSize = 8 // conservative; real payload starts after this

// slab manages every block of one size class.
type slab struct {
	blockSize uint32
	pageSize  uint32
	pages     []mmap.MMap
	free      uint32 // 1-based index of head free entry, 0 = empty
	arena     []blockLoc
}

// blockLoc locates a block within a specific page.
type blockLoc struct {
	page   int
	offset uint32
}

func newSlab(blockSize uint32, pageSize uint32) *slab {
	return &slab{blockSize: blockSize, pageSize: pageSize}
}

func (s *slab) grow() error {
	m, err := mmap.MapRegion(nil, int(s.pageSize), mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPageAcquisitionFailed, err)
	}
	for i := range m {
		m[i] = 0
	}
	pageIdx := len(s.pages)
	s.pages = append(s.pages, m)

	blocksPerPage := s.pageSize / s.blockSize
	for i := uint32(0); i < blocksPerPage; i++ {
		s.arena = append(s.arena, blockLoc{page: pageIdx, offset: i * s.blockSize})
		idx := uint32(len(s.arena)) // 1-based
		s.setEntry(idx, entry{mark: NotAllocated, next: s.free})
		s.free = idx
	}
	return nil
}

func (s *slab) blockBytes(idx uint32) []byte {
	loc := s.arena[idx-1]
	page := s.pages[loc.page]
	return page[loc.offset : loc.offset+s.blockSize]
}

func (s *slab) setEntry(idx uint32, e entry) {
	b := s.blockBytes(idx)
	b[0] = byte(e.mark)
	b[1] = byte(e.next)
	b[2] = byte(e.next >> 8)
	b[3] = byte(e.next >> 16)
	b[4] = byte(e.next >> 24)
}

func (s *slab) getEntry(idx uint32) entry {
	b := s.blockBytes(idx)
	next := uint32(b[1]) | uint32(b[2])<<8 | uint32(b[3])<<16 | uint32(b[4])<<24
	return entry{mark: Mark(b[0]), next: next}
}

func (s *slab) alloc() (uint32, error) {
	if s.free == 0 {
		if err := s.grow(); err != nil {
			return 0, err
		}
	}
	idx := s.free
	e := s.getEntry(idx)
	s.free = e.next
	s.setEntry(idx, entry{mark: InUse, next: 0})
	return idx, nil
}

func (s *slab) dealloc(idx uint32) {
	s.setEntry(idx, entry{mark: NotAllocated, next: s.free})
	s.free = idx
}

func (s *slab) payload(idx uint32) []byte {
	return s.blockBytes(idx)[entryHeaderSize:]
}

// Ptr is an opaque handle to a live slab allocation.
type Ptr struct {
	class uint8 // index into sizeClasses, or oversizeClass for overflow
	idx   uint32
	over  []byte // set only for oversize allocations
}

const oversizeClass = 255

// Heap owns one slab per size class plus the oversize overflow set.
type Heap struct {
	slabs    [len(sizeClasses)]*slab
	oversize map[uint32][]byte
	nextOver uint32
	pageSize uint32
}

// New constructs a Heap whose slabs grow by pageSize bytes at a time.
func New(pageSize uint32) *Heap {
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	h := &Heap{oversize: make(map[uint32][]byte), pageSize: pageSize}
	for i, sz := range sizeClasses {
		h.slabs[i] = newSlab(sz, pageSize)
	}
	return h
}

func classFor(size uint32) (int, bool) {
	for i, sz := range sizeClasses {
		if size <= sz {
			return i, true
		}
	}
	return 0, false
}

// Alloc returns a zero-filled block of at least size bytes and a Ptr
// identifying it for Free/Payload/SetMark.
func (h *Heap) Alloc(size uint32) (Ptr, []byte, error) {
	if ci, ok := classFor(size + entryHeaderSize); ok {
		idx, err := h.slabs[ci].alloc()
		if err != nil {
			return Ptr{}, nil, err
		}
		buf := h.slabs[ci].payload(idx)
		for i := range buf {
			buf[i] = 0
		}
		return Ptr{class: uint8(ci), idx: idx}, buf, nil
	}
	buf := make([]byte, size)
	h.nextOver++
	id := h.nextOver
	h.oversize[id] = buf
	return Ptr{class: oversizeClass, idx: id, over: buf}, buf, nil
}

// Payload returns the bytes backing p.
func (h *Heap) Payload(p Ptr) []byte {
	if p.class == oversizeClass {
		return h.oversize[p.idx]
	}
	return h.slabs[p.class].payload(p.idx)
}

// SetMark updates p's GC mark byte.
func (h *Heap) SetMark(p Ptr, m Mark) {
	if p.class == oversizeClass {
		return // oversize blocks are tracked directly in h.oversize, freed via Free
	}
	s := h.slabs[p.class]
	e := s.getEntry(p.idx)
	e.mark = m
	s.setEntry(p.idx, e)
}

// Mark returns p's current GC mark byte.
func (h *Heap) Mark(p Ptr) Mark {
	if p.class == oversizeClass {
		if _, ok := h.oversize[p.idx]; ok {
			return InUse
		}
		return NotUse
	}
	return h.slabs[p.class].getEntry(p.idx).mark
}

// Free releases p immediately, independent of the mark-and-sweep pass.
func (h *Heap) Free(p Ptr) {
	if p.class == oversizeClass {
		delete(h.oversize, p.idx)
		return
	}
	h.slabs[p.class].dealloc(p.idx)
}

// Sweep walks every live allocation across all size classes, advancing
// InUse -> Old -> NotUse -> freed. Runtime's background GC loop calls it
// once per Config.GCSweepInterval tick. keepAlive objects (KeepAlive mark) are
// never advanced or freed by Sweep.
func (h *Heap) Sweep() (freed int) {
	for _, s := range h.slabs {
		for idx := uint32(1); idx <= uint32(len(s.arena)); idx++ {
			e := s.getEntry(idx)
			switch e.mark {
			case InUse:
				e.mark = Old
				s.setEntry(idx, e)
			case Old:
				e.mark = NotUse
				s.setEntry(idx, e)
			case NotUse:
				s.dealloc(idx)
				freed++
			}
		}
	}
	return freed
}

// Stats reports per-class occupancy, used by the inspector's GET /heap.
type ClassStats struct {
	BlockSize   uint32
	TotalBlocks int
	Pages       int
}

func (h *Heap) Stats() []ClassStats {
	out := make([]ClassStats, len(h.slabs))
	for i, s := range h.slabs {
		out[i] = ClassStats{BlockSize: s.blockSize, TotalBlocks: len(s.arena), Pages: len(s.pages)}
	}
	return out
}

// OversizeCount reports how many live oversize allocations exist.
func (h *Heap) OversizeCount() int { return len(h.oversize) }
