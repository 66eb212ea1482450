// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package flux

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultFrameInterval approximates one display frame at 60Hz.
const DefaultFrameInterval = 16 * time.Millisecond

// FrameScheduler runs a callback on the owner goroutine at the next frame.
// The returned cancel func prevents the callback from running if it has not
// run yet; calling it after the callback ran is harmless.
type FrameScheduler interface {
	Schedule(fn func()) (cancel func())
}

// =============================================================================
// TIMER FRAMES
// =============================================================================

// TimerFrames fires scheduled callbacks after a fixed interval by posting
// them to the owner loop.
type TimerFrames struct {
	poster   Poster
	interval time.Duration
}

// NewTimerFrames creates a scheduler. A non-positive interval uses
// DefaultFrameInterval.
func NewTimerFrames(poster Poster, interval time.Duration) *TimerFrames {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &TimerFrames{poster: poster, interval: interval}
}

// Interval returns the frame interval.
func (f *TimerFrames) Interval() time.Duration {
	return f.interval
}

// Schedule implements FrameScheduler.
func (f *TimerFrames) Schedule(fn func()) func() {
	var cancelled atomic.Bool
	timer := time.AfterFunc(f.interval, func() {
		f.poster.Post(func() {
			// Cancel may have happened after the timer fired but before the
			// owner loop got here.
			if !cancelled.Load() {
				fn()
			}
		})
	})
	return func() {
		cancelled.Store(true)
		timer.Stop()
	}
}

// =============================================================================
// MANUAL FRAMES
// =============================================================================

// ManualFrames only fires callbacks when Flush is called. Tests use it to
// make coalescing deterministic.
type ManualFrames struct {
	mu      sync.Mutex
	nextID  int
	pending map[int]func()
	order   []int
}

// NewManualFrames creates a scheduler with nothing pending.
func NewManualFrames() *ManualFrames {
	return &ManualFrames{pending: make(map[int]func())}
}

// Schedule implements FrameScheduler.
func (m *ManualFrames) Schedule(fn func()) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.pending[id] = fn
	m.order = append(m.order, id)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
	}
}

// Pending returns the number of callbacks waiting for the next frame.
func (m *ManualFrames) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Flush runs every pending callback in scheduling order and returns how many ran.
// Callbacks scheduled during the flush wait for the next one.
func (m *ManualFrames) Flush() int {
	m.mu.Lock()
	var fns []func()
	for _, id := range m.order {
		if fn, ok := m.pending[id]; ok {
			fns = append(fns, fn)
			delete(m.pending, id)
		}
	}
	m.order = nil
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}
