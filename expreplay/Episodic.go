// Package expreplay implements an episodic experience replay buffer.
//
// The buffer stores whole episodes of transitions and samples
// contiguous windows of transitions from uniformly chosen episodes.
// Its capacity is measured in transitions: when a new episode pushes
// the buffer over capacity, whole episodes are evicted in the order
// they were added. A buffer may be shared by many concurrent writers
// and readers. Each writer records its episode in progress with its
// own EpisodeWriter and only finished episodes become visible to
// readers.
package expreplay

import (
	"fmt"
	"sync"

	"golang.org/x/exp/rand"
)

// Episodic is an episodic experience replay buffer of transitions of
// type T
type Episodic[T any] struct {
	mu       sync.RWMutex
	episodes [][]T
	len      int

	capacity    int
	minCapacity int

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New returns a new episodic replay buffer which holds at most
// capacity transitions and can be sampled once it holds at least
// minCapacity transitions.
func New[T any](capacity, minCapacity int, seed uint64) (*Episodic[T],
	error) {
	if capacity < 1 {
		return nil, fmt.Errorf("new: capacity must be >= 1")
	}
	if minCapacity < 0 {
		return nil, fmt.Errorf("new: minCapacity must be >= 0")
	}
	if minCapacity > capacity {
		return nil, fmt.Errorf("new: cannot have minCapacity (%v) > "+
			"capacity (%v)", minCapacity, capacity)
	}

	return &Episodic[T]{
		capacity:    capacity,
		minCapacity: minCapacity,
		rng:         rand.New(rand.NewSource(seed)),
	}, nil
}

// Len returns the number of transitions in the buffer
func (e *Episodic[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.len
}

// NumEpisodes returns the number of episodes in the buffer
func (e *Episodic[T]) NumEpisodes() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.episodes)
}

// Capacity returns the maximum number of transitions in the buffer
func (e *Episodic[T]) Capacity() int {
	return e.capacity
}

// MinCapacity returns the number of transitions required to be in the
// buffer before the buffer can be sampled
func (e *Episodic[T]) MinCapacity() int {
	return e.minCapacity
}

// AddEpisode adds a finished episode to the buffer, evicting the
// oldest episodes if the buffer exceeds its capacity. Empty episodes
// are ignored.
func (e *Episodic[T]) AddEpisode(episode []T) {
	if len(episode) == 0 {
		return
	}
	ep := make([]T, len(episode))
	copy(ep, episode)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.episodes = append(e.episodes, ep)
	e.len += len(ep)

	for e.len > e.capacity && len(e.episodes) > 0 {
		e.len -= len(e.episodes[0])
		e.episodes[0] = nil
		e.episodes = e.episodes[1:]
	}
}

// Sample samples an episode uniformly at random and returns a
// uniformly random contiguous window of at most maxLen of its
// transitions. If maxLen <= 0, the entire episode is returned. The
// returned slice is a copy and does not alias the buffer.
func (e *Episodic[T]) Sample(maxLen int) ([]T, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.episodes) == 0 {
		return nil, &ExpReplayError{Op: "sample", Err: errEmptyBuffer}
	}
	if e.len < e.minCapacity {
		return nil, &ExpReplayError{Op: "sample", Err: errInsufficientSamples}
	}

	e.rngMu.Lock()
	ep := e.episodes[e.rng.Intn(len(e.episodes))]
	start := 0
	if maxLen > 0 && len(ep) > maxLen {
		start = e.rng.Intn(len(ep) - maxLen + 1)
	}
	e.rngMu.Unlock()

	end := len(ep)
	if maxLen > 0 && start+maxLen < end {
		end = start + maxLen
	}

	window := make([]T, end-start)
	copy(window, ep[start:end])
	return window, nil
}

// NewWriter returns a new EpisodeWriter which adds episodes to the
// buffer
func (e *Episodic[T]) NewWriter() *EpisodeWriter[T] {
	return &EpisodeWriter[T]{buffer: e}
}

// EpisodeWriter records the episode in progress of a single writer.
// An EpisodeWriter is not safe for concurrent use, but many
// EpisodeWriters may write to the same buffer concurrently.
type EpisodeWriter[T any] struct {
	buffer  *Episodic[T]
	current []T
}

// Append appends a transition to the episode in progress
func (w *EpisodeWriter[T]) Append(t T) {
	w.current = append(w.current, t)
}

// Len returns the number of transitions in the episode in progress
func (w *EpisodeWriter[T]) Len() int {
	return len(w.current)
}

// StopEpisode adds the episode in progress to the buffer and starts a
// new episode
func (w *EpisodeWriter[T]) StopEpisode() {
	w.buffer.AddEpisode(w.current)
	w.current = nil
}
