package discovery

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	apperrors "github.com/kbukum/regkit/errors"
)

// Strategy selects one instance out of a lookup result.
type Strategy int

const (
	// StrategyRandom picks uniformly at random.
	StrategyRandom Strategy = iota
	// StrategyRoundRobin cycles through instances per service name.
	StrategyRoundRobin
	// StrategyWeighted picks at random in proportion to instance weight.
	StrategyWeighted
)

var strategyNames = map[Strategy]string{
	StrategyRandom:     "random",
	StrategyRoundRobin: "round_robin",
	StrategyWeighted:   "weighted",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// Valid reports whether s is one of the defined strategies.
func (s Strategy) Valid() bool {
	_, ok := strategyNames[s]
	return ok
}

// ParseStrategy maps "random", "round_robin" (or "round-robin", "roundrobin")
// and "weighted" to a Strategy. Anything else is UNKNOWN_STRATEGY.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "random":
		return StrategyRandom, nil
	case "round_robin", "round-robin", "roundrobin":
		return StrategyRoundRobin, nil
	case "weighted":
		return StrategyWeighted, nil
	default:
		return 0, apperrors.UnknownStrategy(name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, apperrors.UnknownStrategy(s.String())
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func selectRandom(instances []ServiceInstance, intn func(int) int) ServiceInstance {
	return instances[intn(len(instances))]
}

// selectWeighted draws r in [0, total) and returns the first instance whose
// cumulative weight reaches r. The comparison is inclusive.
func selectWeighted(instances []ServiceInstance, float64n func() float64) ServiceInstance {
	total := 0.0
	for _, inst := range instances {
		total += inst.EffectiveWeight()
	}

	r := float64n() * total
	upto := 0.0
	for _, inst := range instances {
		w := inst.EffectiveWeight()
		if upto+w >= r {
			return inst
		}
		upto += w
	}
	panic(fmt.Sprintf("discovery: weighted selection exhausted %d instances (r=%v total=%v)", len(instances), r, total))
}

// cursor remembers where round-robin left off for one service and tag.
type cursor struct {
	count    int
	snapshot []ServiceInstance
	next     int
}

// cursorSet holds one round-robin cursor per cursorKey, so lookups with
// different tag filters never share a snapshot.
//
// A cursor is rebuilt only when the number of healthy instances changes.
// If an instance is replaced by another and the count stays the same, the
// cursor keeps cycling its snapshot, which may still name the departed
// instance until the count changes.
type cursorSet struct {
	mu      sync.Mutex
	cursors map[string]*cursor
}

// cursorKey identifies the cursor for lookups of service filtered by tag.
func cursorKey(service, tag string) string {
	return service + "\x00" + tag
}

func newCursorSet() *cursorSet {
	return &cursorSet{cursors: make(map[string]*cursor)}
}

func (s *cursorSet) next(key string, instances []ServiceInstance) ServiceInstance {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cursors[key]
	if !ok || c.count != len(instances) {
		snapshot := make([]ServiceInstance, len(instances))
		copy(snapshot, instances)
		c = &cursor{count: len(instances), snapshot: snapshot}
		s.cursors[key] = c
	}

	inst := c.snapshot[c.next]
	c.next = (c.next + 1) % len(c.snapshot)
	return inst
}

// reset drops every cursor.
func (s *cursorSet) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.cursors)
}

func defaultRand() (func(int) int, func() float64) {
	return rand.IntN, rand.Float64
}
