// Package snowflake issues time-ordered run identifiers.
//
// Layout (63 usable bits):
//
//	┌─────────────────────┬────────────┬──────────────┐
//	│      41 bits        │  10 bits   │   12 bits    │
//	│ ms since epoch      │  node      │  sequence    │
//	└─────────────────────┴────────────┴──────────────┘
//
// Run ids are rendered in base36 with a "run_" prefix so they sort by
// creation time when compared as (equal length) strings.
package snowflake

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// 2026-01-01 00:00:00 UTC
	epoch int64 = 1767225600000

	nodeBits     = 10
	sequenceBits = 12

	MaxNode     = (1 << nodeBits) - 1
	maxSequence = (1 << sequenceBits) - 1

	timeShift = nodeBits + sequenceBits
	nodeShift = sequenceBits

	// RunIDPrefix marks ids produced by NextRunID.
	RunIDPrefix = "run_"
)

var (
	ErrInvalidNode    = errors.New("snowflake: node must be between 0 and 1023")
	ErrClockMovedBack = errors.New("snowflake: clock moved backwards")
	ErrMalformedRunID = errors.New("snowflake: malformed run id")
)

// Generator is safe for concurrent use. One generator per process node.
type Generator struct {
	mu       sync.Mutex
	node     int64
	sequence int64
	lastMs   int64
	now      func() int64
}

func NewGenerator(node int64) (*Generator, error) {
	if node < 0 || node > MaxNode {
		return nil, ErrInvalidNode
	}
	return &Generator{
		node: node,
		now:  func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Node returns the node id baked into every generated id.
func (g *Generator) Node() int64 {
	return g.node
}

// Generate returns the next raw id.
func (g *Generator) Generate() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now()
	if ms < g.lastMs {
		return 0, ErrClockMovedBack
	}

	if ms == g.lastMs {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			// 같은 ms 안에서 sequence 소진 → 다음 ms까지 대기
			for ms <= g.lastMs {
				time.Sleep(100 * time.Microsecond)
				ms = g.now()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastMs = ms

	return ((ms - epoch) << timeShift) | (g.node << nodeShift) | g.sequence, nil
}

// NextRunID formats the next id as a run identifier.
func (g *Generator) NextRunID() (string, error) {
	id, err := g.Generate()
	if err != nil {
		return "", err
	}
	return FormatRunID(id), nil
}

// FormatRunID renders a raw id as "run_<base36>".
func FormatRunID(id int64) string {
	return RunIDPrefix + strconv.FormatInt(id, 36)
}

// ParseRunID recovers the raw id from a run identifier.
func ParseRunID(runID string) (int64, error) {
	raw, ok := strings.CutPrefix(runID, RunIDPrefix)
	if !ok || raw == "" {
		return 0, ErrMalformedRunID
	}
	id, err := strconv.ParseInt(raw, 36, 64)
	if err != nil || id < 0 {
		return 0, ErrMalformedRunID
	}
	return id, nil
}

// Decompose splits a raw id into its creation time, node and sequence.
func Decompose(id int64) (created time.Time, node int64, sequence int64) {
	created = time.UnixMilli((id >> timeShift) + epoch).UTC()
	node = (id >> nodeShift) & MaxNode
	sequence = id & maxSequence
	return
}

// RunCreatedAt reports when a run id was issued.
func RunCreatedAt(runID string) (time.Time, error) {
	id, err := ParseRunID(runID)
	if err != nil {
		return time.Time{}, err
	}
	created, _, _ := Decompose(id)
	return created, nil
}
