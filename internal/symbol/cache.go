// Package symbol implements the bidirectional mapping between stable
// 64-bit numeric symbols and human-readable strings (level names, game
// modes, regions). The cache is read-heavy and append-only at runtime;
// symbols are never reassigned once minted.
package symbol

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
)

// Cache maps symbols to names and back. Both lookup directions are O(1).
type Cache struct {
	mu       sync.RWMutex
	bySymbol map[int64]string
	byName   map[string]int64
}

// NewCache creates an empty symbol cache.
func NewCache() *Cache {
	return &Cache{
		bySymbol: make(map[int64]string),
		byName:   make(map[string]int64),
	}
}

// Add mints a (symbol, name) pair. Re-adding an identical pair is a
// no-op; minting a symbol or name that already maps elsewhere is an
// error, since symbols are immutable once assigned.
func (c *Cache) Add(symbol int64, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.bySymbol[symbol]; ok {
		if existing == name {
			return nil
		}
		return fmt.Errorf("symbol %d already mapped to %q", symbol, existing)
	}
	if existing, ok := c.byName[name]; ok {
		return fmt.Errorf("name %q already mapped to symbol %d", name, existing)
	}

	c.bySymbol[symbol] = name
	c.byName[name] = symbol
	return nil
}

// Name resolves a symbol to its string form.
func (c *Cache) Name(symbol int64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.bySymbol[symbol]
	return name, ok
}

// Symbol resolves a string to its symbol.
func (c *Cache) Symbol(name string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	symbol, ok := c.byName[name]
	return symbol, ok
}

// Intern returns the symbol for name, minting one deterministically if
// the name has not been seen before.
func (c *Cache) Intern(name string) int64 {
	if symbol, ok := c.Symbol(name); ok {
		return symbol
	}

	symbol := Generate(name)

	c.mu.Lock()
	defer c.mu.Unlock()
	// Re-check under the write lock; another goroutine may have won.
	if existing, ok := c.byName[name]; ok {
		return existing
	}
	// A hash collision with an already-minted symbol must not remap it.
	// Probe forward until a free value is found.
	for {
		if _, taken := c.bySymbol[symbol]; !taken {
			break
		}
		symbol = (symbol + 1) & (1<<63 - 1)
	}
	c.bySymbol[symbol] = name
	c.byName[name] = symbol
	return symbol
}

// Count returns the number of minted symbols.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bySymbol)
}

// Export serializes the cache contents as a JSON object of name -> symbol.
func (c *Cache) Export() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]int64, len(c.byName))
	for name, symbol := range c.byName {
		out[name] = symbol
	}
	return json.Marshal(out)
}

// Import loads (symbol, name) pairs from the JSON form produced by
// Export, merging into the cache. Conflicting reassignments fail.
func (c *Cache) Import(data []byte) error {
	var in map[string]int64
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to parse symbol cache document: %w", err)
	}

	for name, symbol := range in {
		if err := c.Add(symbol, name); err != nil {
			return err
		}
	}
	return nil
}

// Generate derives a stable 64-bit symbol from a name. The value is
// deterministic across runs so independently-seeded caches agree.
func Generate(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	// Keep the value positive so it survives JSON round trips through
	// tooling that treats symbols as signed decimals.
	return int64(h.Sum64() &^ (1 << 63))
}
