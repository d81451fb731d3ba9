// Package kernel implements the compiled-kernel cache and loader (C3): hash
// a generated kernel source, rename its entry point to a hash-derived name,
// compile it once per process, and memoize the resulting function handle.
//
// The cache is a function of source text only — two templates differing
// only in whitespace are allowed, but not required, to produce distinct
// cache entries, since the hash runs over raw source bytes.
package kernel

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/orneryd/tensorgpu/internal/driver"
)

// entryIdent is the literal identifier every kernel template declares its
// entry point under. The loader substitutes it for a hash-derived name so
// that two distinct kernels never collide under the same device-side
// symbol. Templates must avoid this substring anywhere else in their source
// (see the design note on string-based kernel naming) — it would also be
// rewritten, silently corrupting the kernel.
const entryIdent = "kernel"

// Cache memoizes compiled kernel handles by source hash for the lifetime of
// a process. Entries are created on miss and never evicted.
type Cache struct {
	mu      sync.Mutex
	entries map[uint64]driver.Function
}

// NewCache creates an empty kernel cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[uint64]driver.Function)}
}

// CompileAndLoad hashes source, renames its kernel entry point to a name
// derived from that hash, compiles it on dev if not already loaded, and
// returns the (possibly cached) function handle.
//
// Compile failure is fatal and returned wrapped in cerr.ErrCompileFailed by
// the driver implementation; callers should treat any error here as
// unrecoverable.
func (c *Cache) CompileAndLoad(source string, dev driver.Device, opts driver.CompileOptions) (driver.Function, error) {
	hash := xxhash.Sum64String(source)

	c.mu.Lock()
	if fn, ok := c.entries[hash]; ok {
		c.mu.Unlock()
		return fn, nil
	}
	c.mu.Unlock()

	name := fmt.Sprintf("kernel_%x", hash)
	renamed := strings.ReplaceAll(source, entryIdent, name)

	if !dev.HasFunc(name) {
		ptx, err := dev.CompilePTX(renamed, opts)
		if err != nil {
			return nil, err
		}
		if err := dev.LoadPTX(ptx, name, []string{name}); err != nil {
			return nil, err
		}
	}

	fn, err := dev.GetFunc(name, name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[hash] = fn
	c.mu.Unlock()
	return fn, nil
}

// Name returns the hash-derived entry point name CompileAndLoad would use
// for source, without compiling it. Useful for tests and diagnostics.
func Name(source string) string {
	return fmt.Sprintf("kernel_%x", xxhash.Sum64String(source))
}
