// Package config exposes the operational knobs a kernel allocator
// otherwise leaves as compile-time constants: default arena quanta,
// the base arena's initial seed size, the default import scale, and
// how many pages BT-pool growth fetches at a time. The fixed
// invariants (the 193-chain alloc hash, the 64 free-list buckets,
// the large-slab cutoff) are not configurable here; those are
// structural constants the rest of the code assumes, not tunables.
package config

import "github.com/xyproto/env/v2"

// Config holds every environment-tunable knob, loaded once at process
// start via Load.
type Config struct {
	// BaseSeedPages is how many pages the base arena is seeded with
	// before any allocator exists.
	BaseSeedPages int

	// KPagesQuantum and KMallocQuantum are the minimum alignment/grain
	// of the kpages and kmalloc arenas respectively.
	KPagesQuantum  uintptr
	KMallocQuantum uintptr

	// ImportScale is the default import_scale factor new non-base
	// arenas are built with (import size is max(size, size<<scale)).
	ImportScale uint

	// BTGrowthPages is how many pages acquireBT fetches per growth
	// step. The allocator itself always fetches one page at a time by
	// default; this is exposed so a deployment can batch growth more
	// aggressively without touching the allocator's own code.
	BTGrowthPages int
}

const (
	envBaseSeedPages   = "KMEM_BASE_SEED_PAGES"
	envKPagesQuantum   = "KMEM_KPAGES_QUANTUM"
	envKMallocQuantum  = "KMEM_KMALLOC_QUANTUM"
	envImportScale     = "KMEM_IMPORT_SCALE"
	envBTGrowthPages   = "KMEM_BT_GROWTH_PAGES"
)

// Load reads every knob from the environment, falling back to
// bootstrap-sane defaults: a handful of pages for the base,
// byte-granular kmalloc, page-granular kpages, a single page per
// BT-growth step, import_scale of 1.
func Load() *Config {
	return &Config{
		BaseSeedPages:  env.Int(envBaseSeedPages, 16),
		KPagesQuantum:  uintptr(env.Int(envKPagesQuantum, 4096)),
		KMallocQuantum: uintptr(env.Int(envKMallocQuantum, 8)),
		ImportScale:    uint(env.Int(envImportScale, 1)),
		BTGrowthPages:  env.Int(envBTGrowthPages, 1),
	}
}
