package model

import (
	"regexp"
	"sort"
)

// Arch is a system architecture an advisory or request targets.
type Arch string

const (
	ArchI686    Arch = "i686"
	ArchX8664   Arch = "x86_64"
	ArchAarch64 Arch = "aarch64"
	ArchS390x   Arch = "s390x"
	ArchPPC64LE Arch = "ppc64le"
	ArchPPC64   Arch = "ppc64"
	// ArchNoarch marks builds valid on every architecture.
	ArchNoarch Arch = "noarch"
	// ArchMulti is used by container advisories.
	ArchMulti Arch = "multi"
	// ArchSRPMS appears in advisory channel listings only.
	ArchSRPMS Arch = "SRPMS"
)

var validArchs = map[Arch]bool{
	ArchI686: true, ArchX8664: true, ArchAarch64: true, ArchS390x: true,
	ArchPPC64LE: true, ArchPPC64: true, ArchNoarch: true, ArchMulti: true,
	ArchSRPMS: true,
}

// KnownArch reports whether a is one of the recognized architectures.
func KnownArch(a Arch) bool { return validArchs[a] }

var rhel7Compose = regexp.MustCompile(`(?i)^rhel-7`)

// Architectures resolves the set of architectures to schedule for.
//
// With no preset the default set for the compose is returned (rhel-7
// composes still carry ppc64). A preset containing noarch or multi also
// resolves to the default set, since such builds are tested everywhere.
// Otherwise the preset is intersected with the real (schedulable)
// architectures, in deterministic order.
func Architectures(preset []Arch, compose string) []Arch {
	all := []Arch{ArchX8664, ArchAarch64, ArchS390x, ArchPPC64LE, ArchPPC64}
	def := []Arch{ArchX8664, ArchS390x, ArchPPC64LE, ArchAarch64}
	if compose != "" && rhel7Compose.MatchString(compose) {
		def = []Arch{ArchX8664, ArchS390x, ArchPPC64LE, ArchPPC64}
	}
	if len(preset) == 0 {
		return def
	}
	presetSet := make(map[Arch]bool, len(preset))
	for _, a := range preset {
		if a == ArchNoarch || a == ArchMulti {
			return def
		}
		presetSet[a] = true
	}
	var out []Arch
	for _, a := range all {
		if presetSet[a] {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
