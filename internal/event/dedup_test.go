package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaverqa/weaver/internal/model"
)

func TestDedupDifferentComposesKept(t *testing.T) {
	errata := []model.Erratum{
		{Release: "RHEL-9.5.0.Z.MAIN", Builds: []string{"b-1.el9"}, Archs: []model.Arch{model.ArchX8664}},
		{Release: "RHEL-9.4.0.Z.EUS", Builds: []string{"b-1.el9"}, Archs: []model.Arch{model.ArchX8664}},
	}
	out, err := DeduplicateReleases(errata, nil)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestDedupIdenticalKeepsFirst(t *testing.T) {
	errata := []model.Erratum{
		{Release: "RHEL-9.5.0.Z.MAIN", Builds: []string{"b-1.el9", "b-2.el9"},
			Archs: []model.Arch{model.ArchX8664, model.ArchAarch64}},
		{Release: "RHEL-9.5.0.Z.EUS", Builds: []string{"b-1.el9", "b-2.el9"},
			Archs: []model.Arch{model.ArchAarch64, model.ArchX8664}},
	}
	out, err := DeduplicateReleases(errata, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "RHEL-9.5.0.Z.MAIN", out[0].Release)
}

func TestDedupSubsetDropped(t *testing.T) {
	errata := []model.Erratum{
		{Release: "RHEL-8.10.0.Z.MAIN", Builds: []string{"b-1.el8"},
			Archs: []model.Arch{model.ArchX8664, model.ArchAarch64, model.ArchPPC64LE}},
		{Release: "RHEL-8.10.0.Z.EUS", Builds: []string{"b-1.el8"},
			Archs: []model.Arch{model.ArchX8664, model.ArchAarch64}},
	}
	out, err := DeduplicateReleases(errata, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "RHEL-8.10.0.Z.MAIN", out[0].Release)
}

func TestDedupSupersetCoversMultiple(t *testing.T) {
	errata := []model.Erratum{
		{Release: "RHEL-9.5.0.Z.MAIN", Builds: []string{"b-1.el9"},
			Archs: []model.Arch{model.ArchX8664}},
		{Release: "RHEL-9.5.0.Z.EUS", Builds: []string{"b-1.el9"},
			Archs: []model.Arch{model.ArchAarch64}},
		{Release: "RHEL-9.5.0.Z.E4S", Builds: []string{"b-1.el9"},
			Archs: []model.Arch{model.ArchAarch64, model.ArchPPC64LE, model.ArchX8664}},
	}
	out, err := DeduplicateReleases(errata, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "RHEL-9.5.0.Z.E4S", out[0].Release)
}

func TestDedupIncomparableBothKept(t *testing.T) {
	errata := []model.Erratum{
		{Release: "RHEL-9.2.0.Z.MAIN", Builds: []string{"b-1.el9"},
			Archs: []model.Arch{model.ArchX8664}},
		{Release: "RHEL-9.2.0.Z.EUS", Builds: []string{"b-2.el9"},
			Archs: []model.Arch{model.ArchX8664}},
	}
	out, err := DeduplicateReleases(errata, nil)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}
