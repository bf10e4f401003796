package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/weaverqa/weaver/internal/model"
)

func TestMergeEnvironmentKeyByKey(t *testing.T) {
	dst := Settings{Environment: map[string]string{"A": "1", "B": "2"}}
	Merge(&dst, Settings{Environment: map[string]string{"B": "3", "C": "4"}})

	assert.Equal(t, map[string]string{"A": "1", "B": "3", "C": "4"}, dst.Environment)
}

func TestMergeContextKeyByKey(t *testing.T) {
	dst := Settings{Context: map[string]string{"distro": "rhel-9", "arch": "x86_64"}}
	Merge(&dst, Settings{Context: map[string]string{"distro": "rhel-10"}})

	assert.Equal(t, map[string]string{"distro": "rhel-10", "arch": "x86_64"}, dst.Context)
}

func TestMergePlanReplacesWholesale(t *testing.T) {
	dst := Settings{Plan: &model.Plan{URL: "https://example.com/tests", Ref: "main"}}
	Merge(&dst, Settings{Plan: &model.Plan{URL: "https://example.com/other"}})

	// the whole block replaces; ref from the lower layer is gone
	assert.Equal(t, "https://example.com/other", dst.Plan.URL)
	assert.Empty(t, dst.Plan.Ref)
}

func TestMergeWhenJoinsWithAnd(t *testing.T) {
	dst := Settings{}
	Merge(&dst, Settings{When: `ENVIRONMENT.A == "1"`})
	assert.Equal(t, `( ENVIRONMENT.A == "1" )`, dst.When)

	Merge(&dst, Settings{When: `ENVIRONMENT.B == "2"`})
	assert.Equal(t, `( ENVIRONMENT.A == "1" ) and ( ENVIRONMENT.B == "2" )`, dst.When)
}

func TestMergeUnsetFieldsLeaveLowerLayerVisible(t *testing.T) {
	dst := Settings{Compose: "RHEL-9.4.0-Nightly", Arch: model.ArchX8664}
	Merge(&dst, Settings{Compose: "RHEL-10.0-Nightly"})

	assert.Equal(t, "RHEL-10.0-Nightly", dst.Compose)
	assert.Equal(t, model.ArchX8664, dst.Arch)
}

func TestCloneIsDeep(t *testing.T) {
	orig := Settings{
		Environment: map[string]string{"A": "1"},
		Plan:        &model.Plan{URL: "u"},
		Launch:      &model.Launch{Attributes: map[string]string{"k": "v"}},
	}
	cp := orig.Clone()
	cp.Environment["A"] = "2"
	cp.Plan.URL = "other"
	cp.Launch.Attributes["k"] = "w"

	assert.Equal(t, "1", orig.Environment["A"])
	assert.Equal(t, "u", orig.Plan.URL)
	assert.Equal(t, "v", orig.Launch.Attributes["k"])
}
