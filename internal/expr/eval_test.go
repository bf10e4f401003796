package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaverqa/weaver/internal/model"
)

func erratumContext(composeID string) *Context {
	return FromJob(&model.ArtifactJob{
		Event: model.Event{Type: model.EventErratum, ID: "2024:1234"},
		Erratum: &model.Erratum{
			ID:      "2024:1234",
			Release: "RHEL-9.4.0.GA",
			Builds:  []string{"bash-5.2-1.el9"},
		},
		Compose: &model.Compose{ID: composeID},
	})
}

func TestEvalWhen(t *testing.T) {
	ctx := erratumContext("RHEL-9.4.0")

	tests := []struct {
		name string
		src  string
		want bool
	}{
		{"empty predicate is vacuously true", "", true},
		{"variant test hit", "EVENT is erratum", true},
		{"variant test miss", "EVENT is compose", false},
		{"negated variant test hit", "EVENT is not compose", true},
		{"negated variant test miss", "EVENT is not erratum", false},
		{"variant test on the job operand", "JOB is erratum", true},
		{"match hit", `COMPOSE.id is match("RHEL-.*")`, true},
		{"match searches anywhere in the value", `COMPOSE.id is match("9\.4")`, true},
		{"match anchors still apply", `COMPOSE.id is match("^9\.4$")`, false},
		{"match against a literal", `'Fedora-40' is match("RHEL-.*")`, false},
		{"defined on a set payload", "ERRATUM is defined", true},
		{"defined on an unset payload", "ROG is defined", false},
		{"not defined on a set payload", "ERRATUM is not defined", false},
		{"not defined on an unset payload", "ROG is not defined", true},
		{"equality hit", "ERRATUM.release == 'RHEL-9.4.0.GA'", true},
		{"equality miss", "ERRATUM.release == 'RHEL-8.6.0.GA'", false},
		{"inequality", "ERRATUM.release != 'RHEL-8.6.0.GA'", true},
		{"and short-circuits to false", "EVENT is erratum and EVENT is compose", false},
		{"or takes the true branch", "EVENT is compose or EVENT is erratum", true},
		// and binds tighter than or: true or (false and false)
		{"and binds tighter than or",
			"EVENT is erratum or EVENT is compose and COMPOSE.id == 'nope'", true},
		{"parens override precedence",
			"(EVENT is erratum or EVENT is compose) and COMPOSE.id == 'nope'", false},
		{"not binds to the nearest term",
			"not EVENT is compose and EVENT is erratum", true},
		{"not over a parenthesized expression",
			"not (EVENT is erratum and COMPOSE.id == 'nope')", true},
		{"bare string operand is truthy", "ERRATUM.release", true},
		{"boolean literal", "true and EVENT is erratum", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvalWhen(tt.src, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got, "source: %s", tt.src)
		})
	}
}

// `is not match` must be the exact complement of `is match` for every
// input, matching and non-matching alike.
func TestMatchComplement(t *testing.T) {
	for _, id := range []string{"RHEL-9.4.0", "Fedora-40", "RHEL-8.6.0.GA", ""} {
		ctx := erratumContext(id)
		pos, err := EvalWhen(`COMPOSE.id is match("RHEL-.*")`, ctx)
		require.NoError(t, err)
		neg, err := EvalWhen(`COMPOSE.id is not match("RHEL-.*")`, ctx)
		require.NoError(t, err)
		assert.Equal(t, !pos, neg, "compose id %q", id)
	}
}

func TestEvalWhenEnvironmentMaps(t *testing.T) {
	ctx := erratumContext("RHEL-9.4.0").WithMaps(
		map[string]string{"FOO": "bar"},
		map[string]string{"distro": "rhel-9"},
	)

	got, err := EvalWhen("ENVIRONMENT.FOO == 'bar'", ctx)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = EvalWhen("CONTEXT.distro != 'rhel-9'", ctx)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEvalWhenErrors(t *testing.T) {
	ctx := erratumContext("RHEL-9.4.0")

	tests := []struct {
		name string
		src  string
	}{
		{"unknown variable", "BOGUS is defined or WHATEVER == '1'"},
		{"unknown predicate", "EVENT is advisory"},
		{"unknown field", "ERRATUM.bogus == '1'"},
		{"field of an unset payload", "ROG.id == '1'"},
		{"unterminated string", "COMPOSE.id == 'RHEL"},
		{"invalid match pattern", `COMPOSE.id is match("[")`},
		{"trailing garbage", "EVENT is erratum extra"},
		{"match on a non-string operand", `EVENT is match("x")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EvalWhen(tt.src, ctx)
			require.Error(t, err)
			var ee *Error
			if assert.ErrorAs(t, err, &ee) {
				assert.NotEmpty(t, ee.Source)
			}
		})
	}
}

// `is defined` swallows the lookup failure and reports absence instead
// of erroring, so documents can test for optional variables.
func TestEvalWhenDefinedOnUnknownVariable(t *testing.T) {
	ctx := &Context{}
	got, err := EvalWhen("BOGUS is defined", ctx)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = EvalWhen("BOGUS is not defined", ctx)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCompileCachesPrograms(t *testing.T) {
	const src = "EVENT is erratum and COMPOSE.id == 'cache-check'"
	p1, err := Compile(src)
	require.NoError(t, err)
	p2, err := Compile(src)
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, src, p1.Source())
}
