package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SeedsDefaultPolicy(t *testing.T) {
	r := New()
	steps, err := r.Get(DefaultPolicyName)
	require.NoError(t, err)
	assert.Equal(t, DefaultSteps, steps)
}

func TestGet_UnknownPolicy(t *testing.T) {
	r := New()
	_, err := r.Get("nonexistent")
	require.ErrorIs(t, err, ErrPolicyNotFound)
}

func TestRegister_RejectsDuplicateStep(t *testing.T) {
	r := New()
	err := r.Register("broken", []string{"normalize", "compute", "normalize"})
	require.ErrorIs(t, err, ErrDuplicateStep)

	_, getErr := r.Get("broken")
	assert.ErrorIs(t, getErr, ErrPolicyNotFound, "a failed Register must not install a partial policy")
}

func TestRegister_InstallsNewPolicy(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("fast", []string{"normalize", "compute", "audit"}))
	steps, err := r.Get("fast")
	require.NoError(t, err)
	assert.Equal(t, []string{"normalize", "compute", "audit"}, steps)
}

func TestGet_ReturnsDefensiveCopy(t *testing.T) {
	r := New()
	steps, err := r.Get(DefaultPolicyName)
	require.NoError(t, err)
	steps[0] = "tampered"

	again, err := r.Get(DefaultPolicyName)
	require.NoError(t, err)
	assert.Equal(t, DefaultSteps, again, "mutating a returned slice must not affect the registry")
}

func TestLoadYAML_RegistersPolicies(t *testing.T) {
	r := New()
	raw := []byte(`
fast:
  - normalize
  - compute
  - audit
thorough:
  - normalize
  - decompose
  - acquire_evidence
  - compute
  - verify
  - synthesize
  - audit
`)
	require.NoError(t, r.LoadYAML(raw))

	fast, err := r.Get("fast")
	require.NoError(t, err)
	assert.Equal(t, []string{"normalize", "compute", "audit"}, fast)

	names := r.Names()
	assert.Contains(t, names, DefaultPolicyName)
	assert.Contains(t, names, "fast")
	assert.Contains(t, names, "thorough")
}

func TestLoadYAML_RejectsDuplicateStepsWithinAPolicy(t *testing.T) {
	r := New()
	raw := []byte(`
broken:
  - normalize
  - normalize
`)
	err := r.LoadYAML(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateStep)
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	r := New()
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				_, _ = r.Get(DefaultPolicyName)
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
