package mech

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndNew(t *testing.T) {
	r := NewRegistry()
	r.Register("krb5", NewKrb5Mechanism)

	m, err := r.New("krb5")
	require.NoError(t, err)
	assert.Equal(t, "krb5", m.Name())
}

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	r.Register("KRB5", NewKrb5Mechanism)

	_, err := r.New("krb5")
	assert.NoError(t, err)
}

func TestRegistryUnknownNameErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.New("spnego")
	assert.Error(t, err)
}

func TestRegistryDuplicateRegistrationPanics(t *testing.T) {
	r := NewRegistry()
	r.Register("krb5", NewKrb5Mechanism)

	assert.Panics(t, func() {
		r.Register("krb5", NewKrb5Mechanism)
	})
}

func TestRegistryNames(t *testing.T) {
	r := NewRegistry()
	r.Register("krb5", NewKrb5Mechanism)

	assert.ElementsMatch(t, []string{"krb5"}, r.Names())
}
