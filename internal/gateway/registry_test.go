package gateway

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolvesDefaultAndCapabilities(t *testing.T) {
	static := NewStatic("monnify")
	r, err := NewRegistry("Monnify", static, NewPaystack(PaystackConfig{}))
	require.NoError(t, err)

	gw, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, "monnify", gw.Name())
	assert.Equal(t, []string{"monnify", "paystack"}, r.Names())

	_, err = r.Get("stripe")
	assert.True(t, errors.Is(err, ErrUnknownGateway))

	_, err = r.Provisioner("monnify")
	assert.NoError(t, err)
	_, err = r.Provisioner("paystack")
	assert.True(t, errors.Is(err, ErrUnsupported))
	_, err = r.Checkout("paystack")
	assert.NoError(t, err)
}

func TestRegistryRequiresRegisteredDefault(t *testing.T) {
	_, err := NewRegistry("monnify", NewStatic("paystack"))
	assert.True(t, errors.Is(err, ErrUnknownGateway))
}
