package payout

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadKey(t *testing.T) {
	_, err := New("http://localhost:0", "not-a-key", 1, zerolog.Nop())
	require.Error(t, err)
}

func TestFromDerivedFromKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	s := &ChainSender{
		key:  key,
		from: crypto.PubkeyToAddress(key.PublicKey),
	}
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.From())
}
