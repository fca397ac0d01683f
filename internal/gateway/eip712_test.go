package gateway

import (
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/apexarb/arbengine/internal/domain"
)

var (
	testDomain = SigningDomain{Name: "ApexArb", Version: "1", ChainID: 137}
	testTarget = common.HexToAddress("0x00000000000000000000000000000000000000C1")
	testUSDC   = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	testWETH   = common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecoverSignedIntent(t *testing.T) {
	signer, err := GenerateIntentSigner(testDomain)
	require.NoError(t, err)

	intent, err := signer.SignPayload(testTarget, []byte{0x02, 0xAA, 0xBB}, 7)
	require.NoError(t, err)
	require.Len(t, intent.Sig, 65)
	require.GreaterOrEqual(t, intent.Sig[64], byte(27))

	got, err := RecoverIntentSigner(testDomain, intent)
	require.NoError(t, err)
	require.Equal(t, signer.Address(), got)
}

func TestRecoverDetectsTampering(t *testing.T) {
	signer, err := GenerateIntentSigner(testDomain)
	require.NoError(t, err)

	intent, err := signer.SignPayload(testTarget, []byte{0x02, 0xAA}, 0)
	require.NoError(t, err)

	tampered := intent
	tampered.Payload = []byte{0x02, 0xAB}
	got, err := RecoverIntentSigner(testDomain, tampered)
	if err == nil {
		require.NotEqual(t, signer.Address(), got)
	}

	tampered = intent
	tampered.Nonce = 1
	got, err = RecoverIntentSigner(testDomain, tampered)
	if err == nil {
		require.NotEqual(t, signer.Address(), got)
	}

	tampered = intent
	tampered.Target = common.HexToAddress("0x00000000000000000000000000000000000000C2")
	got, err = RecoverIntentSigner(testDomain, tampered)
	if err == nil {
		require.NotEqual(t, signer.Address(), got)
	}
}

func TestRecoverRejectsWrongDomain(t *testing.T) {
	signer, err := GenerateIntentSigner(testDomain)
	require.NoError(t, err)

	intent, err := signer.SignPayload(testTarget, []byte{0x02}, 0)
	require.NoError(t, err)

	other := SigningDomain{Name: "ApexArb", Version: "1", ChainID: 1}
	got, err := RecoverIntentSigner(other, intent)
	if err == nil {
		require.NotEqual(t, signer.Address(), got)
	}
}

func TestRecoverRejectsMalformedSignature(t *testing.T) {
	intent := domain.AuthorizedIntent{Sig: []byte{0x01, 0x02}}
	_, err := RecoverIntentSigner(testDomain, intent)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)

	intent.Sig = make([]byte, 65)
	intent.Sig[64] = 29
	_, err = RecoverIntentSigner(testDomain, intent)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestKnownKeyAddress(t *testing.T) {
	// Deterministic key so the derived address is stable.
	signer, err := NewIntentSigner(
		"0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
		testDomain,
	)
	require.NoError(t, err)

	intent, err := signer.SignPayload(testTarget, []byte{0x01}, 3)
	require.NoError(t, err)

	got, err := RecoverIntentSigner(testDomain, intent)
	require.NoError(t, err)
	require.Equal(t, signer.Address(), got)
	require.Equal(t, intent.Signer, got)
}

func TestDigestIsStable(t *testing.T) {
	intent := domain.AuthorizedIntent{
		Signer:  testUSDC,
		Target:  testTarget,
		Payload: []byte{0x01, 0x02},
		Nonce:   9,
	}
	d1 := IntentDigest(testDomain, intent)
	d2 := IntentDigest(testDomain, intent)
	require.Equal(t, d1, d2)
	require.Len(t, d1, 32)

	intent.Nonce = 10
	require.NotEqual(t, d1, IntentDigest(testDomain, intent))
}
