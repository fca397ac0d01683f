package gateway

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/apexarb/arbengine/internal/domain"
)

// IntentSigner produces signed intents for one secp256k1 key. It lives on
// the signing side of the protocol: relayers and tests use it to mint
// intents the gateway will accept.
type IntentSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	signing    SigningDomain
}

// NewIntentSigner creates a signer from a hex-encoded secp256k1 private key.
func NewIntentSigner(privateKeyHex string, signing SigningDomain) (*IntentSigner, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("gateway: invalid private key: %w", err)
	}
	return &IntentSigner{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		signing:    signing,
	}, nil
}

// GenerateIntentSigner creates a signer with a fresh random key.
func GenerateIntentSigner(signing SigningDomain) (*IntentSigner, error) {
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("gateway: generate key: %w", err)
	}
	return &IntentSigner{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		signing:    signing,
	}, nil
}

// Address returns the address derived from the signer's key.
func (s *IntentSigner) Address() common.Address {
	return s.address
}

// SignPayload signs raw payload bytes for the given target and nonce.
func (s *IntentSigner) SignPayload(target common.Address, payload []byte, nonce uint64) (domain.AuthorizedIntent, error) {
	intent := domain.AuthorizedIntent{
		Signer:  s.address,
		Target:  target,
		Payload: payload,
		Nonce:   nonce,
	}
	sig, err := ethcrypto.Sign(IntentDigest(s.signing, intent), s.privateKey)
	if err != nil {
		return domain.AuthorizedIntent{}, fmt.Errorf("gateway: sign intent: %w", err)
	}
	// go-ethereum returns v in {0,1}; the wire form carries {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	intent.Sig = sig
	return intent, nil
}

// SignOperation encodes an operation and signs the resulting payload.
func (s *IntentSigner) SignOperation(target common.Address, op domain.Operation, nonce uint64) (domain.AuthorizedIntent, error) {
	payload, err := EncodeOperation(op)
	if err != nil {
		return domain.AuthorizedIntent{}, err
	}
	return s.SignPayload(target, payload, nonce)
}
