// Package gateway verifies signed intents and dispatches them against the
// ledger. An intent authorizes exactly one operation from a closed set; the
// submitter who relays it never needs to be the signer. Verification is
// EIP-712: the signature covers the signer's nonce, address and payload under
// a domain bound to one verifying target, so an intent signed for another
// deployment or chain never validates here.
package gateway

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/apexarb/arbengine/internal/domain"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	domainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// MetaTransaction(uint256 nonce,address from,bytes functionSignature)
	intentTypeHash = ethcrypto.Keccak256(
		[]byte("MetaTransaction(uint256 nonce,address from,bytes functionSignature)"),
	)
)

// SigningDomain fixes the EIP-712 domain every intent for this gateway must
// be signed under.
type SigningDomain struct {
	Name    string
	Version string
	ChainID uint64
}

// separator returns keccak256(abi.encode(typeHash, nameHash, versionHash,
// chainId, verifyingContract)) for the given verifying target.
func (d SigningDomain) separator(target common.Address) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			domainTypeHash,
			ethcrypto.Keccak256([]byte(d.Name)),
			ethcrypto.Keccak256([]byte(d.Version)),
			bigIntTo32Bytes(new(big.Int).SetUint64(d.ChainID)),
			common.LeftPadBytes(target.Bytes(), 32),
		),
	)
}

// IntentDigest computes the 32-byte digest the signer must have signed:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
//
// where the struct hash covers nonce, signer and the keccak of the payload.
func IntentDigest(d SigningDomain, intent domain.AuthorizedIntent) []byte {
	structHash := ethcrypto.Keccak256(
		concatBytes(
			intentTypeHash,
			bigIntTo32Bytes(new(big.Int).SetUint64(intent.Nonce)),
			common.LeftPadBytes(intent.Signer.Bytes(), 32),
			ethcrypto.Keccak256(intent.Payload),
		),
	)
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			d.separator(intent.Target),
			structHash,
		),
	)
}

// RecoverIntentSigner recovers the address that signed the intent's digest.
// The signature must be 65 bytes r||s||v with v in {0,1} or {27,28}.
func RecoverIntentSigner(d SigningDomain, intent domain.AuthorizedIntent) (common.Address, error) {
	if len(intent.Sig) != 65 {
		return common.Address{}, fmt.Errorf("gateway: signature is %d bytes, want 65: %w",
			len(intent.Sig), domain.ErrInvalidSignature)
	}
	sig := make([]byte, 65)
	copy(sig, intent.Sig)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, fmt.Errorf("gateway: recovery byte %d out of range: %w",
			intent.Sig[64], domain.ErrInvalidSignature)
	}

	pub, err := ethcrypto.SigToPub(IntentDigest(d, intent), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("gateway: recover signer: %w", domain.ErrInvalidSignature)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
