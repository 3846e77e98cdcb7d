package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const loginPrefix = "Login to MintFlip with wallet: "

var (
	ErrMessageMismatch  = errors.New("login message does not match wallet")
	ErrInvalidSignature = errors.New("invalid wallet signature")
)

// LoginMessage is the text a wallet signs to log in.
func LoginMessage(address string) string {
	return loginPrefix + address
}

// RecoverSigner returns the lower-case address that produced an EIP-191
// personal_sign signature over message. Both 0/1 and 27/28 recovery ids
// are accepted.
func RecoverSigner(message, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("%w: expected 65 hex-encoded bytes", ErrInvalidSignature)
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}

// WalletVerifier checks login requests.
type WalletVerifier struct{}

// NewWalletVerifier returns a verifier that recovers signers locally.
func NewWalletVerifier() *WalletVerifier {
	return &WalletVerifier{}
}

// Verify confirms that signature over message was produced by address.
func (v *WalletVerifier) Verify(_ context.Context, address, message, signature string) error {
	if !strings.EqualFold(message, LoginMessage(address)) {
		return ErrMessageMismatch
	}

	signer, err := RecoverSigner(message, signature)
	if err != nil {
		return err
	}
	if !strings.EqualFold(signer, address) {
		return fmt.Errorf("%w: signed by %s", ErrInvalidSignature, signer)
	}
	return nil
}
