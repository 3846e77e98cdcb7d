package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	m := NewManager("test-secret-value-123", "mintflip", 0)

	token, err := m.Issue("0xABC")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	wallet, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if wallet != "0xabc" {
		t.Fatalf("expected 0xabc, got %q", wallet)
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	token, _ := NewManager("secret-one-aaaaaaaa", "", time.Hour).Issue("0xabc")
	if _, err := NewManager("secret-two-bbbbbbbb", "", time.Hour).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := NewManager("test-secret-value-123", "", time.Minute)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := m.Issue("0xabc")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	m.now = time.Now
	if _, err := m.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func signLogin(t *testing.T, message string, bumpV bool) (string, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey error: %v", err)
	}
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	if bumpV {
		sig[crypto.RecoveryIDOffset] += 27
	}
	return strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex()), hexutil.Encode(sig)
}

func TestRecoverSigner(t *testing.T) {
	for _, bumpV := range []bool{false, true} {
		addr, sig := signLogin(t, "hello", bumpV)
		got, err := RecoverSigner("hello", sig)
		if err != nil {
			t.Fatalf("RecoverSigner error: %v", err)
		}
		if got != addr {
			t.Fatalf("expected %s, got %s", addr, got)
		}
	}
}

func TestWalletVerifier(t *testing.T) {
	ctx := context.Background()
	other, _ := signLogin(t, "unused", true)

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey error: %v", err)
	}
	addr := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
	sig, err := crypto.Sign(accounts.TextHash([]byte(LoginMessage(addr))), key)
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	signature := hexutil.Encode(sig)

	tests := []struct {
		name      string
		address   string
		message   string
		signature string
		wantErr   error
	}{
		{name: "valid", address: addr, message: LoginMessage(addr), signature: signature},
		{name: "checksummed address", address: strings.ToUpper(addr[:2]) + addr[2:], message: LoginMessage(addr), signature: signature},
		{name: "wrong message", address: addr, message: LoginMessage(other), signature: signature, wantErr: ErrMessageMismatch},
		{name: "short signature", address: addr, message: LoginMessage(addr), signature: "0x1234", wantErr: ErrInvalidSignature},
		{name: "not hex", address: addr, message: LoginMessage(addr), signature: "0x" + strings.Repeat("zz", 65), wantErr: ErrInvalidSignature},
		{name: "signed by another wallet", address: other, message: LoginMessage(other), signature: signature, wantErr: ErrInvalidSignature},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := NewWalletVerifier().Verify(ctx, tc.address, tc.message, tc.signature)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}
