package bundler

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// KeystoreSigner implements Signer against a go-ethereum encrypted
// keystore account, the same wallet backend cmd/geth itself uses
// (spec §1 Non-goal: "treat signer as a trait"; this is the one
// concrete instance the CLI wires by default).
type KeystoreSigner struct {
	ks      *keystore.KeyStore
	account accounts.Account
}

// NewKeystoreSigner returns a Signer for account, which must already be
// unlocked in ks (accounts_unlock-style, matching cmd/geth's own
// --unlock flow rather than prompting interactively from inside the
// bundler loop).
func NewKeystoreSigner(ks *keystore.KeyStore, account accounts.Account) *KeystoreSigner {
	return &KeystoreSigner{ks: ks, account: account}
}

// Address implements Signer.
func (s *KeystoreSigner) Address() common.Address { return s.account.Address }

// SignerFn implements Signer by delegating to the keystore's wallet
// transactor, so the private key material never leaves the keystore.
func (s *KeystoreSigner) SignerFn(chainID *big.Int) bind.SignerFn {
	opts, err := bind.NewKeyStoreTransactorWithChainID(s.ks, s.account, chainID)
	if err != nil {
		return func(common.Address, *types.Transaction) (*types.Transaction, error) {
			return nil, err
		}
	}
	return opts.Signer
}
