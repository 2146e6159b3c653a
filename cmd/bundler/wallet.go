package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/aabundler/bundler/bundler"
)

// createWalletCLICommand wraps createWalletCommand for registration in
// main.go's app.Commands (spec §6 CLI surface: "create-wallet").
var createWalletCLICommand = &cli.Command{
	Name:   "create-wallet",
	Usage:  "Generate a new signer account in an encrypted keystore file",
	Flags:  []cli.Flag{dataDirFlag, signerPasswordFileFlag},
	Action: createWalletCommand,
}

// createWalletCommand generates a new signer account in an encrypted
// keystore file under --datadir/keystore, the same on-disk format and
// scrypt parameters cmd/geth's own `account new` uses. Mnemonic/HD
// derivation is a named Non-goal of this daemon's core (the signer is
// a narrow sign(hash) trait); this subcommand only produces the one
// concrete artifact the CLI surface names: an encrypted keystore file
// a --mnemonic-file flag can point the bundler/node commands at.
func createWalletCommand(ctx *cli.Context) error {
	keydir := ctx.String(dataDirFlag.Name) + "/keystore"
	if err := os.MkdirAll(keydir, 0o700); err != nil {
		return fmt.Errorf("aabundler: create keystore dir: %w", err)
	}

	passphrase, err := readPassphrase(ctx)
	if err != nil {
		return err
	}

	ks := keystore.NewKeyStore(keydir, keystore.StandardScryptN, keystore.StandardScryptP)
	account, err := ks.NewAccount(passphrase)
	if err != nil {
		return fmt.Errorf("aabundler: create account: %w", err)
	}

	fmt.Printf("address: %s\nkeystore: %s\n", account.Address.Hex(), account.URL.Path)
	return nil
}

// readPassphrase reads the keystore passphrase from
// --signer-password-file if set, else prompts on stdin the way
// cmd/geth's account commands do when no password file is given.
func readPassphrase(ctx *cli.Context) (string, error) {
	if path := ctx.String(signerPasswordFileFlag.Name); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("aabundler: read password file: %w", err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
	fmt.Print("passphrase: ")
	var pass string
	if _, err := fmt.Scanln(&pass); err != nil {
		return "", fmt.Errorf("aabundler: read passphrase: %w", err)
	}
	return pass, nil
}

// loadSigner unlocks the account named by --mnemonic-file (an
// encrypted keystore file path despite the flag's historical name,
// matching the original binary's own flag) using the passphrase from
// --signer-password-file, and returns a bundler.Signer over it.
func loadSigner(ctx *cli.Context) (*bundler.KeystoreSigner, error) {
	path := ctx.String(mnemonicFileFlag.Name)
	if path == "" {
		return nil, fmt.Errorf("aabundler: --mnemonic-file (signer keystore path) is required")
	}
	passphrase, err := readPassphrase(ctx)
	if err != nil {
		return nil, err
	}

	keydir := ctx.String(dataDirFlag.Name) + "/keystore"
	if err := os.MkdirAll(keydir, 0o700); err != nil {
		return nil, fmt.Errorf("aabundler: create keystore dir: %w", err)
	}
	ks := keystore.NewKeyStore(keydir, keystore.StandardScryptN, keystore.StandardScryptP)

	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("aabundler: read signer keystore file: %w", err)
	}
	account, err := ks.Import(keyJSON, passphrase, passphrase)
	if err != nil {
		if err != keystore.ErrAccountAlreadyExists {
			return nil, fmt.Errorf("aabundler: import signer keystore: %w", err)
		}
		addr, addrErr := addressFromKeystoreJSON(keyJSON)
		if addrErr != nil {
			return nil, addrErr
		}
		account = accounts.Account{Address: addr}
	}
	if err := ks.Unlock(account, passphrase); err != nil {
		return nil, fmt.Errorf("aabundler: unlock signer account: %w", err)
	}
	return bundler.NewKeystoreSigner(ks, account), nil
}

// addressFromKeystoreJSON reads the "address" field of an encrypted
// V3 keystore file, used when the file is already imported into the
// local keystore directory and Import only reports the collision.
func addressFromKeystoreJSON(raw []byte) (common.Address, error) {
	var parsed struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return common.Address{}, fmt.Errorf("aabundler: parse keystore file: %w", err)
	}
	return common.HexToAddress(parsed.Address), nil
}
