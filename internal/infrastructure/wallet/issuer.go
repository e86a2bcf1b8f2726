package wallet

import (
	"fmt"

	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
	"github.com/rs/zerolog"
)

// Issued carries the material of a freshly generated wallet. Only the
// address may be persisted or logged; the private key and mnemonic exist
// so the operator can sweep funds later and must be handed straight to the
// caller and dropped.
type Issued struct {
	Address       string
	PrivateKeyHex string
	Mnemonic      string
}

type Issuer struct {
	derivationPath string
	logger         zerolog.Logger
}

func NewIssuer(logger zerolog.Logger) *Issuer {
	return &Issuer{
		derivationPath: "m/44'/60'/0'/0/0",
		logger:         logger.With().Str("component", "wallet_issuer").Logger(),
	}
}

// Issue generates a novel (address, private key, mnemonic) triple. Every
// payment attempt gets its own wallet, so deposit addresses are never
// reused.
func (i *Issuer) Issue() (Issued, error) {
	mnemonic, err := hdwallet.NewMnemonic(128)
	if err != nil {
		return Issued{}, fmt.Errorf("failed to generate mnemonic: %w", err)
	}

	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return Issued{}, fmt.Errorf("failed to build wallet from mnemonic: %w", err)
	}

	path := hdwallet.MustParseDerivationPath(i.derivationPath)
	account, err := w.Derive(path, false)
	if err != nil {
		return Issued{}, fmt.Errorf("failed to derive account: %w", err)
	}

	privateKey, err := w.PrivateKeyHex(account)
	if err != nil {
		return Issued{}, fmt.Errorf("failed to export private key: %w", err)
	}

	i.logger.Info().
		Str("address", account.Address.Hex()).
		Msg("Issued deposit wallet")

	return Issued{
		Address:       account.Address.Hex(),
		PrivateKeyHex: privateKey,
		Mnemonic:      mnemonic,
	}, nil
}
