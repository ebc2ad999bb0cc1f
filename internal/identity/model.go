package identity

import "github.com/congo-pay/walletledger/internal/ledger"

// Registration is the input for provisioning a new account.
type Registration struct {
	Username string
	Email    string
	Name     string
	Currency string
}

// Account is an identity together with its primary wallet.
type Account struct {
	Identity ledger.Identity
	Wallet   ledger.Wallet
}

// Profile is an identity with every wallet it owns, newest first.
type Profile struct {
	Identity ledger.Identity
	Wallets  []ledger.Wallet
}
