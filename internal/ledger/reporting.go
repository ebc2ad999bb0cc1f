package ledger

import "github.com/congo-pay/walletledger/internal/money"

// OwnedTransaction is a ledger record joined with the identities owning each
// side. FromOwner is nil for deposits.
type OwnedTransaction struct {
	Transaction
	FromOwner *Identity
	ToOwner   *Identity
}

// SignedFor returns the amount as seen by userID: negative when the user's
// wallet is the source, positive otherwise.
func (t OwnedTransaction) SignedFor(userID string) money.Amount {
	if t.OutgoingFor(userID) {
		return t.Amount.Neg()
	}
	return t.Amount
}

// OutgoingFor reports whether userID owns the source wallet.
func (t OwnedTransaction) OutgoingFor(userID string) bool {
	return t.FromOwner != nil && t.FromOwner.ID == userID
}

// UserTransactionQuery selects records touching any wallet owned by UserID,
// ordered by SignedFor(UserID) descending then newest first.
type UserTransactionQuery struct {
	UserID string
	Range  DateRange
	Limit  int
}

// WalletVolume is the summed outbound TRANSFER amount of one source wallet.
type WalletVolume struct {
	WalletID string
	Total    money.Amount
}
