package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ComplianceStatus tracks the sanctions/risk screening outcome of a transfer.
type ComplianceStatus string

const (
	ComplianceStatusPending  ComplianceStatus = "pending"
	ComplianceStatusApproved ComplianceStatus = "approved"
	ComplianceStatusRejected ComplianceStatus = "rejected"
)

// BlockchainStatus is the on-chain submission state machine.
type BlockchainStatus string

const (
	BlockchainStatusReceived          BlockchainStatus = "received"
	BlockchainStatusPendingSubmission BlockchainStatus = "pending_submission"
	BlockchainStatusProcessing        BlockchainStatus = "processing"
	BlockchainStatusSubmitted         BlockchainStatus = "submitted"
	BlockchainStatusConfirmed         BlockchainStatus = "confirmed"
	BlockchainStatusFailed            BlockchainStatus = "failed"
	BlockchainStatusExpired           BlockchainStatus = "expired"
)

// legalTransitions enumerates every permitted BlockchainStatus move. Any
// transition absent from this table is rejected at the repository layer.
// A compliance rejection moves Received straight to Failed, matching
// ComplianceStatusRejected carrying the terminal reason rather than a
// distinct blockchain_status value.
var legalTransitions = map[BlockchainStatus][]BlockchainStatus{
	BlockchainStatusReceived:          {BlockchainStatusPendingSubmission, BlockchainStatusFailed},
	BlockchainStatusPendingSubmission: {BlockchainStatusProcessing},
	BlockchainStatusProcessing:        {BlockchainStatusSubmitted, BlockchainStatusPendingSubmission, BlockchainStatusFailed},
	BlockchainStatusSubmitted:         {BlockchainStatusConfirmed, BlockchainStatusFailed, BlockchainStatusExpired},
	BlockchainStatusConfirmed:         {},
	BlockchainStatusFailed:            {},
	BlockchainStatusExpired:           {},
}

// IsLegalTransition reports whether moving from one BlockchainStatus to
// another is permitted by the state machine.
func IsLegalTransition(from, to BlockchainStatus) bool {
	if from == to {
		return false
	}
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TerminalBlockchainStatuses are immutable once reached by automated processing.
var TerminalBlockchainStatuses = map[BlockchainStatus]bool{
	BlockchainStatusConfirmed: true,
	BlockchainStatusFailed:    true,
	BlockchainStatusExpired:   true,
}

// LastErrorType classifies the most recent submission failure for a record.
type LastErrorType string

const (
	LastErrorTypeNone              LastErrorType = ""
	LastErrorTypeJitoStateUnknown  LastErrorType = "jito_state_unknown"
	LastErrorTypeJitoBundleFailed  LastErrorType = "jito_bundle_failed"
	LastErrorTypeTransactionFailed LastErrorType = "transaction_failed"
	LastErrorTypeNetworkError      LastErrorType = "network_error"
	LastErrorTypeValidationError   LastErrorType = "validation_error"
)

// TransferKind tags which variant of TransferDetails a record carries.
type TransferKind string

const (
	TransferKindPublic       TransferKind = "public"
	TransferKindConfidential TransferKind = "confidential"
)

// TransferDetails is a tagged union over the two transfer variants accepted
// on intake. Confidential proof fields are opaque byte blobs; the relayer
// never interprets them, only forwards them into the built instruction.
type TransferDetails struct {
	Kind TransferKind `json:"type"`

	// Public variant.
	Amount uint64 `json:"amount,omitempty"`

	// Confidential variant. All four fields are required together.
	EqualityProof                  []byte `json:"equality_proof,omitempty"`
	CiphertextValidityProof        []byte `json:"ciphertext_validity_proof,omitempty"`
	RangeProof                     []byte `json:"range_proof,omitempty"`
	NewDecryptableAvailableBalance []byte `json:"new_decryptable_available_balance,omitempty"`
}

// MaxRetries is the retry ceiling enforced on every TransferRecord.
const MaxRetries = 10

// TransferRecord is the single aggregate root of the relayer. It is never
// deleted; every transfer's full lifecycle remains queryable for audit.
type TransferRecord struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	FromAddress string `gorm:"column:from_address;type:varchar(64);not null;index:idx_transfer_from_nonce,unique" json:"from_address"`
	ToAddress   string `gorm:"column:to_address;type:varchar(64);not null" json:"to_address"`

	TransferKind TransferKind `gorm:"column:transfer_kind;type:varchar(16);not null" json:"-"`
	Amount       uint64       `gorm:"column:amount" json:"-"`

	EqualityProof                  []byte `gorm:"column:equality_proof;type:bytea" json:"-"`
	CiphertextValidityProof        []byte `gorm:"column:ciphertext_validity_proof;type:bytea" json:"-"`
	RangeProof                     []byte `gorm:"column:range_proof;type:bytea" json:"-"`
	NewDecryptableAvailableBalance []byte `gorm:"column:new_decryptable_available_balance;type:bytea" json:"-"`

	TokenMint *string `gorm:"column:token_mint;type:varchar(64)" json:"token_mint,omitempty"`

	Nonce           string `gorm:"column:nonce;type:varchar(64);not null;uniqueIndex:idx_transfer_from_nonce" json:"nonce"`
	ClientSignature string `gorm:"column:client_signature;type:varchar(128);not null" json:"client_signature"`

	ComplianceStatus ComplianceStatus `gorm:"column:compliance_status;type:varchar(16);not null;default:pending;index:idx_transfer_claim" json:"compliance_status"`
	ComplianceReason string           `gorm:"column:compliance_reason;type:text" json:"compliance_reason,omitempty"`

	BlockchainStatus BlockchainStatus `gorm:"column:blockchain_status;type:varchar(24);not null;default:received;index:idx_transfer_claim;index:idx_transfer_crank" json:"blockchain_status"`

	BlockchainSignature *string `gorm:"column:blockchain_signature;type:varchar(128);index" json:"blockchain_signature,omitempty"`
	OriginalTxSignature *string `gorm:"column:original_tx_signature;type:varchar(128)" json:"original_tx_signature,omitempty"`
	BlockhashUsed       *string `gorm:"column:blockhash_used;type:varchar(64)" json:"blockhash_used,omitempty"`

	LastErrorType    LastErrorType `gorm:"column:last_error_type;type:varchar(32);default:''" json:"last_error_type,omitempty"`
	LastErrorMessage string        `gorm:"column:last_error_message;type:text" json:"last_error_message,omitempty"`

	RetryCount int        `gorm:"column:retry_count;not null;default:0;index:idx_transfer_claim" json:"retry_count"`
	NextRetryAt *time.Time `gorm:"column:next_retry_at;index:idx_transfer_claim" json:"next_retry_at,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;not null;index:idx_transfer_claim" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;index:idx_transfer_crank" json:"updated_at"`
}

func (TransferRecord) TableName() string {
	return "transfer_records"
}

// Details reassembles the tagged TransferDetails view from the flattened
// gorm columns, for use by components that build transactions.
func (t *TransferRecord) Details() TransferDetails {
	return TransferDetails{
		Kind:                           t.TransferKind,
		Amount:                         t.Amount,
		EqualityProof:                  t.EqualityProof,
		CiphertextValidityProof:        t.CiphertextValidityProof,
		RangeProof:                     t.RangeProof,
		NewDecryptableAvailableBalance: t.NewDecryptableAvailableBalance,
	}
}

// SetDetails flattens a TransferDetails value onto the record's columns.
func (t *TransferRecord) SetDetails(d TransferDetails) {
	t.TransferKind = d.Kind
	t.Amount = d.Amount
	t.EqualityProof = d.EqualityProof
	t.CiphertextValidityProof = d.CiphertextValidityProof
	t.RangeProof = d.RangeProof
	t.NewDecryptableAvailableBalance = d.NewDecryptableAvailableBalance
}

// AmountOrConfidentialTag returns the component used in the canonical
// signing message: the decimal amount for public transfers, or the literal
// string "confidential" for confidential transfers.
func (t *TransferRecord) AmountOrConfidentialTag() string {
	if t.TransferKind == TransferKindConfidential {
		return "confidential"
	}
	return strconv.FormatUint(t.Amount, 10)
}

// MintOrSOL returns the token mint component for the canonical signing
// message, defaulting to the literal string "SOL" when unset.
func (t *TransferRecord) MintOrSOL() string {
	if t.TokenMint == nil || *t.TokenMint == "" {
		return "SOL"
	}
	return *t.TokenMint
}

// Composite indexes on transfer_records declared by the gorm tags above
// (columns in struct-field order):
//   idx_transfer_claim    (compliance_status, blockchain_status, retry_count, next_retry_at, created_at)
//   idx_transfer_crank    (blockchain_status, updated_at)
//   idx_transfer_from_nonce unique (from_address, nonce)
