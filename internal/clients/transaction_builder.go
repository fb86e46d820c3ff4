package clients

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"golang.org/x/crypto/ed25519"

	"solrelay/internal/models"
)

// IssuerKey holds the relayer's signing keypair, read once at startup and
// held read-only for the process lifetime. It is never logged.
type IssuerKey struct {
	private ed25519.PrivateKey
	public  solana.PublicKey
}

func NewIssuerKey(seed []byte) (*IssuerKey, error) {
	if len(seed) != ed25519.SeedSize && len(seed) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("issuer key material has unexpected length %d", len(seed))
	}
	var priv ed25519.PrivateKey
	if len(seed) == ed25519.SeedSize {
		priv = ed25519.NewKeyFromSeed(seed)
	} else {
		priv = ed25519.PrivateKey(seed)
	}
	var pub solana.PublicKey
	copy(pub[:], priv.Public().(ed25519.PublicKey))
	return &IssuerKey{private: priv, public: pub}, nil
}

func (k *IssuerKey) PublicKey() solana.PublicKey {
	return k.public
}

// BuildAndSignTransfer builds the transfer instruction described by
// details (the core relayer never interprets confidential proof bytes,
// only forwards them as instruction data), optionally attaches a tip
// instruction to tipAccount, and signs the result with the issuer key.
// It returns the serialized transaction bytes.
func BuildAndSignTransfer(
	issuer *IssuerKey,
	blockhash string,
	fromAddress, toAddress string,
	details models.TransferDetails,
	tipAccount *solana.PublicKey,
	tipLamports uint64,
) ([]byte, error) {
	from, err := solana.PublicKeyFromBase58(fromAddress)
	if err != nil {
		return nil, fmt.Errorf("parse from_address: %w", err)
	}
	to, err := solana.PublicKeyFromBase58(toAddress)
	if err != nil {
		return nil, fmt.Errorf("parse to_address: %w", err)
	}
	hash, err := solana.HashFromBase58(blockhash)
	if err != nil {
		return nil, fmt.Errorf("parse blockhash: %w", err)
	}

	instructions := []solana.Instruction{buildTransferInstruction(from, to, details)}

	if tipAccount != nil && tipLamports > 0 {
		instructions = append(instructions, system.NewTransferInstruction(tipLamports, issuer.PublicKey(), *tipAccount).Build())
	}

	tx, err := solana.NewTransaction(instructions, hash, solana.TransactionPayer(issuer.PublicKey()))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if !key.Equals(issuer.PublicKey()) {
			return nil
		}
		pk := solana.PrivateKey(issuer.private)
		return &pk
	})
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	serialized, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}
	return serialized, nil
}

// DeterministicSignature computes the transaction signature from the
// serialized, signed transaction bytes before submission, so the
// relayer has a stable identifier for double-spend-safe status checks
// even if the submit call itself times out ambiguously.
func DeterministicSignature(serialized []byte) (string, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(serialized))
	if err != nil {
		return "", fmt.Errorf("decode transaction for signature extraction: %w", err)
	}
	if len(tx.Signatures) == 0 {
		return "", fmt.Errorf("transaction carries no signatures")
	}
	return tx.Signatures[0].String(), nil
}

// buildTransferInstruction constructs either a public system transfer or
// a confidential-transfer instruction. Confidential proof fields are
// opaque and forwarded verbatim as instruction data without
// interpretation, per the relayer's non-goal of implementing a ZK proof
// toolkit.
func buildTransferInstruction(from, to solana.PublicKey, details models.TransferDetails) solana.Instruction {
	if details.Kind == models.TransferKindConfidential {
		return newConfidentialTransferInstruction(from, to, details)
	}
	return system.NewTransferInstruction(details.Amount, from, to).Build()
}

// confidentialTransferInstruction wraps the opaque proof blobs into a
// single instruction payload for the token-2022 confidential transfer
// extension program. The relayer's responsibility ends at forwarding the
// bytes the client supplied; it does not validate or construct the
// proofs themselves.
type confidentialTransferInstruction struct {
	programID solana.PublicKey
	accounts  solana.AccountMetaSlice
	data      []byte
}

// token2022ProgramID is the SPL Token-2022 program, which hosts the
// confidential transfer extension this instruction targets.
var token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

func newConfidentialTransferInstruction(from, to solana.PublicKey, details models.TransferDetails) *confidentialTransferInstruction {
	data := make([]byte, 0, len(details.EqualityProof)+len(details.CiphertextValidityProof)+len(details.RangeProof)+len(details.NewDecryptableAvailableBalance))
	data = append(data, details.EqualityProof...)
	data = append(data, details.CiphertextValidityProof...)
	data = append(data, details.RangeProof...)
	data = append(data, details.NewDecryptableAvailableBalance...)

	return &confidentialTransferInstruction{
		programID: token2022ProgramID,
		accounts: solana.AccountMetaSlice{
			solana.NewAccountMeta(from, true, true),
			solana.NewAccountMeta(to, true, false),
		},
		data: data,
	}
}

func (i *confidentialTransferInstruction) ProgramID() solana.PublicKey {
	return i.programID
}

func (i *confidentialTransferInstruction) Accounts() []*solana.AccountMeta {
	return i.accounts
}

func (i *confidentialTransferInstruction) Data() ([]byte, error) {
	return i.data, nil
}
