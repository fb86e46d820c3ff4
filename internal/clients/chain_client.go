package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/crypto/ed25519"

	"solrelay/internal/apperrors"
	"solrelay/internal/config"
)

// SignatureStatus is the abstracted result of a get_signature_status call.
type SignatureStatus string

const (
	SignatureStatusNotFound  SignatureStatus = "not_found"
	SignatureStatusFinalized SignatureStatus = "finalized"
	SignatureStatusFailed    SignatureStatus = "failed"
)

// SubmitResult carries the outcome of a submit_transaction or
// submit_bundle call back to the submission worker.
type SubmitResult struct {
	Signature string
	Ambiguous bool // true only for an unresolved private-bundle outcome
}

// ChainProvider is the capability-variant abstraction over the Solana RPC
// surface the submission worker and reconciliation crank depend on. Each
// concrete variant below is a tagged dispatch target selected by
// config.ChainConfig.Provider, not a deep type hierarchy.
type ChainProvider interface {
	GetLatestBlockhash(ctx context.Context) (string, error)
	IsBlockhashValid(ctx context.Context, blockhash string) (bool, error)
	SubmitTransaction(ctx context.Context, serialized []byte) (*SubmitResult, error)
	GetSignatureStatus(ctx context.Context, signature string) (SignatureStatus, error)
}

// NewChainProvider dispatches on cfg.Provider to construct the configured
// capability variant.
func NewChainProvider(cfg config.ChainConfig) (ChainProvider, error) {
	rpcClient := rpc.New(cfg.RPCEndpoint)

	switch cfg.Provider {
	case config.ProviderKindHelius:
		heliusRPC := rpcClient
		if cfg.APIKey != "" {
			endpoint, err := url.Parse(cfg.RPCEndpoint)
			if err != nil {
				return nil, fmt.Errorf("parse helius rpc endpoint: %w", err)
			}
			query := endpoint.Query()
			query.Set("api-key", cfg.APIKey)
			endpoint.RawQuery = query.Encode()
			heliusRPC = rpc.New(endpoint.String())
		}
		return &HeliusProvider{standard: newStandardProvider(heliusRPC, cfg), apiKey: cfg.APIKey}, nil
	case config.ProviderKindQuickNode:
		return &QuickNodeProvider{
			standard:       newStandardProvider(rpcClient, cfg),
			tipAccounts:    cfg.TipAccounts,
			tipLamports:    cfg.TipLamports,
			bundleEndpoint: cfg.BundleEndpoint,
			httpClient:     &http.Client{Timeout: cfg.CallTimeout},
		}, nil
	case config.ProviderKindStandard, "":
		return newStandardProvider(rpcClient, cfg), nil
	default:
		return nil, fmt.Errorf("unknown chain provider kind %q", cfg.Provider)
	}
}

// StandardProvider submits through the public sendTransaction RPC path
// with no MEV protection.
type StandardProvider struct {
	rpc     *rpc.Client
	timeout time.Duration
}

func newStandardProvider(rpcClient *rpc.Client, cfg config.ChainConfig) *StandardProvider {
	return &StandardProvider{rpc: rpcClient, timeout: cfg.CallTimeout}
}

func (p *StandardProvider) GetLatestBlockhash(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	out, err := p.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("get latest blockhash: %w", err)
	}
	return out.Value.Blockhash.String(), nil
}

func (p *StandardProvider) IsBlockhashValid(ctx context.Context, blockhash string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	hash, err := solana.HashFromBase58(blockhash)
	if err != nil {
		return false, fmt.Errorf("parse blockhash: %w", err)
	}
	out, err := p.rpc.IsBlockhashValid(ctx, hash, rpc.CommitmentProcessed)
	if err != nil {
		return false, fmt.Errorf("is blockhash valid: %w", err)
	}
	return out.Value, nil
}

func (p *StandardProvider) SubmitTransaction(ctx context.Context, serialized []byte) (*SubmitResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(serialized))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindBlockchainFatal, "decode serialized transaction", err)
	}

	sig, err := p.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{SkipPreflight: false})
	if err != nil {
		return nil, classifySubmitError(err)
	}
	return &SubmitResult{Signature: sig.String()}, nil
}

func (p *StandardProvider) GetSignatureStatus(ctx context.Context, signature string) (SignatureStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return "", fmt.Errorf("parse signature: %w", err)
	}

	out, err := p.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindTimeout, "get signature status", err)
	}
	if len(out.Value) == 0 || out.Value[0] == nil {
		return SignatureStatusNotFound, nil
	}

	status := out.Value[0]
	if status.Err != nil {
		return SignatureStatusFailed, nil
	}
	// Only the finalized commitment counts as confirmation; lower
	// commitments can still roll back.
	if status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
		return SignatureStatusFinalized, nil
	}
	return SignatureStatusNotFound, nil
}

// HeliusProvider submits through the same public RPC path as Standard but
// authenticates via an API key query parameter, and enforces strict
// webhook authentication at the ingestor (config-level, not here).
type HeliusProvider struct {
	standard *StandardProvider
	apiKey   string
}

func (p *HeliusProvider) GetLatestBlockhash(ctx context.Context) (string, error) {
	return p.standard.GetLatestBlockhash(ctx)
}

func (p *HeliusProvider) IsBlockhashValid(ctx context.Context, blockhash string) (bool, error) {
	return p.standard.IsBlockhashValid(ctx, blockhash)
}

func (p *HeliusProvider) SubmitTransaction(ctx context.Context, serialized []byte) (*SubmitResult, error) {
	return p.standard.SubmitTransaction(ctx, serialized)
}

func (p *HeliusProvider) GetSignatureStatus(ctx context.Context, signature string) (SignatureStatus, error) {
	return p.standard.GetSignatureStatus(ctx, signature)
}

// QuickNodeProvider submits through a private bundle relay for MEV
// protection. Per the no-leak rule, a bundle failure is a hard error:
// there is no fallback to the public path on failure.
type QuickNodeProvider struct {
	standard       *StandardProvider
	tipAccounts    []string
	tipLamports    uint64
	bundleEndpoint string
	httpClient     *http.Client
}

// quickNodeBundleRequest is the sendBundle JSON-RPC envelope: a single
// base64-encoded transaction wrapped in a one-element bundle.
type quickNodeBundleRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type quickNodeBundleResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *QuickNodeProvider) GetLatestBlockhash(ctx context.Context) (string, error) {
	return p.standard.GetLatestBlockhash(ctx)
}

func (p *QuickNodeProvider) IsBlockhashValid(ctx context.Context, blockhash string) (bool, error) {
	return p.standard.IsBlockhashValid(ctx, blockhash)
}

func (p *QuickNodeProvider) SubmitTransaction(ctx context.Context, serialized []byte) (*SubmitResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.standard.timeout)
	defer cancel()

	bundleID, err := p.submitBundle(ctx, serialized)
	if err != nil {
		// No public fallback: a bundle failure is returned directly,
		// never silently retried over the public sendTransaction path.
		return nil, apperrors.Wrap(apperrors.KindBlockchainTransient, "submit private bundle", err)
	}
	if bundleID == "" {
		return &SubmitResult{Ambiguous: true}, nil
	}
	return &SubmitResult{Signature: bundleID}, nil
}

func (p *QuickNodeProvider) GetSignatureStatus(ctx context.Context, signature string) (SignatureStatus, error) {
	return p.standard.GetSignatureStatus(ctx, signature)
}

// TipAccount returns a random tip account from the configured fixed set,
// used by the transaction builder to attach an optional MEV tip
// instruction.
func (p *QuickNodeProvider) TipAccount() (solana.PublicKey, error) {
	if len(p.tipAccounts) == 0 {
		return solana.PublicKey{}, fmt.Errorf("no tip accounts configured")
	}
	chosen := p.tipAccounts[rand.Intn(len(p.tipAccounts))]
	return solana.PublicKeyFromBase58(chosen)
}

// submitBundle posts a one-transaction bundle to the configured private
// relay endpoint over sendBundle. This is isolated from StandardProvider
// entirely: the private submission endpoint is not part of the public
// rpc.Client surface, so QuickNodeProvider owns its own HTTP transport
// rather than routing through the shared RPC client.
func (p *QuickNodeProvider) submitBundle(ctx context.Context, serialized []byte) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(serialized)
	reqBody := quickNodeBundleRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "sendBundle",
		Params:  []interface{}{[]string{encoded}, map[string]string{"encoding": "base64"}},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal bundle request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.bundleEndpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build bundle request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send bundle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		// The relay itself failed; the bundle's on-chain fate is unknown
		// until the submission worker resolves it via the prior-signature
		// check, so this is reported ambiguous rather than a hard error.
		return "", nil
	}

	var out quickNodeBundleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode bundle response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("bundle relay rejected bundle: %s", out.Error.Message)
	}
	return out.Result, nil
}

func classifySubmitError(err error) error {
	return apperrors.Wrap(apperrors.KindBlockchainTransient, "submit transaction", err)
}

// VerifyCanonicalSignature checks an Ed25519 signature over the canonical
// signing message using a base58-decoded public key, the shared primitive
// used by the signature verifier.
func VerifyCanonicalSignature(fromAddress string, message, signature []byte) (bool, error) {
	pub, err := solana.PublicKeyFromBase58(fromAddress)
	if err != nil {
		return false, fmt.Errorf("parse from_address as public key: %w", err)
	}
	if len(signature) != ed25519.SignatureSize {
		return false, nil
	}
	return ed25519.Verify(ed25519.PublicKey(pub[:]), message, signature), nil
}
