package models

import "testing"

func TestIsLegalTransition(t *testing.T) {
	cases := []struct {
		from, to BlockchainStatus
		want     bool
	}{
		{BlockchainStatusReceived, BlockchainStatusPendingSubmission, true},
		{BlockchainStatusReceived, BlockchainStatusFailed, true},
		{BlockchainStatusReceived, BlockchainStatusConfirmed, false},
		{BlockchainStatusPendingSubmission, BlockchainStatusProcessing, true},
		{BlockchainStatusProcessing, BlockchainStatusSubmitted, true},
		{BlockchainStatusProcessing, BlockchainStatusPendingSubmission, true},
		{BlockchainStatusProcessing, BlockchainStatusFailed, true},
		{BlockchainStatusProcessing, BlockchainStatusConfirmed, false},
		{BlockchainStatusSubmitted, BlockchainStatusConfirmed, true},
		{BlockchainStatusSubmitted, BlockchainStatusFailed, true},
		{BlockchainStatusSubmitted, BlockchainStatusExpired, true},
		{BlockchainStatusConfirmed, BlockchainStatusFailed, false},
		{BlockchainStatusFailed, BlockchainStatusPendingSubmission, false},
		{BlockchainStatusReceived, BlockchainStatusReceived, false},
	}

	for _, tc := range cases {
		got := IsLegalTransition(tc.from, tc.to)
		if got != tc.want {
			t.Errorf("IsLegalTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalBlockchainStatusesHaveNoOutboundTransitions(t *testing.T) {
	for status := range TerminalBlockchainStatuses {
		for _, other := range []BlockchainStatus{
			BlockchainStatusReceived, BlockchainStatusPendingSubmission, BlockchainStatusProcessing,
			BlockchainStatusSubmitted, BlockchainStatusConfirmed, BlockchainStatusFailed,
			BlockchainStatusExpired,
		} {
			if IsLegalTransition(status, other) {
				t.Errorf("terminal status %s has a legal transition to %s", status, other)
			}
		}
	}
}

func TestAmountOrConfidentialTag(t *testing.T) {
	rec := &TransferRecord{}
	rec.SetDetails(TransferDetails{Kind: TransferKindPublic, Amount: 1500})
	if got := rec.AmountOrConfidentialTag(); got != "1500" {
		t.Errorf("public amount tag = %q, want %q", got, "1500")
	}

	rec.SetDetails(TransferDetails{Kind: TransferKindConfidential})
	if got := rec.AmountOrConfidentialTag(); got != "confidential" {
		t.Errorf("confidential amount tag = %q, want %q", got, "confidential")
	}
}

func TestMintOrSOL(t *testing.T) {
	rec := &TransferRecord{}
	if got := rec.MintOrSOL(); got != "SOL" {
		t.Errorf("nil mint = %q, want SOL", got)
	}

	mint := "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	rec.TokenMint = &mint
	if got := rec.MintOrSOL(); got != mint {
		t.Errorf("set mint = %q, want %q", got, mint)
	}
}
