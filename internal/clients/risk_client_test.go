package clients

import "testing"

func TestRiskClientMockQueryTombstone(t *testing.T) {
	c := NewRiskClient("", 0)
	resp := c.mockQuery(mockTombstoneAddress)
	if resp.RiskScore != 10 || resp.RiskLevel != "critical" {
		t.Errorf("tombstone address got %+v", resp)
	}
}

func TestRiskClientMockQueryHackPrefix(t *testing.T) {
	c := NewRiskClient("", 0)
	resp := c.mockQuery("HackerWalletAddress123")
	if resp.RiskScore < 6 {
		t.Errorf("hack-prefixed address should score high, got %+v", resp)
	}
}

func TestRiskClientMockQueryDefault(t *testing.T) {
	c := NewRiskClient("", 0)
	resp := c.mockQuery("OrdinaryWalletAddress")
	if resp.RiskScore >= 6 {
		t.Errorf("ordinary address should score low, got %+v", resp)
	}
}

func TestRiskClientQueryUsesMockWhenBaseURLEmpty(t *testing.T) {
	c := NewRiskClient("", 0)
	resp, err := c.Query(mockTombstoneAddress)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if resp.RiskLevel != "critical" {
		t.Errorf("expected mock mode to be used, got %+v", resp)
	}
}

func TestRiskClientTestConnectionNoopWhenMocked(t *testing.T) {
	c := NewRiskClient("", 0)
	if err := c.TestConnection(); err != nil {
		t.Errorf("TestConnection in mock mode should be a no-op, got %v", err)
	}
}
