package chain

import (
	"testing"
)

func TestBuild(t *testing.T) {
	c, err := Build("SPX", "SPXW", "251219", 6000, 2, 2, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantStrikes := []float64{5990, 5995, 6000, 6005, 6010}
	strikes := c.Strikes()
	if len(strikes) != len(wantStrikes) {
		t.Fatalf("expected %d strikes, got %d", len(wantStrikes), len(strikes))
	}
	for i, want := range wantStrikes {
		if strikes[i] != want {
			t.Errorf("strike[%d]: expected %v, got %v", i, want, strikes[i])
		}
	}

	center := c.Contracts[2]
	if center.CallSymbol != ".SPXW251219C6000" {
		t.Errorf("unexpected call symbol %q", center.CallSymbol)
	}
	if center.PutSymbol != ".SPXW251219P6000" {
		t.Errorf("unexpected put symbol %q", center.PutSymbol)
	}
}

func TestBuildRoundsCenterToIncrement(t *testing.T) {
	c, err := Build("SPX", "SPXW", "251219", 6002.4, 1, 1, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	strikes := c.Strikes()
	want := []float64{5995, 6000, 6005}
	for i, w := range want {
		if strikes[i] != w {
			t.Errorf("strike[%d]: expected %v, got %v", i, w, strikes[i])
		}
	}
}

func TestBuildAscendingNoDuplicates(t *testing.T) {
	c, err := Build("NDX", "NDXP", "251219", 20000, 10, 10, 25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	strikes := c.Strikes()
	for i := 1; i < len(strikes); i++ {
		if strikes[i] <= strikes[i-1] {
			t.Fatalf("strikes not strictly ascending at %d: %v <= %v", i, strikes[i], strikes[i-1])
		}
	}
}

func TestBuildFractionalIncrement(t *testing.T) {
	c, err := Build("AAPL", "AAPL", "251219", 101, 1, 1, 2.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 101 rounds to 100; neighbors 97.5 and 102.5.
	if got := c.Contracts[0].CallSymbol; got != ".AAPL251219C97.5" {
		t.Errorf("unexpected call symbol %q", got)
	}
	if got := c.Contracts[2].PutSymbol; got != ".AAPL251219P102.5" {
		t.Errorf("unexpected put symbol %q", got)
	}
}

func TestBuildRejectsBadInput(t *testing.T) {
	if _, err := Build("SPX", "SPXW", "251219", 6000, 1, 1, 0); err == nil {
		t.Error("expected error for zero increment")
	}
	if _, err := Build("SPX", "SPXW", "251219", 6000, -1, 1, 5); err == nil {
		t.Error("expected error for negative strike count")
	}
	if _, err := Build("SPX", "SPXW", "25121", 6000, 1, 1, 5); err == nil {
		t.Error("expected error for short expiration")
	}
}

func TestFormatStrike(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{680, "680"},
		{2.5, "2.5"},
		{6000, "6000"},
		{102.5, "102.5"},
		{0.5, "0.5"},
	}
	for _, c := range cases {
		if got := FormatStrike(c.in); got != c.want {
			t.Errorf("FormatStrike(%v): expected %q, got %q", c.in, c.want, got)
		}
	}
}

func TestParse(t *testing.T) {
	p, ok := Parse(".SPXW251219C6000")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if p.Prefix != "SPXW" || p.Expiration != "251219" || p.Side != SideCall || p.Strike != 6000 {
		t.Errorf("unexpected parse result %+v", p)
	}

	p, ok = Parse(".AAPL251219P102.5")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if p.Side != SidePut || p.Strike != 102.5 {
		t.Errorf("unexpected parse result %+v", p)
	}

	for _, bad := range []string{"SPX", ".SPXW251219X6000", ".spxw251219C6000", ""} {
		if _, ok := Parse(bad); ok {
			t.Errorf("expected parse to fail for %q", bad)
		}
	}
}

func TestBuildRoundTripsThroughParse(t *testing.T) {
	c, err := Build("SPX", "SPXW", "251219", 6000, 3, 3, 5)
	if err != nil {
		t.Fatal(err)
	}
	for _, sym := range c.Symbols() {
		p, ok := Parse(sym)
		if !ok {
			t.Fatalf("generated symbol %q did not parse", sym)
		}
		if p.Prefix != "SPXW" || p.Expiration != "251219" {
			t.Errorf("round trip mismatch for %q: %+v", sym, p)
		}
	}
}
