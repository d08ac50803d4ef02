package fixedmath

import (
	"errors"
	"math"
	"testing"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
)

func TestMulTruncates(t *testing.T) {
	got, err := Mul(10_000, 300_000_000)
	if err != nil {
		t.Fatalf("mul: %v", err)
	}
	if got != 3_000 {
		t.Fatalf("expected 3000, got %d", got)
	}

	got, err = Mul(7, 500_000_000)
	if err != nil {
		t.Fatalf("mul: %v", err)
	}
	if got != 3 {
		t.Fatalf("expected floor(3.5)=3, got %d", got)
	}
}

func TestDiv(t *testing.T) {
	got, err := Div(30, 100)
	if err != nil {
		t.Fatalf("div: %v", err)
	}
	if got != 300_000_000 {
		t.Fatalf("expected 0.3, got %d", got)
	}
}

func TestMulDivWideIntermediate(t *testing.T) {
	got, err := MulDiv(math.MaxUint64, 1_000, 1_000)
	if err != nil {
		t.Fatalf("muldiv: %v", err)
	}
	if got != math.MaxUint64 {
		t.Fatalf("expected max uint64, got %d", got)
	}
}

func TestMulDivOverflow(t *testing.T) {
	if _, err := MulDiv(math.MaxUint64, 2, 1); !errors.Is(err, domain.ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := MulDiv(1, 1, 0); !errors.Is(err, domain.ErrArithmeticOverflow) {
		t.Fatalf("expected division by zero error, got %v", err)
	}
}

func TestPow10(t *testing.T) {
	got, err := Pow10(12)
	if err != nil || got != 1_000_000_000_000 {
		t.Fatalf("expected 1e12, got %d %v", got, err)
	}
	if _, err := Pow10(20); err == nil {
		t.Fatalf("expected overflow for 10^20")
	}
}

func TestApplySlippage(t *testing.T) {
	got, err := ApplySlippage(1_000, 10_000_000)
	if err != nil {
		t.Fatalf("slippage: %v", err)
	}
	if got != 1_010 {
		t.Fatalf("expected 1010, got %d", got)
	}
}
