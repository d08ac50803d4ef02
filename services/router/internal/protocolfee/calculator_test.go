package protocolfee

import (
	"errors"
	"testing"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
)

func TestCalculateProratesByExecution(t *testing.T) {
	info := domain.OrderInfo{OriginalQuantity: 100, ExecutedQuantity: 30, Status: domain.StatusPartiallyFilled}
	ratios, err := OrderRatios(info)
	if err != nil {
		t.Fatalf("ratios: %v", err)
	}
	if ratios.Taker != 300_000_000 || ratios.Maker != 700_000_000 {
		t.Fatalf("unexpected ratios %+v", ratios)
	}

	rates := Rates{TakerRate: 2_000_000, MakerRate: 1_000_000}
	fees, err := Calculate(10_000, rates, ratios, 0)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if fees.Taker != 6 || fees.Maker != 7 || fees.Total() != 13 {
		t.Fatalf("expected 6+7=13, got %+v", fees)
	}
}

func TestOrderRatiosByStatus(t *testing.T) {
	cases := []struct {
		name  string
		info  domain.OrderInfo
		taker uint64
		maker uint64
	}{
		{"live untouched", domain.OrderInfo{OriginalQuantity: 10, Status: domain.StatusLive}, 0, 1_000_000_000},
		{"filled", domain.OrderInfo{OriginalQuantity: 10, ExecutedQuantity: 10, Status: domain.StatusFilled}, 1_000_000_000, 0},
		{"ioc remainder cancelled", domain.OrderInfo{OriginalQuantity: 10, ExecutedQuantity: 4, Status: domain.StatusCancelled}, 400_000_000, 0},
		{"ioc nothing filled", domain.OrderInfo{OriginalQuantity: 10, Status: domain.StatusCancelled}, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ratios, err := OrderRatios(tc.info)
			if err != nil {
				t.Fatalf("ratios: %v", err)
			}
			if ratios.Taker != tc.taker || ratios.Maker != tc.maker {
				t.Fatalf("expected %d/%d, got %+v", tc.taker, tc.maker, ratios)
			}
		})
	}
}

func TestOrderRatiosRejectsBadInfo(t *testing.T) {
	if _, err := OrderRatios(domain.OrderInfo{}); !errors.Is(err, domain.ErrInvalidOrder) {
		t.Fatalf("expected invalid order, got %v", err)
	}
	if _, err := OrderRatios(domain.OrderInfo{OriginalQuantity: 1, ExecutedQuantity: 2}); !errors.Is(err, domain.ErrInvalidOrder) {
		t.Fatalf("expected invalid order, got %v", err)
	}
}

func TestCalculateDiscount(t *testing.T) {
	rates := Rates{TakerRate: 2_000_000, MakerRate: 1_000_000, MaxDiscount: 500_000_000}
	fees, err := Calculate(10_000, rates, Ratios{Taker: 1_000_000_000}, 500_000_000)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if fees.Taker != 10 || fees.Maker != 0 {
		t.Fatalf("expected half of 20, got %+v", fees)
	}

	if _, err := Calculate(10_000, rates, Ratios{Taker: 1_000_000_000}, 500_000_001); !errors.Is(err, domain.ErrInvalidDiscount) {
		t.Fatalf("expected invalid discount, got %v", err)
	}
}

func TestCalculateZeroShortCircuit(t *testing.T) {
	rates := Rates{TakerRate: 2_000_000, MakerRate: 1_000_000}
	fees, err := Calculate(0, rates, Ratios{Taker: 1_000_000_000}, 0)
	if err != nil || fees.Total() != 0 {
		t.Fatalf("expected zero fee, got %+v %v", fees, err)
	}
	fees, err = Calculate(10_000, rates, Ratios{}, 0)
	if err != nil || fees.Total() != 0 {
		t.Fatalf("expected zero fee, got %+v %v", fees, err)
	}
}

func TestMaxFees(t *testing.T) {
	rates := Rates{TakerRate: 1_000_000, MakerRate: 3_000_000}
	fees, err := MaxFees(10_000, rates, 0)
	if err != nil {
		t.Fatalf("max fees: %v", err)
	}
	if fees.Total() != 30 {
		t.Fatalf("expected maker bound 30, got %+v", fees)
	}
}

func TestDeepFundedDiscount(t *testing.T) {
	cases := []struct {
		required uint64
		reserves uint64
		want     uint64
	}{
		{1000, 0, 200_000_000},
		{1000, 1000, 0},
		{1000, 250, 150_000_000},
		{0, 0, 200_000_000},
	}
	for _, tc := range cases {
		got, err := DeepFundedDiscount(200_000_000, tc.required, tc.reserves)
		if err != nil {
			t.Fatalf("discount: %v", err)
		}
		if got != tc.want {
			t.Fatalf("required %d reserves %d: expected %d, got %d", tc.required, tc.reserves, tc.want, got)
		}
	}
}

func TestCombineDiscounts(t *testing.T) {
	if got := CombineDiscounts(100, 40, 60); got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}
	if got := CombineDiscounts(50, 40, 60); got != 50 {
		t.Fatalf("expected cap 50, got %d", got)
	}
}

func TestPlanCollectionTakerFirst(t *testing.T) {
	plan := PlanCollection(Fees{Taker: 6, Maker: 7}, 8, 10)
	if !plan.Sufficient {
		t.Fatalf("expected sufficient plan")
	}
	if plan.TakerFromWallet != 6 || plan.TakerFromBM != 0 {
		t.Fatalf("unexpected taker sourcing %+v", plan)
	}
	if plan.MakerFromWallet != 2 || plan.MakerFromBM != 5 {
		t.Fatalf("unexpected maker sourcing %+v", plan)
	}

	plan = PlanCollection(Fees{Taker: 6, Maker: 7}, 8, 4)
	if plan.Sufficient || plan.TakerFromWallet != 0 || plan.MakerFromBM != 0 {
		t.Fatalf("expected infeasible plan, got %+v", plan)
	}
}

func TestConfigOverrides(t *testing.T) {
	cfg, err := NewConfig(nil)
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	if got := cfg.Rates(FeeTypeInput, "pool-a"); got != DefaultRates[FeeTypeInput] {
		t.Fatalf("expected default rates, got %+v", got)
	}

	override := Rates{TakerRate: 2_000_000, MakerRate: 1_000_000, MaxDiscount: 100_000_000}
	if err := cfg.SetPool(FeeTypeInput, "pool-a", override); err != nil {
		t.Fatalf("set pool: %v", err)
	}
	if got := cfg.Rates(FeeTypeInput, "pool-a"); got != override {
		t.Fatalf("expected override, got %+v", got)
	}
	if got := cfg.Rates(FeeTypeCoverage, "pool-a"); got != DefaultRates[FeeTypeCoverage] {
		t.Fatalf("override must be per fee type, got %+v", got)
	}

	cfg.ClearPool(FeeTypeInput, "pool-a")
	if got := cfg.Rates(FeeTypeInput, "pool-a"); got != DefaultRates[FeeTypeInput] {
		t.Fatalf("expected default after clear, got %+v", got)
	}

	if err := cfg.SetPool(FeeTypeInput, "pool-a", Rates{TakerRate: MaxTakerRate + 1}); !errors.Is(err, domain.ErrInvalidFeeRate) {
		t.Fatalf("expected invalid fee rate, got %v", err)
	}
	if err := cfg.SetDefault("deep", override); !errors.Is(err, domain.ErrInvalidFeeRate) {
		t.Fatalf("expected unknown fee type error, got %v", err)
	}
}
