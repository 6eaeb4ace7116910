package finance

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestBalanceSheetHealthy(t *testing.T) {
	tool := &BalanceSheet{}
	res, err := tool.Execute(context.Background(), json.RawMessage(`{
		"assets": {"cash": 100000, "accounts_receivable": 80000, "inventory": 60000, "property": 300000, "equipment": 160000},
		"liabilities": {"accounts_payable": 50000, "short_term_debt": 30000, "long_term_debt": 120000},
		"equity": {"share_capital": 300000, "retained_earnings": 200000},
		"date": "2025-06-30"
	}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", res.Content)
	}

	var got balanceSheetResult
	mustResult(t, res.Content, &got)

	if got.TotalAssets != 700000 || got.TotalCurrentAssets != 240000 || got.TotalFixedAssets != 460000 {
		t.Errorf("asset totals = %f / %f / %f", got.TotalAssets, got.TotalCurrentAssets, got.TotalFixedAssets)
	}
	if got.TotalLiabilities != 200000 || got.TotalEquity != 500000 {
		t.Errorf("liabilities = %f, equity = %f", got.TotalLiabilities, got.TotalEquity)
	}
	if !got.IsBalanced {
		t.Errorf("sheet must balance, difference = %f", got.BalanceDifference)
	}
	if got.CurrentRatio == nil || *got.CurrentRatio != 3.0 {
		t.Errorf("current ratio = %v", got.CurrentRatio)
	}
	if got.QuickRatio == nil || *got.QuickRatio != 2.25 {
		t.Errorf("quick ratio = %v", got.QuickRatio)
	}
	if got.DebtToEquityRatio == nil || *got.DebtToEquityRatio != 0.4 {
		t.Errorf("debt-to-equity = %v", got.DebtToEquityRatio)
	}
	if got.WorkingCapital != 160000 {
		t.Errorf("working capital = %f", got.WorkingCapital)
	}
	if got.LiquidityScore != 100 || got.LeverageScore != 100 || got.FinancialHealthScore != 100 {
		t.Errorf("scores = %d/%d/%d", got.LiquidityScore, got.LeverageScore, got.FinancialHealthScore)
	}
	if got.LiquidityStatus != "excellent" || got.LeverageStatus != "conservative" {
		t.Errorf("status = %s/%s", got.LiquidityStatus, got.LeverageStatus)
	}
	if len(got.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", got.Warnings)
	}
}

func TestBalanceSheetNegativeEquity(t *testing.T) {
	tool := &BalanceSheet{}
	res, err := tool.Execute(context.Background(), json.RawMessage(`{
		"assets": {"cash": 20000, "inventory": 30000, "equipment": 50000},
		"liabilities": {"accounts_payable": 80000, "long_term_debt": 70000},
		"equity": {"share_capital": 10000, "retained_earnings": -60000},
		"date": "2025-12-31"
	}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var got balanceSheetResult
	mustResult(t, res.Content, &got)

	if got.TotalEquity != -50000 {
		t.Fatalf("equity = %f", got.TotalEquity)
	}
	if !got.IsBalanced {
		t.Errorf("sheet must balance, difference = %f", got.BalanceDifference)
	}
	// Zero or negative equity leaves debt-to-equity undefined.
	if got.DebtToEquityRatio != nil {
		t.Errorf("debt-to-equity must be omitted, got %v", *got.DebtToEquityRatio)
	}
	if got.LiquidityStatus != "critical" || got.LeverageStatus != "risky" {
		t.Errorf("status = %s/%s", got.LiquidityStatus, got.LeverageStatus)
	}
	if got.FinancialHealthScore != 10 {
		t.Errorf("health score = %d", got.FinancialHealthScore)
	}

	wantWarnings := []string{"working capital", "current ratio", "quick ratio", "negative equity"}
	for _, want := range wantWarnings {
		found := false
		for _, w := range got.Warnings {
			if strings.Contains(w, want) {
				found = true
			}
		}
		if !found {
			t.Errorf("missing %q warning in %v", want, got.Warnings)
		}
	}
}

func TestBalanceSheetNoCurrentLiabilities(t *testing.T) {
	tool := &BalanceSheet{}
	res, err := tool.Execute(context.Background(), json.RawMessage(`{
		"assets": {"cash": 50000, "equipment": 50000},
		"liabilities": {"long_term_debt": 40000},
		"equity": {"share_capital": 60000},
		"date": "2025-01-01"
	}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var got balanceSheetResult
	mustResult(t, res.Content, &got)

	// No current liabilities: the ratios are undefined but count as
	// perfect cover.
	if got.CurrentRatio != nil || got.QuickRatio != nil {
		t.Errorf("ratios must be omitted: %v / %v", got.CurrentRatio, got.QuickRatio)
	}
	if got.LiquidityScore != 100 || got.LiquidityStatus != "excellent" {
		t.Errorf("liquidity = %d %s", got.LiquidityScore, got.LiquidityStatus)
	}
	if got.LeverageScore != 85 {
		t.Errorf("leverage score = %d", got.LeverageScore)
	}
	if got.FinancialHealthScore != 94 {
		t.Errorf("health score = %d", got.FinancialHealthScore)
	}
}

func TestBalanceSheetUnbalancedWarns(t *testing.T) {
	tool := &BalanceSheet{}
	res, err := tool.Execute(context.Background(), json.RawMessage(`{
		"assets": {"cash": 100000},
		"liabilities": {},
		"equity": {"share_capital": 50000},
		"date": "2025-06-30"
	}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var got balanceSheetResult
	mustResult(t, res.Content, &got)
	if got.IsBalanced || got.BalanceDifference != 50000 {
		t.Errorf("balanced = %v, difference = %f", got.IsBalanced, got.BalanceDifference)
	}
	if len(got.Warnings) == 0 || !strings.Contains(got.Warnings[0], "balance") {
		t.Errorf("missing balance warning: %v", got.Warnings)
	}
}

func TestBalanceSheetValidation(t *testing.T) {
	tool := &BalanceSheet{}
	cases := []string{
		`{"assets": {"cash": -1}, "liabilities": {}, "equity": {}, "date": "2025-06-30"}`,
		`{"assets": {}, "liabilities": {}, "equity": {"share_capital": 100}, "date": "2025-06-30"}`,
		`{"assets": {"cash": 100}, "liabilities": {"accounts_payable": -5}, "equity": {}, "date": "2025-06-30"}`,
		`{"assets": {"cash": 100}, "liabilities": {}, "equity": {"share_capital": -1}, "date": "2025-06-30"}`,
		`{"assets": {"cash": 100}, "liabilities": {}, "equity": {}, "date": "June 2025"}`,
	}
	for _, params := range cases {
		res, err := tool.Execute(context.Background(), json.RawMessage(params))
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !res.IsError {
			t.Errorf("expected error result for %s", params)
		}
	}
}

func TestCashFlowStatementStrongQuarter(t *testing.T) {
	tool := &CashFlowStatement{}
	res, err := tool.Execute(context.Background(), json.RawMessage(`{
		"operating_activities": {"net_income": 150000, "depreciation_amortization": 50000, "changes_in_receivables": -20000, "changes_in_inventory": -30000, "changes_in_payables": 15000, "other_operating": 5000},
		"investing_activities": {"capital_expenditures": -80000, "acquisition_of_businesses": -50000, "sale_of_assets": 30000, "investment_purchases": -20000, "investment_sales": 10000},
		"financing_activities": {"debt_issued": 100000, "debt_repayment": -40000, "equity_issued": 50000, "dividends_paid": -30000, "share_buybacks": -20000},
		"beginning_cash": 100000,
		"period": "Q1 2025",
		"revenue": 1000000
	}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", res.Content)
	}

	var got cashFlowResult
	mustResult(t, res.Content, &got)

	if got.OperatingCashFlow != 170000 {
		t.Errorf("ocf = %f", got.OperatingCashFlow)
	}
	if got.InvestingCashFlow != -110000 {
		t.Errorf("icf = %f", got.InvestingCashFlow)
	}
	if got.FinancingCashFlow != 60000 {
		t.Errorf("financing = %f", got.FinancingCashFlow)
	}
	if got.NetCashFlow != 120000 || got.EndingCash != 220000 {
		t.Errorf("net = %f, ending = %f", got.NetCashFlow, got.EndingCash)
	}
	if got.FreeCashFlow != 90000 {
		t.Errorf("fcf = %f", got.FreeCashFlow)
	}
	if got.CashFlowMargin == nil || math.Abs(*got.CashFlowMargin-17) > 1e-9 {
		t.Errorf("margin = %v", got.CashFlowMargin)
	}
	if got.QualityScore != 90 {
		t.Errorf("quality score = %d", got.QualityScore)
	}
	if got.LiquidityTrend != "improving" || got.CashGenerationStrength != "strong" {
		t.Errorf("trend = %s, generation = %s", got.LiquidityTrend, got.CashGenerationStrength)
	}
	if len(got.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", got.Warnings)
	}
}

func TestCashFlowStatementCashBurn(t *testing.T) {
	tool := &CashFlowStatement{}
	res, err := tool.Execute(context.Background(), json.RawMessage(`{
		"operating_activities": {"net_income": -50000, "depreciation_amortization": 10000},
		"investing_activities": {},
		"financing_activities": {"debt_issued": 30000},
		"beginning_cash": 60000,
		"period": "Q2 2025"
	}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var got cashFlowResult
	mustResult(t, res.Content, &got)

	if got.OperatingCashFlow != -40000 || got.NetCashFlow != -10000 || got.EndingCash != 50000 {
		t.Errorf("ocf = %f, net = %f, ending = %f", got.OperatingCashFlow, got.NetCashFlow, got.EndingCash)
	}
	if got.CashFlowMargin != nil {
		t.Errorf("margin must be omitted without revenue, got %v", *got.CashFlowMargin)
	}
	if got.QualityScore != 0 {
		t.Errorf("quality score = %d", got.QualityScore)
	}
	if got.LiquidityTrend != "declining" || got.CashGenerationStrength != "weak" {
		t.Errorf("trend = %s, generation = %s", got.LiquidityTrend, got.CashGenerationStrength)
	}
	for _, want := range []string{"operating cash flow", "free cash flow", "net cash flow"} {
		found := false
		for _, w := range got.Warnings {
			if strings.Contains(w, want) {
				found = true
			}
		}
		if !found {
			t.Errorf("missing %q warning in %v", want, got.Warnings)
		}
	}
}

func TestCashFlowStatementInvestmentPhase(t *testing.T) {
	tool := &CashFlowStatement{}
	res, err := tool.Execute(context.Background(), json.RawMessage(`{
		"operating_activities": {"net_income": 100000, "depreciation_amortization": 20000},
		"investing_activities": {"capital_expenditures": -200000},
		"financing_activities": {"debt_issued": 100000},
		"beginning_cash": 50000,
		"period": "FY 2024"
	}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var got cashFlowResult
	mustResult(t, res.Content, &got)

	// Positive operations, negative free cash flow from heavy capex.
	if got.OperatingCashFlow != 120000 || got.FreeCashFlow != -80000 {
		t.Errorf("ocf = %f, fcf = %f", got.OperatingCashFlow, got.FreeCashFlow)
	}
	if got.QualityScore != 70 {
		t.Errorf("quality score = %d", got.QualityScore)
	}
	if got.CashGenerationStrength != "moderate" {
		t.Errorf("generation = %s", got.CashGenerationStrength)
	}

	found := false
	for _, w := range got.Warnings {
		if strings.Contains(w, "free cash flow") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing free cash flow warning: %v", got.Warnings)
	}
}

func TestCashFlowStatementValidation(t *testing.T) {
	tool := &CashFlowStatement{}
	cases := []string{
		`{"operating_activities": {}, "investing_activities": {}, "financing_activities": {}, "beginning_cash": 0, "period": ""}`,
		`{"operating_activities": {}, "investing_activities": {}, "financing_activities": {}, "beginning_cash": 0, "period": "Q1 2025", "revenue": -5}`,
	}
	for _, params := range cases {
		res, err := tool.Execute(context.Background(), json.RawMessage(params))
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !res.IsError {
			t.Errorf("expected error result for %s", params)
		}
	}
}
