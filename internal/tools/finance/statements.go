package finance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowentxo/agentinbox/internal/agent"
)

// ---- Balance sheet ----

type balanceAssets struct {
	Cash               float64 `json:"cash,omitempty" jsonschema:"description=Cash and bank balances"`
	AccountsReceivable float64 `json:"accounts_receivable,omitempty" jsonschema:"description=Trade receivables"`
	Inventory          float64 `json:"inventory,omitempty" jsonschema:"description=Inventory and stock"`
	PrepaidExpenses    float64 `json:"prepaid_expenses,omitempty" jsonschema:"description=Prepaid expenses"`
	OtherCurrent       float64 `json:"other_current,omitempty" jsonschema:"description=Other current assets"`

	Property         float64 `json:"property,omitempty" jsonschema:"description=Land and buildings"`
	Equipment        float64 `json:"equipment,omitempty" jsonschema:"description=Machinery and equipment"`
	Vehicles         float64 `json:"vehicles,omitempty" jsonschema:"description=Vehicle fleet"`
	IntangibleAssets float64 `json:"intangible_assets,omitempty" jsonschema:"description=Intangible assets"`
	OtherFixed       float64 `json:"other_fixed,omitempty" jsonschema:"description=Other fixed assets"`
}

func (a *balanceAssets) currentTotal() float64 {
	return a.Cash + a.AccountsReceivable + a.Inventory + a.PrepaidExpenses + a.OtherCurrent
}

func (a *balanceAssets) fixedTotal() float64 {
	return a.Property + a.Equipment + a.Vehicles + a.IntangibleAssets + a.OtherFixed
}

func (a *balanceAssets) validate() error {
	for name, v := range map[string]float64{
		"cash": a.Cash, "accounts_receivable": a.AccountsReceivable, "inventory": a.Inventory,
		"prepaid_expenses": a.PrepaidExpenses, "other_current": a.OtherCurrent,
		"property": a.Property, "equipment": a.Equipment, "vehicles": a.Vehicles,
		"intangible_assets": a.IntangibleAssets, "other_fixed": a.OtherFixed,
	} {
		if v < 0 {
			return fmt.Errorf("asset %q must not be negative", name)
		}
	}
	if a.currentTotal()+a.fixedTotal() <= 0 {
		return fmt.Errorf("at least one asset must be positive")
	}
	return nil
}

type balanceLiabilities struct {
	AccountsPayable float64 `json:"accounts_payable,omitempty" jsonschema:"description=Trade payables"`
	ShortTermDebt   float64 `json:"short_term_debt,omitempty" jsonschema:"description=Short-term loans"`
	AccruedExpenses float64 `json:"accrued_expenses,omitempty" jsonschema:"description=Accrued expenses and provisions"`
	UnearnedRevenue float64 `json:"unearned_revenue,omitempty" jsonschema:"description=Customer prepayments"`
	OtherCurrent    float64 `json:"other_current,omitempty" jsonschema:"description=Other current liabilities"`

	LongTermDebt       float64 `json:"long_term_debt,omitempty" jsonschema:"description=Long-term loans"`
	BondsPayable       float64 `json:"bonds_payable,omitempty" jsonschema:"description=Bonds issued"`
	DeferredTax        float64 `json:"deferred_tax,omitempty" jsonschema:"description=Deferred tax liabilities"`
	PensionObligations float64 `json:"pension_obligations,omitempty" jsonschema:"description=Pension obligations"`
	OtherLongTerm      float64 `json:"other_long_term,omitempty" jsonschema:"description=Other long-term liabilities"`
}

func (l *balanceLiabilities) currentTotal() float64 {
	return l.AccountsPayable + l.ShortTermDebt + l.AccruedExpenses + l.UnearnedRevenue + l.OtherCurrent
}

func (l *balanceLiabilities) longTermTotal() float64 {
	return l.LongTermDebt + l.BondsPayable + l.DeferredTax + l.PensionObligations + l.OtherLongTerm
}

func (l *balanceLiabilities) validate() error {
	for name, v := range map[string]float64{
		"accounts_payable": l.AccountsPayable, "short_term_debt": l.ShortTermDebt,
		"accrued_expenses": l.AccruedExpenses, "unearned_revenue": l.UnearnedRevenue,
		"other_current": l.OtherCurrent, "long_term_debt": l.LongTermDebt,
		"bonds_payable": l.BondsPayable, "deferred_tax": l.DeferredTax,
		"pension_obligations": l.PensionObligations, "other_long_term": l.OtherLongTerm,
	} {
		if v < 0 {
			return fmt.Errorf("liability %q must not be negative", name)
		}
	}
	return nil
}

// balanceEquity totals may be negative; only share capital is bounded.
type balanceEquity struct {
	ShareCapital      float64 `json:"share_capital,omitempty" jsonschema:"description=Issued share capital"`
	CapitalReserves   float64 `json:"capital_reserves,omitempty" jsonschema:"description=Capital reserves"`
	RetainedEarnings  float64 `json:"retained_earnings,omitempty" jsonschema:"description=Retained earnings"`
	CurrentYearProfit float64 `json:"current_year_profit,omitempty" jsonschema:"description=Current year profit or loss"`
}

func (e *balanceEquity) total() float64 {
	return e.ShareCapital + e.CapitalReserves + e.RetainedEarnings + e.CurrentYearProfit
}

type balanceSheetParams struct {
	Assets      balanceAssets      `json:"assets" jsonschema:"description=Asset positions split into current and fixed"`
	Liabilities balanceLiabilities `json:"liabilities" jsonschema:"description=Liability positions split into current and long-term"`
	Equity      balanceEquity      `json:"equity" jsonschema:"description=Equity positions"`
	Date        string             `json:"date" jsonschema:"description=Balance sheet date in YYYY-MM-DD format"`
}

type balanceSheetResult struct {
	Date string `json:"date"`

	TotalAssets              float64 `json:"total_assets"`
	TotalCurrentAssets       float64 `json:"total_current_assets"`
	TotalFixedAssets         float64 `json:"total_fixed_assets"`
	TotalLiabilities         float64 `json:"total_liabilities"`
	TotalCurrentLiabilities  float64 `json:"total_current_liabilities"`
	TotalLongTermLiabilities float64 `json:"total_long_term_liabilities"`
	TotalEquity              float64 `json:"total_equity"`

	IsBalanced        bool    `json:"is_balanced"`
	BalanceDifference float64 `json:"balance_difference"`

	// Ratios are omitted when their denominator makes them undefined:
	// current and quick ratio with no current liabilities, debt-to-equity
	// with zero or negative equity.
	CurrentRatio      *float64 `json:"current_ratio,omitempty"`
	QuickRatio        *float64 `json:"quick_ratio,omitempty"`
	DebtToEquityRatio *float64 `json:"debt_to_equity_ratio,omitempty"`
	DebtToAssetsRatio float64  `json:"debt_to_assets_ratio"`
	EquityRatio       float64  `json:"equity_ratio"`
	WorkingCapital    float64  `json:"working_capital"`

	FinancialHealthScore int    `json:"financial_health_score"`
	LiquidityScore       int    `json:"liquidity_score"`
	LeverageScore        int    `json:"leverage_score"`
	LiquidityStatus      string `json:"liquidity_status"`
	LeverageStatus       string `json:"leverage_status"`

	Warnings []string `json:"warnings,omitempty"`
}

// BalanceSheet builds a structured balance sheet with liquidity and
// leverage ratios, sub-scores, and an overall financial health score.
type BalanceSheet struct{}

func (t *BalanceSheet) Name() string        { return "generate_balance_sheet" }
func (t *BalanceSheet) DisplayName() string { return "Balance Sheet" }
func (t *BalanceSheet) Description() string {
	return "Generate a balance sheet from asset, liability, and equity positions: totals, balance check, six key ratios (current, quick, debt-to-equity, debt-to-assets, equity ratio, working capital), and a financial health score."
}
func (t *BalanceSheet) Schema() json.RawMessage { return schemaFor(&balanceSheetParams{}) }

func (t *BalanceSheet) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var p balanceSheetParams
	if err := json.Unmarshal(params, &p); err != nil {
		return errorResult("invalid parameters: %v", err)
	}
	if err := p.Assets.validate(); err != nil {
		return errorResult("%v", err)
	}
	if err := p.Liabilities.validate(); err != nil {
		return errorResult("%v", err)
	}
	if p.Equity.ShareCapital < 0 {
		return errorResult("share_capital must not be negative")
	}
	if _, err := time.Parse("2006-01-02", p.Date); err != nil {
		return errorResult("date must be in YYYY-MM-DD format")
	}

	currentAssets := p.Assets.currentTotal()
	fixedAssets := p.Assets.fixedTotal()
	totalAssets := currentAssets + fixedAssets
	currentLiabilities := p.Liabilities.currentTotal()
	longTermLiabilities := p.Liabilities.longTermTotal()
	totalLiabilities := currentLiabilities + longTermLiabilities
	totalEquity := p.Equity.total()

	balanceDiff := totalAssets - (totalLiabilities + totalEquity)
	if balanceDiff < 0 {
		balanceDiff = -balanceDiff
	}
	isBalanced := balanceDiff < 0.01

	result := &balanceSheetResult{
		Date:                     p.Date,
		TotalAssets:              totalAssets,
		TotalCurrentAssets:       currentAssets,
		TotalFixedAssets:         fixedAssets,
		TotalLiabilities:         totalLiabilities,
		TotalCurrentLiabilities:  currentLiabilities,
		TotalLongTermLiabilities: longTermLiabilities,
		TotalEquity:              totalEquity,
		IsBalanced:               isBalanced,
		BalanceDifference:        balanceDiff,
		WorkingCapital:           currentAssets - currentLiabilities,
	}

	if currentLiabilities > 0 {
		current := currentAssets / currentLiabilities
		quick := (currentAssets - p.Assets.Inventory) / currentLiabilities
		result.CurrentRatio = &current
		result.QuickRatio = &quick
	}
	if totalEquity > 0 {
		dte := totalLiabilities / totalEquity
		result.DebtToEquityRatio = &dte
	}
	if totalAssets > 0 {
		result.DebtToAssetsRatio = totalLiabilities / totalAssets
		result.EquityRatio = totalEquity / totalAssets * 100
	}

	result.LiquidityScore = liquidityScore(result.CurrentRatio, result.QuickRatio, result.WorkingCapital, totalAssets)
	result.LeverageScore = leverageScore(result.DebtToEquityRatio, result.DebtToAssetsRatio, result.EquityRatio)
	balanceQuality := 0
	if isBalanced {
		balanceQuality = 10
	}
	result.FinancialHealthScore = int(float64(result.LiquidityScore)*0.5+float64(result.LeverageScore)*0.4) + balanceQuality
	result.LiquidityStatus = liquidityStatus(result.CurrentRatio)
	result.LeverageStatus = leverageStatus(result.DebtToEquityRatio)
	result.Warnings = balanceSheetWarnings(result, p.Assets.Cash)

	return resultJSON(result)
}

// liquidityScore weights the current ratio 50%, quick ratio 30%, and
// working capital relative to assets 20%. A nil ratio means no current
// liabilities, which scores as perfect cover.
func liquidityScore(currentRatio, quickRatio *float64, workingCapital, totalAssets float64) int {
	score := 0

	switch {
	case currentRatio == nil, *currentRatio >= 2.0:
		score += 50
	case *currentRatio >= 1.5:
		score += 35
	case *currentRatio >= 1.0:
		score += 20
	case *currentRatio >= 0.8:
		score += 10
	}

	switch {
	case quickRatio == nil, *quickRatio >= 1.0:
		score += 30
	case *quickRatio >= 0.8:
		score += 20
	case *quickRatio >= 0.5:
		score += 10
	}

	wcRatio := 0.0
	if totalAssets > 0 {
		wcRatio = workingCapital / totalAssets
	}
	switch {
	case wcRatio >= 0.2:
		score += 20
	case wcRatio >= 0.1:
		score += 15
	case wcRatio > 0:
		score += 10
	}

	return score
}

// leverageScore weights debt-to-equity 40%, debt-to-assets 30%, and the
// equity ratio 30%. A nil debt-to-equity means zero or negative equity
// and scores nothing.
func leverageScore(debtToEquity *float64, debtToAssets, equityRatio float64) int {
	score := 0

	switch {
	case debtToEquity == nil:
	case *debtToEquity <= 0.5:
		score += 40
	case *debtToEquity <= 1.0:
		score += 25
	case *debtToEquity <= 2.0:
		score += 10
	}

	switch {
	case debtToAssets <= 0.4:
		score += 30
	case debtToAssets <= 0.6:
		score += 20
	case debtToAssets <= 0.8:
		score += 10
	}

	switch {
	case equityRatio >= 40:
		score += 30
	case equityRatio >= 30:
		score += 20
	case equityRatio >= 20:
		score += 10
	}

	return score
}

func liquidityStatus(currentRatio *float64) string {
	switch {
	case currentRatio == nil, *currentRatio >= 2.0:
		return "excellent"
	case *currentRatio >= 1.5:
		return "good"
	case *currentRatio >= 1.0:
		return "moderate"
	default:
		return "critical"
	}
}

func leverageStatus(debtToEquity *float64) string {
	switch {
	case debtToEquity == nil:
		return "risky"
	case *debtToEquity <= 0.5:
		return "conservative"
	case *debtToEquity <= 1.0:
		return "moderate"
	case *debtToEquity <= 2.0:
		return "aggressive"
	default:
		return "risky"
	}
}

func balanceSheetWarnings(r *balanceSheetResult, cash float64) []string {
	var warnings []string

	if !r.IsBalanced {
		warnings = append(warnings, fmt.Sprintf("balance sheet does not balance: assets differ from liabilities plus equity by %.2f", r.BalanceDifference))
	}
	if r.WorkingCapital < 0 {
		warnings = append(warnings, fmt.Sprintf("negative working capital (%.2f): current liabilities exceed current assets", r.WorkingCapital))
	}
	if r.CurrentRatio != nil && *r.CurrentRatio < 1.0 {
		warnings = append(warnings, fmt.Sprintf("current ratio %.2f is below 1.0: short-term obligations are not fully covered", *r.CurrentRatio))
	}
	if r.QuickRatio != nil && *r.QuickRatio < 0.5 {
		warnings = append(warnings, fmt.Sprintf("quick ratio %.2f is below 0.5: liquidity is insufficient even excluding inventory", *r.QuickRatio))
	}
	if r.DebtToEquityRatio != nil && *r.DebtToEquityRatio > 3.0 {
		warnings = append(warnings, fmt.Sprintf("debt-to-equity %.2f exceeds 3.0: liabilities are more than triple the equity", *r.DebtToEquityRatio))
	}
	if r.EquityRatio > 0 && r.EquityRatio < 20 {
		warnings = append(warnings, fmt.Sprintf("equity ratio %.1f%% is below 20%%: thin equity base limits creditworthiness", r.EquityRatio))
	}
	if r.TotalCurrentAssets > 0 {
		cashShare := cash / r.TotalCurrentAssets * 100
		if cashShare < 10 {
			warnings = append(warnings, fmt.Sprintf("cash is only %.1f%% of current assets: little immediately available liquidity", cashShare))
		}
	}
	if r.TotalEquity < 0 {
		warnings = append(warnings, fmt.Sprintf("negative equity (%.2f): liabilities exceed total assets", r.TotalEquity))
	}

	return warnings
}

// ---- Cash flow statement ----

type operatingActivities struct {
	NetIncome                float64 `json:"net_income,omitempty" jsonschema:"description=Net income for the period"`
	DepreciationAmortization float64 `json:"depreciation_amortization,omitempty" jsonschema:"description=Depreciation and amortization added back"`
	ChangesInReceivables     float64 `json:"changes_in_receivables,omitempty" jsonschema:"description=Change in receivables (negative when receivables grew)"`
	ChangesInInventory       float64 `json:"changes_in_inventory,omitempty" jsonschema:"description=Change in inventory (negative when inventory grew)"`
	ChangesInPayables        float64 `json:"changes_in_payables,omitempty" jsonschema:"description=Change in payables (positive when payables grew)"`
	OtherOperating           float64 `json:"other_operating,omitempty" jsonschema:"description=Other operating adjustments"`
}

func (a *operatingActivities) total() float64 {
	return a.NetIncome + a.DepreciationAmortization + a.ChangesInReceivables +
		a.ChangesInInventory + a.ChangesInPayables + a.OtherOperating
}

type investingActivities struct {
	CapitalExpenditures     float64 `json:"capital_expenditures,omitempty" jsonschema:"description=Capital expenditures (negative for outflows)"`
	AcquisitionOfBusinesses float64 `json:"acquisition_of_businesses,omitempty" jsonschema:"description=Business acquisitions (negative for outflows)"`
	SaleOfAssets            float64 `json:"sale_of_assets,omitempty" jsonschema:"description=Proceeds from asset sales"`
	InvestmentPurchases     float64 `json:"investment_purchases,omitempty" jsonschema:"description=Security purchases (negative for outflows)"`
	InvestmentSales         float64 `json:"investment_sales,omitempty" jsonschema:"description=Proceeds from security sales"`
	OtherInvesting          float64 `json:"other_investing,omitempty" jsonschema:"description=Other investing activity"`
}

func (a *investingActivities) total() float64 {
	return a.CapitalExpenditures + a.AcquisitionOfBusinesses + a.SaleOfAssets +
		a.InvestmentPurchases + a.InvestmentSales + a.OtherInvesting
}

type financingActivities struct {
	DebtIssued     float64 `json:"debt_issued,omitempty" jsonschema:"description=New borrowings"`
	DebtRepayment  float64 `json:"debt_repayment,omitempty" jsonschema:"description=Debt repayments (negative for outflows)"`
	EquityIssued   float64 `json:"equity_issued,omitempty" jsonschema:"description=Proceeds from equity issuance"`
	DividendsPaid  float64 `json:"dividends_paid,omitempty" jsonschema:"description=Dividends paid (negative for outflows)"`
	ShareBuybacks  float64 `json:"share_buybacks,omitempty" jsonschema:"description=Share buybacks (negative for outflows)"`
	OtherFinancing float64 `json:"other_financing,omitempty" jsonschema:"description=Other financing activity"`
}

func (a *financingActivities) total() float64 {
	return a.DebtIssued + a.DebtRepayment + a.EquityIssued +
		a.DividendsPaid + a.ShareBuybacks + a.OtherFinancing
}

type cashFlowParams struct {
	Operating     operatingActivities `json:"operating_activities" jsonschema:"description=Operating cash flow items (indirect method)"`
	Investing     investingActivities `json:"investing_activities" jsonschema:"description=Investing cash flow items"`
	Financing     financingActivities `json:"financing_activities" jsonschema:"description=Financing cash flow items"`
	BeginningCash float64             `json:"beginning_cash" jsonschema:"description=Cash position at the start of the period"`
	Period        string              `json:"period" jsonschema:"description=Reporting period label such as Q1 2025"`
	Revenue       float64             `json:"revenue,omitempty" jsonschema:"description=Revenue for the period, enables the cash flow margin"`
}

type cashFlowResult struct {
	Period string `json:"period"`

	OperatingCashFlow float64 `json:"operating_cash_flow"`
	InvestingCashFlow float64 `json:"investing_cash_flow"`
	FinancingCashFlow float64 `json:"financing_cash_flow"`

	NetCashFlow   float64 `json:"net_cash_flow"`
	BeginningCash float64 `json:"beginning_cash"`
	EndingCash    float64 `json:"ending_cash"`

	FreeCashFlow float64 `json:"free_cash_flow"`
	// CashFlowMargin is omitted when no revenue was given.
	CashFlowMargin *float64 `json:"cash_flow_margin,omitempty"`

	QualityScore           int    `json:"quality_score"`
	LiquidityTrend         string `json:"liquidity_trend"`
	CashGenerationStrength string `json:"cash_generation_strength"`

	Warnings []string `json:"warnings,omitempty"`
}

// CashFlowStatement builds a cash flow statement over operating,
// investing, and financing activities with free cash flow and a quality
// score.
type CashFlowStatement struct{}

func (t *CashFlowStatement) Name() string        { return "generate_cash_flow_statement" }
func (t *CashFlowStatement) DisplayName() string { return "Cash Flow Statement" }
func (t *CashFlowStatement) Description() string {
	return "Generate a cash flow statement: operating, investing, and financing cash flows, net change and ending cash, free cash flow, and a cash flow quality score with liquidity trend."
}
func (t *CashFlowStatement) Schema() json.RawMessage { return schemaFor(&cashFlowParams{}) }

func (t *CashFlowStatement) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var p cashFlowParams
	if err := json.Unmarshal(params, &p); err != nil {
		return errorResult("invalid parameters: %v", err)
	}
	if p.Period == "" {
		return errorResult("period is required")
	}
	if p.Revenue < 0 {
		return errorResult("revenue must not be negative")
	}

	ocf := p.Operating.total()
	icf := p.Investing.total()
	fin := p.Financing.total()
	net := ocf + icf + fin

	// Capex is entered as a negative outflow, so free cash flow is an
	// addition.
	fcf := ocf + p.Investing.CapitalExpenditures

	result := &cashFlowResult{
		Period:            p.Period,
		OperatingCashFlow: ocf,
		InvestingCashFlow: icf,
		FinancingCashFlow: fin,
		NetCashFlow:       net,
		BeginningCash:     p.BeginningCash,
		EndingCash:        p.BeginningCash + net,
		FreeCashFlow:      fcf,
	}

	if p.Revenue > 0 {
		margin := ocf / p.Revenue * 100
		result.CashFlowMargin = &margin
	}

	result.QualityScore = cashFlowQualityScore(ocf, p.Operating.NetIncome, fcf, net)
	result.LiquidityTrend = liquidityTrend(p.BeginningCash, result.EndingCash)
	result.CashGenerationStrength = cashGenerationStrength(result.CashFlowMargin, ocf, fcf)
	result.Warnings = cashFlowWarnings(result, p.Operating.NetIncome)

	return resultJSON(result)
}

// cashFlowQualityScore weights cash conversion against net income 40%,
// positive free cash flow 30%, and a positive net cash flow 30%.
func cashFlowQualityScore(ocf, netIncome, fcf, netCashFlow float64) int {
	score := 0

	switch {
	case ocf > 0 && netIncome > 0:
		switch ratio := ocf / netIncome; {
		case ratio >= 1.2:
			score += 40
		case ratio >= 1.0:
			score += 30
		case ratio >= 0.8:
			score += 20
		default:
			score += 10
		}
	case ocf > 0:
		score += 20
	}

	if fcf > 0 {
		if fcf > netIncome*0.5 {
			score += 30
		} else {
			score += 20
		}
	}

	switch {
	case netCashFlow > 0:
		score += 30
	case netCashFlow == 0:
		score += 15
	}

	return score
}

// liquidityTrend compares the ending cash position against the start of
// the period, with a 10% band counting as stable.
func liquidityTrend(beginning, ending float64) string {
	if beginning == 0 {
		if ending > 0 {
			return "improving"
		}
		return "stable"
	}
	change := (ending - beginning) / beginning * 100
	switch {
	case change > 10:
		return "improving"
	case change < -10:
		return "declining"
	default:
		return "stable"
	}
}

// cashGenerationStrength rates on the cash flow margin when revenue is
// known, otherwise on the absolute operating and free cash flows.
func cashGenerationStrength(margin *float64, ocf, fcf float64) string {
	if margin != nil {
		switch {
		case *margin > 15:
			return "strong"
		case *margin > 8:
			return "moderate"
		default:
			return "weak"
		}
	}
	switch {
	case ocf > 0 && fcf > 0 && fcf > ocf*0.3:
		return "strong"
	case ocf > 0:
		return "moderate"
	default:
		return "weak"
	}
}

func cashFlowWarnings(r *cashFlowResult, netIncome float64) []string {
	var warnings []string

	if r.OperatingCashFlow < 0 {
		warnings = append(warnings, fmt.Sprintf("negative operating cash flow (%.2f): the core business is burning cash", r.OperatingCashFlow))
	}
	if r.FreeCashFlow < 0 {
		warnings = append(warnings, fmt.Sprintf("negative free cash flow (%.2f): nothing left after investments for dividends or debt reduction", r.FreeCashFlow))
	}
	if r.NetCashFlow < 0 {
		warnings = append(warnings, fmt.Sprintf("negative net cash flow (%.2f): the cash position is shrinking", r.NetCashFlow))
	}
	if netIncome > 0 && r.OperatingCashFlow < netIncome {
		conversion := r.OperatingCashFlow / netIncome * 100
		warnings = append(warnings, fmt.Sprintf("poor cash conversion: operating cash flow is only %.1f%% of net income", conversion))
	}
	if r.EndingCash > 0 && r.EndingCash < 50000 {
		warnings = append(warnings, fmt.Sprintf("low cash reserve: ending cash of %.2f leaves little buffer", r.EndingCash))
	}
	if r.EndingCash <= 0 {
		warnings = append(warnings, fmt.Sprintf("cash depleted: ending cash is %.2f", r.EndingCash))
	}
	if netIncome > 0 && r.OperatingCashFlow > 0 && r.OperatingCashFlow < netIncome*0.5 {
		warnings = append(warnings, fmt.Sprintf("very low conversion: operating cash flow is %.1f%% of net income, working capital may be absorbing cash", r.OperatingCashFlow/netIncome*100))
	}

	return warnings
}
