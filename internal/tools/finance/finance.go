// Package finance provides the specialist agent's financial analysis
// tools: ROI, break-even, P&L, sales forecasting, balance sheets, and
// cash flow statements. Each tool is pure computation over its
// parameters and returns a structured JSON result.
package finance

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/flowentxo/agentinbox/internal/agent"
)

// All returns every finance tool for registration.
func All() []agent.Tool {
	return []agent.Tool{
		&ROICalculator{},
		&BreakEvenAnalyzer{},
		&PnLCalculator{},
		&SalesForecaster{},
		&BalanceSheet{},
		&CashFlowStatement{},
	}
}

// schemaFor reflects a parameter struct into a JSON Schema object.
func schemaFor(v any) json.RawMessage {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(v)
	data, err := json.Marshal(schema)
	if err != nil {
		// Parameter structs are static; reflection cannot fail at runtime.
		panic(fmt.Sprintf("finance: schema reflection failed: %v", err))
	}
	return data
}

func resultJSON(v any) (*agent.ToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &agent.ToolResult{Content: string(data)}, nil
}

func errorResult(format string, args ...any) (*agent.ToolResult, error) {
	return &agent.ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}, nil
}

// ---- ROI ----

type roiParams struct {
	InvestmentCost   float64 `json:"investment_cost" jsonschema:"description=Initial investment amount"`
	RevenueGenerated float64 `json:"revenue_generated" jsonschema:"description=Total revenue generated over the timeframe"`
	TimeframeMonths  int     `json:"timeframe_months" jsonschema:"description=Evaluation period in months"`
	RecurringCosts   float64 `json:"recurring_costs,omitempty" jsonschema:"description=Monthly recurring costs"`
}

type roiResult struct {
	ROIPercentage   float64 `json:"roi_percentage"`
	NetProfit       float64 `json:"net_profit"`
	TotalInvestment float64 `json:"total_investment"`
	// PaybackPeriodMonths is -1 when the investment never pays back.
	PaybackPeriodMonths float64 `json:"payback_period_months"`
	MonthlyProfit       float64 `json:"monthly_profit"`
	ProfitabilityScore  int     `json:"profitability_score"`
	Category            string  `json:"category"`
}

// ROICalculator computes return on investment, payback period, and a
// 0-100 profitability score.
type ROICalculator struct{}

func (t *ROICalculator) Name() string        { return "calculate_roi" }
func (t *ROICalculator) DisplayName() string { return "ROI Calculator" }
func (t *ROICalculator) Description() string {
	return "Calculate return on investment: ROI percentage, net profit, payback period, and a profitability score for an investment over a given timeframe."
}
func (t *ROICalculator) Schema() json.RawMessage { return schemaFor(&roiParams{}) }

func (t *ROICalculator) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var p roiParams
	if err := json.Unmarshal(params, &p); err != nil {
		return errorResult("invalid parameters: %v", err)
	}
	if p.InvestmentCost < 0 || p.RevenueGenerated < 0 || p.RecurringCosts < 0 {
		return errorResult("amounts must not be negative")
	}
	if p.TimeframeMonths <= 0 || p.TimeframeMonths > 600 {
		return errorResult("timeframe_months must be between 1 and 600")
	}
	if p.InvestmentCost == 0 && p.RecurringCosts == 0 {
		return errorResult("at least one of investment_cost or recurring_costs must be positive")
	}

	totalInvestment := p.InvestmentCost + p.RecurringCosts*float64(p.TimeframeMonths)
	netProfit := p.RevenueGenerated - totalInvestment
	roiPct := netProfit / totalInvestment * 100
	monthlyProfit := netProfit / float64(p.TimeframeMonths)

	payback := -1.0
	if monthlyProfit > 0 && p.InvestmentCost > 0 {
		payback = p.InvestmentCost / monthlyProfit
	}

	return resultJSON(&roiResult{
		ROIPercentage:       roiPct,
		NetProfit:           netProfit,
		TotalInvestment:     totalInvestment,
		PaybackPeriodMonths: payback,
		MonthlyProfit:       monthlyProfit,
		ProfitabilityScore:  roiScore(roiPct, payback, netProfit),
		Category:            roiCategory(roiPct),
	})
}

// roiScore weights ROI 50%, payback speed 30%, absolute profit 20%.
func roiScore(roiPct, paybackMonths, netProfit float64) int {
	var roiComponent float64
	switch {
	case roiPct >= 100:
		roiComponent = 50
	default:
		roiComponent = 25 + (roiPct/100)*25
		if roiComponent < 0 {
			roiComponent = 0
		}
	}

	var paybackComponent float64
	switch {
	case paybackMonths < 0:
		paybackComponent = 0
	case paybackMonths <= 6:
		paybackComponent = 30
	case paybackMonths <= 12:
		paybackComponent = 25
	case paybackMonths <= 24:
		paybackComponent = 15
	case paybackMonths <= 48:
		paybackComponent = 5
	}

	var profitComponent float64
	switch {
	case netProfit >= 100000:
		profitComponent = 20
	case netProfit >= 50000:
		profitComponent = 15
	case netProfit >= 10000:
		profitComponent = 10
	case netProfit >= 1000:
		profitComponent = 5
	case netProfit > 0:
		profitComponent = 2
	}

	score := int(roiComponent + paybackComponent + profitComponent)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func roiCategory(roiPct float64) string {
	switch {
	case roiPct >= 50:
		return "excellent"
	case roiPct >= 20:
		return "good"
	case roiPct >= 0:
		return "moderate"
	default:
		return "loss"
	}
}

// ---- Break-even ----

type breakEvenParams struct {
	FixedCosts          float64 `json:"fixed_costs" jsonschema:"description=Fixed costs per period (rent, salaries)"`
	VariableCostPerUnit float64 `json:"variable_cost_per_unit" jsonschema:"description=Variable cost per unit"`
	SellingPricePerUnit float64 `json:"selling_price_per_unit" jsonschema:"description=Selling price per unit"`
	CurrentSalesUnits   float64 `json:"current_sales_units,omitempty" jsonschema:"description=Current unit sales per period for margin-of-safety analysis"`
}

type breakEvenResult struct {
	ContributionMargin      float64 `json:"contribution_margin"`
	ContributionMarginRatio float64 `json:"contribution_margin_ratio"`
	BreakEvenUnits          float64 `json:"break_even_units"`
	BreakEvenRevenue        float64 `json:"break_even_revenue"`

	MarginOfSafetyUnits   *float64 `json:"margin_of_safety_units,omitempty"`
	MarginOfSafetyRevenue *float64 `json:"margin_of_safety_revenue,omitempty"`
	MarginOfSafetyPercent *float64 `json:"margin_of_safety_percent,omitempty"`
}

// BreakEvenAnalyzer computes the break-even point and, when current
// sales are given, the margin of safety.
type BreakEvenAnalyzer struct{}

func (t *BreakEvenAnalyzer) Name() string        { return "analyze_break_even" }
func (t *BreakEvenAnalyzer) DisplayName() string { return "Break-Even Analysis" }
func (t *BreakEvenAnalyzer) Description() string {
	return "Compute the break-even point (units and revenue), contribution margin, and margin of safety from fixed costs, variable unit cost, and unit price."
}
func (t *BreakEvenAnalyzer) Schema() json.RawMessage { return schemaFor(&breakEvenParams{}) }

func (t *BreakEvenAnalyzer) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var p breakEvenParams
	if err := json.Unmarshal(params, &p); err != nil {
		return errorResult("invalid parameters: %v", err)
	}
	if p.FixedCosts < 0 || p.VariableCostPerUnit < 0 {
		return errorResult("costs must not be negative")
	}
	if p.SellingPricePerUnit <= 0 {
		return errorResult("selling_price_per_unit must be positive")
	}
	if p.SellingPricePerUnit <= p.VariableCostPerUnit {
		return errorResult("selling price must exceed variable cost per unit; the product can never be profitable otherwise")
	}

	contribution := p.SellingPricePerUnit - p.VariableCostPerUnit
	result := &breakEvenResult{
		ContributionMargin:      contribution,
		ContributionMarginRatio: contribution / p.SellingPricePerUnit * 100,
		BreakEvenUnits:          p.FixedCosts / contribution,
		BreakEvenRevenue:        p.FixedCosts / contribution * p.SellingPricePerUnit,
	}

	if p.CurrentSalesUnits > 0 {
		units := p.CurrentSalesUnits - result.BreakEvenUnits
		revenue := units * p.SellingPricePerUnit
		percent := units / p.CurrentSalesUnits * 100
		result.MarginOfSafetyUnits = &units
		result.MarginOfSafetyRevenue = &revenue
		result.MarginOfSafetyPercent = &percent
	}
	return resultJSON(result)
}

// ---- P&L ----

type pnlParams struct {
	Revenue           float64            `json:"revenue" jsonschema:"description=Total revenue for the period"`
	COGS              float64            `json:"cogs" jsonschema:"description=Cost of goods sold"`
	OperatingExpenses map[string]float64 `json:"operating_expenses,omitempty" jsonschema:"description=Operating expenses by category"`
	TaxRate           float64            `json:"tax_rate,omitempty" jsonschema:"description=Tax rate as a fraction between 0 and 1"`
}

type pnlResult struct {
	Revenue float64 `json:"revenue"`

	GrossProfit        float64 `json:"gross_profit"`
	GrossMarginPercent float64 `json:"gross_margin_percent"`

	TotalOperatingExpenses float64 `json:"total_operating_expenses"`
	OperatingProfit        float64 `json:"operating_profit"`
	OperatingMarginPercent float64 `json:"operating_margin_percent"`

	Taxes            float64 `json:"taxes"`
	NetProfit        float64 `json:"net_profit"`
	NetMarginPercent float64 `json:"net_margin_percent"`

	BreakEvenRevenue float64 `json:"break_even_revenue"`

	LargestExpenseCategory string `json:"largest_expense_category,omitempty"`
	Category               string `json:"category"`
}

// PnLCalculator builds a profit and loss statement with margins at each
// level and the break-even revenue.
type PnLCalculator struct{}

func (t *PnLCalculator) Name() string        { return "calculate_pnl" }
func (t *PnLCalculator) DisplayName() string { return "P&L Calculator" }
func (t *PnLCalculator) Description() string {
	return "Build a profit and loss statement: gross, operating, and net profit with margins, taxes, and the revenue needed to break even."
}
func (t *PnLCalculator) Schema() json.RawMessage { return schemaFor(&pnlParams{}) }

func (t *PnLCalculator) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var p pnlParams
	if err := json.Unmarshal(params, &p); err != nil {
		return errorResult("invalid parameters: %v", err)
	}
	if p.Revenue < 0 || p.COGS < 0 {
		return errorResult("revenue and cogs must not be negative")
	}
	if p.TaxRate < 0 || p.TaxRate >= 1 {
		return errorResult("tax_rate must be in [0, 1)")
	}
	var totalOpex float64
	for category, amount := range p.OperatingExpenses {
		if amount < 0 {
			return errorResult("operating expense %q must not be negative", category)
		}
		totalOpex += amount
	}

	gross := p.Revenue - p.COGS
	operating := gross - totalOpex
	taxes := 0.0
	if operating > 0 {
		taxes = operating * p.TaxRate
	}
	net := operating - taxes

	result := &pnlResult{
		Revenue:                p.Revenue,
		GrossProfit:            gross,
		TotalOperatingExpenses: totalOpex,
		OperatingProfit:        operating,
		Taxes:                  taxes,
		NetProfit:              net,
		BreakEvenRevenue:       (p.COGS + totalOpex) / (1 - p.TaxRate),
	}
	if p.Revenue > 0 {
		result.GrossMarginPercent = gross / p.Revenue * 100
		result.OperatingMarginPercent = operating / p.Revenue * 100
		result.NetMarginPercent = net / p.Revenue * 100
	}
	result.Category = pnlCategory(result.NetMarginPercent)

	var largest string
	var largestAmount float64
	for category, amount := range p.OperatingExpenses {
		if amount > largestAmount || (amount == largestAmount && category < largest) {
			largest, largestAmount = category, amount
		}
	}
	result.LargestExpenseCategory = largest

	return resultJSON(result)
}

func pnlCategory(netMargin float64) string {
	switch {
	case netMargin >= 20:
		return "excellent"
	case netMargin >= 10:
		return "healthy"
	case netMargin >= 0:
		return "thin"
	default:
		return "loss"
	}
}

// ---- Sales forecast ----

type forecastParams struct {
	HistoricalSales []float64 `json:"historical_sales" jsonschema:"description=Monthly sales amounts oldest first,minItems=3"`
	MonthsAhead     int       `json:"months_ahead" jsonschema:"description=Number of months to forecast"`
}

type forecastResult struct {
	Forecasts            []float64 `json:"forecasts"`
	HistoricalAverage    float64   `json:"historical_average"`
	ForecastAverage      float64   `json:"forecast_average"`
	GrowthRatePercentage float64   `json:"growth_rate_percentage"`
	TrendDirection       string    `json:"trend_direction"`
	TrendStrength        string    `json:"trend_strength"`
	TrendSlope           float64   `json:"trend_slope"`
}

// SalesForecaster projects monthly sales forward on a least-squares
// linear trend over the historical series.
type SalesForecaster struct{}

func (t *SalesForecaster) Name() string        { return "forecast_sales" }
func (t *SalesForecaster) DisplayName() string { return "Sales Forecaster" }
func (t *SalesForecaster) Description() string {
	return "Forecast future monthly sales from historical monthly amounts using a linear trend, with growth rate and trend classification."
}
func (t *SalesForecaster) Schema() json.RawMessage { return schemaFor(&forecastParams{}) }

func (t *SalesForecaster) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var p forecastParams
	if err := json.Unmarshal(params, &p); err != nil {
		return errorResult("invalid parameters: %v", err)
	}
	if len(p.HistoricalSales) < 3 {
		return errorResult("historical_sales needs at least 3 data points")
	}
	if p.MonthsAhead <= 0 || p.MonthsAhead > 36 {
		return errorResult("months_ahead must be between 1 and 36")
	}
	for i, v := range p.HistoricalSales {
		if v < 0 {
			return errorResult("historical_sales[%d] must not be negative", i)
		}
	}

	slope, intercept := linearFit(p.HistoricalSales)

	n := len(p.HistoricalSales)
	forecasts := make([]float64, p.MonthsAhead)
	var forecastSum float64
	for i := range forecasts {
		value := intercept + slope*float64(n+i)
		if value < 0 {
			value = 0
		}
		forecasts[i] = value
		forecastSum += value
	}

	var histSum float64
	for _, v := range p.HistoricalSales {
		histSum += v
	}
	histAvg := histSum / float64(n)
	forecastAvg := forecastSum / float64(p.MonthsAhead)

	growth := 0.0
	if histAvg > 0 {
		growth = (forecastAvg - histAvg) / histAvg * 100
	}

	return resultJSON(&forecastResult{
		Forecasts:            forecasts,
		HistoricalAverage:    histAvg,
		ForecastAverage:      forecastAvg,
		GrowthRatePercentage: growth,
		TrendDirection:       trendDirection(growth),
		TrendStrength:        trendStrength(growth),
		TrendSlope:           slope,
	})
}

// linearFit returns the least-squares slope and intercept for the series
// indexed 0..n-1.
func linearFit(series []float64) (slope, intercept float64) {
	n := float64(len(series))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range series {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

func trendDirection(growthPct float64) string {
	switch {
	case growthPct > 2:
		return "upward"
	case growthPct < -2:
		return "downward"
	default:
		return "stable"
	}
}

func trendStrength(growthPct float64) string {
	abs := growthPct
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 20:
		return "strong"
	case abs >= 5:
		return "moderate"
	default:
		return "weak"
	}
}
