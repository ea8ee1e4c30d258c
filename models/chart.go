package models

// Series is one plotted line of a figure
type Series struct {
	Name string    `json:"name"`
	X    []string  `json:"x"`
	Y    []float64 `json:"y"`
	Dash bool      `json:"dash,omitempty"`
}

// Level is a horizontal reference line, such as the day high
type Level struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Figure is the data behind one chart. Rendering is left to the client.
type Figure struct {
	Title      string   `json:"title"`
	Subtitle   string   `json:"subtitle,omitempty"`
	XAxisTitle string   `json:"x_axis_title"`
	YAxisTitle string   `json:"y_axis_title"`
	Series     []Series `json:"series"`
	Levels     []Level  `json:"levels,omitempty"`
}

// AnalysisSummary is the headline chart read shown next to the figures
type AnalysisSummary struct {
	Symbol          string  `json:"symbol"`
	CompanyName     string  `json:"company_name"`
	MarketType      string  `json:"market_type"`
	MarketName      string  `json:"market_name"`
	CurrentPrice    float64 `json:"current_price"`
	CurrencySymbol  string  `json:"currency_symbol"`
	ShortTermTrend  string  `json:"short_term_trend"`
	LongTermTrend   string  `json:"long_term_trend"`
	Performance30d  float64 `json:"performance_30d"`
	Performance90d  float64 `json:"performance_90d"`
	RegressionSlope float64 `json:"regression_slope"`
	RSquared        float64 `json:"r_squared"`
	MarketStatus    string  `json:"market_status"`
	CurrentTime     string  `json:"current_time"`
}

// ChartBundle is everything the query endpoint returns about price charts
type ChartBundle struct {
	Figures         map[string]Figure `json:"figures"`
	AnalysisSummary AnalysisSummary   `json:"analysis_summary"`
}
