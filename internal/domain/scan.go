package domain

// NodeResult: один элемент страницы, на котором сработало правило.
type NodeResult struct {
	HTML           string   `json:"html"`
	Target         []string `json:"target"`
	Impact         Severity `json:"impact"`
	FailureSummary string   `json:"failureSummary"`
}

// RuleResult: результат одного правила в одной из четырех корзин.
type RuleResult struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Help        string       `json:"help"`
	HelpURL     string       `json:"helpUrl"`
	Impact      Severity     `json:"impact"`
	Tags        []string     `json:"tags"`
	Nodes       []NodeResult `json:"nodes"`
}

// ScanResult: временный результат сканера, в БД как есть не пишется.
type ScanResult struct {
	Violations   []RuleResult `json:"violations"`
	Passes       []RuleResult `json:"passes"`
	Incomplete   []RuleResult `json:"incomplete"`
	Inapplicable []RuleResult `json:"inapplicable"`
}
