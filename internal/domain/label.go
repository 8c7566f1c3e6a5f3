package domain

// Label is a query classification. It only selects prompt templates;
// a misclassification degrades prompt quality but never routes differently.
type Label string

const (
	LabelFollowUp       Label = "follow_up"
	LabelComparative    Label = "comparative"
	LabelAnalytical     Label = "analytical"
	LabelFactual        Label = "factual"
	LabelMarketOverview Label = "market_overview"
	LabelCompanyProfile Label = "company_profile"
	LabelGeneral        Label = "general"
)

func (l Label) String() string { return string(l) }
