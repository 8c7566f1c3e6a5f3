package domain

// RetrievedDocument is a transient retrieval hit. It lives within a single
// query-response cycle and is returned to the caller for citation display.
type RetrievedDocument struct {
	Text         string
	Source       string
	MainHeading  string
	InitialScore float64
	RerankScore  float64
	Reranked     bool
}
