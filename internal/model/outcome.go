package model

// Status is the per-symbol outcome of a pipeline run.
type Status string

const (
	StatusOK     Status = "ok"
	StatusEmpty  Status = "empty"
	StatusFailed Status = "failed"
)

// SymbolOutcome is the tagged result for one symbol.
type SymbolOutcome struct {
	Symbol string
	Status Status
	Reason string
	Bars   int
	Record *MetricRecord
}
