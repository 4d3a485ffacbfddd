package webhook

// Statistics is an aggregate snapshot of the delivery engine
type Statistics struct {
	TotalEndpoints   int64
	EnabledEndpoints int64
	TotalEvents      int64
	StatusCounts     map[Status]int64
	// SuccessRate is delivered / total, 0 when no events exist
	SuccessRate float64
}
