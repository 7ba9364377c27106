package artifact

import "shotline/internal/services"

// ReportFromResults builds a StageReport from positionally aligned item
// results. label names the item at an index for the failure record and may
// be nil.
func ReportFromResults[T any](results []services.Result[T], label func(int) string) StageReport {
	var report StageReport
	for i, result := range results {
		switch {
		case result.OK():
			report.Succeeded++
			continue
		case result.Skipped():
			report.Skipped++
		default:
			report.Failed++
		}
		failure := Failure{
			Index: i,
			Kind:  string(services.KindOf(result.Err)),
			Error: result.Err.Error(),
		}
		if label != nil {
			failure.Item = label(i)
		}
		report.Failures = append(report.Failures, failure)
	}
	return report
}
