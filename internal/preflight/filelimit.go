package preflight

import (
	"fmt"
	"syscall"
)

const (
	// MinFileDescriptors is the hard floor for the open-file limit.
	MinFileDescriptors = 1024

	// RecommendedFileDescriptors leaves room for a Bleve index per chat.
	RecommendedFileDescriptors = 4096
)

// CheckFileDescriptors checks the open-file limit.
func CheckFileDescriptors() CheckResult {
	result := CheckResult{Name: "file_descriptors", Required: true}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	return fileLimitResult(rLimit.Cur)
}

func fileLimitResult(limit uint64) CheckResult {
	result := CheckResult{
		Name:     "file_descriptors",
		Required: true,
		Message:  fmt.Sprintf("%d (recommended: %d)", limit, RecommendedFileDescriptors),
	}
	switch {
	case limit < MinFileDescriptors:
		result.Status = StatusFail
		result.Details = "Run 'ulimit -n 10240' to increase the limit"
	case limit < RecommendedFileDescriptors:
		result.Status = StatusWarn
		result.Details = "Each Bleve chat index keeps several files open"
	default:
		result.Status = StatusPass
	}
	return result
}
