package bucket

import (
	"fmt"
	"regexp"
	"strings"
)

// S3 bucket naming rules
const (
	MinBucketNameLength = 3
	MaxBucketNameLength = 63
)

var (
	// Lowercase letters, digits, hyphens and dots; must start and end
	// alphanumeric.
	validBucketNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9.\-]*[a-z0-9]$`)

	invalidAdjacentDots = regexp.MustCompile(`\.\.`)
	ipAddressPattern    = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`)
)

// ValidateName validates a bucket name according to S3 rules.
func ValidateName(name string) error {
	if len(name) < MinBucketNameLength || len(name) > MaxBucketNameLength {
		return fmt.Errorf("%w: name must be between %d and %d characters",
			ErrInvalidBucketName, MinBucketNameLength, MaxBucketNameLength)
	}

	if !validBucketNameRegex.MatchString(name) {
		return fmt.Errorf("%w: name must start and end with a lowercase letter or number and may contain only lowercase letters, numbers, hyphens and dots",
			ErrInvalidBucketName)
	}

	if invalidAdjacentDots.MatchString(name) {
		return fmt.Errorf("%w: name cannot contain adjacent dots", ErrInvalidBucketName)
	}

	if ipAddressPattern.MatchString(name) {
		return fmt.Errorf("%w: name cannot be formatted as an IP address", ErrInvalidBucketName)
	}

	if strings.HasPrefix(name, "xn--") {
		return fmt.Errorf("%w: name cannot start with 'xn--'", ErrInvalidBucketName)
	}

	if strings.HasSuffix(name, "-s3alias") {
		return fmt.Errorf("%w: name cannot end with '-s3alias'", ErrInvalidBucketName)
	}

	return nil
}
