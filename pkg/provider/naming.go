package provider

import (
	"fmt"
	"net"
)

// ValidateBucketName checks the bucket naming rules that can be verified
// without a round-trip: at most 63 characters of lowercase letters, digits,
// '-' and '.', starting and ending with a letter or digit, no "..", and not
// formatted as an IPv4 address.
//
// The 3 character minimum of AWS S3 is left to the store; several
// S3-compatible stores accept shorter names.
func ValidateBucketName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: bucket name is required", ErrInvalidBucketName)
	}
	if len(name) > 63 {
		return fmt.Errorf("%w: %q is longer than 63 characters", ErrInvalidBucketName, name)
	}

	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-' || c == '.':
			if i == 0 || i == len(name)-1 {
				return fmt.Errorf("%w: %q must start and end with a letter or digit", ErrInvalidBucketName, name)
			}
			if c == '.' && name[i-1] == '.' {
				return fmt.Errorf("%w: %q must not contain consecutive periods", ErrInvalidBucketName, name)
			}
		default:
			return fmt.Errorf("%w: %q contains invalid character %q", ErrInvalidBucketName, name, c)
		}
	}

	if ip := net.ParseIP(name); ip != nil && ip.To4() != nil {
		return fmt.Errorf("%w: %q must not be formatted as an IP address", ErrInvalidBucketName, name)
	}
	return nil
}
