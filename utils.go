package lottery

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// ValidateNumbers checks a ticket's numbers: 6 to 12 of them, each in [1,49], no repeats
func ValidateNumbers(nums []int) error {
	if len(nums) < MinTicketNumbers {
		return malformed("%d numbers given, at least %d required", len(nums), MinTicketNumbers)
	}
	if len(nums) > MaxTicketNumbers {
		return malformed("%d numbers given, at most %d allowed", len(nums), MaxTicketNumbers)
	}

	seen := make(map[int]bool, len(nums))
	for _, n := range nums {
		if n < MinNumber || n > MaxNumber {
			return malformed("number %d is outside %d-%d", n, MinNumber, MaxNumber)
		}
		if seen[n] {
			return malformed("number %d appears more than once", n)
		}
		seen[n] = true
	}
	return nil
}

// generateLockValue generates a unique lock value using crypto/rand
func generateLockValue() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based value if crypto/rand fails
		return fmt.Sprintf("lock_%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
