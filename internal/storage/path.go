package storage

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

// NewBlobPath returns a fresh path under the business date prefix,
// e.g. 2024-03-05/0b6d...e1.csv. The original name only contributes its
// extension.
func NewBlobPath(businessDate, originalName string) string {
	ext := strings.ToLower(path.Ext(originalName))
	if ext == "" {
		ext = ".csv"
	}
	return DayPrefix(businessDate) + uuid.NewString() + ext
}

// DayPrefix is the listing prefix of a business date.
func DayPrefix(businessDate string) string {
	return businessDate + "/"
}
