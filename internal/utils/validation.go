package utils

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxNameLength is the longest board, list or card name Trello accepts.
const MaxNameLength = 16384

// MaxDescLength is the longest card description Trello accepts.
const MaxDescLength = 16384

// ValidateName checks a name before it is sent to the API.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name cannot be empty")
	}
	if n := utf8.RuneCountInString(name); n > MaxNameLength {
		return fmt.Errorf("name is too long: %d characters (max %d)", n, MaxNameLength)
	}
	return nil
}

// ValidateDescription checks a card description. Empty descriptions are allowed.
func ValidateDescription(desc string) error {
	if n := utf8.RuneCountInString(desc); n > MaxDescLength {
		return fmt.Errorf("description is too long: %d characters (max %d)", n, MaxDescLength)
	}
	return nil
}
