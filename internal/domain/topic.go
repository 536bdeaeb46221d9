package domain

import (
	"fmt"
	"strings"
)

// Topic is the label shown above the task list on the overlay.
type Topic struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (t Topic) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTopic)
	}
	return nil
}
