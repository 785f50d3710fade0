package kfx

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Validate checks that c can be written: every fragment needs a non-empty
// UTF-8 type and id, and (type, id) pairs must be unique.
func (c *Container) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: container is nil", ErrValidation)
	}
	if !utf8.ValidString(c.Entry) {
		return fmt.Errorf("%w: entry id is not valid UTF-8", ErrValidation)
	}
	seen := make(map[FragmentKey]struct{}, len(c.Fragments))
	for i, f := range c.Fragments {
		if err := validateName(f.Type); err != nil {
			return fmt.Errorf("%w: fragment %d type: %v", ErrValidation, i, err)
		}
		if err := validateName(f.ID); err != nil {
			return fmt.Errorf("%w: fragment %d (%s) id: %v", ErrValidation, i, f.Type, err)
		}
		key := f.Key()
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: duplicate fragment %s", ErrValidation, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func validateName(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("name is empty")
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("name is not valid UTF-8")
	}
	return nil
}
