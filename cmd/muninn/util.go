package main

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/stcorp/muninn/pkg/values"
)

func parseUUIDArg(s string) (values.Value, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return values.Value{}, fmt.Errorf("invalid uuid %q: %w", s, err)
	}
	return values.NewUUID(u), nil
}
