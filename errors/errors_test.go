package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIs_Wrapped_Sentinel(t *testing.T) {
	req := require.New(t)

	// Given a sentinel wrapped with context
	err := fmt.Errorf("register %q: %w", "Alice", ErrNameTaken)

	// Then the sentinel is still detected
	req.True(Is(err, ErrNameTaken))
	req.False(Is(err, ErrEmptyName))
}
