package syncer

import (
	"context"
	"fmt"
)

// ErrSignOutDeadline reports that remote sign-out did not finish in time.
var ErrSignOutDeadline = fmt.Errorf("sign out timed out: %w", context.DeadlineExceeded)
