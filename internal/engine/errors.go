package engine

import (
	"errors"
	"fmt"

	"github.com/PlatformLab/Ramdis/internal/keys"
	"github.com/PlatformLab/Ramdis/internal/rootrec"
	"github.com/PlatformLab/Ramdis/internal/segment"
	"github.com/PlatformLab/Ramdis/internal/substrate"
)

var (
	ErrNotFound  = errors.New("key not found")
	ErrWrongType = errors.New("operation against a key holding the wrong kind of value")
	ErrListEmpty = errors.New("list is empty")
	ErrListFull  = errors.New("list is full")
	ErrCorrupt   = errors.New("corrupt record")
	// ErrRetryable the transaction lost every commit race it was allowed;
	// nothing was applied and the call may be repeated.
	ErrRetryable = errors.New("transaction conflict, retry")

	ErrNotInteger      = substrate.ErrNotInteger
	ErrKeyTooLarge     = keys.ErrKeyTooLarge
	ErrElementTooLarge = segment.ErrElementTooLarge
)

// corruption an ErrCorrupt carrying the index entry it was found at, nil
// when the root record itself is damaged.
type corruption struct {
	desc *rootrec.Descriptor
	err  error
}

func corrupt(desc *rootrec.Descriptor, err error) error {
	return &corruption{desc: desc, err: err}
}

func (c *corruption) Error() string {
	if c.desc == nil {
		return fmt.Sprintf("%v: %v", ErrCorrupt, c.err)
	}
	return fmt.Sprintf("%v: segment %v: %v", ErrCorrupt, *c.desc, c.err)
}

func (c *corruption) Unwrap() []error {
	return []error{ErrCorrupt, c.err}
}

// result label of err for the operations counter
func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrWrongType):
		return "wrong_type"
	case errors.Is(err, ErrListEmpty):
		return "empty"
	case errors.Is(err, ErrListFull):
		return "full"
	case errors.Is(err, ErrCorrupt):
		return "corrupt"
	case errors.Is(err, ErrRetryable):
		return "retryable"
	}
	return "error"
}
