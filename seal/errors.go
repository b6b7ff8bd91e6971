package seal

import (
	stderrors "errors"

	"github.com/pkg/errors"

	"github.com/etclab/pathoram-go/pathoram"
)

var (
	// ErrCapacityExceeded is returned by Insert when the target shard's
	// PathORAM has no room for another record (shard-local id would reach N).
	ErrCapacityExceeded = stderrors.New("seal: shard capacity exceeded")

	// ErrUnknownField is returned by Insert/Query when a field name is not
	// present in the Coordinator's Schema.
	ErrUnknownField = stderrors.New("seal: unknown field")

	// ErrCryptoFailure wraps pathoram's encryption/decryption errors.
	ErrCryptoFailure = stderrors.New("seal: cryptographic failure")

	// ErrStashOverflow wraps pathoram.ErrStashOverflow.
	ErrStashOverflow = stderrors.New("seal: stash overflow")
)

// classifyORAMError maps a pathoram-level error onto the seal-level sentinel
// a caller should errors.Is against. The pathoram error's message is kept as
// the wrap context; the pathoram error value itself is not in the returned
// error's chain. Errors of any other kind are returned unchanged.
func classifyORAMError(err error) error {
	switch {
	case stderrors.Is(err, pathoram.ErrStashOverflow):
		return errors.Wrap(ErrStashOverflow, err.Error())
	case stderrors.Is(err, pathoram.ErrEncryptionFailed), stderrors.Is(err, pathoram.ErrDecryptionFailed):
		return errors.Wrap(ErrCryptoFailure, err.Error())
	default:
		return err
	}
}
