package stream

import (
	"fmt"

	"github.com/tekhsi/tekhsi-go/internal/tekhsi/wire"
)

func statusErr(symbol string, status wire.WfmReplyStatus) error {
	return fmt.Errorf("symbol %q: stream status %s", symbol, status)
}

func errUnexpectedFirstMessage(symbol string) error {
	return fmt.Errorf("symbol %q: first stream message was not a header", symbol)
}
