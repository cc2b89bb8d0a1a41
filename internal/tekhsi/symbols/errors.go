package symbols

import (
	"fmt"

	"github.com/tekhsi/tekhsi-go/internal/tekhsi/wire"
)

func errStatusNotSuccess(status wire.ConnectStatus) error {
	return fmt.Errorf("instrument returned status %s for AvailableNames", status)
}
