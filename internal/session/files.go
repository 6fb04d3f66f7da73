package session

import (
	"fmt"
	"io"

	"github.com/google/renameio/v2"
	"github.com/mdp/qrterminal/v3"
)

// writeFileAtomic replaces path with data. Readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer pending.Cleanup()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// renderQR draws code as a compact terminal QR.
func renderQR(w io.Writer, code string) {
	if w == nil {
		return
	}
	qrterminal.GenerateHalfBlock(code, qrterminal.L, w)
}
