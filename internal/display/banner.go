package display

import (
	"fmt"
	"os"

	"github.com/backmassage/poseconv/internal/term"
)

// PrintBanner prints the ASCII art banner; magenta when colors are enabled.
func PrintBanner() {
	fmt.Fprintln(os.Stdout, term.Magenta.Sprint(` ____                   ____
|  _ \ ___  ___  ___   / ___|___  _ ____   __
| |_) / _ \/ __|/ _ \ | |   / _ \| '_ \ \ / /
|  __/ (_) \__ \  __/ | |__| (_) | | | \ V /
|_|   \___/|___/\___|  \____\___/|_| |_|\_/`))
}
