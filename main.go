// Command guideline-archiver archives EBPNet clinical guidelines.
package main

import (
	"os"

	"github.com/JakeFAU/guideline-archiver/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
