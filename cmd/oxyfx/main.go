// Command oxyfx applies the bloom and exposure post-process pipeline to images, either
// offline on the software backend or interactively in a window.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
