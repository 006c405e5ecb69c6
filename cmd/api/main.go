//	@title			Imagestore API
//	@version		1.0
//	@description	Upload, replace and delete images on local disk or an S3-compatible store.
//
//	@host		localhost:5000
//	@BasePath	/

package main

import (
	"fmt"
	"os"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
