// SPDX-License-Identifier: MPL-2.0

package main

import (
	"os"

	"github.com/ctrprep/ctrprep/cmd/ctrprep"
)

func main() {
	os.Exit(cmd.Main())
}
