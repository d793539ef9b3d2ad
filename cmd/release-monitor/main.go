// Command release-monitor polls a release bucket, mirrors new archives, and
// delivers a signed webhook for each one detected.
package main

import (
	"github.com/dwellir/release-monitor/cmd/release-monitor/cmd"
)

func main() {
	cmd.Execute()
}
