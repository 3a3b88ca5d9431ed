// Command prism-sidecar supervises a bundled backend server for a desktop shell
package main

import "github.com/jrepp/prism-sidecar/cmd/prism-sidecar/cmd"

func main() {
	cmd.Execute()
}
