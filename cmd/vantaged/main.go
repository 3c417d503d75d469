// Command vantaged runs the headless XR compositor service.
package main

import "github.com/e7canasta/vantage-xr/cmd/vantaged/cmd"

func main() {
	cmd.Execute()
}
