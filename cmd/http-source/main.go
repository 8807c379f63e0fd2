// Command http-source runs the HTTP ingestion connector.
package main

import "github.com/streamkit/http-source/cmd/http-source/cmd"

func main() {
	cmd.Execute()
}
