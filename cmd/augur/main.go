// Command augur is the security-audit orchestration CLI.
package main

func main() {
	Execute()
}
