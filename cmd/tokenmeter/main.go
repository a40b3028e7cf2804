// Package main is the entry point for tokenmeter.
package main

func main() {
	Execute()
}
