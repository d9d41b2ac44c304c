// Package main is the entry point for the gateway binary.
package main

func main() {
	Execute()
}
