// Package main is the entry point for bundlekeeper.
package main

func main() {
	Execute()
}
