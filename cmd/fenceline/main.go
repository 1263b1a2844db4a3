// Fenceline - shared-filesystem fence coordination for HA clusters.
// Request in. Response out. Logged three ways.
package main

func main() {
	Execute()
}
