//go:build amd64 || arm64

package gls

// getg returns the pointer of the calling goroutine's runtime g structure.
// The pointer is used only as a map key and is never dereferenced.
//
// Implemented in assembly.
func getg() uintptr
