package main

import (
	"fmt"
	"runtime"

	"github.com/Rushs321/suko/internal/codec"
)

// Version is set at build time via ldflags
var Version = "v0.1.0"

// PrintVersion prints the version and the build runtime.
func PrintVersion() {
	printBanner()
	fmt.Printf("suko %s\n", Version)
	fmt.Printf("Runtime: %s/%s %s\n", runtime.GOOS, runtime.GOARCH, runtime.Version())
	fmt.Printf("SIMD:    %t\n", codec.SIMDSupported())
}
