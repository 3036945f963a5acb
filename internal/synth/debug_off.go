//go:build !keysynthdebug

package synth

const debugAssertions = false
